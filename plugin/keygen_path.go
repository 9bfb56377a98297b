package plugin

import (
	"context"
	"strings"

	"github.com/hashicorp/errwrap"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"abeguard/abe"
)

func pathKeygen(b *backend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "keygen/" + framework.GenericNameRegex("gid"),

			Fields: map[string]*framework.FieldSchema{
				"gid": {
					Type:        framework.TypeString,
					Description: "The global identity to issue a key for.",
					Required:    true,
				},
				"attributes": {
					Type:        framework.TypeStringSlice,
					Description: "The attributes the key certifies.",
					Required:    true,
				},
			},

			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.keygen,
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.keygen,
					Summary:  "Issue a decryption key for a GID over an attribute set.",
				},
			},
		},
		{
			Pattern: subjectsPath + "/?$",

			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ListOperation: &framework.PathOperation{
					Callback: b.handleList,
				},
			},
		},
		{
			Pattern: subjectsPath + keypathSubjects + framework.GenericNameRegex("gid"),

			Fields: map[string]*framework.FieldSchema{
				"gid": {
					Type:        framework.TypeString,
					Description: "The global identity whose issued key record to read.",
				},
			},

			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.readSubject,
				},
				logical.ListOperation: &framework.PathOperation{
					Callback: b.handleList,
				},
			},
		},
	}
}

func (b *backend) keygen(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Info("Invoked: Keygen")

	gid := data.Get("gid").(string)
	attributes := data.Get("attributes").([]string)

	if len(attributes) == 0 {
		return logical.ErrorResponse("No attributes given"), nil
	}

	engine, err := b.engine(ctx)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	pk, err := b.loadPublicKey(ctx, engine)
	if err != nil {
		return nil, err
	}

	msk, err := b.loadMasterKey(ctx)
	if err != nil {
		return nil, err
	}

	uk, err := engine.KeyGen(msk, pk, gid, attributes)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	rawKey, err := abe.MarshalUserKey(uk)
	if err != nil {
		return nil, errwrap.Wrapf("json encoding failed: {{err}}", err)
	}

	stored := storedUserKey{
		GID:        strings.ToUpper(gid),
		Attributes: uk.Attributes(),
		Key:        rawKey,
	}
	if err := b.dataStore(ctx, subjectKeyPath(gid), stored); err != nil {
		return nil, err
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"gid":        stored.GID,
			"attributes": stored.Attributes,
		},
	}, nil
}

func (b *backend) readSubject(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Info("Invoked: Read subject")

	gid := data.Get("gid").(string)

	attributes, err := b.subjects().Lookup(ctx, gid)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"gid":        strings.ToUpper(gid),
			"attributes": attributes,
		},
	}, nil
}
