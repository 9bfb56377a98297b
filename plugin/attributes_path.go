package plugin

import (
	"context"

	"github.com/hashicorp/errwrap"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"
)

func pathAttributes(b *backend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "attributes",

			Fields: map[string]*framework.FieldSchema{
				"attributes": {
					Type:        framework.TypeStringSlice,
					Description: "The attributes to add to the universe.",
					Required:    true,
				},
			},

			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.addAttributes,
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.addAttributes,
					Summary:  "Extend the attribute universe.",
				},
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.listAttributes,
					Summary:  "List the attribute universe.",
				},
			},
		},
	}
}

func (b *backend) addAttributes(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Info("Invoked: Add attributes")

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

	for _, attribute := range attributes {
		if err := engine.AddAttribute(pk, attribute); err != nil {
			return logical.ErrorResponse(err.Error()), nil
		}
	}

	if err := b.storePublicKey(ctx, pk); err != nil {
		return nil, err
	}

	var setup storedSetup
	if _, err := b.dataLoad(ctx, configSetupPath, &setup); err != nil {
		return nil, err
	}
	setup.Universe = pk.Universe()
	if err := b.dataStore(ctx, configSetupPath, setup); err != nil {
		return nil, errwrap.Wrapf("failed to write: {{err}}", err)
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"attributes": pk.Universe(),
		},
	}, nil
}

func (b *backend) listAttributes(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	engine, err := b.engine(ctx)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	pk, err := b.loadPublicKey(ctx, engine)
	if err != nil {
		return nil, err
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"attributes": pk.Universe(),
		},
	}, nil
}
