package plugin

import (
	"context"

	"github.com/hashicorp/errwrap"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"abeguard/abe"
	"abeguard/pairing"
)

func pathSetup(b *backend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "config/setup",

			Fields: map[string]*framework.FieldSchema{
				"suite": {
					Type:        framework.TypeString,
					Description: "Pairing suite to use, bn256 or pbc. Defaults to the deployment config's suite.",
				},
				"attributes": {
					Type:        framework.TypeStringSlice,
					Description: "The initial attribute universe.",
					Required:    true,
				},
			},

			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.setup,
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.setup,
					Summary:  "Generate the master and public keys for an attribute universe.",
				},
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.readSetup,
					Summary:  "Read the configured suite and attribute universe.",
				},
			},
		},
	}
}

func (b *backend) setup(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Info("Invoked: Setup")

	suiteName := data.Get("suite").(string)
	if suiteName == "" {
		suiteName = b.cfg.Suite
	}
	attributes := data.Get("attributes").([]string)

	if len(attributes) == 0 {
		return logical.ErrorResponse("Empty attribute universe"), nil
	}

	var existing storedSetup
	found, err := b.dataLoad(ctx, configSetupPath, &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return logical.ErrorResponse("the backend is already set up"), nil
	}

	suite, err := pairing.NewSuite(suiteName)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	engine := abe.NewEngine(suite, b.Logger())

	pk, msk, err := engine.Setup(attributes)
	if err != nil {
		return nil, errwrap.Wrapf("setup failed: {{err}}", err)
	}

	if err := b.storePublicKey(ctx, pk); err != nil {
		return nil, err
	}

	rawMSK, err := abe.MarshalMasterKey(msk)
	if err != nil {
		return nil, errwrap.Wrapf("json encoding failed: {{err}}", err)
	}
	if err := b.storage.Put(ctx, &logical.StorageEntry{Key: masterKeyPath, Value: rawMSK}); err != nil {
		b.storage.Delete(ctx, publicKeyPath)
		return nil, errwrap.Wrapf("failed to write: {{err}}", err)
	}

	if err := b.dataStore(ctx, configSetupPath, storedSetup{Suite: suiteName, Universe: pk.Universe()}); err != nil {
		return nil, err
	}

	b.abeCache.SetDefault(engineCacheKey, engine)

	return &logical.Response{
		Data: map[string]interface{}{
			"suite":      suiteName,
			"attributes": pk.Universe(),
		},
	}, nil
}

func (b *backend) readSetup(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	var setup storedSetup
	found, err := b.dataLoad(ctx, configSetupPath, &setup)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"suite":      setup.Suite,
			"attributes": setup.Universe,
		},
	}, nil
}
