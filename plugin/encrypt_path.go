package plugin

import (
	"context"
	"encoding/json"

	b64 "encoding/base64"

	"github.com/hashicorp/errwrap"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"abeguard/abe"
)

func pathEncrypt(b *backend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "encrypt",

			Fields: map[string]*framework.FieldSchema{
				"message": {
					Type:        framework.TypeString,
					Description: "The plaintext to encrypt.",
					Required:    true,
				},
				"policy": {
					Type:        framework.TypeString,
					Description: "Boolean policy over attributes, e.g. (DOCTOR AND CARDIOLOGY) OR ADMIN.",
					Required:    true,
				},
			},

			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.encrypt,
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.encrypt,
					Summary:  "Encrypt a payload under an attribute policy.",
				},
			},
		},
	}
}

func (b *backend) encrypt(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Info("Invoked: Encryption")

	message := data.Get("message").(string)
	policyStr := data.Get("policy").(string)

	if len(message) == 0 {
		return logical.ErrorResponse("Empty message for encryption"), nil
	}

	engine, err := b.engine(ctx)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	pk, err := b.loadPublicKey(ctx, engine)
	if err != nil {
		return nil, err
	}

	prog, err := engine.Compile(policyStr, pk)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	sealed, err := engine.Seal(pk, prog, []byte(message))
	if err != nil {
		return nil, errwrap.Wrapf("error in encryption: {{err}}", err)
	}

	exported, err := json.Marshal(sealed)
	if err != nil {
		return nil, errwrap.Wrapf("json encoding failed: {{err}}", err)
	}

	blobEntry, err := json.Marshal(storedBlob{Sealed: exported, Policy: policyStr})
	if err != nil {
		return nil, errwrap.Wrapf("json encoding failed: {{err}}", err)
	}

	id, err := b.blobs.Put(ctx, blobEntry)
	if err != nil {
		return nil, err
	}

	b64Encoded := b64.StdEncoding.EncodeToString(exported)

	return &logical.Response{
		Data: map[string]interface{}{
			"ciphertext_id": id.String(),
			"b64_enc_data":  b64Encoded,
		},
	}, nil
}

func decodeSealed(raw []byte) (*abe.SealedPayload, error) {
	var sealed abe.SealedPayload
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return nil, errwrap.Wrapf("json decoding failed: {{err}}", err)
	}
	return &sealed, nil
}
