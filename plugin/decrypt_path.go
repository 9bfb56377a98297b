package plugin

import (
	"context"
	"encoding/json"
	"errors"

	b64 "encoding/base64"

	"github.com/hashicorp/errwrap"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"
	uuid "github.com/satori/go.uuid"

	"abeguard/abe"
)

func pathDecrypt(b *backend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "decrypt/" + framework.GenericNameRegex("gid"),

			Fields: map[string]*framework.FieldSchema{
				"gid": {
					Type:        framework.TypeString,
					Description: "The global identity whose key to decrypt with.",
					Required:    true,
				},
				"ciphertext_id": {
					Type:        framework.TypeString,
					Description: "ID of a stored ciphertext to decrypt.",
				},
				"b64_enc_data": {
					Type:        framework.TypeString,
					Description: "Base64 sealed payload to decrypt, as returned by encrypt.",
				},
			},

			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.decrypt,
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.decrypt,
					Summary:  "Decrypt a sealed payload with a GID's key.",
				},
			},
		},
	}
}

func (b *backend) decrypt(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Info("Invoked: Decryption")

	gid := data.Get("gid").(string)
	ciphertextID := data.Get("ciphertext_id").(string)
	encData := data.Get("b64_enc_data").(string)

	engine, err := b.engine(ctx)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	uk, err := b.loadUserKey(ctx, engine, gid)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	var raw []byte
	switch {
	case encData != "":
		raw, err = b64.StdEncoding.DecodeString(encData)
		if err != nil {
			return logical.ErrorResponse("Malformed base64 data"), nil
		}
	case ciphertextID != "":
		id, err := uuid.FromString(ciphertextID)
		if err != nil {
			return logical.ErrorResponse("Malformed ciphertext ID"), nil
		}
		blobRaw, err := b.blobs.Get(ctx, id)
		if err != nil {
			return logical.ErrorResponse(err.Error()), nil
		}
		var stored storedBlob
		if err := json.Unmarshal(blobRaw, &stored); err != nil {
			return nil, errwrap.Wrapf("json decoding failed: {{err}}", err)
		}
		raw = stored.Sealed
	default:
		return logical.ErrorResponse("One of ciphertext_id or b64_enc_data is required"), nil
	}

	sealed, err := decodeSealed(raw)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	plaintext, err := engine.Open(uk, sealed)
	if err != nil {
		if errors.Is(err, abe.ErrPolicyNotSatisfied) {
			return logical.ErrorResponse("The key's attributes do not satisfy the policy"), nil
		}
		return nil, errwrap.Wrapf("error in decryption: {{err}}", err)
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"message": string(plaintext),
		},
	}, nil
}
