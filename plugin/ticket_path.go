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

	"abeguard/quota"
	"abeguard/ticket"
)

func pathTicket(b *backend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "ticket/request",

			Fields: map[string]*framework.FieldSchema{
				"ciphertext_id": {
					Type:        framework.TypeString,
					Description: "ID of the stored ciphertext to request a download ticket for.",
					Required:    true,
				},
				"requester_id": {
					Type:        framework.TypeString,
					Description: "UUID identifying the requester for rate limiting.",
					Required:    true,
				},
			},

			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.requestTicket,
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.requestTicket,
					Summary:  "Request a single-use download ticket for a ciphertext.",
				},
			},
		},
		{
			Pattern: "ticket/redeem",

			Fields: map[string]*framework.FieldSchema{
				"ticket": {
					Type:        framework.TypeString,
					Description: "Base64 ticket as returned by ticket/request.",
					Required:    true,
				},
				"ciphertext_id": {
					Type:        framework.TypeString,
					Description: "ID of the ciphertext being downloaded.",
					Required:    true,
				},
			},

			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.redeemTicket,
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.redeemTicket,
					Summary:  "Redeem a ticket and download the sealed ciphertext.",
				},
			},
		},
	}
}

func (b *backend) requestTicket(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Info("Invoked: Ticket request")

	ciphertextID, err := uuid.FromString(data.Get("ciphertext_id").(string))
	if err != nil {
		return logical.ErrorResponse("Malformed ciphertext ID"), nil
	}
	requesterID, err := uuid.FromString(data.Get("requester_id").(string))
	if err != nil {
		return logical.ErrorResponse("Malformed requester ID"), nil
	}

	authority, err := b.authority(ctx)
	if err != nil {
		return nil, err
	}

	t, err := authority.RequestTicket(ctx, ciphertextID, requesterID)
	if err != nil {
		if quota.IsThrottle(err) {
			throttle := err.(*quota.ThrottleError)
			resp := logical.ErrorResponse(err.Error())
			resp.Data["retry_after_ms"] = throttle.RetryAfter.Milliseconds()
			return resp, nil
		}
		return nil, err
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"ticket":  b64.StdEncoding.EncodeToString(t.Encode()),
			"expiry":  t.Expiry,
			"max_use": 1,
		},
	}, nil
}

func (b *backend) redeemTicket(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Info("Invoked: Ticket redeem")

	rawTicket, err := b64.StdEncoding.DecodeString(data.Get("ticket").(string))
	if err != nil {
		return logical.ErrorResponse("Malformed base64 ticket"), nil
	}
	ciphertextID, err := uuid.FromString(data.Get("ciphertext_id").(string))
	if err != nil {
		return logical.ErrorResponse("Malformed ciphertext ID"), nil
	}

	verifier, err := b.verifier(ctx)
	if err != nil {
		return nil, err
	}

	handle, err := verifier.Redeem(rawTicket, ciphertextID)
	if err != nil {
		switch {
		case errors.Is(err, ticket.ErrTicketSignature),
			errors.Is(err, ticket.ErrTicketExpired),
			errors.Is(err, ticket.ErrTicketReplayed),
			errors.Is(err, ticket.ErrAttestation):
			return logical.ErrorResponse(err.Error()), nil
		}
		return nil, err
	}

	blobRaw, err := b.blobs.Get(ctx, handle.CiphertextID)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	var stored storedBlob
	if err := json.Unmarshal(blobRaw, &stored); err != nil {
		return nil, errwrap.Wrapf("json decoding failed: {{err}}", err)
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"ciphertext_id": handle.CiphertextID.String(),
			"b64_enc_data":  b64.StdEncoding.EncodeToString(stored.Sealed),
		},
	}, nil
}
