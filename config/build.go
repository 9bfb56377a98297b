package config

import (
	"fmt"

	"github.com/hashicorp/errwrap"
	"github.com/hashicorp/go-hclog"

	"abeguard/blob"
	"abeguard/clock"
	"abeguard/pairing"
	"abeguard/quota"
	"abeguard/ticket"
)

// NewSuite constructs the configured pairing suite.
func (c *Config) NewSuite() (pairing.Suite, error) {
	return pairing.NewSuite(c.Suite)
}

// NewQuotaStore opens the configured quota persistence. With no DSN the
// windows live in memory only.
func (c *Config) NewQuotaStore() (quota.Persistence, error) {
	if c.Quota.MySQLDSN == "" {
		return quota.NewMemStore(), nil
	}
	store, err := quota.NewSQLStore(c.Quota.MySQLDSN)
	if err != nil {
		return nil, errwrap.Wrapf("failed to open quota database: {{err}}", err)
	}
	return store, nil
}

// NewBlobStore opens the configured ciphertext store.
func (c *Config) NewBlobStore() (blob.Store, error) {
	if c.Blob.S3Bucket == "" {
		return blob.NewMemStore(), nil
	}
	return blob.NewS3Store(c.Blob.S3Region, c.Blob.S3Bucket, c.Blob.S3Prefix)
}

// Limits returns the issuance policy the authority enforces.
func (c *Config) Limits() ticket.Limits {
	return ticket.Limits{
		Limit:     c.Quota.Limit,
		Window:    c.Quota.Window.Duration,
		TicketTTL: c.Authority.TicketTTL.Duration,
	}
}

// NewAuthority assembles the configured authority variant. A non-nil
// persist overrides the configured quota store; the deployment passes one
// when its own storage should hold the windows. The enclave variant needs
// a sync client, a root-signed attestation, and a caller that runs its
// sync loop; those come from the deployment, not this file.
func (c *Config) NewAuthority(signer ticket.SignatureService, persist quota.Persistence, sync ticket.SyncClient, root ticket.SignatureService, measurement [32]byte, logger hclog.Logger) (ticket.Authority, error) {
	switch c.Authority.Variant {
	case "online":
		if persist == nil {
			store, err := c.NewQuotaStore()
			if err != nil {
				return nil, err
			}
			persist = store
		}
		ledger := quota.NewLedger(persist, logger)
		return ticket.NewOnlineAuthority(ledger, signer, c.Limits(), clock.System{}, logger), nil

	case "enclave":
		cfg := ticket.EnclaveConfig{
			Limits:         c.Limits(),
			SyncInterval:   c.Authority.SyncInterval.Duration,
			StalenessBound: c.Authority.StalenessBound.Duration,
			Measurement:    measurement,
		}
		ledger := quota.NewLedger(nil, logger)
		return ticket.NewEnclaveAuthority(ledger, signer, cfg, sync, root, clock.System{}, logger)

	default:
		return nil, fmt.Errorf("unknown authority variant %q", c.Authority.Variant)
	}
}
