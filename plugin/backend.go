package plugin

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"
	cache "github.com/patrickmn/go-cache"

	"abeguard/blob"
	"abeguard/clock"
	"abeguard/config"
	"abeguard/quota"
)

// Factory creates a new backend implementing the logical.Backend interface
func Factory(ctx context.Context, conf *logical.BackendConfig) (logical.Backend, error) {
	return FactoryWithConfig(config.Default())(ctx, conf)
}

// FactoryWithConfig binds a loaded deployment config: the pairing suite
// default, issuance limits and the quota and blob store selection all come
// from cfg. The plugin main loads cfg from the -config flag.
func FactoryWithConfig(cfg *config.Config) logical.Factory {
	return func(ctx context.Context, conf *logical.BackendConfig) (logical.Backend, error) {
		b, err := Backend(ctx, conf, cfg)
		if err != nil {
			return nil, err
		}
		if err := b.Setup(ctx, conf); err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Backend returns a new Backend framework struct
func Backend(ctx context.Context, conf *logical.BackendConfig, cfg *config.Config) (*backend, error) {
	var b backend
	b.Backend = &framework.Backend{
		Help:        strings.TrimSpace(backendHelp),
		BackendType: logical.TypeLogical,

		PathsSpecial: &logical.Paths{
			Unauthenticated: []string{},

			Root: []string{
				"config/*",
			},

			SealWrapStorage: []string{
				configSetupPath,
				signingKeyPath,
				masterKeyPath,
				subjectsPath + "/*",
			},
		},

		Paths: framework.PathAppend(
			pathSetup(&b),
			pathAttributes(&b),
			pathKeygen(&b),
			pathEncrypt(&b),
			pathDecrypt(&b),
			pathTicket(&b),
		),

		InitializeFunc: b.initialize,

		Secrets: []*framework.Secret{},
	}

	b.abeCache = cache.New(0, 30*time.Second)
	b.clock = clock.System{}
	b.cfg = cfg
	b.storage = conf.StorageView

	// Quota windows and sealed blobs live in the mount's own storage
	// unless the config points at an external store.
	b.quota = &storageQuota{storage: b.storage}
	if cfg.Quota.MySQLDSN != "" {
		store, err := cfg.NewQuotaStore()
		if err != nil {
			return nil, err
		}
		b.quota = store
	}
	b.blobs = &storageBlob{storage: b.storage}
	if cfg.Blob.S3Bucket != "" {
		store, err := cfg.NewBlobStore()
		if err != nil {
			return nil, err
		}
		b.blobs = store
	}

	return &b, nil
}

// initialize rebuilds the cached engine after a mount restart. A mount
// that has not been set up yet is left alone.
func (b *backend) initialize(ctx context.Context, req *logical.InitializationRequest) error {
	b.Logger().Info("Starting initialization for the abeguard plugin")

	var setup storedSetup
	found, err := b.dataLoad(ctx, configSetupPath, &setup)
	if err != nil {
		b.Logger().Error("error running initialization", "error", err)
		return err
	}
	if !found {
		return nil
	}

	if _, err := b.engine(ctx); err != nil {
		b.Logger().Error("error running initialization", "error", err)
		return err
	}
	return nil
}

type backend struct {
	*framework.Backend

	storage  logical.Storage
	abeCache *cache.Cache
	clock    clock.Clock
	cfg      *config.Config
	quota    quota.Persistence
	blobs    blob.Store
}

const backendHelp = `
The abeguard backend encrypts payloads under attribute policies and gates
their download behind signed, single-use tickets.

Setup chooses the pairing suite and the initial attribute universe. Keys
for subjects are issued per GID against that universe. Encrypt seals a
payload under a boolean policy over attributes; decrypt recovers it for a
subject whose attributes satisfy the policy. The ticket endpoints issue
and redeem download authorizations subject to a per-requester rate limit.
`
