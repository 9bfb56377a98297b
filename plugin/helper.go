package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/errwrap"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/helper/jsonutil"
	"github.com/hashicorp/vault/sdk/logical"
	uuid "github.com/satori/go.uuid"
	"golang.org/x/crypto/ed25519"

	"abeguard/abe"
	"abeguard/blob"
	"abeguard/pairing"
	"abeguard/quota"
	"abeguard/ticket"
)

func (b *backend) dataStore(ctx context.Context, key string, data interface{}) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return errwrap.Wrapf("json encoding failed: {{err}}", err)
	}

	entry := &logical.StorageEntry{
		Key:   key,
		Value: buf,
	}

	if err := b.storage.Put(ctx, entry); err != nil {
		return errwrap.Wrapf("failed to write: {{err}}", err)
	}

	return nil
}

func (b *backend) dataLoad(ctx context.Context, key string, out interface{}) (bool, error) {
	entry, err := b.storage.Get(ctx, key)

	if err != nil {
		return false, errwrap.Wrapf("read failed: {{err}}", err)
	}

	// Fast-path the no data case
	if entry == nil {
		return false, nil
	}

	if err := jsonutil.DecodeJSON(entry.Value, out); err != nil {
		return false, errwrap.Wrapf("json decoding failed: {{err}}", err)
	}

	return true, nil
}

// engine returns the ABE engine for the configured suite, building it on
// first use. It errors until config/setup has run.
func (b *backend) engine(ctx context.Context) (*abe.Engine, error) {
	if cached, ok := b.abeCache.Get(engineCacheKey); ok {
		return cached.(*abe.Engine), nil
	}

	var setup storedSetup
	found, err := b.dataLoad(ctx, configSetupPath, &setup)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("backend is not set up, run config/setup first")
	}

	suite, err := pairing.NewSuite(setup.Suite)
	if err != nil {
		return nil, err
	}

	engine := abe.NewEngine(suite, b.Logger())
	b.abeCache.SetDefault(engineCacheKey, engine)
	return engine, nil
}

func (b *backend) loadPublicKey(ctx context.Context, engine *abe.Engine) (*abe.PublicKey, error) {
	entry, err := b.storage.Get(ctx, publicKeyPath)
	if err != nil {
		return nil, errwrap.Wrapf("read failed: {{err}}", err)
	}
	if entry == nil {
		return nil, errors.New("no public key stored, run config/setup first")
	}
	return abe.UnmarshalPublicKey(engine.Suite(), entry.Value)
}

func (b *backend) loadMasterKey(ctx context.Context) (*abe.MasterKey, error) {
	entry, err := b.storage.Get(ctx, masterKeyPath)
	if err != nil {
		return nil, errwrap.Wrapf("read failed: {{err}}", err)
	}
	if entry == nil {
		return nil, errors.New("no master key stored, run config/setup first")
	}
	return abe.UnmarshalMasterKey(entry.Value)
}

func (b *backend) storePublicKey(ctx context.Context, pk *abe.PublicKey) error {
	raw, err := abe.MarshalPublicKey(pk)
	if err != nil {
		return errwrap.Wrapf("json encoding failed: {{err}}", err)
	}
	return b.storage.Put(ctx, &logical.StorageEntry{Key: publicKeyPath, Value: raw})
}

func (b *backend) loadUserKey(ctx context.Context, engine *abe.Engine, gid string) (*abe.UserKey, error) {
	var stored storedUserKey
	found, err := b.dataLoad(ctx, subjectKeyPath(gid), &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no key issued for GID %q", gid)
	}
	return abe.UnmarshalUserKey(engine.Suite(), stored.Key)
}

func subjectKeyPath(gid string) string {
	return subjectsPath + keypathSubjects + strings.ToUpper(gid)
}

// signer returns the ticket signing service, generating and persisting the
// key on first use.
func (b *backend) signer(ctx context.Context) (*ticket.Ed25519Service, error) {
	var stored storedSigningKey
	found, err := b.dataLoad(ctx, signingKeyPath, &stored)
	if err != nil {
		return nil, err
	}
	if found {
		return ticket.LoadEd25519Service(ed25519.PrivateKey(stored.Private)), nil
	}

	svc, err := ticket.NewEd25519Service()
	if err != nil {
		return nil, errwrap.Wrapf("signing key generation failed: {{err}}", err)
	}
	if err := b.dataStore(ctx, signingKeyPath, storedSigningKey{Private: svc.PrivateKey()}); err != nil {
		return nil, err
	}
	return svc, nil
}

func (b *backend) authority(ctx context.Context) (ticket.Authority, error) {
	if cached, ok := b.abeCache.Get(authorityCacheKey); ok {
		return cached.(ticket.Authority), nil
	}

	signer, err := b.signer(ctx)
	if err != nil {
		return nil, err
	}

	// The enclave variant needs sync collaborators a Vault mount does not
	// have; NewAuthority rejects it here, which surfaces the config error.
	authority, err := b.cfg.NewAuthority(signer, b.quota, nil, nil, [32]byte{}, b.Logger())
	if err != nil {
		return nil, err
	}
	b.abeCache.SetDefault(authorityCacheKey, authority)
	return authority, nil
}

func (b *backend) verifier(ctx context.Context) (*ticket.Verifier, error) {
	if cached, ok := b.abeCache.Get(verifierCacheKey); ok {
		return cached.(*ticket.Verifier), nil
	}

	signer, err := b.signer(ctx)
	if err != nil {
		return nil, err
	}

	verifier, err := ticket.NewVerifier(ticket.NewEd25519Verifier(signer.PublicKey()), nil, b.clock, b.Logger())
	if err != nil {
		return nil, err
	}
	b.abeCache.SetDefault(verifierCacheKey, verifier)
	return verifier, nil
}

// storageQuota persists quota windows in the backend's storage view. The
// ledger serializes access per key, so plain get/put suffices here.
type storageQuota struct {
	storage logical.Storage
}

func (s *storageQuota) Load(requester, scope string) (*quota.Window, error) {
	entry, err := s.storage.Get(context.Background(), quotaPathPrefix+requester+"/"+scope)
	if err != nil {
		return nil, errwrap.Wrapf("read failed: {{err}}", err)
	}
	if entry == nil {
		return nil, nil
	}

	var w quota.Window
	if err := jsonutil.DecodeJSON(entry.Value, &w); err != nil {
		return nil, errwrap.Wrapf("json decoding failed: {{err}}", err)
	}
	return &w, nil
}

func (s *storageQuota) Store(w *quota.Window) error {
	buf, err := json.Marshal(w)
	if err != nil {
		return errwrap.Wrapf("json encoding failed: {{err}}", err)
	}
	entry := &logical.StorageEntry{
		Key:   quotaPathPrefix + w.Requester + "/" + w.Scope,
		Value: buf,
	}
	return s.storage.Put(context.Background(), entry)
}

// storageBlob keeps sealed ciphertexts in the backend's storage view.
type storageBlob struct {
	storage logical.Storage
}

func (s *storageBlob) Put(ctx context.Context, data []byte) (uuid.UUID, error) {
	id := uuid.NewV4()
	entry := &logical.StorageEntry{
		Key:   blobPathPrefix + id.String(),
		Value: data,
	}
	if err := s.storage.Put(ctx, entry); err != nil {
		return uuid.Nil, errwrap.Wrapf("failed to write: {{err}}", err)
	}
	return id, nil
}

func (s *storageBlob) Get(ctx context.Context, id uuid.UUID) ([]byte, error) {
	entry, err := s.storage.Get(ctx, blobPathPrefix+id.String())
	if err != nil {
		return nil, errwrap.Wrapf("read failed: {{err}}", err)
	}
	if entry == nil {
		return nil, blob.ErrNotFound
	}
	return entry.Value, nil
}

var _ blob.Store = (*storageBlob)(nil)

// storageSubjects resolves the attributes a GID currently holds from its
// issued key record.
type storageSubjects struct {
	b *backend
}

func (s *storageSubjects) Lookup(ctx context.Context, gid string) ([]string, error) {
	var stored storedUserKey
	ok, err := s.b.dataLoad(ctx, subjectKeyPath(gid), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no key issued for GID %q", strings.ToUpper(gid))
	}
	return stored.Attributes, nil
}

var _ abe.AttributeStore = (*storageSubjects)(nil)

func (b *backend) subjects() abe.AttributeStore {
	return &storageSubjects{b: b}
}

func (b *backend) handleList(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {

	if req.ClientToken == "" {
		return nil, fmt.Errorf("client token empty")
	}

	keys, err := req.Storage.List(ctx, req.Path)

	if err != nil {
		return nil, err
	}

	strippedKeys := make([]string, len(keys))
	for i, key := range keys {
		strippedKeys[i] = strings.ToUpper(strings.TrimPrefix(key, req.Path))
	}

	// Generate the response
	return logical.ListResponse(strippedKeys), nil

}
