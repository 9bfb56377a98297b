// Package blob is the ciphertext storage collaborator. The core never
// interprets blob contents; it only moves opaque sealed payloads in and
// out under IDs.
package blob

import (
	"context"
	"errors"
	"sync"

	uuid "github.com/satori/go.uuid"
)

// ErrNotFound is returned when no blob exists under the requested ID.
var ErrNotFound = errors.New("blob: not found")

// Handle is the redemption result: proof that the gateway released this
// ciphertext ID to the caller exactly once.
type Handle struct {
	CiphertextID uuid.UUID
}

type Store interface {
	Put(ctx context.Context, data []byte) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// MemStore keeps blobs in process memory.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[uuid.UUID][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[uuid.UUID][]byte)}
}

func (m *MemStore) Put(ctx context.Context, data []byte) (uuid.UUID, error) {
	id := uuid.NewV4()
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	m.blobs[id] = cp
	m.mu.Unlock()
	return id, nil
}

func (m *MemStore) Get(ctx context.Context, id uuid.UUID) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
