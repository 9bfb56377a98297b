package quota

import "sync"

// MemStore is an in-process Persistence, mostly for tests and for enclave
// deployments whose durability comes from the sync loop instead.
type MemStore struct {
	mu      sync.Mutex
	windows map[string]Window
}

func NewMemStore() *MemStore {
	return &MemStore{windows: make(map[string]Window)}
}

func (m *MemStore) Load(requester, scope string) (*Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[requester+"\x00"+scope]
	if !ok {
		return nil, nil
	}
	cp := w
	return &cp, nil
}

func (m *MemStore) Store(w *Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[w.Requester+"\x00"+w.Scope] = *w
	return nil
}
