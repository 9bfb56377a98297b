// Package quota tracks per-requester, per-resource request counts inside
// rolling time windows. Its one operation, CheckAndIncrement, is the
// mandatory synchronization point of the whole download path: admissions
// are linearizable per (requester, scope) key.
package quota

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ThrottleError reports quota exhaustion. It is an expected, recoverable
// condition: RetryAfter tells the caller when the window rolls over.
type ThrottleError struct {
	Requester  string
	Scope      string
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("quota exhausted for %s on %s, retry after %s", e.Requester, e.Scope, e.RetryAfter)
}

// IsThrottle reports whether err is a quota rejection.
func IsThrottle(err error) bool {
	_, ok := err.(*ThrottleError)
	return ok
}

// Window is one counter: requests by Requester against Scope since Start.
type Window struct {
	Requester string    `json:"requester"`
	Scope     string    `json:"scope"`
	Start     time.Time `json:"start"`
	Count     int       `json:"count"`
}

// Persistence is the durable backing store for windows. Implementations
// need not be atomic; the ledger serializes access per key before touching
// them.
type Persistence interface {
	Load(requester, scope string) (*Window, error)
	Store(w *Window) error
}

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	windows map[string]*Window
}

// Ledger is a sharded window map. Sharding by key keeps contention local:
// concurrent requesters only serialize against themselves.
type Ledger struct {
	shards  [shardCount]*shard
	persist Persistence
	logger  hclog.Logger
}

func NewLedger(persist Persistence, logger hclog.Logger) *Ledger {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	l := &Ledger{persist: persist, logger: logger}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*Window)}
	}
	return l
}

func (l *Ledger) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// CheckAndIncrement admits the request and bumps the counter, or rejects
// with *ThrottleError. The whole sequence, including window rollover when
// the stored window has lapsed, runs under the key's lock: at most limit
// admissions happen per window under any interleaving, and a stale window
// is never reset by a separate read-modify-write.
func (l *Ledger) CheckAndIncrement(requester, scope string, limit int, windowSize time.Duration, now time.Time) error {
	if limit <= 0 {
		return &ThrottleError{Requester: requester, Scope: scope, RetryAfter: windowSize}
	}
	key := requester + "\x00" + scope
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		if l.persist != nil {
			stored, err := l.persist.Load(requester, scope)
			if err != nil {
				return fmt.Errorf("quota: load %s/%s: %w", requester, scope, err)
			}
			w = stored
		}
		if w == nil {
			w = &Window{Requester: requester, Scope: scope, Start: now}
		}
		s.windows[key] = w
	}

	if !now.Before(w.Start.Add(windowSize)) {
		w.Start = now
		w.Count = 0
	}

	if w.Count >= limit {
		return &ThrottleError{
			Requester:  requester,
			Scope:      scope,
			RetryAfter: w.Start.Add(windowSize).Sub(now),
		}
	}
	w.Count++

	if l.persist != nil {
		if err := l.persist.Store(w); err != nil {
			// The admission stands; durability is best-effort and the
			// in-memory window remains authoritative for this process.
			l.logger.Warn("quota persistence write failed", "requester", requester, "scope", scope, "error", err)
		}
	}
	return nil
}

// Snapshot copies all live windows, for aggregate sync.
func (l *Ledger) Snapshot() []Window {
	var out []Window
	for _, s := range l.shards {
		s.mu.Lock()
		for _, w := range s.windows {
			out = append(out, *w)
		}
		s.mu.Unlock()
	}
	return out
}

// Absorb merges externally observed windows into the ledger, keeping the
// higher count for windows that overlap. Used when an enclave's aggregates
// reach the central ledger and vice versa.
func (l *Ledger) Absorb(windows []Window) {
	for i := range windows {
		in := windows[i]
		key := in.Requester + "\x00" + in.Scope
		s := l.shardFor(key)

		s.mu.Lock()
		w, ok := s.windows[key]
		switch {
		case !ok || in.Start.After(w.Start):
			cp := in
			s.windows[key] = &cp
		case in.Start.Equal(w.Start) && in.Count > w.Count:
			w.Count = in.Count
		}
		s.mu.Unlock()
	}
}
