package ticket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	uuid "github.com/satori/go.uuid"

	"abeguard/clock"
	"abeguard/quota"
)

// SyncClient is the enclave's channel back to the central authority: it
// pushes local aggregate counts and pulls limit updates. Implemented by
// the deployment (RPC, message bus); the enclave only needs the calls.
type SyncClient interface {
	PushCounts(ctx context.Context, windows []quota.Window) error
	PullLimits(ctx context.Context) (Limits, error)
}

// EnclaveConfig bounds the enclave's autonomy.
type EnclaveConfig struct {
	Limits Limits
	// SyncInterval is the period of the background sync loop.
	SyncInterval time.Duration
	// StalenessBound is how long issuance may continue on a ledger that
	// has not synced. Past it the enclave fails closed: the worst-case
	// quota bypass window is capped at this bound.
	StalenessBound time.Duration
	// Measurement identifies the issuance code for attestation.
	Measurement [32]byte
}

// EnclaveAuthority runs the identical issuance logic co-located with the
// storage node, against a local ledger, so granting a ticket needs no
// round trip. A background task reconciles the local ledger with the
// central authority; the authority's trustworthiness to outsiders comes
// from its attestation quote, not from where it runs.
type EnclaveAuthority struct {
	ledger *quota.Ledger
	signer SignatureService
	cfg    EnclaveConfig
	sync   SyncClient
	clock  clock.Clock
	logger hclog.Logger

	mu       sync.Mutex
	limits   Limits
	lastSync time.Time
	quote    *Quote
}

// NewEnclaveAuthority wires an enclave issuer. attestRoot signs the quote
// over the enclave's ticket key; in a real enclave the platform does this,
// here it is the collaborator handed in at construction. The returned
// authority considers itself freshly synced at birth.
func NewEnclaveAuthority(ledger *quota.Ledger, signer SignatureService, cfg EnclaveConfig, syncClient SyncClient, attestRoot SignatureService, clk clock.Clock, logger hclog.Logger) (*EnclaveAuthority, error) {
	if syncClient == nil || attestRoot == nil {
		return nil, errors.New("ticket: enclave authority needs a sync client and an attestation root")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	now := clk.Now()
	quote, err := SignQuote(attestRoot, cfg.Measurement, signer.PublicKey(), now)
	if err != nil {
		return nil, err
	}
	return &EnclaveAuthority{
		ledger:   ledger,
		signer:   signer,
		cfg:      cfg,
		sync:     syncClient,
		clock:    clk,
		logger:   logger,
		limits:   cfg.Limits,
		lastSync: now,
		quote:    quote,
	}, nil
}

// Quote returns the attestation evidence verifiers demand before trusting
// tickets signed by this enclave.
func (a *EnclaveAuthority) Quote() *Quote {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quote
}

// RequestTicket issues locally. It fails closed with ErrSyncStale once the
// ledger has gone unsynced past the configured bound.
func (a *EnclaveAuthority) RequestTicket(ctx context.Context, ciphertextID, requesterID uuid.UUID) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := a.clock.Now()

	a.mu.Lock()
	limits := a.limits
	stale := now.Sub(a.lastSync) > a.cfg.StalenessBound
	a.mu.Unlock()

	if stale {
		a.logger.Error("issuance suspended, ledger sync stale", "ciphertext", ciphertextID)
		return nil, ErrSyncStale
	}

	err := a.ledger.CheckAndIncrement(requesterID.String(), ciphertextID.String(), limits.Limit, limits.Window, now)
	if err != nil {
		return nil, err
	}
	return issue(a.signer, ciphertextID, requesterID, now, limits.TicketTTL)
}

// Run drives the sync loop until ctx is cancelled. Individual round
// failures are degraded-but-alive; RequestTicket enforces the cutoff.
func (a *EnclaveAuthority) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.syncOnce(ctx); err != nil {
				a.logger.Warn("ledger sync round failed", "error", ErrSyncDegraded, "cause", err)
			}
		}
	}
}

// syncOnce pushes local aggregates and pulls limit updates. Both legs must
// succeed for the round to count as a sync.
func (a *EnclaveAuthority) syncOnce(ctx context.Context) error {
	if err := a.sync.PushCounts(ctx, a.ledger.Snapshot()); err != nil {
		return err
	}
	limits, err := a.sync.PullLimits(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.limits = limits
	a.lastSync = a.clock.Now()
	a.mu.Unlock()
	return nil
}
