package ticket

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	uuid "github.com/satori/go.uuid"

	"abeguard/clock"
	"abeguard/quota"
)

// Authority issues download tickets. The two implementations, Online and
// Enclave, are interchangeable behind this interface; the verifier never
// learns which one signed a ticket it accepts.
type Authority interface {
	RequestTicket(ctx context.Context, ciphertextID, requesterID uuid.UUID) (*Ticket, error)
}

// Limits is the issuance policy an authority enforces.
type Limits struct {
	// Limit admissions per requester per ciphertext per Window.
	Limit  int
	Window time.Duration
	// TicketTTL bounds the validity of issued tickets.
	TicketTTL time.Duration
}

// OnlineAuthority consults a shared ledger before signing. Every admission
// is globally consistent the moment it happens, at the price of needing
// the ledger reachable on the issuance path.
type OnlineAuthority struct {
	ledger *quota.Ledger
	signer SignatureService
	limits Limits
	clock  clock.Clock
	logger hclog.Logger
}

func NewOnlineAuthority(ledger *quota.Ledger, signer SignatureService, limits Limits, clk clock.Clock, logger hclog.Logger) *OnlineAuthority {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &OnlineAuthority{ledger: ledger, signer: signer, limits: limits, clock: clk, logger: logger}
}

func (a *OnlineAuthority) RequestTicket(ctx context.Context, ciphertextID, requesterID uuid.UUID) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := a.clock.Now()
	err := a.ledger.CheckAndIncrement(requesterID.String(), ciphertextID.String(), a.limits.Limit, a.limits.Window, now)
	if err != nil {
		if quota.IsThrottle(err) {
			a.logger.Info("ticket request throttled", "requester", requesterID, "ciphertext", ciphertextID)
		}
		return nil, err
	}
	return issue(a.signer, ciphertextID, requesterID, now, a.limits.TicketTTL)
}

// issue builds and signs a ticket; shared verbatim by both authority
// variants so their tickets are indistinguishable on the wire.
func issue(signer SignatureService, ciphertextID, requesterID uuid.UUID, now time.Time, ttl time.Duration) (*Ticket, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	t := &Ticket{
		CiphertextID: ciphertextID,
		RequesterID:  requesterID,
		IssuedAt:     now,
		Expiry:       now.Add(ttl),
		Nonce:        nonce,
	}
	if t.Signature, err = signer.Sign(t.SigningBytes()); err != nil {
		return nil, err
	}
	return t, nil
}
