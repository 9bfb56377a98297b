package ticket

import (
	"errors"
	"fmt"
)

var (
	// ErrTicketSignature covers forged, malformed and resource-mismatched
	// tickets alike; a mismatch is treated as forgery, not as its own kind.
	ErrTicketSignature = errors.New("ticket: signature invalid")

	// ErrTicketExpired is time-only: the ticket was genuine but late.
	ErrTicketExpired = errors.New("ticket: expired")

	// ErrTicketReplayed marks every redemption after the first.
	ErrTicketReplayed = errors.New("ticket: already redeemed")

	// ErrAttestation rejects tickets from enclaves that are unattested,
	// untrusted or whose quote has gone stale.
	ErrAttestation = errors.New("ticket: enclave attestation failed")

	// ErrSyncDegraded marks a failed enclave sync round. Non-fatal on its
	// own; issuance continues until the staleness bound.
	ErrSyncDegraded = errors.New("ticket: ledger sync degraded")

	// ErrSyncStale stops enclave issuance once sync has been degraded for
	// longer than the configured bound. Fail closed, never drift. It
	// unwraps to ErrSyncDegraded: staleness is degradation past the bound.
	ErrSyncStale = fmt.Errorf("%w: stale past bound, issuance suspended", ErrSyncDegraded)
)
