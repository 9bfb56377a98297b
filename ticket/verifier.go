package ticket

import (
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	cache "github.com/patrickmn/go-cache"
	uuid "github.com/satori/go.uuid"

	"abeguard/blob"
	"abeguard/clock"
)

const enclaveKeyCacheSize = 64

// replaySlack keeps a consumed nonce around a little past ticket expiry so
// clock skew between issuer and verifier cannot reopen it.
const replaySlack = time.Minute

// Verifier is the stateless gateway check: it validates a presented ticket
// and releases the ciphertext exactly once. Its only state is the replay
// store and the cache of attested enclave keys.
type Verifier struct {
	authority SignatureService
	validator *AttestationValidator
	enclaves  *lru.Cache // enclave pubkey -> attestedEnclave
	replay    *cache.Cache
	clock     clock.Clock
	logger    hclog.Logger
}

type attestedEnclave struct {
	svc      SignatureService
	quotedAt time.Time
}

// NewVerifier trusts tickets signed by the online authority key. Enclave
// tickets additionally require RegisterEnclave with a valid quote;
// validator may be nil to reject enclave tickets outright.
func NewVerifier(authority SignatureService, validator *AttestationValidator, clk clock.Clock, logger hclog.Logger) (*Verifier, error) {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	enclaves, err := lru.New(enclaveKeyCacheSize)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		authority: authority,
		validator: validator,
		enclaves:  enclaves,
		replay:    cache.New(cache.NoExpiration, time.Minute),
		clock:     clk,
		logger:    logger,
	}, nil
}

// RegisterEnclave admits an enclave's ticket key after validating its
// attestation quote. Re-registration with a fresher quote refreshes the
// key's trust window.
func (v *Verifier) RegisterEnclave(q *Quote) error {
	if v.validator == nil {
		return ErrAttestation
	}
	if err := v.validator.Validate(q); err != nil {
		return err
	}
	v.enclaves.Add(string(q.ReportData), attestedEnclave{
		svc:      NewEd25519Verifier(q.ReportData),
		quotedAt: q.IssuedAt,
	})
	return nil
}

// Redeem validates raw against the requested resource and consumes the
// ticket. Exactly one concurrent redemption of a given ticket succeeds;
// every other caller observes ErrTicketReplayed. The validity decision and
// the nonce consumption are one atomic step (first-writer-wins insert into
// the replay store), never a check followed by a write.
func (v *Verifier) Redeem(raw []byte, resource uuid.UUID) (blob.Handle, error) {
	t, err := Decode(raw)
	if err != nil {
		return blob.Handle{}, err
	}

	if err := v.checkSignature(t); err != nil {
		return blob.Handle{}, err
	}

	now := v.clock.Now()
	if now.After(t.Expiry) {
		return blob.Handle{}, ErrTicketExpired
	}
	if _, seen := v.replay.Get(nonceKey(t.Nonce)); seen {
		return blob.Handle{}, ErrTicketReplayed
	}
	if !uuid.Equal(t.CiphertextID, resource) {
		// A genuine signature over the wrong resource is a forgery
		// attempt, not a user error. It does not consume the nonce.
		return blob.Handle{}, ErrTicketSignature
	}

	ttl := t.Expiry.Sub(now) + replaySlack
	if err := v.replay.Add(nonceKey(t.Nonce), struct{}{}, ttl); err != nil {
		return blob.Handle{}, ErrTicketReplayed
	}

	v.logger.Info("ticket consumed", "ciphertext", t.CiphertextID, "requester", t.RequesterID)
	return blob.Handle{CiphertextID: t.CiphertextID}, nil
}

func (v *Verifier) checkSignature(t *Ticket) error {
	body := t.SigningBytes()
	if v.authority != nil && v.authority.Verify(body, t.Signature) {
		return nil
	}

	now := v.clock.Now()
	for _, key := range v.enclaves.Keys() {
		raw, ok := v.enclaves.Get(key)
		if !ok {
			continue
		}
		e := raw.(attestedEnclave)
		if !e.svc.Verify(body, t.Signature) {
			continue
		}
		if v.validator == nil || now.Sub(e.quotedAt) > v.validator.MaxAge() {
			// Signed by an enclave we once knew, under a quote that has
			// gone stale. Not a forgery, but not trustworthy either.
			return ErrAttestation
		}
		return nil
	}
	return ErrTicketSignature
}
