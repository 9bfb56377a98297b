package ticket

import (
	"context"
	"sync"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abeguard/clock"
	"abeguard/quota"
)

type verifierFixture struct {
	authority *OnlineAuthority
	verifier  *Verifier
	clk       *clock.Fake
}

func newVerifierFixture(t *testing.T) *verifierFixture {
	t.Helper()
	signer, err := NewEd25519Service()
	require.NoError(t, err)
	clk := clock.NewFake(time.Unix(1700000000, 0))
	authority := NewOnlineAuthority(quota.NewLedger(nil, nil), signer, Limits{Limit: 100, Window: time.Minute, TicketTTL: 30 * time.Second}, clk, nil)
	verifier, err := NewVerifier(NewEd25519Verifier(signer.PublicKey()), nil, clk, nil)
	require.NoError(t, err)
	return &verifierFixture{authority: authority, verifier: verifier, clk: clk}
}

func TestRedeemHappyPath(t *testing.T) {
	f := newVerifierFixture(t)
	ctID := uuid.NewV4()

	tk, err := f.authority.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)

	handle, err := f.verifier.Redeem(tk.Encode(), ctID)
	require.NoError(t, err)
	assert.Equal(t, ctID, handle.CiphertextID)
}

func TestRedeemRejectsSecondUse(t *testing.T) {
	f := newVerifierFixture(t)
	ctID := uuid.NewV4()

	tk, err := f.authority.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)
	raw := tk.Encode()

	_, err = f.verifier.Redeem(raw, ctID)
	require.NoError(t, err)

	_, err = f.verifier.Redeem(raw, ctID)
	assert.ErrorIs(t, err, ErrTicketReplayed)
}

// Exactly one of two simultaneous redemptions of the same ticket may
// succeed; the nonce consumption is a single atomic transition.
func TestRedeemConcurrentExactlyOnce(t *testing.T) {
	f := newVerifierFixture(t)
	ctID := uuid.NewV4()

	tk, err := f.authority.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)
	raw := tk.Encode()

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.verifier.Redeem(raw, ctID)
		}(i)
	}
	wg.Wait()

	succeeded, replayed := 0, 0
	for _, err := range errs {
		switch err {
		case nil:
			succeeded++
		case ErrTicketReplayed:
			replayed++
		default:
			t.Fatalf("unexpected redemption error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, racers-1, replayed)
}

func TestRedeemResourceMismatchIsForgery(t *testing.T) {
	f := newVerifierFixture(t)

	tk, err := f.authority.RequestTicket(context.Background(), uuid.NewV4(), uuid.NewV4())
	require.NoError(t, err)

	_, err = f.verifier.Redeem(tk.Encode(), uuid.NewV4())
	assert.ErrorIs(t, err, ErrTicketSignature)
}

func TestRedeemMismatchOrdering(t *testing.T) {
	f := newVerifierFixture(t)
	ctID := uuid.NewV4()

	tk, err := f.authority.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)
	raw := tk.Encode()

	// A mismatched redemption does not consume the nonce.
	_, err = f.verifier.Redeem(raw, uuid.NewV4())
	require.ErrorIs(t, err, ErrTicketSignature)
	_, err = f.verifier.Redeem(raw, ctID)
	require.NoError(t, err)

	// After consumption, replay wins over mismatch.
	_, err = f.verifier.Redeem(raw, uuid.NewV4())
	assert.ErrorIs(t, err, ErrTicketReplayed)

	// Past expiry, expiry wins over mismatch.
	late, err := f.authority.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)
	f.clk.Advance(31 * time.Second)
	_, err = f.verifier.Redeem(late.Encode(), uuid.NewV4())
	assert.ErrorIs(t, err, ErrTicketExpired)
}

func TestRedeemTamperedTicket(t *testing.T) {
	f := newVerifierFixture(t)
	ctID := uuid.NewV4()

	tk, err := f.authority.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)

	raw := tk.Encode()
	raw[40] ^= 0x01 // bump the expiry field

	_, err = f.verifier.Redeem(raw, ctID)
	assert.ErrorIs(t, err, ErrTicketSignature)
}

func TestRedeemUnknownSigner(t *testing.T) {
	f := newVerifierFixture(t)
	ctID := uuid.NewV4()

	rogue, err := NewEd25519Service()
	require.NoError(t, err)
	rogueAuthority := NewOnlineAuthority(quota.NewLedger(nil, nil), rogue, Limits{Limit: 1, Window: time.Minute, TicketTTL: time.Minute}, f.clk, nil)

	tk, err := rogueAuthority.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)

	_, err = f.verifier.Redeem(tk.Encode(), ctID)
	assert.ErrorIs(t, err, ErrTicketSignature)
}

func TestRedeemExpired(t *testing.T) {
	f := newVerifierFixture(t)
	ctID := uuid.NewV4()

	tk, err := f.authority.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)

	f.clk.Advance(31 * time.Second)
	_, err = f.verifier.Redeem(tk.Encode(), ctID)
	assert.ErrorIs(t, err, ErrTicketExpired)
}

// A ticket that is both consumed and expired reports expiry: validity is
// decided before the replay store is consulted.
func TestRedeemExpiryDominatesReplay(t *testing.T) {
	f := newVerifierFixture(t)
	ctID := uuid.NewV4()

	tk, err := f.authority.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)
	raw := tk.Encode()

	_, err = f.verifier.Redeem(raw, ctID)
	require.NoError(t, err)

	f.clk.Advance(31 * time.Second)
	_, err = f.verifier.Redeem(raw, ctID)
	assert.ErrorIs(t, err, ErrTicketExpired)
}

func testMeasurement(b byte) [32]byte {
	var m [32]byte
	for i := range m {
		m[i] = b
	}
	return m
}

func TestRedeemEnclaveTicket(t *testing.T) {
	root, err := NewEd25519Service()
	require.NoError(t, err)
	clk := clock.NewFake(time.Unix(1700000000, 0))
	measurement := testMeasurement(0x42)

	validator := NewAttestationValidator(NewEd25519Verifier(root.PublicKey()), [][32]byte{measurement}, time.Hour, clk)

	authoritySigner, err := NewEd25519Service()
	require.NoError(t, err)
	verifier, err := NewVerifier(NewEd25519Verifier(authoritySigner.PublicKey()), validator, clk, nil)
	require.NoError(t, err)

	enclaveSigner, err := NewEd25519Service()
	require.NoError(t, err)
	enclave, err := NewEnclaveAuthority(
		quota.NewLedger(nil, nil),
		enclaveSigner,
		EnclaveConfig{
			Limits:         Limits{Limit: 10, Window: time.Minute, TicketTTL: 30 * time.Second},
			SyncInterval:   time.Second,
			StalenessBound: time.Minute,
			Measurement:    measurement,
		},
		nil, root, clk, nil,
	)
	require.NoError(t, err)

	ctID := uuid.NewV4()
	tk, err := enclave.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)

	// Without registration the enclave's signature is just unknown.
	_, err = verifier.Redeem(tk.Encode(), ctID)
	assert.ErrorIs(t, err, ErrTicketSignature)

	require.NoError(t, verifier.RegisterEnclave(enclave.Quote()))
	handle, err := verifier.Redeem(tk.Encode(), ctID)
	require.NoError(t, err)
	assert.Equal(t, ctID, handle.CiphertextID)
}

func TestRedeemEnclaveStaleQuote(t *testing.T) {
	root, err := NewEd25519Service()
	require.NoError(t, err)
	clk := clock.NewFake(time.Unix(1700000000, 0))
	measurement := testMeasurement(0x42)

	validator := NewAttestationValidator(NewEd25519Verifier(root.PublicKey()), [][32]byte{measurement}, time.Hour, clk)

	authoritySigner, err := NewEd25519Service()
	require.NoError(t, err)
	verifier, err := NewVerifier(NewEd25519Verifier(authoritySigner.PublicKey()), validator, clk, nil)
	require.NoError(t, err)

	enclaveSigner, err := NewEd25519Service()
	require.NoError(t, err)
	enclave, err := NewEnclaveAuthority(
		quota.NewLedger(nil, nil),
		enclaveSigner,
		EnclaveConfig{
			Limits:         Limits{Limit: 10, Window: time.Minute, TicketTTL: 2 * time.Hour},
			SyncInterval:   time.Second,
			StalenessBound: 3 * time.Hour,
			Measurement:    measurement,
		},
		nil, root, clk, nil,
	)
	require.NoError(t, err)

	require.NoError(t, verifier.RegisterEnclave(enclave.Quote()))

	// Once the registered quote ages out, tickets under that key are
	// rejected as unattested even when their signature checks out.
	clk.Advance(90 * time.Minute)
	ctID := uuid.NewV4()
	tk, err := enclave.RequestTicket(context.Background(), ctID, uuid.NewV4())
	require.NoError(t, err)

	_, err = verifier.Redeem(tk.Encode(), ctID)
	assert.ErrorIs(t, err, ErrAttestation)
}

func TestRegisterEnclaveRejectsBadQuote(t *testing.T) {
	root, err := NewEd25519Service()
	require.NoError(t, err)
	clk := clock.NewFake(time.Unix(1700000000, 0))
	validator := NewAttestationValidator(NewEd25519Verifier(root.PublicKey()), [][32]byte{testMeasurement(0x42)}, time.Hour, clk)

	signer, err := NewEd25519Service()
	require.NoError(t, err)
	verifier, err := NewVerifier(NewEd25519Verifier(signer.PublicKey()), validator, clk, nil)
	require.NoError(t, err)

	// Untrusted measurement.
	enclaveKey, err := NewEd25519Service()
	require.NoError(t, err)
	q, err := SignQuote(root, testMeasurement(0x13), enclaveKey.PublicKey(), clk.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.RegisterEnclave(q), ErrAttestation)

	// Quote signed by the wrong root.
	impostor, err := NewEd25519Service()
	require.NoError(t, err)
	q, err = SignQuote(impostor, testMeasurement(0x42), enclaveKey.PublicKey(), clk.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.RegisterEnclave(q), ErrAttestation)

	// No validator configured at all.
	bare, err := NewVerifier(NewEd25519Verifier(signer.PublicKey()), nil, clk, nil)
	require.NoError(t, err)
	q, err = SignQuote(root, testMeasurement(0x42), enclaveKey.PublicKey(), clk.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, bare.RegisterEnclave(q), ErrAttestation)
}
