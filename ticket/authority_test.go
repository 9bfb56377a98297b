package ticket

import (
	"context"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abeguard/clock"
	"abeguard/quota"
)

func testLimits() Limits {
	return Limits{Limit: 3, Window: time.Minute, TicketTTL: 30 * time.Second}
}

func TestOnlineAuthorityIssues(t *testing.T) {
	signer, err := NewEd25519Service()
	require.NoError(t, err)
	clk := clock.NewFake(time.Unix(1700000000, 0))
	a := NewOnlineAuthority(quota.NewLedger(nil, nil), signer, testLimits(), clk, nil)

	ctID, reqID := uuid.NewV4(), uuid.NewV4()
	tk, err := a.RequestTicket(context.Background(), ctID, reqID)
	require.NoError(t, err)

	assert.Equal(t, ctID, tk.CiphertextID)
	assert.Equal(t, reqID, tk.RequesterID)
	assert.True(t, tk.Expiry.Equal(clk.Now().Add(30*time.Second)))
	assert.True(t, signer.Verify(tk.SigningBytes(), tk.Signature))
	assert.NotEqual(t, [16]byte{}, tk.Nonce)
}

func TestOnlineAuthorityThrottles(t *testing.T) {
	signer, err := NewEd25519Service()
	require.NoError(t, err)
	clk := clock.NewFake(time.Unix(1700000000, 0))
	a := NewOnlineAuthority(quota.NewLedger(nil, nil), signer, testLimits(), clk, nil)

	ctID, reqID := uuid.NewV4(), uuid.NewV4()
	for i := 0; i < 3; i++ {
		_, err := a.RequestTicket(context.Background(), ctID, reqID)
		require.NoError(t, err)
	}

	_, err = a.RequestTicket(context.Background(), ctID, reqID)
	require.Error(t, err)
	assert.True(t, quota.IsThrottle(err))

	// A different ciphertext is a different scope.
	_, err = a.RequestTicket(context.Background(), uuid.NewV4(), reqID)
	assert.NoError(t, err)

	// The window rolls over and issuance resumes.
	clk.Advance(time.Minute)
	_, err = a.RequestTicket(context.Background(), ctID, reqID)
	assert.NoError(t, err)
}

func TestOnlineAuthorityTicketsAreUnique(t *testing.T) {
	signer, err := NewEd25519Service()
	require.NoError(t, err)
	a := NewOnlineAuthority(quota.NewLedger(nil, nil), signer, testLimits(), nil, nil)

	ctID, reqID := uuid.NewV4(), uuid.NewV4()
	first, err := a.RequestTicket(context.Background(), ctID, reqID)
	require.NoError(t, err)
	second, err := a.RequestTicket(context.Background(), ctID, reqID)
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)
}

func TestOnlineAuthorityCancelledContext(t *testing.T) {
	signer, err := NewEd25519Service()
	require.NoError(t, err)
	a := NewOnlineAuthority(quota.NewLedger(nil, nil), signer, testLimits(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.RequestTicket(ctx, uuid.NewV4(), uuid.NewV4())
	assert.ErrorIs(t, err, context.Canceled)
}
