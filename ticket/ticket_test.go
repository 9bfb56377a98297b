package ticket

import (
	"encoding/binary"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketWireRoundtrip(t *testing.T) {
	nonce, err := newNonce()
	require.NoError(t, err)

	orig := &Ticket{
		CiphertextID: uuid.NewV4(),
		RequesterID:  uuid.NewV4(),
		IssuedAt:     time.Unix(1700000000, 42*int64(time.Millisecond)).UTC(),
		Expiry:       time.Unix(1700000030, 42*int64(time.Millisecond)).UTC(),
		Nonce:        nonce,
		Signature:    []byte("not-a-real-signature-but-64-bytes-of-payload-for-the-wire-form!!"),
	}

	decoded, err := Decode(orig.Encode())
	require.NoError(t, err)

	assert.Equal(t, orig.CiphertextID, decoded.CiphertextID)
	assert.Equal(t, orig.RequesterID, decoded.RequesterID)
	assert.True(t, orig.IssuedAt.Equal(decoded.IssuedAt))
	assert.True(t, orig.Expiry.Equal(decoded.Expiry))
	assert.Equal(t, orig.Nonce, decoded.Nonce)
	assert.Equal(t, orig.Signature, decoded.Signature)
}

func TestTicketWireOffsets(t *testing.T) {
	nonce, err := newNonce()
	require.NoError(t, err)

	tk := &Ticket{
		CiphertextID: uuid.NewV4(),
		RequesterID:  uuid.NewV4(),
		IssuedAt:     time.Unix(1700000000, 0),
		Expiry:       time.Unix(1700000030, 0),
		Nonce:        nonce,
	}

	body := tk.SigningBytes()
	require.Len(t, body, 64)

	assert.Equal(t, tk.CiphertextID.Bytes(), body[0:16])
	assert.Equal(t, tk.RequesterID.Bytes(), body[16:32])
	assert.Equal(t, uint64(1700000000000), binary.BigEndian.Uint64(body[32:40]))
	assert.Equal(t, uint64(1700000030000), binary.BigEndian.Uint64(body[40:48]))
	assert.Equal(t, tk.Nonce[:], body[48:64])
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrTicketSignature)

	_, err = Decode(make([]byte, bodyLen-1))
	assert.ErrorIs(t, err, ErrTicketSignature)
}

func TestEd25519Service(t *testing.T) {
	svc, err := NewEd25519Service()
	require.NoError(t, err)

	msg := []byte("ticket body")
	sig, err := svc.Sign(msg)
	require.NoError(t, err)
	assert.True(t, svc.Verify(msg, sig))
	assert.False(t, svc.Verify([]byte("other body"), sig))
	assert.False(t, svc.Verify(msg, sig[:32]))

	reloaded := LoadEd25519Service(svc.PrivateKey())
	sig2, err := reloaded.Sign(msg)
	require.NoError(t, err)
	assert.True(t, svc.Verify(msg, sig2))

	verifyOnly := NewEd25519Verifier(svc.PublicKey())
	assert.True(t, verifyOnly.Verify(msg, sig))
	_, err = verifyOnly.Sign(msg)
	assert.Error(t, err)
}
