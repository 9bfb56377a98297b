// Package ticket implements the download-request gate: rate-limited,
// replay-resistant, single-use authorization tokens issued by a
// DownloadAuthority and redeemed through a RequestVerifier. It is
// deliberately independent of the ABE layer; holding a decryption key
// grants nothing here, and holding a ticket leaks nothing there.
package ticket

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	uuid "github.com/satori/go.uuid"
)

// Wire layout, fixed offsets, big-endian:
//
//	ciphertextID  16 bytes
//	requesterID   16 bytes
//	issuedAt       8 bytes, unix milliseconds
//	expiry         8 bytes, unix milliseconds
//	nonce         16 random bytes
//	signature     variable, scheme dependent
const (
	bodyLen  = 64
	nonceLen = 16
)

// Ticket authorizes exactly one download of one ciphertext by one
// requester inside its validity interval. The nonce is the unit of
// single-use enforcement.
type Ticket struct {
	CiphertextID uuid.UUID
	RequesterID  uuid.UUID
	IssuedAt     time.Time
	Expiry       time.Time
	Nonce        [nonceLen]byte
	Signature    []byte
}

// SigningBytes returns the 64-byte body the authority signs.
func (t *Ticket) SigningBytes() []byte {
	buf := make([]byte, bodyLen)
	copy(buf[0:16], t.CiphertextID.Bytes())
	copy(buf[16:32], t.RequesterID.Bytes())
	binary.BigEndian.PutUint64(buf[32:40], uint64(unixMS(t.IssuedAt)))
	binary.BigEndian.PutUint64(buf[40:48], uint64(unixMS(t.Expiry)))
	copy(buf[48:64], t.Nonce[:])
	return buf
}

// Encode returns the full wire form, body followed by signature.
func (t *Ticket) Encode() []byte {
	return append(t.SigningBytes(), t.Signature...)
}

// Decode parses a wire-form ticket. It validates structure only; the
// verifier owns signature, expiry and replay checks.
func Decode(raw []byte) (*Ticket, error) {
	if len(raw) < bodyLen {
		return nil, ErrTicketSignature
	}
	t := &Ticket{
		IssuedAt:  timeMS(int64(binary.BigEndian.Uint64(raw[32:40]))),
		Expiry:    timeMS(int64(binary.BigEndian.Uint64(raw[40:48]))),
		Signature: append([]byte(nil), raw[bodyLen:]...),
	}
	var err error
	if t.CiphertextID, err = uuid.FromBytes(raw[0:16]); err != nil {
		return nil, ErrTicketSignature
	}
	if t.RequesterID, err = uuid.FromBytes(raw[16:32]); err != nil {
		return nil, ErrTicketSignature
	}
	copy(t.Nonce[:], raw[48:64])
	return t, nil
}

func newNonce() ([nonceLen]byte, error) {
	var n [nonceLen]byte
	_, err := rand.Read(n[:])
	return n, err
}

func unixMS(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func timeMS(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}

func nonceKey(n [nonceLen]byte) string {
	return string(n[:])
}
