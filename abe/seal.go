package abe

import (
	"crypto/aes"
	cbc "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"abeguard/policy"
)

// SealedPayload is the hybrid form a stored blob takes: the ABE ciphertext
// binding a random GT element, plus the payload encrypted under the AES key
// derived from that element.
type SealedPayload struct {
	Ciphertext []byte `json:"ciphertext"`
	CipherIV   []byte `json:"cipher_iv"`
	Payload    []byte `json:"payload"`
}

// Seal encrypts plaintext under the program: a random GT element becomes
// the payload key, its hash keys AES-CBC over the plaintext, and the ABE
// ciphertext carries the element itself.
func (e *Engine) Seal(pk *PublicKey, prog *policy.Program, plaintext []byte) (*SealedPayload, error) {
	payloadKey, err := e.suite.RandGT()
	if err != nil {
		return nil, err
	}
	ct, err := e.Encrypt(pk, prog, payloadKey)
	if err != nil {
		return nil, err
	}
	encoded, err := EncodeCiphertext(ct)
	if err != nil {
		return nil, err
	}

	key := sha256.Sum256(payloadKey.Bytes())
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	iv := make([]byte, block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	padLen := block.BlockSize() - (len(plaintext) % block.BlockSize())
	padded := make([]byte, len(plaintext)+padLen)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}

	out := make([]byte, len(padded))
	cbc.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return &SealedPayload{Ciphertext: encoded, CipherIV: iv, Payload: out}, nil
}

// Open decrypts a sealed payload with uk. A key whose attributes do not
// satisfy the policy gets ErrPolicyNotSatisfied and nothing else.
func (e *Engine) Open(uk *UserKey, sealed *SealedPayload) ([]byte, error) {
	ct, err := DecodeCiphertext(e.suite, sealed.Ciphertext)
	if err != nil {
		return nil, err
	}
	payloadKey, err := e.Decrypt(uk, ct)
	if err != nil {
		return nil, err
	}

	key := sha256.Sum256(payloadKey.Bytes())
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	if len(sealed.Payload)%block.BlockSize() != 0 || len(sealed.Payload) == 0 {
		return nil, errors.New("abe: sealed payload not block aligned")
	}
	if len(sealed.CipherIV) != block.BlockSize() {
		return nil, errors.New("abe: sealed payload IV malformed")
	}

	padded := make([]byte, len(sealed.Payload))
	cbc.NewCBCDecrypter(block, sealed.CipherIV).CryptBlocks(padded, sealed.Payload)

	padLen := int(padded[len(padded)-1])
	if padLen < 1 || padLen > block.BlockSize() || padLen > len(padded) {
		return nil, errors.New("abe: bad payload padding")
	}
	return padded[:len(padded)-padLen], nil
}
