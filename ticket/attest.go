package ticket

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"time"

	"abeguard/clock"
)

// Quote is the attestation evidence an enclave authority presents: the
// measurement of its issuance code, its ticket-signing public key as report
// data, and a signature by the platform's attestation root. The transport
// that carries real SGX/SEV evidence is the platform's business; this is
// the portion the verifier needs.
type Quote struct {
	Measurement [32]byte  `json:"measurement"`
	ReportData  []byte    `json:"report_data"`
	IssuedAt    time.Time `json:"issued_at"`
	Signature   []byte    `json:"signature"`
}

// Body returns the signed portion of the quote.
func (q *Quote) Body() []byte {
	var buf bytes.Buffer
	buf.Write(q.Measurement[:])
	binary.Write(&buf, binary.BigEndian, unixMS(q.IssuedAt))
	buf.Write(q.ReportData)
	return buf.Bytes()
}

func (q *Quote) Marshal() ([]byte, error) { return json.Marshal(q) }

func UnmarshalQuote(raw []byte) (*Quote, error) {
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// SignQuote builds a quote over an enclave's signing key under the
// attestation root.
func SignQuote(root SignatureService, measurement [32]byte, reportData []byte, now time.Time) (*Quote, error) {
	q := &Quote{Measurement: measurement, ReportData: reportData, IssuedAt: now}
	sig, err := root.Sign(q.Body())
	if err != nil {
		return nil, err
	}
	q.Signature = sig
	return q, nil
}

// AttestationValidator decides whether a quote proves unmodified issuance
// code: root signature, trusted measurement, and bounded age.
type AttestationValidator struct {
	root    SignatureService
	trusted map[[32]byte]bool
	maxAge  time.Duration
	clock   clock.Clock
}

func NewAttestationValidator(root SignatureService, trusted [][32]byte, maxAge time.Duration, clk clock.Clock) *AttestationValidator {
	if clk == nil {
		clk = clock.System{}
	}
	set := make(map[[32]byte]bool, len(trusted))
	for _, m := range trusted {
		set[m] = true
	}
	return &AttestationValidator{root: root, trusted: set, maxAge: maxAge, clock: clk}
}

// Validate returns ErrAttestation unless the quote is genuine, trusted and
// fresh.
func (v *AttestationValidator) Validate(q *Quote) error {
	if !v.root.Verify(q.Body(), q.Signature) {
		return ErrAttestation
	}
	if !v.trusted[q.Measurement] {
		return ErrAttestation
	}
	now := v.clock.Now()
	if q.IssuedAt.After(now) || now.Sub(q.IssuedAt) > v.maxAge {
		return ErrAttestation
	}
	return nil
}

// MaxAge is the freshness bound quotes are held to.
func (v *AttestationValidator) MaxAge() time.Duration { return v.maxAge }
