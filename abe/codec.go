package abe

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/fentec-project/gofe/data"

	"abeguard/pairing"
	"abeguard/policy"
)

// Ciphertext wire layout, big-endian throughout:
//
//	matrixRows  u32
//	matrixCols  u32
//	rowAttribute [rows]u32          (index into the label table)
//	labelTable  u16 count, then per label: u16 length + bytes
//	exprLen     u16 + policy expression bytes
//	matrix      rows*cols entries, each u16 length + big-endian scalar
//	C           u32 length + GT element
//	CPrime      u32 length + G1 element
//	rows        per row: u32 length + Ci (G1), u32 length + Di (G2)
//
// The matrix entries and label table make a ciphertext self-describing:
// decryption needs the LSSS rows, not just the expression.

var errTruncated = errors.New("abe: truncated ciphertext")

// EncodeCiphertext serializes ct to its binary wire form.
func EncodeCiphertext(ct *Ciphertext) ([]byte, error) {
	prog := ct.Policy
	var buf bytes.Buffer

	binary.Write(&buf, binary.BigEndian, uint32(prog.Rows()))
	binary.Write(&buf, binary.BigEndian, uint32(prog.Cols()))

	labelID := make(map[string]uint32)
	var labels []string
	for _, label := range prog.Rho {
		if _, ok := labelID[label]; !ok {
			labelID[label] = uint32(len(labels))
			labels = append(labels, label)
		}
	}
	for _, label := range prog.Rho {
		binary.Write(&buf, binary.BigEndian, labelID[label])
	}

	binary.Write(&buf, binary.BigEndian, uint16(len(labels)))
	for _, label := range labels {
		if err := writeBytes16(&buf, []byte(label)); err != nil {
			return nil, err
		}
	}
	if err := writeBytes16(&buf, []byte(prog.Expr)); err != nil {
		return nil, err
	}

	for _, row := range prog.Mat {
		for _, cell := range row {
			if err := writeBytes16(&buf, cell.Bytes()); err != nil {
				return nil, err
			}
		}
	}

	writeBytes32(&buf, ct.C.Bytes())
	writeBytes32(&buf, ct.CPrime.Bytes())
	for i := range ct.C1 {
		writeBytes32(&buf, ct.C1[i].Bytes())
		writeBytes32(&buf, ct.D[i].Bytes())
	}
	return buf.Bytes(), nil
}

// DecodeCiphertext parses a binary ciphertext produced by EncodeCiphertext
// against the given suite.
func DecodeCiphertext(suite pairing.Suite, raw []byte) (*Ciphertext, error) {
	r := bytes.NewReader(raw)

	var rows, cols uint32
	if err := binary.Read(r, binary.BigEndian, &rows); err != nil {
		return nil, errTruncated
	}
	if err := binary.Read(r, binary.BigEndian, &cols); err != nil {
		return nil, errTruncated
	}
	if rows == 0 || cols == 0 || rows > 1<<16 || cols > 1<<16 {
		return nil, fmt.Errorf("abe: implausible matrix %dx%d", rows, cols)
	}

	rowIDs := make([]uint32, rows)
	for i := range rowIDs {
		if err := binary.Read(r, binary.BigEndian, &rowIDs[i]); err != nil {
			return nil, errTruncated
		}
	}

	var labelCount uint16
	if err := binary.Read(r, binary.BigEndian, &labelCount); err != nil {
		return nil, errTruncated
	}
	labels := make([]string, labelCount)
	for i := range labels {
		b, err := readBytes16(r)
		if err != nil {
			return nil, err
		}
		labels[i] = string(b)
	}

	exprBytes, err := readBytes16(r)
	if err != nil {
		return nil, err
	}

	rho := make([]string, rows)
	for i, id := range rowIDs {
		if int(id) >= len(labels) {
			return nil, fmt.Errorf("abe: row attribute id %d out of range", id)
		}
		rho[i] = labels[id]
	}

	mat := make(data.Matrix, rows)
	for i := range mat {
		mat[i] = make(data.Vector, cols)
		for j := range mat[i] {
			b, err := readBytes16(r)
			if err != nil {
				return nil, err
			}
			mat[i][j] = new(big.Int).SetBytes(b)
		}
	}

	ct := &Ciphertext{
		Suite: suite.Name(),
		Policy: &policy.Program{
			P:    suite.Order(),
			Expr: string(exprBytes),
			Mat:  mat,
			Rho:  rho,
		},
		C1: make([]pairing.Point, rows),
		D:  make([]pairing.Point, rows),
	}

	if ct.C, err = readPoint(r, suite.GT()); err != nil {
		return nil, err
	}
	if ct.CPrime, err = readPoint(r, suite.G1()); err != nil {
		return nil, err
	}
	for i := 0; i < int(rows); i++ {
		if ct.C1[i], err = readPoint(r, suite.G1()); err != nil {
			return nil, err
		}
		if ct.D[i], err = readPoint(r, suite.G2()); err != nil {
			return nil, err
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("abe: %d trailing bytes after ciphertext", r.Len())
	}
	return ct, nil
}

func writeBytes16(buf *bytes.Buffer, b []byte) error {
	if len(b) > 0xffff {
		return fmt.Errorf("abe: field of %d bytes overflows u16 prefix", len(b))
	}
	binary.Write(buf, binary.BigEndian, uint16(len(b)))
	buf.Write(b)
	return nil
}

func writeBytes32(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(b)))
	buf.Write(b)
}

func readBytes16(r *bytes.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, errTruncated
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errTruncated
	}
	return b, nil
}

func readBytes32(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, errTruncated
	}
	if int(n) > r.Len() {
		return nil, errTruncated
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errTruncated
	}
	return b, nil
}

func readPoint(r *bytes.Reader, g pairing.Group) (pairing.Point, error) {
	b, err := readBytes32(r)
	if err != nil {
		return nil, err
	}
	return g.Decode(b)
}

// Serialized key material. The JSON shapes below are what the storage
// layer persists; group elements travel as their Bytes form.

type encodedPublicKey struct {
	Suite    string            `json:"suite"`
	G1       []byte            `json:"g1"`
	G2       []byte            `json:"g2"`
	G1A      []byte            `json:"g1a"`
	EggAlpha []byte            `json:"egg_alpha"`
	Attrs    map[string][]byte `json:"attrs"`
}

// MarshalPublicKey serializes pk for storage.
func MarshalPublicKey(pk *PublicKey) ([]byte, error) {
	enc := encodedPublicKey{
		Suite:    pk.Suite,
		G1:       pk.G1.Bytes(),
		G2:       pk.G2.Bytes(),
		G1A:      pk.G1A.Bytes(),
		EggAlpha: pk.EggAlpha.Bytes(),
		Attrs:    make(map[string][]byte, len(pk.Attrs)),
	}
	for label, h := range pk.Attrs {
		enc.Attrs[label] = h.Bytes()
	}
	return json.Marshal(enc)
}

// UnmarshalPublicKey parses a stored public key against suite.
func UnmarshalPublicKey(suite pairing.Suite, raw []byte) (*PublicKey, error) {
	var enc encodedPublicKey
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, err
	}
	if enc.Suite != suite.Name() {
		return nil, fmt.Errorf("abe: public key is for suite %s, engine runs %s", enc.Suite, suite.Name())
	}
	pk := &PublicKey{Suite: enc.Suite, Attrs: make(map[string]pairing.Point, len(enc.Attrs))}
	var err error
	if pk.G1, err = suite.G1().Decode(enc.G1); err != nil {
		return nil, err
	}
	if pk.G2, err = suite.G2().Decode(enc.G2); err != nil {
		return nil, err
	}
	if pk.G1A, err = suite.G1().Decode(enc.G1A); err != nil {
		return nil, err
	}
	if pk.EggAlpha, err = suite.GT().Decode(enc.EggAlpha); err != nil {
		return nil, err
	}
	for label, b := range enc.Attrs {
		if pk.Attrs[label], err = suite.G1().Decode(b); err != nil {
			return nil, err
		}
	}
	return pk, nil
}

type encodedMasterKey struct {
	Alpha []byte `json:"alpha"`
	A     []byte `json:"a"`
}

func MarshalMasterKey(msk *MasterKey) ([]byte, error) {
	return json.Marshal(encodedMasterKey{Alpha: msk.Alpha.Bytes(), A: msk.A.Bytes()})
}

func UnmarshalMasterKey(raw []byte) (*MasterKey, error) {
	var enc encodedMasterKey
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, err
	}
	return &MasterKey{
		Alpha: new(big.Int).SetBytes(enc.Alpha),
		A:     new(big.Int).SetBytes(enc.A),
	}, nil
}

type encodedUserKey struct {
	GID        string            `json:"gid"`
	K          []byte            `json:"k"`
	L          []byte            `json:"l"`
	Components map[string][]byte `json:"components"`
}

func MarshalUserKey(uk *UserKey) ([]byte, error) {
	enc := encodedUserKey{
		GID:        uk.GID,
		K:          uk.K.Bytes(),
		L:          uk.L.Bytes(),
		Components: make(map[string][]byte, len(uk.Components)),
	}
	for label, c := range uk.Components {
		enc.Components[label] = c.Bytes()
	}
	return json.Marshal(enc)
}

func UnmarshalUserKey(suite pairing.Suite, raw []byte) (*UserKey, error) {
	var enc encodedUserKey
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, err
	}
	uk := &UserKey{GID: enc.GID, Components: make(map[string]pairing.Point, len(enc.Components))}
	var err error
	if uk.K, err = suite.G2().Decode(enc.K); err != nil {
		return nil, err
	}
	if uk.L, err = suite.G2().Decode(enc.L); err != nil {
		return nil, err
	}
	for label, b := range enc.Components {
		if uk.Components[label], err = suite.G1().Decode(b); err != nil {
			return nil, err
		}
	}
	return uk, nil
}
