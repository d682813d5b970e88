// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import (
	"crypto/rand"

	"github.com/cloudflare/circl/group"
)

// ristretto is the prime-order group every confidential primitive works in.
var ristretto = group.Ristretto255

// pedersenHDST derives the value generator H with no known discrete log
// relation to G.
const pedersenHDST = "tari.dan.confidential.pedersen.value_generator"

// CommitmentFactory produces Pedersen commitments C = mask*G + value*H.
type CommitmentFactory struct {
	h group.Element
}

// NewCommitmentFactory derives the value generator and returns the factory.
func NewCommitmentFactory() *CommitmentFactory {
	return &CommitmentFactory{
		h: ristretto.HashToElement(nil, []byte(pedersenHDST)),
	}
}

// H returns the value generator.
func (f *CommitmentFactory) H() group.Element {
	return f.h
}

// Commit returns mask*G + value*H.
func (f *CommitmentFactory) Commit(mask, value group.Scalar) group.Element {
	commitment := ristretto.NewElement().MulGen(mask)
	return commitment.Add(commitment, ristretto.NewElement().Mul(f.h, value))
}

// CommitValue commits a u64 amount under the mask.
func (f *CommitmentFactory) CommitValue(mask group.Scalar, value uint64) group.Element {
	return f.Commit(mask, ristretto.NewScalar().SetUint64(value))
}

// Open reports whether the commitment opens to (mask, value).
func (f *CommitmentFactory) Open(commitment group.Element, mask group.Scalar, value uint64) bool {
	return f.CommitValue(mask, value).IsEqual(commitment)
}

// RandomScalar samples a uniform scalar from the system randomness source.
func RandomScalar() group.Scalar {
	return ristretto.RandomScalar(rand.Reader)
}

// RandomKeypair samples a secret scalar and its public point.
func RandomKeypair() (group.Scalar, group.Element) {
	secret := RandomScalar()
	return secret, ristretto.NewElement().MulGen(secret)
}

// elementBytes serializes a group element to its 32-byte canonical form.
// Element encoding cannot fail for valid elements; a failure here is a bug.
func elementBytes(e group.Element) [32]byte {
	data, err := e.MarshalBinaryCompress()
	if err != nil {
		panic("INVARIANT VIOLATION: ristretto element encoding failed: " + err.Error())
	}
	var out [32]byte
	copy(out[:], data)
	return out
}

// scalarBytes serializes a scalar to its 32-byte canonical form.
func scalarBytes(s group.Scalar) [32]byte {
	data, err := s.MarshalBinary()
	if err != nil {
		panic("INVARIANT VIOLATION: ristretto scalar encoding failed: " + err.Error())
	}
	var out [32]byte
	copy(out[:], data)
	return out
}

// elementFromBytes parses a canonical 32-byte element encoding.
func elementFromBytes(data []byte) (group.Element, error) {
	e := ristretto.NewElement()
	if err := e.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return e, nil
}

// scalarFromBytes parses a canonical 32-byte scalar encoding.
func scalarFromBytes(data []byte) (group.Scalar, error) {
	s := ristretto.NewScalar()
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return s, nil
}
