// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import (
	"fmt"

	"github.com/cloudflare/circl/group"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

const rangeProofChallengeDST = "tari.dan.confidential.range_proof.challenge.v1"

// ExtendedWitness opens one commitment for range proving.
type ExtendedWitness struct {
	Mask                group.Scalar
	Value               uint64
	MinimumValuePromise uint64
}

// RangeStatement is the public side of one witness.
type RangeStatement struct {
	Commitment          [32]byte
	MinimumValuePromise uint64
}

// RangeProofService constructs and verifies aggregated range proofs. The
// prover is a black box to the rest of the wallet: any scheme whose
// aggregation factor equals the number of witnesses can be swapped in.
type RangeProofService interface {
	// ConstructExtendedProof proves, for every witness, that value minus
	// minimum_value_promise lies in [0, 2^bits). Zero witnesses yield an
	// empty proof.
	ConstructExtendedProof(witnesses []ExtendedWitness) ([]byte, error)

	// VerifyAggregated checks a proof against the concatenated statements.
	VerifyAggregated(proof []byte, statements []RangeStatement) error
}

// bitProofService proves ranges by committing to every bit of the promised
// excess and showing each commitment opens to zero or one.
type bitProofService struct {
	factory *CommitmentFactory
	bits    int
}

// NewRangeProofService returns the in-tree range prover over the given bit
// width.
func NewRangeProofService(factory *CommitmentFactory, bits int) RangeProofService {
	return &bitProofService{factory: factory, bits: bits}
}

type witnessRangeProof struct {
	BitCommitments [][]byte `cbor:"1,keyasint"`
	A0             [][]byte `cbor:"2,keyasint"`
	A1             [][]byte `cbor:"3,keyasint"`
	E0             [][]byte `cbor:"4,keyasint"`
	Z0             [][]byte `cbor:"5,keyasint"`
	Z1             [][]byte `cbor:"6,keyasint"`
}

type aggregatedRangeProof struct {
	Witnesses []witnessRangeProof `cbor:"1,keyasint"`
}

// rangeChallenge binds the statements and every per-bit announcement into
// one Fiat-Shamir challenge.
func rangeChallenge(statements []RangeStatement, perWitness []witnessRangeProof) group.Scalar {
	hasher, err := blake2b.New512(nil)
	if err != nil {
		panic("INVARIANT VIOLATION: blake2b unkeyed init failed: " + err.Error())
	}
	hasher.Write([]byte(rangeProofChallengeDST))
	for _, stmt := range statements {
		hasher.Write(stmt.Commitment[:])
		var promise [8]byte
		for i := 0; i < 8; i++ {
			promise[i] = byte(stmt.MinimumValuePromise >> (8 * i))
		}
		hasher.Write(promise[:])
	}
	for _, w := range perWitness {
		for _, d := range w.BitCommitments {
			hasher.Write(d)
		}
		for _, a := range w.A0 {
			hasher.Write(a)
		}
		for _, a := range w.A1 {
			hasher.Write(a)
		}
	}
	return ristretto.HashToScalar(hasher.Sum(nil), []byte(rangeProofChallengeDST))
}

func (s *bitProofService) ConstructExtendedProof(witnesses []ExtendedWitness) ([]byte, error) {
	if len(witnesses) == 0 {
		// Only revealed funds are being output; zero length is valid.
		return []byte{}, nil
	}

	statements := make([]RangeStatement, len(witnesses))
	for i, w := range witnesses {
		statements[i] = RangeStatement{
			Commitment:          elementBytes(s.factory.CommitValue(w.Mask, w.Value)),
			MinimumValuePromise: w.MinimumValuePromise,
		}
	}

	type bitSecrets struct {
		mask  group.Scalar
		bit   byte
		nonce group.Scalar
		eSim  group.Scalar
		zSim  group.Scalar
	}

	perWitness := make([]witnessRangeProof, len(witnesses))
	secrets := make([][]bitSecrets, len(witnesses))

	for wi, w := range witnesses {
		if w.Value < w.MinimumValuePromise {
			return nil, fmt.Errorf("%w: value below minimum value promise", ErrRangeProof)
		}
		excess := w.Value - w.MinimumValuePromise

		// Split the witness mask over the bit masks so the bit commitments
		// recompose to C - promise*H.
		bitMasks := make([]group.Scalar, s.bits)
		sum := ristretto.NewScalar()
		sum.SetUint64(0)
		for j := 1; j < s.bits; j++ {
			bitMasks[j] = RandomScalar()
			weighted := ristretto.NewScalar().SetUint64(uint64(1) << uint(j))
			weighted.Mul(weighted, bitMasks[j])
			sum.Add(sum, weighted)
		}
		bitMasks[0] = ristretto.NewScalar().Sub(w.Mask, sum)

		proof := witnessRangeProof{
			BitCommitments: make([][]byte, s.bits),
			A0:             make([][]byte, s.bits),
			A1:             make([][]byte, s.bits),
			E0:             make([][]byte, s.bits),
			Z0:             make([][]byte, s.bits),
			Z1:             make([][]byte, s.bits),
		}
		secrets[wi] = make([]bitSecrets, s.bits)

		for j := 0; j < s.bits; j++ {
			bit := byte(excess >> uint(j) & 1)
			bitScalar := ristretto.NewScalar().SetUint64(uint64(bit))
			d := s.factory.Commit(bitMasks[j], bitScalar)
			dBytes := elementBytes(d)
			proof.BitCommitments[j] = dBytes[:]

			nonce := RandomScalar()
			eSim := RandomScalar()
			zSim := RandomScalar()
			secrets[wi][j] = bitSecrets{mask: bitMasks[j], bit: bit, nonce: nonce, eSim: eSim, zSim: zSim}

			// Real branch announcement is nonce*G; the other branch is
			// simulated with the pre-chosen sub-challenge.
			realA := ristretto.NewElement().MulGen(nonce)
			if bit == 0 {
				// Simulate branch 1: z1*G - e1*(D - H).
				shifted := ristretto.NewElement().Neg(s.factory.H())
				shifted.Add(shifted, d)
				sim := ristretto.NewElement().Mul(shifted, eSim)
				sim.Neg(sim)
				sim.Add(sim, ristretto.NewElement().MulGen(zSim))
				a0 := elementBytes(realA)
				a1 := elementBytes(sim)
				proof.A0[j] = a0[:]
				proof.A1[j] = a1[:]
			} else {
				// Simulate branch 0: z0*G - e0*D.
				sim := ristretto.NewElement().Mul(d, eSim)
				sim.Neg(sim)
				sim.Add(sim, ristretto.NewElement().MulGen(zSim))
				a0 := elementBytes(sim)
				a1 := elementBytes(realA)
				proof.A0[j] = a0[:]
				proof.A1[j] = a1[:]
			}
		}
		perWitness[wi] = proof
	}

	e := rangeChallenge(statements, perWitness)

	for wi := range witnesses {
		proof := &perWitness[wi]
		for j := 0; j < s.bits; j++ {
			sec := secrets[wi][j]
			if sec.bit == 0 {
				// e1 was simulated; e0 = e - e1, z0 = nonce + e0*mask.
				e0 := ristretto.NewScalar().Sub(e, sec.eSim)
				z0 := ristretto.NewScalar().Mul(e0, sec.mask)
				z0.Add(z0, sec.nonce)
				e0b := scalarBytes(e0)
				z0b := scalarBytes(z0)
				z1b := scalarBytes(sec.zSim)
				proof.E0[j] = e0b[:]
				proof.Z0[j] = z0b[:]
				proof.Z1[j] = z1b[:]
			} else {
				// e0 was simulated; e1 = e - e0, z1 = nonce + e1*mask.
				e1 := ristretto.NewScalar().Sub(e, sec.eSim)
				z1 := ristretto.NewScalar().Mul(e1, sec.mask)
				z1.Add(z1, sec.nonce)
				e0b := scalarBytes(sec.eSim)
				z0b := scalarBytes(sec.zSim)
				z1b := scalarBytes(z1)
				proof.E0[j] = e0b[:]
				proof.Z0[j] = z0b[:]
				proof.Z1[j] = z1b[:]
			}
		}
	}

	return encodeRangeProof(aggregatedRangeProof{Witnesses: perWitness})
}

func (s *bitProofService) VerifyAggregated(proofBytes []byte, statements []RangeStatement) error {
	if len(statements) == 0 {
		if len(proofBytes) != 0 {
			return fmt.Errorf("%w: proof present without statements", ErrRangeProof)
		}
		return nil
	}
	if len(proofBytes) == 0 {
		return fmt.Errorf("%w: missing proof", ErrRangeProof)
	}

	var proof aggregatedRangeProof
	if err := cbor.Unmarshal(proofBytes, &proof); err != nil {
		return fmt.Errorf("%w: malformed proof: %s", ErrRangeProof, err)
	}
	if len(proof.Witnesses) != len(statements) {
		return fmt.Errorf("%w: aggregation factor %d does not match %d statements",
			ErrRangeProof, len(proof.Witnesses), len(statements))
	}

	e := rangeChallenge(statements, proof.Witnesses)

	for wi, stmt := range statements {
		w := proof.Witnesses[wi]
		if len(w.BitCommitments) != s.bits ||
			len(w.A0) != s.bits || len(w.A1) != s.bits ||
			len(w.E0) != s.bits || len(w.Z0) != s.bits || len(w.Z1) != s.bits {
			return fmt.Errorf("%w: wrong bit count", ErrRangeProof)
		}

		commitment, err := elementFromBytes(stmt.Commitment[:])
		if err != nil {
			return fmt.Errorf("%w: malformed commitment: %s", ErrRangeProof, err)
		}

		// The weighted bit commitments must recompose to C - promise*H.
		recomposed := ristretto.Identity()
		for j := 0; j < s.bits; j++ {
			d, err := elementFromBytes(w.BitCommitments[j])
			if err != nil {
				return fmt.Errorf("%w: malformed bit commitment: %s", ErrRangeProof, err)
			}
			weighted := ristretto.NewElement().Mul(d, ristretto.NewScalar().SetUint64(uint64(1)<<uint(j)))
			recomposed.Add(recomposed, weighted)
		}
		promised := ristretto.NewElement().Mul(s.factory.H(), ristretto.NewScalar().SetUint64(stmt.MinimumValuePromise))
		expected := ristretto.NewElement().Neg(promised)
		expected.Add(expected, commitment)
		if !recomposed.IsEqual(expected) {
			return fmt.Errorf("%w: bit commitments do not recompose to the statement", ErrRangeProof)
		}

		for j := 0; j < s.bits; j++ {
			d, err := elementFromBytes(w.BitCommitments[j])
			if err != nil {
				return fmt.Errorf("%w: malformed bit commitment: %s", ErrRangeProof, err)
			}
			a0, err := elementFromBytes(w.A0[j])
			if err != nil {
				return fmt.Errorf("%w: malformed announcement: %s", ErrRangeProof, err)
			}
			a1, err := elementFromBytes(w.A1[j])
			if err != nil {
				return fmt.Errorf("%w: malformed announcement: %s", ErrRangeProof, err)
			}
			e0, err := scalarFromBytes(w.E0[j])
			if err != nil {
				return fmt.Errorf("%w: malformed sub-challenge: %s", ErrRangeProof, err)
			}
			z0, err := scalarFromBytes(w.Z0[j])
			if err != nil {
				return fmt.Errorf("%w: malformed response: %s", ErrRangeProof, err)
			}
			z1, err := scalarFromBytes(w.Z1[j])
			if err != nil {
				return fmt.Errorf("%w: malformed response: %s", ErrRangeProof, err)
			}
			e1 := ristretto.NewScalar().Sub(e, e0)

			// z0*G == A0 + e0*D
			left := ristretto.NewElement().MulGen(z0)
			right := ristretto.NewElement().Mul(d, e0)
			right.Add(right, a0)
			if !left.IsEqual(right) {
				return fmt.Errorf("%w: bit %d branch 0 fails", ErrRangeProof, j)
			}

			// z1*G == A1 + e1*(D - H)
			shifted := ristretto.NewElement().Neg(s.factory.H())
			shifted.Add(shifted, d)
			left = ristretto.NewElement().MulGen(z1)
			right = ristretto.NewElement().Mul(shifted, e1)
			right.Add(right, a1)
			if !left.IsEqual(right) {
				return fmt.Errorf("%w: bit %d branch 1 fails", ErrRangeProof, j)
			}
		}
	}
	return nil
}

var rangeProofEncMode, _ = cbor.CoreDetEncOptions().EncMode()

func encodeRangeProof(proof aggregatedRangeProof) ([]byte, error) {
	data, err := rangeProofEncMode.Marshal(proof)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRangeProof, err)
	}
	return data, nil
}
