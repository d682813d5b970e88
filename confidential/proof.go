// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import (
	"fmt"

	"github.com/cloudflare/circl/group"
	"golang.org/x/crypto/blake2b"
)

const (
	viewableBalanceChallengeDomain = "tari.dan.confidential.viewable_balance.challenge.v1"
	viewableBalanceScalarDST       = "tari.dan.confidential.viewable_balance.scalar.v1"
)

// viewableBalanceChallenge computes the 64-byte domain-separated Fiat-Shamir
// challenge over the proof transcript and reduces it to a scalar.
func viewableBalanceChallenge(
	commitment group.Element,
	viewKey group.Element,
	elgamalEncrypted [32]byte,
	elgamalPublicNonce [32]byte,
	cPrime [32]byte,
	ePrime [32]byte,
	rPrime [32]byte,
) group.Scalar {
	hasher, err := blake2b.New512(nil)
	if err != nil {
		panic("INVARIANT VIOLATION: blake2b unkeyed init failed: " + err.Error())
	}
	hasher.Write([]byte(viewableBalanceChallengeDomain))
	c := elementBytes(commitment)
	hasher.Write(c[:])
	p := elementBytes(viewKey)
	hasher.Write(p[:])
	hasher.Write(elgamalEncrypted[:])
	hasher.Write(elgamalPublicNonce[:])
	hasher.Write(cPrime[:])
	hasher.Write(ePrime[:])
	hasher.Write(rPrime[:])
	challenge64 := hasher.Sum(nil)

	return ristretto.HashToScalar(challenge64, []byte(viewableBalanceScalarDST))
}

// CreateViewableBalanceProof proves, under the resource view key P, that the
// ElGamal pair (E, R) encrypts the committed amount:
//
//	E = v*G + r*P, R = r*G
//
// with a three-scalar Sigma protocol binding (v, m, r) to the commitment.
func CreateViewableBalanceProof(
	factory *CommitmentFactory,
	mask group.Scalar,
	amount uint64,
	commitment group.Element,
	viewKey group.Element,
) *ViewableBalanceProof {
	r, elgamalPublicNonce := RandomKeypair()
	value := ristretto.NewScalar().SetUint64(amount)

	// E = v*G + r*P
	elgamalEncrypted := ristretto.NewElement().MulGen(value)
	elgamalEncrypted.Add(elgamalEncrypted, ristretto.NewElement().Mul(viewKey, r))

	// Sigma nonces.
	xV := RandomScalar()
	xM := RandomScalar()
	xR := RandomScalar()

	// C' = x_m*G + x_v*H
	cPrime := factory.Commit(xM, xV)
	// E' = x_v*G + x_r*P
	ePrime := ristretto.NewElement().MulGen(xV)
	ePrime.Add(ePrime, ristretto.NewElement().Mul(viewKey, xR))
	// R' = x_r*G
	rPrime := ristretto.NewElement().MulGen(xR)

	eBytes := elementBytes(elgamalEncrypted)
	rBytes := elementBytes(elgamalPublicNonce)
	cPrimeBytes := elementBytes(cPrime)
	ePrimeBytes := elementBytes(ePrime)
	rPrimeBytes := elementBytes(rPrime)

	e := viewableBalanceChallenge(commitment, viewKey, eBytes, rBytes, cPrimeBytes, ePrimeBytes, rPrimeBytes)

	// s_v = e*v + x_v, s_m = e*m + x_m, s_r = e*r + x_r
	sV := ristretto.NewScalar().Mul(e, value)
	sV.Add(sV, xV)
	sM := ristretto.NewScalar().Mul(e, mask)
	sM.Add(sM, xM)
	sR := ristretto.NewScalar().Mul(e, r)
	sR.Add(sR, xR)

	return &ViewableBalanceProof{
		ElgamalEncrypted:   eBytes,
		ElgamalPublicNonce: rBytes,
		CPrime:             cPrimeBytes,
		EPrime:             ePrimeBytes,
		RPrime:             rPrimeBytes,
		SV:                 scalarBytes(sV),
		SM:                 scalarBytes(sM),
		SR:                 scalarBytes(sR),
	}
}

// VerifyViewableBalanceProof checks the Sigma verification equations:
//
//	s_m*G + s_v*H == e*C + C'
//	s_v*G + s_r*P == e*E + E'
//	s_r*G        == e*R + R'
func VerifyViewableBalanceProof(
	factory *CommitmentFactory,
	commitment group.Element,
	viewKey group.Element,
	proof *ViewableBalanceProof,
) error {
	elgamalEncrypted, err := elementFromBytes(proof.ElgamalEncrypted[:])
	if err != nil {
		return fmt.Errorf("malformed E: %w", err)
	}
	elgamalPublicNonce, err := elementFromBytes(proof.ElgamalPublicNonce[:])
	if err != nil {
		return fmt.Errorf("malformed R: %w", err)
	}
	cPrime, err := elementFromBytes(proof.CPrime[:])
	if err != nil {
		return fmt.Errorf("malformed C': %w", err)
	}
	ePrime, err := elementFromBytes(proof.EPrime[:])
	if err != nil {
		return fmt.Errorf("malformed E': %w", err)
	}
	rPrime, err := elementFromBytes(proof.RPrime[:])
	if err != nil {
		return fmt.Errorf("malformed R': %w", err)
	}
	sV, err := scalarFromBytes(proof.SV[:])
	if err != nil {
		return fmt.Errorf("malformed s_v: %w", err)
	}
	sM, err := scalarFromBytes(proof.SM[:])
	if err != nil {
		return fmt.Errorf("malformed s_m: %w", err)
	}
	sR, err := scalarFromBytes(proof.SR[:])
	if err != nil {
		return fmt.Errorf("malformed s_r: %w", err)
	}

	e := viewableBalanceChallenge(
		commitment, viewKey,
		proof.ElgamalEncrypted, proof.ElgamalPublicNonce,
		proof.CPrime, proof.EPrime, proof.RPrime,
	)

	// s_m*G + s_v*H == e*C + C'
	left := factory.Commit(sM, sV)
	right := ristretto.NewElement().Mul(commitment, e)
	right.Add(right, cPrime)
	if !left.IsEqual(right) {
		return fmt.Errorf("commitment equation does not hold")
	}

	// s_v*G + s_r*P == e*E + E'
	left = ristretto.NewElement().MulGen(sV)
	left.Add(left, ristretto.NewElement().Mul(viewKey, sR))
	right = ristretto.NewElement().Mul(elgamalEncrypted, e)
	right.Add(right, ePrime)
	if !left.IsEqual(right) {
		return fmt.Errorf("encryption equation does not hold")
	}

	// s_r*G == e*R + R'
	left = ristretto.NewElement().MulGen(sR)
	right = ristretto.NewElement().Mul(elgamalPublicNonce, e)
	right.Add(right, rPrime)
	if !left.IsEqual(right) {
		return fmt.Errorf("nonce equation does not hold")
	}
	return nil
}

// RecoverAmount decrypts the ElGamal pair with the view secret and solves
// the exponent by scanning up to maxAmount. Wallet balances are small enough
// for the scan; auditors pass their expected ceiling.
func RecoverAmount(proof *ViewableBalanceProof, viewSecret group.Scalar, maxAmount uint64) (uint64, bool) {
	elgamalEncrypted, err := elementFromBytes(proof.ElgamalEncrypted[:])
	if err != nil {
		return 0, false
	}
	elgamalPublicNonce, err := elementFromBytes(proof.ElgamalPublicNonce[:])
	if err != nil {
		return 0, false
	}

	// v*G = E - p*R
	shared := ristretto.NewElement().Mul(elgamalPublicNonce, viewSecret)
	target := ristretto.NewElement().Neg(shared)
	target.Add(target, elgamalEncrypted)

	candidate := ristretto.Identity()
	generator := ristretto.Generator()
	for v := uint64(0); v <= maxAmount; v++ {
		if candidate.IsEqual(target) {
			return v, true
		}
		candidate.Add(candidate, generator)
	}
	return 0, false
}

// CreateOutputStatement builds the full confidential output construction:
// commitments, optional viewable balance proofs, and one aggregated range
// proof over the present statements.
func CreateOutputStatement(
	factory *CommitmentFactory,
	rangeProofs RangeProofService,
	output *ProofStatement,
	outputRevealedAmount Amount,
	change *ProofStatement,
	changeRevealedAmount Amount,
) (*OutputStatement, error) {
	buildStatement := func(stmt *ProofStatement) (*Statement, error) {
		if stmt == nil {
			return nil, nil
		}
		value, ok := stmt.Amount.AsU64Checked()
		if !ok {
			return nil, ErrNegativeAmount
		}
		commitment := factory.CommitValue(stmt.Mask, value)
		out := &Statement{
			Commitment:          elementBytes(commitment),
			SenderPublicNonce:   stmt.SenderPublicNonce,
			EncryptedData:       stmt.EncryptedData,
			MinimumValuePromise: stmt.MinimumValuePromise,
		}
		if stmt.ResourceViewKey != nil {
			out.ViewableBalance = CreateViewableBalanceProof(factory, stmt.Mask, value, commitment, stmt.ResourceViewKey)
		}
		return out, nil
	}

	outputStatement, err := buildStatement(output)
	if err != nil {
		return nil, err
	}
	changeStatement, err := buildStatement(change)
	if err != nil {
		return nil, err
	}

	// Aggregation factor equals the number of present statements.
	var witnesses []ExtendedWitness
	for _, stmt := range []*ProofStatement{output, change} {
		if stmt == nil {
			continue
		}
		value, _ := stmt.Amount.AsU64Checked()
		witnesses = append(witnesses, ExtendedWitness{
			Mask:                stmt.Mask,
			Value:               value,
			MinimumValuePromise: stmt.MinimumValuePromise,
		})
	}
	rangeProof, err := rangeProofs.ConstructExtendedProof(witnesses)
	if err != nil {
		return nil, err
	}

	return &OutputStatement{
		Output:               outputStatement,
		Change:               changeStatement,
		RangeProof:           rangeProof,
		OutputRevealedAmount: outputRevealedAmount,
		ChangeRevealedAmount: changeRevealedAmount,
	}, nil
}
