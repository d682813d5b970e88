// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testStatement(amount Amount, minimumValuePromise uint64) *ProofStatement {
	return &ProofStatement{
		Amount:              amount,
		MinimumValuePromise: minimumValuePromise,
		Mask:                RandomScalar(),
	}
}

func TestCommitmentOpens(t *testing.T) {
	factory := NewCommitmentFactory()
	mask := RandomScalar()

	commitment := factory.CommitValue(mask, 100)
	require.True(t, factory.Open(commitment, mask, 100))
	require.False(t, factory.Open(commitment, mask, 99))
	require.False(t, factory.Open(commitment, RandomScalar(), 100))
}

func TestCreateOutputStatementValid(t *testing.T) {
	factory := NewCommitmentFactory()
	service := NewRangeProofService(factory, 64)

	output := testStatement(100, 0)
	change := testStatement(42, 0)
	proof, err := CreateOutputStatement(factory, service, output, 0, change, 0)
	require.NoError(t, err)
	require.NotNil(t, proof.Output)
	require.NotNil(t, proof.Change)
	require.NotEmpty(t, proof.RangeProof)

	// The aggregated proof verifies against the concatenated commitments.
	statements := []RangeStatement{
		{Commitment: proof.Output.Commitment, MinimumValuePromise: proof.Output.MinimumValuePromise},
		{Commitment: proof.Change.Commitment, MinimumValuePromise: proof.Change.MinimumValuePromise},
	}
	require.NoError(t, service.VerifyAggregated(proof.RangeProof, statements))

	// The output commitment opens under its mask.
	outputCommitment, err := elementFromBytes(proof.Output.Commitment[:])
	require.NoError(t, err)
	require.True(t, factory.Open(outputCommitment, output.Mask, 100))
}

func TestCreateOutputStatementSingleAndEmpty(t *testing.T) {
	factory := NewCommitmentFactory()
	service := NewRangeProofService(factory, 64)

	// Single statement: aggregation factor one.
	single, err := CreateOutputStatement(factory, service, testStatement(7, 0), 0, nil, 0)
	require.NoError(t, err)
	require.Nil(t, single.Change)
	require.NoError(t, service.VerifyAggregated(single.RangeProof, []RangeStatement{
		{Commitment: single.Output.Commitment},
	}))

	// Zero statements: only revealed funds, the proof is an empty byte
	// sequence.
	empty, err := CreateOutputStatement(factory, service, nil, 25, nil, 0)
	require.NoError(t, err)
	require.Nil(t, empty.Output)
	require.Nil(t, empty.Change)
	require.Empty(t, empty.RangeProof)
	require.Equal(t, Amount(25), empty.OutputRevealedAmount)
	require.NoError(t, service.VerifyAggregated(empty.RangeProof, nil))
}

func TestCreateOutputStatementNegativeAmount(t *testing.T) {
	factory := NewCommitmentFactory()
	service := NewRangeProofService(factory, 64)

	_, err := CreateOutputStatement(factory, service, testStatement(-1, 0), 0, nil, 0)
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestRangeProofRejectsValueBelowPromise(t *testing.T) {
	factory := NewCommitmentFactory()
	service := NewRangeProofService(factory, 64)

	_, err := service.ConstructExtendedProof([]ExtendedWitness{
		{Mask: RandomScalar(), Value: 10, MinimumValuePromise: 11},
	})
	require.ErrorIs(t, err, ErrRangeProof)
}

func TestRangeProofMinimumValuePromiseBinds(t *testing.T) {
	factory := NewCommitmentFactory()
	service := NewRangeProofService(factory, 64)

	mask := RandomScalar()
	proofBytes, err := service.ConstructExtendedProof([]ExtendedWitness{
		{Mask: mask, Value: 100, MinimumValuePromise: 100},
	})
	require.NoError(t, err)

	commitment := elementBytes(factory.CommitValue(mask, 100))
	require.NoError(t, service.VerifyAggregated(proofBytes, []RangeStatement{
		{Commitment: commitment, MinimumValuePromise: 100},
	}))

	// A mutated promise no longer matches the proof.
	require.Error(t, service.VerifyAggregated(proofBytes, []RangeStatement{
		{Commitment: commitment, MinimumValuePromise: 99},
	}))
	require.Error(t, service.VerifyAggregated(proofBytes, []RangeStatement{
		{Commitment: commitment, MinimumValuePromise: 1000},
	}))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	factory := NewCommitmentFactory()
	key := RandomScalar()
	mask := RandomScalar()
	commitment := factory.CommitValue(mask, 100)

	encrypted, err := EncryptData(key, commitment, 100, mask)
	require.NoError(t, err)

	value, decryptedMask, err := DecryptData(key, commitment, encrypted)
	require.NoError(t, err)
	require.Equal(t, uint64(100), value)
	require.True(t, decryptedMask.IsEqual(mask))

	// Flipping the first ciphertext byte fails authentication.
	mutated := encrypted
	mutated[sizeTag+sizeNonce] ^= 0x01
	_, _, err = DecryptData(key, commitment, mutated)
	require.ErrorIs(t, err, ErrAead)

	// So does any single-bit mutation of the tag.
	mutated = encrypted
	mutated[0] ^= 0x80
	_, _, err = DecryptData(key, commitment, mutated)
	require.ErrorIs(t, err, ErrAead)

	// And the wrong key.
	_, _, err = DecryptData(RandomScalar(), commitment, encrypted)
	require.ErrorIs(t, err, ErrAead)
}

func TestViewableBalanceProof(t *testing.T) {
	factory := NewCommitmentFactory()
	mask := RandomScalar()
	viewSecret, viewKey := RandomKeypair()
	commitment := factory.CommitValue(mask, 7)

	proof := CreateViewableBalanceProof(factory, mask, 7, commitment, viewKey)
	require.NoError(t, VerifyViewableBalanceProof(factory, commitment, viewKey, proof))

	// The view-key holder recovers the amount from (E, R).
	amount, ok := RecoverAmount(proof, viewSecret, 1000)
	require.True(t, ok)
	require.Equal(t, uint64(7), amount)

	// A wrong view secret does not.
	wrongSecret, wrongKey := RandomKeypair()
	_, ok = RecoverAmount(proof, wrongSecret, 1000)
	require.False(t, ok)

	// Verification under a different view key fails.
	require.Error(t, VerifyViewableBalanceProof(factory, commitment, wrongKey, proof))

	// A tampered response fails the Sigma equations.
	tampered := *proof
	tampered.SV = scalarBytes(RandomScalar())
	require.Error(t, VerifyViewableBalanceProof(factory, commitment, viewKey, &tampered))
}

func TestViewableBalanceProofAttachedToStatement(t *testing.T) {
	factory := NewCommitmentFactory()
	service := NewRangeProofService(factory, 64)

	_, viewKey := RandomKeypair()
	stmt := testStatement(100, 0)
	stmt.ResourceViewKey = viewKey

	proof, err := CreateOutputStatement(factory, service, stmt, 0, nil, 0)
	require.NoError(t, err)
	require.NotNil(t, proof.Output.ViewableBalance)

	commitment, err := elementFromBytes(proof.Output.Commitment[:])
	require.NoError(t, err)
	require.NoError(t, VerifyViewableBalanceProof(factory, commitment, viewKey, proof.Output.ViewableBalance))

	// Without a view key no proof is attached.
	plain, err := CreateOutputStatement(factory, service, testStatement(5, 0), 0, nil, 0)
	require.NoError(t, err)
	require.Nil(t, plain.Output.ViewableBalance)
}
