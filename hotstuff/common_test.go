// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

// collectDummies drives the synthesizer to newHeight and returns every block
// it produces.
func collectDummies(
	committee *types.Committee,
	highQC *storage.QuorumCertificate,
	newHeight types.Height,
) []*storage.Block {
	var dummies []*storage.Block
	withDummyBlocks(
		log.NewNoOpLogger(),
		types.NetworkLocalNet,
		testEpoch,
		testShard,
		highQC,
		types.Hash{0xee},
		newHeight,
		RoundRobinLeaderStrategy{},
		committee,
		1700000000,
		42,
		types.Hash{0xbb},
		func(dummy *storage.Block) bool {
			dummies = append(dummies, dummy)
			return true
		},
	)
	return dummies
}

func TestDummyBlocksFillLeaderFailureGap(t *testing.T) {
	committee := newTestCommittee(t, 4)
	strategy := RoundRobinLeaderStrategy{}

	justifiedID := ids.GenerateTestID()
	highQC := &storage.QuorumCertificate{
		BlockID:     justifiedID,
		BlockHeight: 10,
		Epoch:       testEpoch,
		Shard:       testShard,
	}

	dummies := collectDummies(committee, highQC, 13)
	require.Len(t, dummies, 3)

	// Heights increase strictly by one, proposers follow the rotation.
	for i, dummy := range dummies {
		height := types.Height(11 + i)
		require.Equal(t, height, dummy.Height)
		require.Equal(t, strategy.Leader(committee, height), dummy.Proposer)
		require.True(t, dummy.IsDummy)
		require.Empty(t, dummy.Commands)
		// Justify certificate, Merkle root and base-layer pointers are
		// inherited unchanged.
		require.Equal(t, highQC, dummy.Justify)
		require.Equal(t, types.Hash{0xee}, dummy.StateMerkleRoot)
		require.Equal(t, uint64(42), dummy.BaseLayerHeight)
	}

	// The first dummy hangs off the justified block, the rest chain by id.
	require.Equal(t, justifiedID, dummies[0].ParentID)
	require.Equal(t, dummies[0].ID(), dummies[1].ParentID)
	require.Equal(t, dummies[1].ID(), dummies[2].ParentID)
}

func TestDummyBlocksNoneWhenHeightNotAbove(t *testing.T) {
	committee := newTestCommittee(t, 4)
	highQC := &storage.QuorumCertificate{
		BlockID:     ids.GenerateTestID(),
		BlockHeight: 10,
		Epoch:       testEpoch,
		Shard:       testShard,
	}

	require.Empty(t, collectDummies(committee, highQC, 10))
	require.Empty(t, collectDummies(committee, highQC, 9))
}

func TestCalculateLastDummyBlockReturnsTip(t *testing.T) {
	committee := newTestCommittee(t, 4)
	highQC := &storage.QuorumCertificate{
		BlockID:     ids.GenerateTestID(),
		BlockHeight: 5,
		Epoch:       testEpoch,
		Shard:       testShard,
	}

	leaf := CalculateLastDummyBlock(
		log.NewNoOpLogger(),
		types.NetworkLocalNet,
		testEpoch,
		testShard,
		highQC,
		types.Hash{},
		8,
		RoundRobinLeaderStrategy{},
		committee,
		0,
		0,
		types.Hash{},
	)
	require.NotNil(t, leaf)
	require.Equal(t, types.Height(8), leaf.Height)

	dummies := collectDummies(committee, highQC, 8)
	require.Equal(t, dummies[len(dummies)-1].ID(), leaf.BlockID)
}

func TestCalculateDummyBlocksStopsAtCandidateParent(t *testing.T) {
	committee := newTestCommittee(t, 4)

	justifyBlock := storage.NewGenesisBlock(types.NetworkLocalNet, testEpoch, testShard)
	highQC := &storage.QuorumCertificate{
		BlockID: justifyBlock.ID(),
		Epoch:   testEpoch,
		Shard:   testShard,
	}

	// The candidate sits at height 4 on top of the dummy for height 3.
	all := collectDummiesFromGenesis(t, committee, justifyBlock, highQC, 3)
	candidate := storage.NewBlock(
		types.NetworkLocalNet,
		all[len(all)-1].ID(),
		4,
		testEpoch,
		testShard,
		highQC,
		RoundRobinLeaderStrategy{}.Leader(committee, 4),
		types.Hash{},
		0, 0, types.Hash{},
		nil,
	)

	dummies := CalculateDummyBlocks(log.NewNoOpLogger(), candidate, justifyBlock, RoundRobinLeaderStrategy{}, committee)
	require.Len(t, dummies, 3)
	require.Equal(t, candidate.ParentID, dummies[len(dummies)-1].ID())
}

func collectDummiesFromGenesis(
	t *testing.T,
	committee *types.Committee,
	justifyBlock *storage.Block,
	highQC *storage.QuorumCertificate,
	newHeight types.Height,
) []*storage.Block {
	t.Helper()
	var dummies []*storage.Block
	withDummyBlocks(
		log.NewNoOpLogger(),
		types.NetworkLocalNet,
		testEpoch,
		testShard,
		highQC,
		justifyBlock.StateMerkleRoot,
		newHeight,
		RoundRobinLeaderStrategy{},
		committee,
		justifyBlock.Timestamp,
		justifyBlock.BaseLayerHeight,
		justifyBlock.BaseLayerHash,
		func(dummy *storage.Block) bool {
			dummies = append(dummies, dummy)
			return true
		},
	)
	require.NotEmpty(t, dummies)
	return dummies
}
