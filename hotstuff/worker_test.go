// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AaronFeickert/tari-dan/statetree"
	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

func TestOnProposalVotesAndAdvancesLeaf(t *testing.T) {
	env := newTestEnv(t, 4)

	changes := []statetree.SubstateTreeChange{
		statetree.UpChange("component_s1", types.Hash{0xaa}),
	}
	block := env.buildProposal(env.genesis, 1, env.highQC(), changes)
	env.applyProposal(block)

	leaf := env.leaf()
	require.Equal(t, block.ID(), leaf.BlockID)
	require.Equal(t, types.Height(1), leaf.Height)

	require.NoError(t, env.store.WithReadTx(func(tx *storage.ReadTx) error {
		// The vote was persisted as LastSentVote.
		vote, err := tx.LastSentVoteGet(testEpoch, testShard)
		require.NoError(t, err)
		require.NotNil(t, vote)
		require.Equal(t, block.ID(), vote.BlockID)
		require.Equal(t, env.nodes[0].nodeID, vote.Signer)

		// The state diff is staged, not committed.
		pending, err := tx.PendingDiffsGetAll(testEpoch, testShard)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, block.ID(), pending[0].BlockID)
		return nil
	}))

	// The vote went to the leader of the next height (or was self-handled).
	nextLeader := env.leaderAt(2)
	if nextLeader.nodeID != env.nodes[0].nodeID {
		msgs := env.outbound.messages()
		require.NotEmpty(t, msgs)
		last := msgs[len(msgs)-1]
		require.Equal(t, nextLeader.nodeID, last.to)
		vote, ok := last.msg.(VoteMessage)
		require.True(t, ok)
		require.Equal(t, block.ID(), vote.Vote.BlockID)
	}
}

func TestOnProposalRejectsStateRootMismatch(t *testing.T) {
	env := newTestEnv(t, 4)

	bad := env.buildProposal(env.genesis, 1, env.highQC(), []statetree.SubstateTreeChange{
		statetree.UpChange("component_s1", types.Hash{0xaa}),
	})
	bad.StateMerkleRoot = types.Hash{0xde, 0xad}

	env.applyProposal(bad)
	require.Equal(t, types.Height(0), env.leaf().Height)

	require.NoError(t, env.store.WithReadTx(func(tx *storage.ReadTx) error {
		vote, err := tx.LastSentVoteGet(testEpoch, testShard)
		require.NoError(t, err)
		require.Nil(t, vote)
		return nil
	}))
}

func TestOnProposalRejectsNonLeaderProposer(t *testing.T) {
	env := newTestEnv(t, 4)

	block := env.buildProposal(env.genesis, 1, env.highQC(), nil)
	// Swap the proposer for a member that is not the height-1 leader.
	for _, node := range env.nodes {
		if node.nodeID != block.Proposer {
			block.Proposer = node.nodeID
			break
		}
	}
	env.applyProposal(block)
	require.Equal(t, types.Height(0), env.leaf().Height)
}

func TestOnProposalRejectsWrongEpoch(t *testing.T) {
	env := newTestEnv(t, 4)

	block := env.buildProposal(env.genesis, 1, env.highQC(), nil)
	block.Epoch = testEpoch + 1
	env.applyProposal(block)
	require.Equal(t, types.Height(0), env.leaf().Height)
}

func TestOnProposalSynthesizesDummyGap(t *testing.T) {
	env := newTestEnv(t, 4)

	b1 := env.buildProposal(env.genesis, 1, env.highQC(), nil)
	env.applyProposal(b1)
	require.Equal(t, types.Height(1), env.leaf().Height)

	// Heights 2 and 3 leader-failed: the next proposal arrives at height 4
	// justified by the certificate on height 1.
	qc1 := env.makeQC(b1.ID(), 1)
	leaf := CalculateLastDummyBlock(
		env.hs.log,
		types.NetworkLocalNet,
		testEpoch,
		testShard,
		qc1,
		b1.StateMerkleRoot,
		3,
		RoundRobinLeaderStrategy{},
		env.committee,
		b1.Timestamp,
		b1.BaseLayerHeight,
		b1.BaseLayerHash,
	)
	require.NotNil(t, leaf)

	block4 := env.buildProposal(b1, 4, qc1, nil)
	block4.ParentID = leaf.BlockID

	env.applyProposal(block4)

	got := env.leaf()
	require.Equal(t, types.Height(4), got.Height)
	require.Equal(t, block4.ID(), got.BlockID)

	// The dummy chain was persisted.
	require.NoError(t, env.store.WithReadTx(func(tx *storage.ReadTx) error {
		dummy, err := tx.BlocksGet(leaf.BlockID)
		require.NoError(t, err)
		require.True(t, dummy.IsDummy)
		require.Equal(t, types.Height(3), dummy.Height)
		return nil
	}))
}

func TestThreeChainCommitRule(t *testing.T) {
	env := newTestEnv(t, 4)

	changes := []statetree.SubstateTreeChange{
		statetree.UpChange("component_s1", types.Hash{0xaa}),
	}
	b1 := env.buildProposal(env.genesis, 1, env.highQC(), changes)
	env.applyProposal(b1)

	b2 := env.buildProposal(b1, 2, env.makeQC(b1.ID(), 1), nil)
	env.applyProposal(b2)

	b3 := env.buildProposal(b2, 3, env.makeQC(b2.ID(), 2), nil)
	env.applyProposal(b3)

	// Nothing commits until the certificate on height 3 is observed.
	require.NoError(t, env.store.WithReadTx(func(tx *storage.ReadTx) error {
		committed, err := tx.CommittedHeightGet(testEpoch, testShard)
		require.NoError(t, err)
		require.Equal(t, types.Height(0), committed)
		return nil
	}))

	b4 := env.buildProposal(b3, 4, env.makeQC(b3.ID(), 3), nil)
	env.applyProposal(b4)

	require.NoError(t, env.store.WithReadTx(func(tx *storage.ReadTx) error {
		committed, err := tx.CommittedHeightGet(testEpoch, testShard)
		require.NoError(t, err)
		require.Equal(t, types.Height(1), committed)

		// b1's diff folded into the committed node set.
		version, err := tx.CommittedVersionGet(testEpoch, testShard)
		require.NoError(t, err)
		require.Equal(t, statetree.Version(1), version)

		pending, err := tx.PendingDiffsGetAll(testEpoch, testShard)
		require.NoError(t, err)
		for _, diff := range pending {
			require.Greater(t, diff.Version, statetree.Version(1))
		}
		return nil
	}))
}

func TestQuorumCertificateVerification(t *testing.T) {
	env := newTestEnv(t, 4)
	svc := NewSignatureService(env.nodes[0].nodeID, env.nodes[0].signer)

	blockID := env.genesis.ID()
	qc := env.makeQC(blockID, 5)
	require.NoError(t, svc.VerifyQuorumCertificate(env.committee, qc))

	// Below quorum.
	short := *qc
	short.Signatures = qc.Signatures[:2]
	err := svc.VerifyQuorumCertificate(env.committee, &short)
	require.ErrorIs(t, err, ErrInvalidQuorumCertificate)

	// Duplicate signers do not count twice.
	dup := *qc
	dup.Signatures = []storage.QuorumSignature{
		qc.Signatures[0], qc.Signatures[0], qc.Signatures[0],
	}
	err = svc.VerifyQuorumCertificate(env.committee, &dup)
	require.ErrorIs(t, err, ErrInvalidQuorumCertificate)

	// A signature over a different block does not verify.
	wrong := *qc
	other := env.makeQC(types.SubstateID("other").ToHash(), 5)
	wrong.Signatures = append([]storage.QuorumSignature{}, qc.Signatures[:3]...)
	wrong.Signatures[0] = other.Signatures[0]
	err = svc.VerifyQuorumCertificate(env.committee, &wrong)
	require.ErrorIs(t, err, ErrInvalidQuorumCertificate)
}
