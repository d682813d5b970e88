// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"context"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

// buildChainTo applies valid proposals up to the given height and returns
// them indexed by height (index 0 is genesis).
func buildChainTo(t *testing.T, env *testEnv, to types.Height) []*storage.Block {
	t.Helper()
	chain := []*storage.Block{env.genesis}
	justify := env.highQC()
	for h := types.Height(1); h <= to; h++ {
		block := env.buildProposal(chain[len(chain)-1], h, justify, nil)
		env.applyProposal(block)
		require.Equal(t, h, env.leaf().Height)
		chain = append(chain, block)
		justify = env.makeQC(block.ID(), h)
	}
	return chain
}

func TestServeSyncRequestStreamsBlocksAndReplaysVote(t *testing.T) {
	env := newTestEnv(t, 4)
	chain := buildChainTo(t, env, 8)
	peer := ids.GenerateTestNodeID()

	before := len(env.outbound.messages())
	env.hs.serveSyncRequest(context.Background(), peer, testEpoch, env.makeQC(chain[4].ID(), 4))

	msgs := env.outbound.messages()[before:]
	// Blocks 5..8 as proposals, then the last sent vote.
	require.Len(t, msgs, 5)
	for i, m := range msgs[:4] {
		require.Equal(t, peer, m.to)
		proposal, ok := m.msg.(ProposalMessage)
		require.True(t, ok)
		require.Equal(t, types.Height(5+i), proposal.Block.Height)
		require.False(t, proposal.Block.IsGenesis())
	}
	vote, ok := msgs[4].msg.(VoteMessage)
	require.True(t, ok)
	require.Equal(t, chain[8].ID(), vote.Vote.BlockID)
}

func TestServeSyncRequestRejectsPeerAhead(t *testing.T) {
	env := newTestEnv(t, 4)
	chain := buildChainTo(t, env, 3)
	peer := ids.GenerateTestNodeID()

	before := len(env.outbound.messages())
	ahead := env.makeQC(chain[3].ID(), 20)
	env.hs.serveSyncRequest(context.Background(), peer, testEpoch, ahead)
	require.Len(t, env.outbound.messages()[before:], 0)
}

func TestServeSyncRequestEmptyAtHeightZero(t *testing.T) {
	env := newTestEnv(t, 4)
	peer := ids.GenerateTestNodeID()

	before := len(env.outbound.messages())
	env.hs.serveSyncRequest(context.Background(), peer, testEpoch, env.highQC())
	require.Len(t, env.outbound.messages()[before:], 0)
}

func TestOnSyncRequestRejectsWrongEpoch(t *testing.T) {
	env := newTestEnv(t, 4)
	buildChainTo(t, env, 2)
	peer := ids.GenerateTestNodeID()

	qc := env.highQC()
	qc.Epoch = testEpoch + 1
	before := len(env.outbound.messages())
	env.hs.onSyncRequest(context.Background(), peer, SyncRequestMessage{HighQC: qc})
	env.hs.sync.Close()
	require.Len(t, env.outbound.messages()[before:], 0)
}

func TestSyncRequestForeignProposalsAttached(t *testing.T) {
	env := newTestEnv(t, 4)
	chain := buildChainTo(t, env, 2)

	fp := storage.ForeignProposal{Shard: 7, BlockID: ids.GenerateTestID()}
	require.NoError(t, env.store.WithWriteTx(func(tx *storage.WriteTx) error {
		return tx.ForeignProposalInsert(chain[2].ID(), 0, fp)
	}))

	peer := ids.GenerateTestNodeID()
	before := len(env.outbound.messages())
	env.hs.serveSyncRequest(context.Background(), peer, testEpoch, env.makeQC(chain[1].ID(), 1))

	msgs := env.outbound.messages()[before:]
	require.NotEmpty(t, msgs)
	proposal, ok := msgs[0].msg.(ProposalMessage)
	require.True(t, ok)
	require.Equal(t, chain[2].ID(), proposal.Block.ID())
	require.Len(t, proposal.ForeignProposals, 1)
	require.Equal(t, fp.BlockID, proposal.ForeignProposals[0].BlockID)
}
