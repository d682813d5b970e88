// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"testing"

	"github.com/luxfi/crypto/bls/signer/localsigner"
	"github.com/luxfi/ids"
	"github.com/luxfi/validators"
	"github.com/stretchr/testify/require"

	"github.com/AaronFeickert/tari-dan/types"
)

func newTestCommittee(t *testing.T, size int) *types.Committee {
	t.Helper()
	members := make([]*validators.GetValidatorOutput, size)
	for i := range members {
		signer, err := localsigner.New()
		require.NoError(t, err)
		members[i] = &validators.GetValidatorOutput{
			NodeID:    ids.GenerateTestNodeID(),
			PublicKey: signer.PublicKey(),
			Weight:    1,
		}
	}
	return types.NewCommittee(members)
}

func TestRoundRobinLeaderIsDeterministicMember(t *testing.T) {
	committee := newTestCommittee(t, 4)
	strategy := RoundRobinLeaderStrategy{}

	for height := types.Height(0); height < 100; height++ {
		leader := strategy.Leader(committee, height)
		require.True(t, committee.Contains(leader))
		require.Equal(t, leader, strategy.Leader(committee, height))
		require.True(t, strategy.IsLeader(leader, committee, height))
	}
}

func TestRoundRobinLeaderRotatesUniformly(t *testing.T) {
	committee := newTestCommittee(t, 4)
	strategy := RoundRobinLeaderStrategy{}

	counts := make(map[ids.NodeID]int)
	for height := types.Height(0); height < 100; height++ {
		counts[strategy.Leader(committee, height)]++
	}
	require.Len(t, counts, 4)
	for _, count := range counts {
		require.Equal(t, 25, count)
	}

	// Consecutive heights rotate through the sorted committee.
	members := committee.Members()
	for height := types.Height(0); height < 8; height++ {
		require.Equal(t, members[int(height)%4].NodeID, strategy.Leader(committee, height))
	}
}
