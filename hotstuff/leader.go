// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"github.com/luxfi/ids"

	"github.com/AaronFeickert/tari-dan/types"
)

// LeaderStrategy selects the proposer for a height. Implementations must be
// deterministic, must return a committee member, and must produce a uniform
// rotation.
type LeaderStrategy interface {
	Leader(committee *types.Committee, height types.Height) ids.NodeID
	IsLeader(nodeID ids.NodeID, committee *types.Committee, height types.Height) bool
}

// RoundRobinLeaderStrategy rotates leadership through the stably-sorted
// committee, one height per member.
type RoundRobinLeaderStrategy struct{}

var _ LeaderStrategy = RoundRobinLeaderStrategy{}

func (RoundRobinLeaderStrategy) Leader(committee *types.Committee, height types.Height) ids.NodeID {
	members := committee.Members()
	return members[uint64(height)%uint64(len(members))].NodeID
}

func (r RoundRobinLeaderStrategy) IsLeader(nodeID ids.NodeID, committee *types.Committee, height types.Height) bool {
	return r.Leader(committee, height) == nodeID
}
