// Copyright (C) 2019-2026, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"bytes"
	"sort"

	"github.com/luxfi/ids"
	"github.com/luxfi/validators"
)

// Committee is the validator set owning one shard for one epoch. Members are
// kept stably sorted by node id so that leader rotation is identical on
// every node.
type Committee struct {
	members []*validators.GetValidatorOutput
}

// NewCommittee sorts the members into canonical order.
func NewCommittee(members []*validators.GetValidatorOutput) *Committee {
	sorted := make([]*validators.GetValidatorOutput, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].NodeID[:], sorted[j].NodeID[:]) < 0
	})
	return &Committee{members: sorted}
}

// Members returns the sorted member list. Callers must not mutate it.
func (c *Committee) Members() []*validators.GetValidatorOutput {
	return c.members
}

// Len returns the committee size.
func (c *Committee) Len() int {
	return len(c.members)
}

// Contains reports whether the node is a committee member.
func (c *Committee) Contains(nodeID ids.NodeID) bool {
	for _, m := range c.members {
		if m.NodeID == nodeID {
			return true
		}
	}
	return false
}

// Member returns the member with the given node id, or nil.
func (c *Committee) Member(nodeID ids.NodeID) *validators.GetValidatorOutput {
	for _, m := range c.members {
		if m.NodeID == nodeID {
			return m
		}
	}
	return nil
}

// QuorumThreshold returns the smallest signature count that constitutes a
// quorum: strictly more than two thirds of the committee.
func (c *Committee) QuorumThreshold() int {
	return 2*len(c.members)/3 + 1
}
