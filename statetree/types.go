// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statetree

import (
	"github.com/AaronFeickert/tari-dan/types"
)

// Version is the state-tree version a node set was written at. Consensus
// uses the height of the writing block, so versions increase with height
// but skip heights whose blocks wrote no nodes.
type Version = uint64

// SubstateTreeChange is a single mutation to the substate set: an Up inserts
// or replaces the leaf for a substate id, a Down removes it.
type SubstateTreeChange struct {
	ID        types.SubstateID `cbor:"1,keyasint"`
	ValueHash *types.Hash      `cbor:"2,keyasint,omitempty"`
}

// UpChange inserts or replaces the substate leaf with the given value hash.
func UpChange(id types.SubstateID, valueHash types.Hash) SubstateTreeChange {
	return SubstateTreeChange{ID: id, ValueHash: &valueHash}
}

// DownChange removes the substate leaf.
func DownChange(id types.SubstateID) SubstateTreeChange {
	return SubstateTreeChange{ID: id}
}

// IsUp reports whether the change inserts or replaces a leaf.
func (c SubstateTreeChange) IsUp() bool {
	return c.ValueHash != nil
}

// TreeStoreReader provides read access to persisted tree nodes.
type TreeStoreReader interface {
	// GetNode returns the node stored at the given key, or an error wrapping
	// ErrNodeNotFound if no such node exists.
	GetNode(key NodeKey) (Node, error)
}

// TreeStoreWriter accepts new nodes and stale-node records produced while
// computing a new tree version.
type TreeStoreWriter interface {
	TreeStoreReader

	InsertNode(key NodeKey, node Node) error
	RecordStaleNode(key NodeKey)
}

// NodeEntry pairs a node with the key it is stored under.
type NodeEntry struct {
	Key  NodeKey `cbor:"1,keyasint"`
	Node Node    `cbor:"2,keyasint"`
}

// StateHashTreeDiff is the set of tree mutations produced for one new
// version: nodes to insert and nodes made stale by the update.
type StateHashTreeDiff struct {
	NewNodes   []NodeEntry `cbor:"1,keyasint"`
	StaleNodes []NodeKey   `cbor:"2,keyasint"`
}

// IsEmpty reports whether the diff carries no mutations.
func (d StateHashTreeDiff) IsEmpty() bool {
	return len(d.NewNodes) == 0 && len(d.StaleNodes) == 0
}
