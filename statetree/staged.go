// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statetree

import "fmt"

// StagedTreeStore overlays not-yet-committed tree diffs on top of a read-only
// node store. Pending diffs of uncommitted ancestor blocks are layered with
// ApplyOrderedDiffs; nodes written while computing the next version
// accumulate in the staged diff returned by IntoDiff.
//
// A StagedTreeStore is task-local. It is discarded wholesale when the
// surrounding transaction aborts.
type StagedTreeStore struct {
	reader TreeStoreReader

	// preceding holds nodes from applied pending diffs of ancestor blocks.
	preceding map[string]Node

	// staged accumulates the mutations for the version being computed.
	staged      StateHashTreeDiff
	stagedIndex map[string]int // NodeKey bytes -> index into staged.NewNodes
}

var _ TreeStoreWriter = (*StagedTreeStore)(nil)

// NewStagedTreeStore wraps a read-only node store.
func NewStagedTreeStore(reader TreeStoreReader) *StagedTreeStore {
	return &StagedTreeStore{
		reader:      reader,
		preceding:   make(map[string]Node),
		stagedIndex: make(map[string]int),
	}
}

// ApplyOrderedDiffs layers pending diffs in the given order. Order matters: a
// later diff may insert nodes referencing nodes of an earlier one, and may
// evict nodes an earlier diff inserted.
func (s *StagedTreeStore) ApplyOrderedDiffs(diffs []StateHashTreeDiff) {
	for _, diff := range diffs {
		for _, entry := range diff.NewNodes {
			s.preceding[string(entry.Key.Bytes())] = entry.Node
		}
		for _, stale := range diff.StaleNodes {
			// Evictions of nodes below the overlay are applied when the
			// owning block commits; here only overlay nodes are removed.
			delete(s.preceding, string(stale.Bytes()))
		}
	}
}

// GetNode resolves a node key against the staged writes, then the applied
// pending diffs, then the underlying reader.
func (s *StagedTreeStore) GetNode(key NodeKey) (Node, error) {
	k := string(key.Bytes())
	if idx, ok := s.stagedIndex[k]; ok {
		return s.staged.NewNodes[idx].Node, nil
	}
	if node, ok := s.preceding[k]; ok {
		return node, nil
	}
	node, err := s.reader.GetNode(key)
	if err != nil {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, key)
	}
	return node, nil
}

// InsertNode stages a node for the version being computed.
func (s *StagedTreeStore) InsertNode(key NodeKey, node Node) error {
	k := string(key.Bytes())
	if idx, ok := s.stagedIndex[k]; ok {
		s.staged.NewNodes[idx].Node = node
		return nil
	}
	s.stagedIndex[k] = len(s.staged.NewNodes)
	s.staged.NewNodes = append(s.staged.NewNodes, NodeEntry{Key: key, Node: node})
	return nil
}

// RecordStaleNode marks a previously reachable node as superseded by the
// version being computed.
func (s *StagedTreeStore) RecordStaleNode(key NodeKey) {
	s.staged.StaleNodes = append(s.staged.StaleNodes, key)
}

// IntoDiff returns the accumulated staged diff for persistence alongside the
// block that produced it. The store must not be used afterwards.
func (s *StagedTreeStore) IntoDiff() StateHashTreeDiff {
	diff := s.staged
	s.staged = StateHashTreeDiff{}
	s.stagedIndex = nil
	return diff
}
