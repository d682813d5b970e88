// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statetree

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/AaronFeickert/tari-dan/types"
)

// Tree computes new versions of the spread-prefix state tree. Leaves are
// keyed by substate id hashes spread over nibble digits; a subtree holding a
// single substate is stored as a leaf at the divergence depth, so lookups
// stay balanced without fixed-depth padding.
//
// All writes go through the supplied store, which is normally a
// StagedTreeStore so mutations stay an overlay until the block commits.
type Tree struct {
	store TreeStoreWriter
}

// New returns a tree over the given node store.
func New(store TreeStoreWriter) *Tree {
	return &Tree{store: store}
}

type treeOp struct {
	keyHash   types.Hash
	nibbles   NibblePath
	valueHash types.Hash
	up        bool
}

// PutSubstateChanges computes the tree mutation reflecting changes at
// nextVersion and returns the new root hash. current is nil for the first
// version (callers pass it only when strictly positive). The resulting node
// set is accumulated in the store; callers persist it via
// StagedTreeStore.IntoDiff.
//
// The result is independent of the order of changes: ops are keyed and
// sorted by substate id hash before the tree is touched. If the same id
// appears more than once the last change wins.
func (t *Tree) PutSubstateChanges(current *Version, nextVersion Version, changes []SubstateTreeChange) (types.Hash, error) {
	if current != nil && nextVersion <= *current {
		return types.Hash{}, fmt.Errorf("%w: current %d, next %d", ErrVersionMismatch, *current, nextVersion)
	}

	byKey := make(map[types.Hash]treeOp, len(changes))
	for _, change := range changes {
		op := treeOp{keyHash: change.ID.ToHash(), up: change.IsUp()}
		op.nibbles = nibblesOf(op.keyHash)
		if change.ValueHash != nil {
			op.valueHash = *change.ValueHash
		}
		byKey[op.keyHash] = op
	}
	ops := make([]treeOp, 0, len(byKey))
	for _, op := range byKey {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return bytes.Compare(ops[i].keyHash[:], ops[j].keyHash[:]) < 0
	})

	var oldRoot *refSubtree
	if current != nil {
		key := NodeKey{Version: *current}
		if _, err := t.store.GetNode(key); err == nil {
			oldRoot = &refSubtree{key: key}
		}
		// A missing root node at the current version is an empty tree.
	}

	if len(ops) == 0 {
		return t.currentRoot(oldRoot), nil
	}

	result, err := t.update(oldRoot, nil, ops)
	if err != nil {
		return types.Hash{}, err
	}
	if result == nil {
		// Every leaf deleted: the empty root.
		return types.Hash{}, nil
	}
	ref, err := t.persist(result, nil, nextVersion)
	if err != nil {
		return types.Hash{}, err
	}
	return ref.Hash, nil
}

// currentRoot returns the staged root hash without mutating the tree.
func (t *Tree) currentRoot(oldRoot *refSubtree) types.Hash {
	if oldRoot == nil {
		return types.Hash{}
	}
	node, err := t.store.GetNode(oldRoot.key)
	if err != nil {
		// No root node at this version means the tree is empty.
		return types.Hash{}
	}
	return node.Hash()
}

// refSubtree references an existing, untouched subtree by its node key.
type refSubtree struct {
	key    NodeKey
	hash   types.Hash
	isLeaf bool
}

// subtree is a new or rewritten subtree not yet assigned node keys. Exactly
// one field is set: ref for untouched, leaf for a single-substate subtree,
// inner for a rebuilt internal node.
type subtree struct {
	ref   *refSubtree
	leaf  *LeafNode
	inner map[byte]*subtree
}

// update rebuilds the subtree rooted at old (nil for an empty slot) applying
// ops, whose key hashes all share the prefix path. Returns nil when the
// subtree ends up empty.
func (t *Tree) update(old *refSubtree, path NibblePath, ops []treeOp) (*subtree, error) {
	if len(ops) == 0 {
		if old == nil {
			return nil, nil
		}
		return &subtree{ref: old}, nil
	}

	if old == nil {
		return buildFromOps(ops, len(path)), nil
	}

	node, err := t.store.GetNode(old.key)
	if err != nil {
		return nil, err
	}
	t.store.RecordStaleNode(old.key)

	if node.IsLeaf() {
		leaves := []LeafNode{*node.Leaf}
		return mergeLeaf(leaves, ops, len(path)), nil
	}

	depth := len(path)
	children := make(map[byte]*subtree, numNibbles)
	opsByNibble := make(map[byte][]treeOp, numNibbles)
	for _, op := range ops {
		n := op.nibbles[depth]
		opsByNibble[n] = append(opsByNibble[n], op)
	}
	for i := byte(0); i < numNibbles; i++ {
		var childRef *refSubtree
		if c := node.Internal.Children[i]; c != nil {
			childRef = &refSubtree{
				key:    NodeKey{Version: c.Version, Path: path.Child(i)},
				hash:   c.Hash,
				isLeaf: c.IsLeaf,
			}
		}
		sub, err := t.update(childRef, path.Child(i), opsByNibble[i])
		if err != nil {
			return nil, err
		}
		if sub != nil {
			children[i] = sub
		}
	}

	return t.collapse(children)
}

// collapse applies the canonical-form rule: a subtree with a single leaf is
// stored as that leaf one level up. Internal chains over shared prefixes are
// kept as-is.
func (t *Tree) collapse(children map[byte]*subtree) (*subtree, error) {
	if len(children) == 0 {
		return nil, nil
	}
	if len(children) == 1 {
		for _, only := range children {
			switch {
			case only.leaf != nil:
				return &subtree{leaf: only.leaf}, nil
			case only.ref != nil && only.ref.isLeaf:
				node, err := t.store.GetNode(only.ref.key)
				if err != nil {
					return nil, err
				}
				t.store.RecordStaleNode(only.ref.key)
				return &subtree{leaf: node.Leaf}, nil
			}
		}
	}
	return &subtree{inner: children}, nil
}

// mergeLeaf folds ops into the set seeded by the existing leaves and rebuilds
// the subtree from the surviving set.
func mergeLeaf(existing []LeafNode, ops []treeOp, depth int) *subtree {
	set := make(map[types.Hash]types.Hash, len(existing)+len(ops))
	for _, leaf := range existing {
		set[leaf.KeyHash] = leaf.ValueHash
	}
	for _, op := range ops {
		if op.up {
			set[op.keyHash] = op.valueHash
		} else {
			delete(set, op.keyHash)
		}
	}
	return buildFromLeafSet(set, depth)
}

// buildFromOps builds a fresh subtree from ops alone. Downs against an empty
// slot are no-ops.
func buildFromOps(ops []treeOp, depth int) *subtree {
	set := make(map[types.Hash]types.Hash, len(ops))
	for _, op := range ops {
		if op.up {
			set[op.keyHash] = op.valueHash
		}
	}
	return buildFromLeafSet(set, depth)
}

func buildFromLeafSet(set map[types.Hash]types.Hash, depth int) *subtree {
	if len(set) == 0 {
		return nil
	}
	keys := make([]types.Hash, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	leaves := make([]LeafNode, len(keys))
	for i, k := range keys {
		leaves[i] = LeafNode{KeyHash: k, ValueHash: set[k]}
	}
	return buildFromLeaves(leaves, depth)
}

// buildFromLeaves arranges sorted leaves into canonical form below depth.
func buildFromLeaves(leaves []LeafNode, depth int) *subtree {
	if len(leaves) == 0 {
		return nil
	}
	if len(leaves) == 1 {
		leaf := leaves[0]
		return &subtree{leaf: &leaf}
	}
	children := make(map[byte]*subtree, numNibbles)
	start := 0
	for start < len(leaves) {
		nibble := nibbleAt(leaves[start].KeyHash, depth)
		end := start
		for end < len(leaves) && nibbleAt(leaves[end].KeyHash, depth) == nibble {
			end++
		}
		children[nibble] = buildFromLeaves(leaves[start:end], depth+1)
		start = end
	}
	return &subtree{inner: children}
}

func nibbleAt(h types.Hash, depth int) byte {
	b := h[depth/2]
	if depth%2 == 0 {
		return b >> 4
	}
	return b & 0x0f
}

// persist assigns node keys at version to every new node in the subtree,
// writes them to the store and returns the child reference for the parent.
func (t *Tree) persist(sub *subtree, path NibblePath, version Version) (*ChildRef, error) {
	switch {
	case sub.ref != nil:
		return &ChildRef{Version: sub.ref.key.Version, Hash: sub.ref.hash, IsLeaf: sub.ref.isLeaf}, nil
	case sub.leaf != nil:
		node := Node{Leaf: sub.leaf}
		if err := t.store.InsertNode(NodeKey{Version: version, Path: path}, node); err != nil {
			return nil, err
		}
		return &ChildRef{Version: version, Hash: node.Hash(), IsLeaf: true}, nil
	default:
		internal := &InternalNode{}
		for nibble := byte(0); nibble < numNibbles; nibble++ {
			child, ok := sub.inner[nibble]
			if !ok {
				continue
			}
			ref, err := t.persist(child, path.Child(nibble), version)
			if err != nil {
				return nil, err
			}
			internal.Children[nibble] = ref
		}
		node := Node{Internal: internal}
		if err := t.store.InsertNode(NodeKey{Version: version, Path: path}, node); err != nil {
			return nil, err
		}
		return &ChildRef{Version: version, Hash: node.Hash(), IsLeaf: false}, nil
	}
}
