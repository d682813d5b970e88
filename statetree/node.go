// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statetree

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/AaronFeickert/tari-dan/types"
)

const numNibbles = 16

// NibblePath is the sequence of 4-bit digits addressing a node below the
// root. The path of the root is empty; a child of the root at nibble 3 has
// path [3], and so on. Leaves may sit at any depth.
type NibblePath []byte

// nibblesOf expands a 32-byte key hash into its 64 nibble digits.
func nibblesOf(h types.Hash) NibblePath {
	path := make(NibblePath, 0, 2*len(h))
	for _, b := range h {
		path = append(path, b>>4, b&0x0f)
	}
	return path
}

// Child extends the path by one nibble.
func (p NibblePath) Child(nibble byte) NibblePath {
	child := make(NibblePath, len(p), len(p)+1)
	copy(child, p)
	return append(child, nibble)
}

func (p NibblePath) String() string {
	buf := make([]byte, len(p))
	for i, n := range p {
		buf[i] = "0123456789abcdef"[n]
	}
	return string(buf)
}

// NodeKey uniquely addresses a tree node: the version the node was written at
// and its nibble path from the root.
type NodeKey struct {
	Version Version    `cbor:"1,keyasint"`
	Path    NibblePath `cbor:"2,keyasint"`
}

// Bytes returns the canonical encoding used to key node rows in the store:
// 8-byte big-endian version, then the path nibbles packed one per byte.
// Version-first keeps all nodes of one version contiguous for pruning.
func (k NodeKey) Bytes() []byte {
	buf := make([]byte, 8+len(k.Path))
	binary.BigEndian.PutUint64(buf, k.Version)
	copy(buf[8:], k.Path)
	return buf
}

func (k NodeKey) Equals(other NodeKey) bool {
	return k.Version == other.Version && bytes.Equal(k.Path, other.Path)
}

func (k NodeKey) String() string {
	return fmt.Sprintf("v%d:%s", k.Version, k.Path)
}

// LeafNode holds a substate leaf: the full key hash of the substate id and
// the hash of its value.
type LeafNode struct {
	KeyHash   types.Hash `cbor:"1,keyasint"`
	ValueHash types.Hash `cbor:"2,keyasint"`
}

// ChildRef points an internal node at one of its children, caching the child
// hash so parent hashes are computable without loading the child.
type ChildRef struct {
	Version Version    `cbor:"1,keyasint"`
	Hash    types.Hash `cbor:"2,keyasint"`
	IsLeaf  bool       `cbor:"3,keyasint"`
}

// InternalNode holds up to sixteen children, indexed by the next nibble of
// the key hash. A nil entry is an empty subtree.
type InternalNode struct {
	Children [numNibbles]*ChildRef `cbor:"1,keyasint"`
}

// Node is either a leaf or an internal node. Exactly one field is set.
type Node struct {
	Leaf     *LeafNode     `cbor:"1,keyasint,omitempty"`
	Internal *InternalNode `cbor:"2,keyasint,omitempty"`
}

func (n Node) IsLeaf() bool {
	return n.Leaf != nil
}

const (
	leafHashPrefix     = 0x00
	internalHashPrefix = 0x01
)

// Hash computes the Merkle hash of the node. Empty child slots hash as
// 32 zero bytes, matching the empty-tree root.
func (n Node) Hash() types.Hash {
	if n.Leaf != nil {
		hasher := sha256.New()
		hasher.Write([]byte{leafHashPrefix})
		hasher.Write(n.Leaf.KeyHash[:])
		hasher.Write(n.Leaf.ValueHash[:])
		return types.Hash(hasher.Sum(nil))
	}
	hasher := sha256.New()
	hasher.Write([]byte{internalHashPrefix})
	var empty types.Hash
	for _, child := range n.Internal.Children {
		if child == nil {
			hasher.Write(empty[:])
		} else {
			hasher.Write(child.Hash[:])
		}
	}
	return types.Hash(hasher.Sum(nil))
}

func (n Node) String() string {
	if n.Leaf != nil {
		return fmt.Sprintf("leaf(%s)", hex.EncodeToString(n.Leaf.KeyHash[:4]))
	}
	count := 0
	for _, c := range n.Internal.Children {
		if c != nil {
			count++
		}
	}
	return fmt.Sprintf("internal(%d children)", count)
}
