// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/AaronFeickert/tari-dan/statetree"
	"github.com/AaronFeickert/tari-dan/types"
)

// QuorumDecision is the vote outcome carried by a vote message.
type QuorumDecision uint8

const (
	DecisionAccept QuorumDecision = iota
	DecisionReject
)

// QuorumSignature is one committee member's signature over a block.
type QuorumSignature struct {
	Signer    ids.NodeID `cbor:"1,keyasint"`
	Signature []byte     `cbor:"2,keyasint"`
}

// QuorumCertificate aggregates signatures from at least two thirds of a
// committee over a single block. A QC justifies exactly one block.
type QuorumCertificate struct {
	BlockID     ids.ID         `cbor:"1,keyasint"`
	BlockHeight types.Height   `cbor:"2,keyasint"`
	Epoch       types.Epoch    `cbor:"3,keyasint"`
	Shard       types.Shard    `cbor:"4,keyasint"`
	Decision    QuorumDecision `cbor:"5,keyasint"`

	Signatures []QuorumSignature `cbor:"6,keyasint"`
}

// GenesisQC returns the sentinel certificate justifying the genesis block.
func GenesisQC(epoch types.Epoch, shard types.Shard) *QuorumCertificate {
	return &QuorumCertificate{Epoch: epoch, Shard: shard}
}

// IsGenesis reports whether the certificate is the genesis sentinel. Only
// the height-zero anchor is justified without signatures.
func (qc *QuorumCertificate) IsGenesis() bool {
	return qc.BlockHeight == 0
}

// AsLeafBlock views the justified block as a chain tip.
func (qc *QuorumCertificate) AsLeafBlock() LeafBlock {
	return LeafBlock{BlockID: qc.BlockID, Height: qc.BlockHeight, Epoch: qc.Epoch}
}

func (qc *QuorumCertificate) String() string {
	return fmt.Sprintf("qc(%s, %s, %s)", qc.BlockID, qc.BlockHeight, qc.Epoch)
}

// Block is a node in the shard chain. Once persisted a block is immutable
// and shared by reference.
type Block struct {
	Network  types.Network `cbor:"1,keyasint"`
	ParentID ids.ID        `cbor:"2,keyasint"`
	Height   types.Height  `cbor:"3,keyasint"`
	Epoch    types.Epoch   `cbor:"4,keyasint"`
	Shard    types.Shard   `cbor:"5,keyasint"`

	Justify  *QuorumCertificate `cbor:"6,keyasint"`
	Proposer ids.NodeID         `cbor:"7,keyasint"`

	StateMerkleRoot types.Hash `cbor:"8,keyasint"`
	Timestamp       uint64     `cbor:"9,keyasint"`
	BaseLayerHeight uint64     `cbor:"10,keyasint"`
	BaseLayerHash   types.Hash `cbor:"11,keyasint"`

	// Commands are opaque substate operations, ordered. Dummy blocks carry
	// none.
	Commands [][]byte `cbor:"12,keyasint"`
	IsDummy  bool     `cbor:"13,keyasint"`

	id ids.ID
}

// NewBlock builds a proposal block. The id is derived from the header on
// first use.
func NewBlock(
	network types.Network,
	parentID ids.ID,
	height types.Height,
	epoch types.Epoch,
	shard types.Shard,
	justify *QuorumCertificate,
	proposer ids.NodeID,
	stateMerkleRoot types.Hash,
	timestamp uint64,
	baseLayerHeight uint64,
	baseLayerHash types.Hash,
	commands [][]byte,
) *Block {
	return &Block{
		Network:         network,
		ParentID:        parentID,
		Height:          height,
		Epoch:           epoch,
		Shard:           shard,
		Justify:         justify,
		Proposer:        proposer,
		StateMerkleRoot: stateMerkleRoot,
		Timestamp:       timestamp,
		BaseLayerHeight: baseLayerHeight,
		BaseLayerHash:   baseLayerHash,
		Commands:        commands,
	}
}

// NewDummyBlock synthesizes a placeholder block for a leader-failed height.
// It carries no commands and inherits the justify certificate, Merkle root
// and base-layer pointers of its ancestor.
func NewDummyBlock(
	network types.Network,
	parentID ids.ID,
	proposer ids.NodeID,
	height types.Height,
	justify *QuorumCertificate,
	epoch types.Epoch,
	shard types.Shard,
	parentMerkleRoot types.Hash,
	parentTimestamp uint64,
	parentBaseLayerHeight uint64,
	parentBaseLayerHash types.Hash,
) *Block {
	return &Block{
		Network:         network,
		ParentID:        parentID,
		Height:          height,
		Epoch:           epoch,
		Shard:           shard,
		Justify:         justify,
		Proposer:        proposer,
		StateMerkleRoot: parentMerkleRoot,
		Timestamp:       parentTimestamp,
		BaseLayerHeight: parentBaseLayerHeight,
		BaseLayerHash:   parentBaseLayerHash,
		IsDummy:         true,
	}
}

// NewGenesisBlock returns the height-zero block anchoring a shard chain.
func NewGenesisBlock(network types.Network, epoch types.Epoch, shard types.Shard) *Block {
	return &Block{
		Network: network,
		Epoch:   epoch,
		Shard:   shard,
		Justify: GenesisQC(epoch, shard),
	}
}

// ID returns the block id, the hash of the header.
func (b *Block) ID() ids.ID {
	if b.id == ids.Empty {
		b.id = b.computeID()
	}
	return b.id
}

func (b *Block) computeID() ids.ID {
	hasher := sha256.New()
	var scratch [8]byte

	hasher.Write([]byte{byte(b.Network)})
	binary.BigEndian.PutUint64(scratch[:], uint64(b.Epoch))
	hasher.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(b.Shard))
	hasher.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(b.Height))
	hasher.Write(scratch[:])
	hasher.Write(b.ParentID[:])
	if b.Justify != nil {
		hasher.Write(b.Justify.BlockID[:])
		binary.BigEndian.PutUint64(scratch[:], uint64(b.Justify.BlockHeight))
		hasher.Write(scratch[:])
	}
	hasher.Write(b.Proposer[:])
	hasher.Write(b.StateMerkleRoot[:])
	binary.BigEndian.PutUint64(scratch[:], b.Timestamp)
	hasher.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], b.BaseLayerHeight)
	hasher.Write(scratch[:])
	hasher.Write(b.BaseLayerHash[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(len(b.Commands)))
	hasher.Write(scratch[:])
	for _, cmd := range b.Commands {
		sum := sha256.Sum256(cmd)
		hasher.Write(sum[:])
	}
	if b.IsDummy {
		hasher.Write([]byte{1})
	} else {
		hasher.Write([]byte{0})
	}
	return ids.ID(sha256.Sum256(hasher.Sum(nil)))
}

// IsGenesis reports whether the block is the height-zero anchor.
func (b *Block) IsGenesis() bool {
	return b.Height == 0 && b.ParentID == ids.Empty
}

// AsLeafBlock views the block as a chain tip.
func (b *Block) AsLeafBlock() LeafBlock {
	return LeafBlock{BlockID: b.ID(), Height: b.Height, Epoch: b.Epoch}
}

func (b *Block) String() string {
	kind := "block"
	if b.IsDummy {
		kind = "dummy"
	}
	return fmt.Sprintf("%s(%s, %s, %s)", kind, b.ID(), b.Height, b.Epoch)
}

// LeafBlock is the deepest block this node considers the current tip of a
// shard chain. Singleton per (epoch, shard).
type LeafBlock struct {
	BlockID ids.ID       `cbor:"1,keyasint"`
	Height  types.Height `cbor:"2,keyasint"`
	Epoch   types.Epoch  `cbor:"3,keyasint"`
}

func (l LeafBlock) String() string {
	return fmt.Sprintf("leaf(%s, %s)", l.BlockID, l.Height)
}

// LastProposed records the most recent block authored by this node.
// Singleton per (epoch, shard).
type LastProposed struct {
	BlockID ids.ID       `cbor:"1,keyasint"`
	Height  types.Height `cbor:"2,keyasint"`
	Epoch   types.Epoch  `cbor:"3,keyasint"`
}

// AsLeafBlock views the proposal as a chain tip.
func (l LastProposed) AsLeafBlock() LeafBlock {
	return LeafBlock{BlockID: l.BlockID, Height: l.Height, Epoch: l.Epoch}
}

// Vote is a vote message emitted for a block. The most recent emitted vote
// is retained as LastSentVote so catch-up sync can replay it.
type Vote struct {
	Epoch       types.Epoch    `cbor:"1,keyasint"`
	Shard       types.Shard    `cbor:"2,keyasint"`
	BlockID     ids.ID         `cbor:"3,keyasint"`
	BlockHeight types.Height   `cbor:"4,keyasint"`
	Decision    QuorumDecision `cbor:"5,keyasint"`
	Signer      ids.NodeID     `cbor:"6,keyasint"`
	Signature   []byte         `cbor:"7,keyasint"`
}

// ForeignProposal is a cross-shard proposal attachment carried alongside the
// local block that introduced it.
type ForeignProposal struct {
	Shard   types.Shard        `cbor:"1,keyasint"`
	BlockID ids.ID             `cbor:"2,keyasint"`
	Justify *QuorumCertificate `cbor:"3,keyasint"`
}

// PendingStateTreeDiff is a not-yet-committed state-tree delta staged by
// block order. Rows are keyed by (block id, version).
type PendingStateTreeDiff struct {
	BlockID ids.ID                      `cbor:"1,keyasint"`
	Version statetree.Version           `cbor:"2,keyasint"`
	Diff    statetree.StateHashTreeDiff `cbor:"3,keyasint"`
}
