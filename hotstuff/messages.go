// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"context"

	"github.com/luxfi/ids"

	"github.com/AaronFeickert/tari-dan/statetree"
	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

// Message is a consensus message exchanged between committee members.
type Message interface {
	isMessage()
}

// ProposalMessage carries a block and its cross-shard attachments. Catch-up
// sync responses reuse this message so syncing peers apply blocks through
// the normal proposal path.
type ProposalMessage struct {
	Block            *storage.Block            `cbor:"1,keyasint"`
	ForeignProposals []storage.ForeignProposal `cbor:"2,keyasint"`
}

func (ProposalMessage) isMessage() {}

// VoteMessage carries one committee member's vote on a block.
type VoteMessage struct {
	Vote storage.Vote `cbor:"1,keyasint"`
}

func (VoteMessage) isMessage() {}

// NewViewMessage signals a view change after leader failure, carrying the
// sender's high certificate so the next leader can extend it.
type NewViewMessage struct {
	Epoch     types.Epoch                `cbor:"1,keyasint"`
	Shard     types.Shard                `cbor:"2,keyasint"`
	NewHeight types.Height               `cbor:"3,keyasint"`
	HighQC    *storage.QuorumCertificate `cbor:"4,keyasint"`
}

func (NewViewMessage) isMessage() {}

// SyncRequestMessage asks a peer to stream blocks above the sender's high
// certificate.
type SyncRequestMessage struct {
	HighQC *storage.QuorumCertificate `cbor:"1,keyasint"`
}

func (SyncRequestMessage) isMessage() {}

// InboundMessage pairs a message with its sender.
type InboundMessage struct {
	From    ids.NodeID
	Message Message
}

// OutboundMessaging delivers consensus messages. Send returns an error on
// delivery failure; there is no retry at this layer.
type OutboundMessaging interface {
	Send(ctx context.Context, to ids.NodeID, msg Message) error
	Multicast(ctx context.Context, to []ids.NodeID, msg Message) error
}

// EpochManager is the external epoch-management collaborator. It surfaces
// the current epoch and the committee owning a shard.
type EpochManager interface {
	CurrentEpoch() types.Epoch
	LocalCommittee(epoch types.Epoch, shard types.Shard) (*types.Committee, error)
}

// BlockExecutor turns a block's commands into the substate changes they were
// executed into. Substate diffs arrive already computed; consensus only
// folds them into the state tree.
type BlockExecutor interface {
	Execute(block *storage.Block) ([]statetree.SubstateTreeChange, error)
}
