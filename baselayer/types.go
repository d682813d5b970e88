// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package baselayer

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/AaronFeickert/tari-dan/types"
)

// ErrConnection is returned when the base node cannot be reached or a call
// fails at the transport level. Callers decide the retry policy.
var ErrConnection = errors.New("base node connection error")

// InvalidPeerMessageError is returned when the base node answers with data
// that does not parse into the expected shape.
type InvalidPeerMessageError struct {
	Details string
}

func (e *InvalidPeerMessageError) Error() string {
	return fmt.Sprintf("invalid peer message: %s", e.Details)
}

// Metadata is the base-layer tip.
type Metadata struct {
	BestHeight uint64
	BestHash   types.Hash
}

// ValidatorNode is one registered validator as seen by the base layer. The
// shard key reuses the 32-byte registration hash padded into a substate
// address with version 0.
type ValidatorNode struct {
	NodeID    ids.NodeID
	PublicKey []byte
	ShardKey  types.SubstateAddress
}

// ValidatorNodeChangeKind discriminates validator-set delta entries.
type ValidatorNodeChangeKind uint8

const (
	ValidatorNodeAdded ValidatorNodeChangeKind = iota
	ValidatorNodeRemoved
)

// ValidatorNodeChange is one validator-set delta over a height range.
type ValidatorNodeChange struct {
	Kind   ValidatorNodeChangeKind
	Node   ValidatorNode
	Height uint64
}

// TemplateRegistration is a code-template registration observed on the base
// layer.
type TemplateRegistration struct {
	AuthorPublicKey []byte
	TemplateAddress types.Hash
	TemplateName    string
	BinaryHash      types.Hash
	Height          uint64
}

// SideChainUTXO is a sidechain checkpoint output observed on the base layer.
type SideChainUTXO struct {
	BlockHeight uint64
	BlockHash   types.Hash
	Outputs     [][]byte
}

// ConsensusConstants are the base-layer constants the validator derives its
// epochs from.
type ConsensusConstants struct {
	EpochLength  uint64
	VNMinDeposit uint64
}
