// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package execution adapts block commands into substate tree changes.
// Execution proper happens outside consensus; commands arrive as encoded,
// already-computed substate operations.
package execution

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/AaronFeickert/tari-dan/statetree"
	"github.com/AaronFeickert/tari-dan/storage"
)

var encMode, _ = cbor.CoreDetEncOptions().EncMode()

// Executor decodes each block command into the substate change it was
// executed into. Dummy blocks carry no commands and produce no changes.
type Executor struct{}

// New returns the command decoder.
func New() Executor {
	return Executor{}
}

// Execute returns the ordered substate changes of the block.
func (Executor) Execute(block *storage.Block) ([]statetree.SubstateTreeChange, error) {
	if len(block.Commands) == 0 {
		return nil, nil
	}
	changes := make([]statetree.SubstateTreeChange, 0, len(block.Commands))
	for i, command := range block.Commands {
		var change statetree.SubstateTreeChange
		if err := cbor.Unmarshal(command, &change); err != nil {
			return nil, fmt.Errorf("decoding command %d: %w", i, err)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// EncodeCommand encodes one substate change as a block command.
func EncodeCommand(change statetree.SubstateTreeChange) ([]byte, error) {
	return encMode.Marshal(change)
}
