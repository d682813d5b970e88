// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AaronFeickert/tari-dan/statetree"
	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

func TestExecuteDecodesCommands(t *testing.T) {
	changes := []statetree.SubstateTreeChange{
		statetree.UpChange("component_a", types.Hash{0x01}),
		statetree.DownChange("component_b"),
	}
	commands := make([][]byte, len(changes))
	for i, change := range changes {
		encoded, err := EncodeCommand(change)
		require.NoError(t, err)
		commands[i] = encoded
	}

	block := &storage.Block{Commands: commands}
	decoded, err := New().Execute(block)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.Equal(t, changes[0].ID, decoded[0].ID)
	require.True(t, decoded[0].IsUp())
	require.Equal(t, types.Hash{0x01}, *decoded[0].ValueHash)
	require.False(t, decoded[1].IsUp())
}

func TestExecuteEmptyBlock(t *testing.T) {
	decoded, err := New().Execute(&storage.Block{})
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestExecuteMalformedCommand(t *testing.T) {
	block := &storage.Block{Commands: [][]byte{{0xff, 0x00}}}
	_, err := New().Execute(block)
	require.Error(t, err)
}
