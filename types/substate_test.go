// Copyright (C) 2019-2026, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubstateAddressPadding(t *testing.T) {
	id := SubstateID("component_abc")
	hash := id.ToHash()

	// A validator shard key is the 32-byte hash padded with version 0.
	addr := SubstateAddressFromHashAndVersion(hash, 0)
	require.Equal(t, hash, addr.Hash())
	require.Equal(t, uint32(0), addr.Version())

	versioned := id.ToSubstateAddress(7)
	require.Equal(t, hash, versioned.Hash())
	require.Equal(t, uint32(7), versioned.Version())

	parsed, err := SubstateAddressFromBytes(versioned[:])
	require.NoError(t, err)
	require.Equal(t, versioned, parsed)

	_, err = SubstateAddressFromBytes(hash[:])
	require.Error(t, err)
}

func TestSubstateIDHashDeterministic(t *testing.T) {
	require.Equal(t, SubstateID("a").ToHash(), SubstateID("a").ToHash())
	require.NotEqual(t, SubstateID("a").ToHash(), SubstateID("b").ToHash())
}

func TestHeightSaturatingSub(t *testing.T) {
	require.Equal(t, Height(3), Height(5).Sub(2))
	require.Equal(t, Height(0), Height(5).Sub(9))
	require.True(t, Height(0).IsZero())
}
