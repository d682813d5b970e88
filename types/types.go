// Copyright (C) 2019-2026, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"fmt"

	"github.com/luxfi/ids"
)

// Hash is a 32-byte digest. Block IDs, state roots and substate id hashes all
// share this representation.
type Hash = ids.ID

// Epoch is a base-layer-derived consensus epoch.
type Epoch uint64

func (e Epoch) String() string {
	return fmt.Sprintf("epoch_%d", uint64(e))
}

// Shard identifies the partition of the substate space owned by one committee.
type Shard uint32

func (s Shard) String() string {
	return fmt.Sprintf("shard_%d", uint32(s))
}

// Height is the consensus height of a block within a shard chain.
type Height uint64

// Sub is a saturating subtraction, used when walking back from a tip.
func (h Height) Sub(n uint64) Height {
	if uint64(h) < n {
		return 0
	}
	return Height(uint64(h) - n)
}

func (h Height) IsZero() bool {
	return h == 0
}

func (h Height) String() string {
	return fmt.Sprintf("height_%d", uint64(h))
}

// Network discriminates block hashes across deployed networks.
type Network uint8

const (
	NetworkMainNet Network = iota
	NetworkTestNet
	NetworkLocalNet
)

func (n Network) String() string {
	switch n {
	case NetworkMainNet:
		return "mainnet"
	case NetworkTestNet:
		return "testnet"
	case NetworkLocalNet:
		return "localnet"
	default:
		return fmt.Sprintf("network_%d", uint8(n))
	}
}
