// Copyright (C) 2019-2026, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/luxfi/ids"
)

// SubstateID names a versioned unit of sidechain state.
type SubstateID string

// ToHash returns the 32-byte digest that keys this substate in the state tree.
func (s SubstateID) ToHash() Hash {
	return ids.ID(sha256.Sum256([]byte(s)))
}

// ToSubstateAddress binds the id to a specific version.
func (s SubstateID) ToSubstateAddress(version uint32) SubstateAddress {
	return SubstateAddressFromHashAndVersion(s.ToHash(), version)
}

const SubstateAddressLength = 36

// SubstateAddress is a 32-byte substate id hash followed by a 4-byte
// little-endian version. Validator shard keys reuse this layout with
// version 0.
type SubstateAddress [SubstateAddressLength]byte

// SubstateAddressFromHashAndVersion pads a 32-byte hash into a substate
// address carrying the given version.
func SubstateAddressFromHashAndVersion(hash Hash, version uint32) SubstateAddress {
	var addr SubstateAddress
	copy(addr[:32], hash[:])
	binary.LittleEndian.PutUint32(addr[32:], version)
	return addr
}

// SubstateAddressFromBytes parses a raw 36-byte address.
func SubstateAddressFromBytes(b []byte) (SubstateAddress, error) {
	var addr SubstateAddress
	if len(b) != SubstateAddressLength {
		return addr, fmt.Errorf("substate address must be %d bytes, got %d", SubstateAddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// Hash returns the substate id hash portion of the address.
func (a SubstateAddress) Hash() Hash {
	var h Hash
	copy(h[:], a[:32])
	return h
}

// Version returns the version portion of the address.
func (a SubstateAddress) Version() uint32 {
	return binary.LittleEndian.Uint32(a[32:])
}

func (a SubstateAddress) String() string {
	return fmt.Sprintf("substate_%s_v%d", hex.EncodeToString(a[:32]), a.Version())
}
