// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import "github.com/cloudflare/circl/group"

// Amount is a signed wallet amount. Statement amounts must be non-negative;
// revealed amounts pass through untouched.
type Amount int64

// AsU64Checked returns the amount as u64, failing on negatives.
func (a Amount) AsU64Checked() (uint64, bool) {
	if a < 0 {
		return 0, false
	}
	return uint64(a), true
}

// ProofStatement is the wallet-side input for one confidential output: the
// opening of the commitment plus the metadata that ends up in the statement.
type ProofStatement struct {
	Amount              Amount
	MinimumValuePromise uint64
	Mask                group.Scalar
	SenderPublicNonce   [32]byte
	EncryptedData       EncryptedData

	// ResourceViewKey enables auditor recovery of the amount; nil disables
	// the viewable balance proof.
	ResourceViewKey group.Element
}

// Commitment computes the Pedersen commitment for the statement.
func (s *ProofStatement) Commitment(factory *CommitmentFactory) (group.Element, error) {
	value, ok := s.Amount.AsU64Checked()
	if !ok {
		return nil, ErrNegativeAmount
	}
	return factory.CommitValue(s.Mask, value), nil
}

// ViewableBalanceProof binds an ElGamal encryption of the amount under a
// view key to the Pedersen commitment. All fields are canonical 32-byte
// encodings.
type ViewableBalanceProof struct {
	ElgamalEncrypted   [32]byte `cbor:"1,keyasint"` // E = v*G + r*P
	ElgamalPublicNonce [32]byte `cbor:"2,keyasint"` // R = r*G
	CPrime             [32]byte `cbor:"3,keyasint"`
	EPrime             [32]byte `cbor:"4,keyasint"`
	RPrime             [32]byte `cbor:"5,keyasint"`
	SV                 [32]byte `cbor:"6,keyasint"`
	SM                 [32]byte `cbor:"7,keyasint"`
	SR                 [32]byte `cbor:"8,keyasint"`
}

// Statement is the wire form of one confidential output.
type Statement struct {
	Commitment          [32]byte              `cbor:"1,keyasint"`
	SenderPublicNonce   [32]byte              `cbor:"2,keyasint"`
	EncryptedData       EncryptedData         `cbor:"3,keyasint"`
	MinimumValuePromise uint64                `cbor:"4,keyasint"`
	ViewableBalance     *ViewableBalanceProof `cbor:"5,keyasint,omitempty"`
}

// OutputStatement is the full confidential output construction: up to one
// output and one change statement, an aggregated range proof over the
// present ones, and the revealed amounts.
type OutputStatement struct {
	Output *Statement `cbor:"1,keyasint,omitempty"`
	Change *Statement `cbor:"2,keyasint,omitempty"`

	// RangeProof is empty exactly when both statements are absent.
	RangeProof []byte `cbor:"3,keyasint"`

	OutputRevealedAmount Amount `cbor:"4,keyasint"`
	ChangeRevealedAmount Amount `cbor:"5,keyasint"`
}
