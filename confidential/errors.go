// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import "errors"

var (
	// ErrNegativeAmount is returned when an amount does not fit a u64.
	ErrNegativeAmount = errors.New("amount is negative or exceeds u64")

	// ErrRangeProof is returned for invalid range-proof witnesses or proofs
	// that fail verification.
	ErrRangeProof = errors.New("range proof error")

	// ErrAead is returned when authenticated encryption or decryption fails.
	ErrAead = errors.New("aead error")
)
