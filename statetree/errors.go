// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statetree

import "errors"

var (
	// ErrNodeNotFound is returned when a node key resolves neither in the
	// staged overlay nor in the underlying reader. Fatal to the caller's
	// transaction.
	ErrNodeNotFound = errors.New("tree node not found")

	// ErrVersionMismatch is returned when the next version is not strictly
	// greater than the current version.
	ErrVersionMismatch = errors.New("next tree version must be greater than current")
)
