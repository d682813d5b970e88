// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuorumCertificate covers quorum failures: not enough
	// signatures, unknown signers, or signatures that do not verify.
	ErrInvalidQuorumCertificate = errors.New("invalid quorum certificate")

	// ErrEpochMismatch is returned for messages from a different epoch.
	ErrEpochMismatch = errors.New("message epoch does not match local epoch")

	// ErrParentChainMismatch is returned when the dummy chain synthesized
	// from the justify certificate does not close on the candidate's parent.
	ErrParentChainMismatch = errors.New("dummy chain does not close on proposal parent")

	// ErrStateRootMismatch is returned when the locally computed state root
	// differs from the one carried by the proposal.
	ErrStateRootMismatch = errors.New("proposal state merkle root mismatch")

	// ErrNotLeader is returned when a proposal arrives from a node that is
	// not the leader for its height.
	ErrNotLeader = errors.New("proposer is not the leader for this height")

	// ErrProposalOutdated is returned for proposals at or below the current
	// leaf height.
	ErrProposalOutdated = errors.New("proposal height not above current leaf")
)

// InvalidSyncRequestError rejects a catch-up request that cannot be served.
type InvalidSyncRequestError struct {
	Details string
}

func (e *InvalidSyncRequestError) Error() string {
	return fmt.Sprintf("invalid sync request: %s", e.Details)
}
