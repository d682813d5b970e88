// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/AaronFeickert/tari-dan/statetree"
	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

// ExhaustDivisor is the value fees are divided by to determine the amount of
// fees to burn. 0 means no fees are burned.
const ExhaustDivisor = 20 // 5%

// dummyVisitor receives each synthesized dummy block. Returning false stops
// the iteration early.
type dummyVisitor func(*storage.Block) bool

// CalculateLastDummyBlock synthesizes the dummy blocks needed to reach
// newHeight above the justify certificate and returns the last one as the
// parent for a future proposal. Returns nil when no dummy is required.
func CalculateLastDummyBlock(
	logger log.Logger,
	network types.Network,
	epoch types.Epoch,
	shard types.Shard,
	highQC *storage.QuorumCertificate,
	parentMerkleRoot types.Hash,
	newHeight types.Height,
	leaderStrategy LeaderStrategy,
	committee *types.Committee,
	parentTimestamp uint64,
	parentBaseLayerHeight uint64,
	parentBaseLayerHash types.Hash,
) *storage.LeafBlock {
	var last *storage.LeafBlock
	withDummyBlocks(
		logger, network, epoch, shard, highQC, parentMerkleRoot, newHeight,
		leaderStrategy, committee, parentTimestamp, parentBaseLayerHeight, parentBaseLayerHash,
		func(dummy *storage.Block) bool {
			leaf := dummy.AsLeafBlock()
			last = &leaf
			return true
		},
	)
	return last
}

// CalculateDummyBlocks synthesizes the dummy chain linking the justify block
// to a received candidate's parent, stopping as soon as a dummy's id equals
// the candidate's parent id. Callers verify the chain actually closed.
func CalculateDummyBlocks(
	logger log.Logger,
	candidate *storage.Block,
	justifyBlock *storage.Block,
	leaderStrategy LeaderStrategy,
	committee *types.Committee,
) []*storage.Block {
	var dummies []*storage.Block
	withDummyBlocks(
		logger,
		candidate.Network,
		justifyBlock.Epoch,
		justifyBlock.Shard,
		candidate.Justify,
		justifyBlock.StateMerkleRoot,
		candidate.Height,
		leaderStrategy,
		committee,
		justifyBlock.Timestamp,
		justifyBlock.BaseLayerHeight,
		justifyBlock.BaseLayerHash,
		func(dummy *storage.Block) bool {
			dummies = append(dummies, dummy)
			return dummy.ID() != candidate.ParentID
		},
	)
	return dummies
}

func withDummyBlocks(
	logger log.Logger,
	network types.Network,
	epoch types.Epoch,
	shard types.Shard,
	highQC *storage.QuorumCertificate,
	parentMerkleRoot types.Hash,
	newHeight types.Height,
	leaderStrategy LeaderStrategy,
	committee *types.Committee,
	parentTimestamp uint64,
	parentBaseLayerHeight uint64,
	parentBaseLayerHash types.Hash,
	visit dummyVisitor,
) {
	parentID := highQC.BlockID
	currentHeight := highQC.BlockHeight + 1
	if currentHeight > newHeight {
		logger.Warn("BUG: no dummy blocks to calculate",
			zap.Stringer("currentHeight", currentHeight),
			zap.Stringer("newHeight", newHeight),
		)
		return
	}

	logger.Debug("calculating dummy blocks",
		zap.Stringer("from", currentHeight),
		zap.Stringer("to", newHeight),
	)
	for {
		leader := leaderStrategy.Leader(committee, currentHeight)
		dummy := storage.NewDummyBlock(
			network,
			parentID,
			leader,
			currentHeight,
			highQC,
			epoch,
			shard,
			parentMerkleRoot,
			parentTimestamp,
			parentBaseLayerHeight,
			parentBaseLayerHash,
		)
		logger.Debug("new dummy block", zap.Stringer("block", dummy))
		parentID = dummy.ID()

		if !visit(dummy) {
			return
		}
		if currentHeight == newHeight {
			return
		}
		currentHeight++
	}
}

// CalculateStateMerkleDiff stages the pending tree diffs of uncommitted
// ancestors over the committed node set, folds the new substate changes in
// at nextVersion and returns the resulting root together with the overlay
// diff to persist alongside the block.
func CalculateStateMerkleDiff(
	tx statetree.TreeStoreReader,
	currentVersion statetree.Version,
	nextVersion statetree.Version,
	pendingDiffs []storage.PendingStateTreeDiff,
	changes []statetree.SubstateTreeChange,
) (types.Hash, statetree.StateHashTreeDiff, error) {
	staged := statetree.NewStagedTreeStore(tx)
	ordered := make([]statetree.StateHashTreeDiff, len(pendingDiffs))
	for i, pending := range pendingDiffs {
		ordered[i] = pending.Diff
	}
	staged.ApplyOrderedDiffs(ordered)

	var current *statetree.Version
	if currentVersion > 0 {
		current = &currentVersion
	}
	root, err := statetree.New(staged).PutSubstateChanges(current, nextVersion, changes)
	if err != nil {
		return types.Hash{}, statetree.StateHashTreeDiff{}, err
	}
	return root, staged.IntoDiff(), nil
}
