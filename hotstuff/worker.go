// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AaronFeickert/tari-dan/statetree"
	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

const (
	defaultViewTimeout    = 2 * time.Second
	defaultMaxViewTimeout = time.Minute
	defaultCatchUpAfter   = 3
	defaultMaxSyncBlocks  = 1000
	defaultSyncWorkers    = 4
	defaultInboundBuffer  = 256
)

// Config wires the pacemaker's collaborators explicitly. Store, EpochManager,
// LeaderStrategy, Signatures, Outbound and Executor are required; a nil Log or
// Registerer and zero-valued tunables take defaults.
type Config struct {
	Log     log.Logger
	Network types.Network
	Shard   types.Shard

	Store          *storage.Store
	EpochManager   EpochManager
	LeaderStrategy LeaderStrategy
	Signatures     *SignatureService
	Outbound       OutboundMessaging
	Executor       BlockExecutor
	Registerer     prometheus.Registerer

	// ViewTimeout is the base leader-failure timeout; it doubles per
	// consecutive failure up to MaxViewTimeout.
	ViewTimeout    time.Duration
	MaxViewTimeout time.Duration

	// CatchUpAfter is the consecutive-timeout count that triggers a catch-up
	// sync against the best observed peer.
	CatchUpAfter int

	// MaxSyncBlocks caps one catch-up response page.
	MaxSyncBlocks int

	// SyncWorkers bounds the pool serving catch-up responses.
	SyncWorkers int

	// Retention keeps this many blocks below the committed frontier; zero
	// disables pruning.
	Retention uint64
}

func (c *Config) withDefaults() {
	if c.Log == nil {
		c.Log = log.NewNoOpLogger()
	}
	if c.ViewTimeout == 0 {
		c.ViewTimeout = defaultViewTimeout
	}
	if c.MaxViewTimeout == 0 {
		c.MaxViewTimeout = defaultMaxViewTimeout
	}
	if c.CatchUpAfter == 0 {
		c.CatchUpAfter = defaultCatchUpAfter
	}
	if c.MaxSyncBlocks == 0 {
		c.MaxSyncBlocks = defaultMaxSyncBlocks
	}
	if c.SyncWorkers == 0 {
		c.SyncWorkers = defaultSyncWorkers
	}
}

// HotStuff drives one shard's consensus: it validates and applies proposals,
// emits votes, forms certificates from votes when leading, fills
// leader-failure gaps with dummy blocks, commits three-chains and serves
// catch-up sync requests. All state is owned by the single Run goroutine;
// messages are processed serially.
type HotStuff struct {
	cfg     Config
	log     log.Logger
	metrics *hotstuffMetrics
	pm      *pacemaker
	sync    *syncPool

	inbound chan InboundMessage

	// votes collected while leading, per block id.
	votes    map[ids.ID]map[ids.NodeID]storage.QuorumSignature
	qcFormed map[ids.ID]struct{}

	// newViews tracks view-change senders per height while leading.
	newViews map[types.Height]set.Set[ids.NodeID]

	// bestSeen is the peer with the highest observed certificate, the
	// catch-up target after repeated timeouts.
	bestSeen struct {
		from   ids.NodeID
		height types.Height
	}
}

// New validates the wiring and builds the worker.
func New(cfg Config) (*HotStuff, error) {
	cfg.withDefaults()
	if cfg.Store == nil || cfg.EpochManager == nil || cfg.LeaderStrategy == nil ||
		cfg.Signatures == nil || cfg.Outbound == nil || cfg.Executor == nil {
		return nil, errors.New("hotstuff: missing collaborator")
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	metrics, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	return &HotStuff{
		cfg:      cfg,
		log:      cfg.Log,
		metrics:  metrics,
		pm:       newPacemaker(cfg.ViewTimeout, cfg.MaxViewTimeout),
		sync:     newSyncPool(cfg.SyncWorkers),
		inbound:  make(chan InboundMessage, defaultInboundBuffer),
		votes:    make(map[ids.ID]map[ids.NodeID]storage.QuorumSignature),
		qcFormed: make(map[ids.ID]struct{}),
		newViews: make(map[types.Height]set.Set[ids.NodeID]),
	}, nil
}

// Deliver enqueues an inbound message, reporting false when the buffer is
// full and the message was dropped.
func (h *HotStuff) Deliver(msg InboundMessage) bool {
	select {
	case h.inbound <- msg:
		return true
	default:
		return false
	}
}

// Run processes messages and view timeouts until the context is cancelled.
// The catch-up pool is joined before returning.
func (h *HotStuff) Run(ctx context.Context) error {
	if err := h.ensureGenesis(); err != nil {
		return err
	}
	defer h.pm.stop()
	defer h.sync.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-h.inbound:
			h.handle(ctx, msg)
		case <-h.pm.C():
			h.onViewTimeout(ctx)
		}
	}
}

func (h *HotStuff) handle(ctx context.Context, msg InboundMessage) {
	switch m := msg.Message.(type) {
	case ProposalMessage:
		h.onProposal(ctx, msg.From, m)
	case VoteMessage:
		h.onVote(ctx, msg.From, m)
	case NewViewMessage:
		h.onNewView(ctx, msg.From, m)
	case SyncRequestMessage:
		h.onSyncRequest(ctx, msg.From, m)
	default:
		h.log.Debug("ignoring unknown message", zap.Stringer("from", msg.From))
	}
}

// ensureGenesis anchors the shard chain on first start.
func (h *HotStuff) ensureGenesis() error {
	epoch := h.cfg.EpochManager.CurrentEpoch()
	return h.cfg.Store.WithWriteTx(func(tx *storage.WriteTx) error {
		_, err := tx.LeafBlockGet(epoch, h.cfg.Shard)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		genesis := storage.NewGenesisBlock(h.cfg.Network, epoch, h.cfg.Shard)
		if err := tx.BlocksInsert(genesis); err != nil {
			return err
		}
		if err := tx.HighQcSet(&storage.QuorumCertificate{
			BlockID: genesis.ID(),
			Epoch:   epoch,
			Shard:   h.cfg.Shard,
		}); err != nil {
			return err
		}
		h.log.Info("anchored genesis block", zap.Stringer("blockID", genesis.ID()))
		return tx.LeafBlockSet(h.cfg.Shard, genesis.AsLeafBlock())
	})
}

func (h *HotStuff) onProposal(ctx context.Context, from ids.NodeID, msg ProposalMessage) {
	start := time.Now()
	h.metrics.proposalsReceived.Inc()
	block := msg.Block

	epoch := h.cfg.EpochManager.CurrentEpoch()
	if block.Epoch != epoch {
		h.log.Warn("dropping proposal from wrong epoch",
			zap.Stringer("from", from),
			zap.Stringer("blockEpoch", block.Epoch),
			zap.Stringer("localEpoch", epoch),
		)
		h.metrics.proposalsRejected.Inc()
		return
	}
	committee, err := h.cfg.EpochManager.LocalCommittee(epoch, h.cfg.Shard)
	if err != nil {
		h.log.Error("failed to load committee", zap.Error(err))
		return
	}
	if !h.cfg.LeaderStrategy.IsLeader(block.Proposer, committee, block.Height) {
		h.log.Warn("dropping proposal from non-leader",
			zap.Stringer("proposer", block.Proposer),
			zap.Stringer("height", block.Height),
		)
		h.metrics.proposalsRejected.Inc()
		return
	}
	if err := h.cfg.Signatures.VerifyQuorumCertificate(committee, block.Justify); err != nil {
		h.log.Warn("dropping proposal with invalid justify certificate",
			zap.Stringer("block", block),
			zap.Error(err),
		)
		h.metrics.proposalsRejected.Inc()
		return
	}

	if block.Justify.BlockHeight > h.bestSeen.height && from != h.cfg.Signatures.NodeID() {
		h.bestSeen.from = from
		h.bestSeen.height = block.Justify.BlockHeight
	}

	var vote storage.Vote
	err = h.cfg.Store.WithWriteTx(func(tx *storage.WriteTx) error {
		leaf, err := tx.LeafBlockGet(epoch, h.cfg.Shard)
		if err != nil {
			return err
		}
		if block.Height <= leaf.Height {
			return fmt.Errorf("%w: %s at or below leaf %s", ErrProposalOutdated, block.Height, leaf.Height)
		}

		justifyBlock, err := tx.BlocksGetOptional(block.Justify.BlockID)
		if err != nil {
			return err
		}
		if justifyBlock == nil {
			return fmt.Errorf("justify block %s not found, catch-up required", block.Justify.BlockID)
		}

		if block.Height == justifyBlock.Height+1 {
			if block.ParentID != justifyBlock.ID() {
				return fmt.Errorf("%w: parent %s is not the justify block", ErrParentChainMismatch, block.ParentID)
			}
		} else {
			dummies := CalculateDummyBlocks(h.log, block, justifyBlock, h.cfg.LeaderStrategy, committee)
			if len(dummies) == 0 || dummies[len(dummies)-1].ID() != block.ParentID {
				return fmt.Errorf("%w: candidate %s", ErrParentChainMismatch, block.ID())
			}
			for _, dummy := range dummies {
				if err := tx.BlocksInsert(dummy); err != nil {
					return err
				}
			}
			h.metrics.dummyBlocks.Add(float64(len(dummies)))
		}

		changes, err := h.cfg.Executor.Execute(block)
		if err != nil {
			return fmt.Errorf("executing block commands: %w", err)
		}
		pending, err := tx.PendingDiffsGetAll(epoch, h.cfg.Shard)
		if err != nil {
			return err
		}
		currentVersion, err := currentStateVersion(&tx.ReadTx, epoch, h.cfg.Shard, pending)
		if err != nil {
			return err
		}
		root, diff, err := CalculateStateMerkleDiff(&tx.ReadTx, currentVersion, statetree.Version(block.Height), pending, changes)
		if err != nil {
			return err
		}
		if root != block.StateMerkleRoot {
			return fmt.Errorf("%w: computed %s, block carries %s", ErrStateRootMismatch, root, block.StateMerkleRoot)
		}

		// Blocks without substate changes write no tree nodes; staging an
		// empty diff would register a version that holds no root.
		if !diff.IsEmpty() {
			if err := tx.PendingDiffInsert(epoch, h.cfg.Shard, storage.PendingStateTreeDiff{
				BlockID: block.ID(),
				Version: statetree.Version(block.Height),
				Diff:    diff,
			}); err != nil {
				return err
			}
		}
		if err := tx.BlocksInsert(block); err != nil {
			return err
		}
		for i, fp := range msg.ForeignProposals {
			if err := tx.ForeignProposalInsert(block.ID(), uint32(i), fp); err != nil {
				return err
			}
		}

		highQC, err := tx.HighQcGet(epoch, h.cfg.Shard)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if highQC == nil || block.Justify.BlockHeight > highQC.BlockHeight {
			if err := tx.HighQcSet(block.Justify); err != nil {
				return err
			}
		}
		if err := tx.LeafBlockSet(h.cfg.Shard, block.AsLeafBlock()); err != nil {
			return err
		}

		if err := h.applyCommitRule(tx, block, epoch); err != nil {
			return err
		}

		vote, err = h.cfg.Signatures.SignVote(epoch, h.cfg.Shard, block.ID(), block.Height, storage.DecisionAccept)
		if err != nil {
			return err
		}
		return tx.LastSentVoteSet(vote)
	})
	if err != nil {
		h.log.Warn("dropping proposal",
			zap.Stringer("block", block),
			zap.Stringer("from", from),
			zap.Error(err),
		)
		h.metrics.proposalsRejected.Inc()
		return
	}

	h.metrics.leafHeight.Set(float64(block.Height))
	h.metrics.proposalDuration.Observe(float64(time.Since(start).Nanoseconds()))

	nextLeader := h.cfg.LeaderStrategy.Leader(committee, block.Height+1)
	voteMsg := VoteMessage{Vote: vote}
	if nextLeader == h.cfg.Signatures.NodeID() {
		h.onVote(ctx, nextLeader, voteMsg)
	} else if err := h.cfg.Outbound.Send(ctx, nextLeader, voteMsg); err != nil {
		h.log.Warn("failed to send vote", zap.Stringer("to", nextLeader), zap.Error(err))
	}
	h.metrics.votesSent.Inc()
	h.pm.resetOnProgress()
}

// applyCommitRule commits the block at the tail of a three-chain: the
// grandparent, through certificate links, of the newly justified block.
// Pending tree diffs up to the committed height fold into the committed node
// set, and blocks below the retention window are pruned.
func (h *HotStuff) applyCommitRule(tx *storage.WriteTx, block *storage.Block, epoch types.Epoch) error {
	if block.Justify.IsGenesis() {
		return nil
	}
	b1, err := tx.BlocksGetOptional(block.Justify.BlockID)
	if err != nil || b1 == nil || b1.Justify == nil || b1.Justify.IsGenesis() {
		return err
	}
	b2, err := tx.BlocksGetOptional(b1.Justify.BlockID)
	if err != nil || b2 == nil || b2.Justify == nil || b2.Justify.IsGenesis() {
		return err
	}
	b3, err := tx.BlocksGetOptional(b2.Justify.BlockID)
	if err != nil || b3 == nil || b3.IsGenesis() {
		return err
	}

	committed, err := tx.CommittedHeightGet(epoch, h.cfg.Shard)
	if err != nil {
		return err
	}
	if b3.Height <= committed {
		return nil
	}

	removed, err := tx.PendingDiffsRemoveUpTo(epoch, h.cfg.Shard, statetree.Version(b3.Height))
	if err != nil {
		return err
	}
	for _, diff := range removed {
		if err := tx.TreeDiffCommit(diff.Diff); err != nil {
			return err
		}
	}
	if len(removed) > 0 {
		if err := tx.CommittedVersionSet(epoch, h.cfg.Shard, removed[len(removed)-1].Version); err != nil {
			return err
		}
	}
	if err := tx.CommittedHeightSet(epoch, h.cfg.Shard, b3.Height); err != nil {
		return err
	}
	h.log.Debug("committed three-chain",
		zap.Stringer("blockID", b3.ID()),
		zap.Stringer("height", b3.Height),
	)
	h.metrics.committedHeight.Set(float64(b3.Height))

	if h.cfg.Retention > 0 {
		return tx.PruneBlocksBelow(epoch, h.cfg.Shard, b3.Height.Sub(h.cfg.Retention))
	}
	return nil
}

func (h *HotStuff) onVote(ctx context.Context, from ids.NodeID, msg VoteMessage) {
	vote := msg.Vote
	epoch := h.cfg.EpochManager.CurrentEpoch()
	if vote.Epoch != epoch {
		h.log.Warn("dropping vote from wrong epoch", zap.Stringer("from", from))
		return
	}
	committee, err := h.cfg.EpochManager.LocalCommittee(epoch, h.cfg.Shard)
	if err != nil {
		h.log.Error("failed to load committee", zap.Error(err))
		return
	}
	if err := h.cfg.Signatures.VerifyVote(committee, vote); err != nil {
		h.log.Warn("dropping invalid vote", zap.Stringer("from", from), zap.Error(err))
		return
	}
	h.metrics.votesReceived.Inc()

	if _, done := h.qcFormed[vote.BlockID]; done {
		return
	}
	collected := h.votes[vote.BlockID]
	if collected == nil {
		collected = make(map[ids.NodeID]storage.QuorumSignature)
		h.votes[vote.BlockID] = collected
	}
	collected[vote.Signer] = storage.QuorumSignature{Signer: vote.Signer, Signature: vote.Signature}
	if len(collected) < committee.QuorumThreshold() {
		return
	}

	signatures := make([]storage.QuorumSignature, 0, len(collected))
	for _, sig := range collected {
		signatures = append(signatures, sig)
	}
	sort.Slice(signatures, func(i, j int) bool {
		return bytes.Compare(signatures[i].Signer[:], signatures[j].Signer[:]) < 0
	})
	qc := &storage.QuorumCertificate{
		BlockID:     vote.BlockID,
		BlockHeight: vote.BlockHeight,
		Epoch:       epoch,
		Shard:       h.cfg.Shard,
		Decision:    vote.Decision,
		Signatures:  signatures,
	}
	h.qcFormed[vote.BlockID] = struct{}{}
	delete(h.votes, vote.BlockID)
	h.metrics.qcsFormed.Inc()
	h.log.Debug("formed quorum certificate", zap.Stringer("qc", qc))

	if err := h.cfg.Store.WithWriteTx(func(tx *storage.WriteTx) error {
		highQC, err := tx.HighQcGet(epoch, h.cfg.Shard)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if highQC == nil || qc.BlockHeight > highQC.BlockHeight {
			return tx.HighQcSet(qc)
		}
		return nil
	}); err != nil {
		h.log.Error("failed to persist high certificate", zap.Error(err))
		return
	}

	if h.cfg.LeaderStrategy.IsLeader(h.cfg.Signatures.NodeID(), committee, vote.BlockHeight+1) {
		h.propose(ctx, committee, qc, vote.BlockHeight+1)
	}
}

func (h *HotStuff) onNewView(ctx context.Context, from ids.NodeID, msg NewViewMessage) {
	epoch := h.cfg.EpochManager.CurrentEpoch()
	if msg.Epoch != epoch {
		h.log.Warn("dropping new-view from wrong epoch", zap.Stringer("from", from))
		return
	}
	committee, err := h.cfg.EpochManager.LocalCommittee(epoch, h.cfg.Shard)
	if err != nil {
		h.log.Error("failed to load committee", zap.Error(err))
		return
	}
	if !committee.Contains(from) {
		h.log.Warn("dropping new-view from non-member", zap.Stringer("from", from))
		return
	}
	if msg.HighQC != nil {
		if err := h.cfg.Signatures.VerifyQuorumCertificate(committee, msg.HighQC); err != nil {
			h.log.Warn("dropping new-view with invalid certificate", zap.Error(err))
			return
		}
		if msg.HighQC.BlockHeight > h.bestSeen.height {
			h.bestSeen.from = from
			h.bestSeen.height = msg.HighQC.BlockHeight
		}
	}
	if !h.cfg.LeaderStrategy.IsLeader(h.cfg.Signatures.NodeID(), committee, msg.NewHeight) {
		return
	}

	senders := h.newViews[msg.NewHeight]
	if senders == nil {
		senders = set.NewSet[ids.NodeID](committee.Len())
		h.newViews[msg.NewHeight] = senders
	}
	senders.Add(from)
	if senders.Len() < committee.QuorumThreshold() {
		return
	}
	delete(h.newViews, msg.NewHeight)

	var highQC *storage.QuorumCertificate
	if err := h.cfg.Store.WithReadTx(func(tx *storage.ReadTx) error {
		var err error
		highQC, err = tx.HighQcGet(epoch, h.cfg.Shard)
		return err
	}); err != nil {
		h.log.Error("failed to load high certificate", zap.Error(err))
		return
	}
	h.propose(ctx, committee, highQC, msg.NewHeight)
}

func (h *HotStuff) onViewTimeout(ctx context.Context) {
	failures := h.pm.onTimeout()
	h.metrics.viewTimeouts.Inc()

	epoch := h.cfg.EpochManager.CurrentEpoch()
	committee, err := h.cfg.EpochManager.LocalCommittee(epoch, h.cfg.Shard)
	if err != nil {
		h.log.Error("failed to load committee", zap.Error(err))
		return
	}

	var (
		newHeight types.Height
		highQC    *storage.QuorumCertificate
	)
	if err := h.cfg.Store.WithReadTx(func(tx *storage.ReadTx) error {
		leaf, err := tx.LeafBlockGet(epoch, h.cfg.Shard)
		if err != nil {
			return err
		}
		newHeight = leaf.Height
		lastProposed, err := tx.LastProposedGet(epoch, h.cfg.Shard)
		if err != nil {
			return err
		}
		if lastProposed != nil && lastProposed.Height > newHeight {
			newHeight = lastProposed.Height
		}
		newHeight++
		highQC, err = tx.HighQcGet(epoch, h.cfg.Shard)
		return err
	}); err != nil {
		h.log.Error("view timeout aborted", zap.Error(err))
		return
	}

	h.log.Debug("view timeout",
		zap.Stringer("newHeight", newHeight),
		zap.Int("consecutiveFailures", failures),
	)

	if h.cfg.LeaderStrategy.IsLeader(h.cfg.Signatures.NodeID(), committee, newHeight) {
		h.propose(ctx, committee, highQC, newHeight)
	} else {
		leader := h.cfg.LeaderStrategy.Leader(committee, newHeight)
		msg := NewViewMessage{Epoch: epoch, Shard: h.cfg.Shard, NewHeight: newHeight, HighQC: highQC}
		if err := h.cfg.Outbound.Send(ctx, leader, msg); err != nil {
			h.log.Warn("failed to send new-view", zap.Stringer("to", leader), zap.Error(err))
		}
	}

	if failures >= h.cfg.CatchUpAfter && h.bestSeen.from != ids.EmptyNodeID && h.bestSeen.height > highQC.BlockHeight {
		h.log.Info("requesting catch-up sync",
			zap.Stringer("peer", h.bestSeen.from),
			zap.Stringer("peerHeight", h.bestSeen.height),
		)
		if err := h.cfg.Outbound.Send(ctx, h.bestSeen.from, SyncRequestMessage{HighQC: highQC}); err != nil {
			h.log.Warn("failed to send sync request", zap.Error(err))
		}
	}
}

// propose builds a block extending the high certificate at newHeight,
// synthesizing and persisting dummy blocks for any skipped heights, and
// multicasts it to the committee. The proposal is also applied locally
// through the normal receive path.
func (h *HotStuff) propose(ctx context.Context, committee *types.Committee, highQC *storage.QuorumCertificate, newHeight types.Height) {
	epoch := h.cfg.EpochManager.CurrentEpoch()

	var block *storage.Block
	err := h.cfg.Store.WithWriteTx(func(tx *storage.WriteTx) error {
		justifyBlock, err := tx.BlocksGet(highQC.BlockID)
		if err != nil {
			return fmt.Errorf("loading justify block %s: %w", highQC.BlockID, err)
		}
		if newHeight <= justifyBlock.Height {
			newHeight = justifyBlock.Height + 1
		}

		parentID := justifyBlock.ID()
		if newHeight > justifyBlock.Height+1 {
			var dummies []*storage.Block
			withDummyBlocks(
				h.log, h.cfg.Network, epoch, h.cfg.Shard, highQC,
				justifyBlock.StateMerkleRoot, newHeight-1,
				h.cfg.LeaderStrategy, committee,
				justifyBlock.Timestamp, justifyBlock.BaseLayerHeight, justifyBlock.BaseLayerHash,
				func(dummy *storage.Block) bool {
					dummies = append(dummies, dummy)
					return true
				},
			)
			for _, dummy := range dummies {
				if err := tx.BlocksInsert(dummy); err != nil {
					return err
				}
			}
			if len(dummies) > 0 {
				parentID = dummies[len(dummies)-1].ID()
				h.metrics.dummyBlocks.Add(float64(len(dummies)))
			}
		}

		block = storage.NewBlock(
			h.cfg.Network,
			parentID,
			newHeight,
			epoch,
			h.cfg.Shard,
			highQC,
			h.cfg.Signatures.NodeID(),
			types.Hash{},
			uint64(time.Now().Unix()),
			justifyBlock.BaseLayerHeight,
			justifyBlock.BaseLayerHash,
			nil,
		)
		changes, err := h.cfg.Executor.Execute(block)
		if err != nil {
			return fmt.Errorf("executing proposal commands: %w", err)
		}
		pending, err := tx.PendingDiffsGetAll(epoch, h.cfg.Shard)
		if err != nil {
			return err
		}
		currentVersion, err := currentStateVersion(&tx.ReadTx, epoch, h.cfg.Shard, pending)
		if err != nil {
			return err
		}
		root, _, err := CalculateStateMerkleDiff(&tx.ReadTx, currentVersion, statetree.Version(newHeight), pending, changes)
		if err != nil {
			return err
		}
		block.StateMerkleRoot = root

		return tx.LastProposedSet(h.cfg.Shard, storage.LastProposed{
			BlockID: block.ID(),
			Height:  newHeight,
			Epoch:   epoch,
		})
	})
	if err != nil {
		h.log.Error("failed to build proposal", zap.Error(err))
		return
	}

	h.log.Info("proposing block", zap.Stringer("block", block))
	msg := ProposalMessage{Block: block}

	peers := make([]ids.NodeID, 0, committee.Len())
	for _, member := range committee.Members() {
		if member.NodeID == h.cfg.Signatures.NodeID() {
			continue
		}
		peers = append(peers, member.NodeID)
	}
	if err := h.cfg.Outbound.Multicast(ctx, peers, msg); err != nil {
		h.log.Warn("failed to multicast proposal", zap.Error(err))
	}
	h.onProposal(ctx, h.cfg.Signatures.NodeID(), msg)
}

// currentStateVersion is the version the next block builds on: the newest
// pending diff, else the committed frontier.
func currentStateVersion(tx *storage.ReadTx, epoch types.Epoch, shard types.Shard, pending []storage.PendingStateTreeDiff) (statetree.Version, error) {
	if len(pending) > 0 {
		return pending[len(pending)-1].Version, nil
	}
	return tx.CommittedVersionGet(epoch, shard)
}
