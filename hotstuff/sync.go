// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"context"
	"sync"

	"github.com/luxfi/ids"
	"go.uber.org/zap"

	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

// syncPool is the bounded worker pool serving catch-up responses so the
// worker's receive loop is never blocked on peer sends. Its lifetime is tied
// to the pacemaker: Close joins every in-flight response.
type syncPool struct {
	jobs chan func()
	wg   sync.WaitGroup

	closeOnce sync.Once
}

func newSyncPool(workers int) *syncPool {
	p := &syncPool{jobs: make(chan func(), workers)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// Submit enqueues a job, reporting false when every worker is busy and the
// queue is full.
func (p *syncPool) Submit(job func()) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Close stops accepting jobs and joins the workers.
func (p *syncPool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

// onSyncRequest validates a catch-up request and hands the response off to
// the pool.
func (h *HotStuff) onSyncRequest(ctx context.Context, from ids.NodeID, msg SyncRequestMessage) {
	epoch := h.cfg.EpochManager.CurrentEpoch()
	if msg.HighQC == nil || msg.HighQC.Epoch != epoch {
		h.log.Warn("ignoring sync request from wrong epoch",
			zap.Stringer("from", from),
			zap.Stringer("localEpoch", epoch),
		)
		return
	}
	h.metrics.syncRequests.Inc()

	highQC := msg.HighQC
	if !h.sync.Submit(func() { h.serveSyncRequest(ctx, from, epoch, highQC) }) {
		h.log.Warn("sync pool saturated, dropping request", zap.Stringer("from", from))
	}
}

// serveSyncRequest streams the blocks between the peer's high certificate
// and the local leaf as ordinary proposals, then replays the last sent vote.
// Dummy blocks are included: the peer's messaging ignores heights beyond its
// current view until its own pacemaker leader-fails past them.
//
// Any send failure terminates the response early; no partial-success signal
// is given.
func (h *HotStuff) serveSyncRequest(ctx context.Context, from ids.NodeID, epoch types.Epoch, highQC *storage.QuorumCertificate) {
	var blocks []*storage.Block
	err := h.cfg.Store.WithReadTx(func(tx *storage.ReadTx) error {
		leaf, err := tx.LeafBlockGet(epoch, h.cfg.Shard)
		if err != nil {
			return err
		}
		lastProposed, err := tx.LastProposedGet(epoch, h.cfg.Shard)
		if err != nil {
			return err
		}
		if lastProposed != nil && lastProposed.Height > leaf.Height {
			leaf = lastProposed.AsLeafBlock()
		}

		if leaf.Height.IsZero() {
			h.log.Info("node is at height zero, ignoring sync request", zap.Stringer("from", from))
			return nil
		}
		if leaf.Height < highQC.BlockHeight {
			return &InvalidSyncRequestError{
				Details: "peer " + from.String() + " is ahead: requested from " + highQC.BlockHeight.String() +
					" but leaf is " + leaf.Height.String(),
			}
		}

		h.log.Info("serving catch-up request",
			zap.Stringer("from", from),
			zap.Stringer("fromHeight", highQC.BlockHeight),
			zap.Stringer("toHeight", leaf.Height),
		)
		blocks, err = tx.BlocksGetAllBetween(epoch, h.cfg.Shard, highQC.BlockHeight, leaf.Height, true, h.cfg.MaxSyncBlocks)
		return err
	})
	if err != nil {
		h.log.Warn("failed to fetch blocks for sync request", zap.Error(err))
		return
	}

	// The peer holds the justified block and genesis already.
	filtered := blocks[:0]
	for _, block := range blocks {
		if block.IsGenesis() || block.ID() == highQC.BlockID {
			continue
		}
		filtered = append(filtered, block)
	}
	blocks = filtered
	if len(blocks) == 0 {
		return
	}

	h.log.Info("sending sync blocks",
		zap.Int("count", len(blocks)),
		zap.Stringer("first", blocks[0].Height),
		zap.Stringer("last", blocks[len(blocks)-1].Height),
		zap.Stringer("to", from),
	)
	for _, block := range blocks {
		// TODO(perf): one foreign-proposal read per block
		var foreign []storage.ForeignProposal
		if err := h.cfg.Store.WithReadTx(func(tx *storage.ReadTx) error {
			var err error
			foreign, err = tx.ForeignProposalsGet(block.ID())
			return err
		}); err != nil {
			h.log.Warn("failed to fetch foreign proposals for sync block",
				zap.Stringer("block", block),
				zap.Error(err),
			)
			return
		}
		if err := h.cfg.Outbound.Send(ctx, from, ProposalMessage{Block: block, ForeignProposals: foreign}); err != nil {
			h.log.Warn("error sending sync response", zap.Error(err))
			return
		}
	}

	var lastVote *storage.Vote
	if err := h.cfg.Store.WithReadTx(func(tx *storage.ReadTx) error {
		var err error
		lastVote, err = tx.LastSentVoteGet(epoch, h.cfg.Shard)
		return err
	}); err != nil {
		h.log.Warn("failed to fetch last vote for catch-up request", zap.Error(err))
		return
	}
	if lastVote != nil {
		if err := h.cfg.Outbound.Send(ctx, from, VoteMessage{Vote: *lastVote}); err != nil {
			h.log.Warn("failed to send last vote", zap.Error(err))
		}
	}
}
