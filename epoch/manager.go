// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package epoch tracks the base-layer-derived epoch and the validator
// committees it assigns to shards. Epoch bookkeeping proper lives on the
// base layer; this manager only mirrors it for consensus.
package epoch

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/log"
	"github.com/luxfi/validators"
	"go.uber.org/zap"

	"github.com/AaronFeickert/tari-dan/baselayer"
	"github.com/AaronFeickert/tari-dan/types"
)

// Manager mirrors the base layer's validator set, carving it into per-shard
// committees by shard key.
type Manager struct {
	log       log.Logger
	client    baselayer.Client
	numShards uint32

	mu          sync.RWMutex
	epochLength uint64
	current     types.Epoch
	committees  map[types.Shard]*types.Committee
}

// NewManager builds an unsynced manager. Call Sync before use.
func NewManager(logger log.Logger, client baselayer.Client, numShards uint32) *Manager {
	return &Manager{
		log:        logger,
		client:     client,
		numShards:  numShards,
		committees: make(map[types.Shard]*types.Committee),
	}
}

// Sync refreshes the epoch and committees from the base layer tip.
func (m *Manager) Sync(ctx context.Context) error {
	if m.epochLengthCached() == 0 {
		constants, err := m.client.GetConsensusConstants(ctx, 0)
		if err != nil {
			return fmt.Errorf("fetching consensus constants: %w", err)
		}
		if constants.EpochLength == 0 {
			return fmt.Errorf("base layer reported zero epoch length")
		}
		m.mu.Lock()
		m.epochLength = constants.EpochLength
		m.mu.Unlock()
	}

	tip, err := m.client.GetTipInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetching tip info: %w", err)
	}
	nodes, err := m.client.GetValidatorNodes(ctx, tip.BestHeight)
	if err != nil {
		return fmt.Errorf("fetching validator nodes: %w", err)
	}

	byShard := make(map[types.Shard][]*validators.GetValidatorOutput, m.numShards)
	for _, node := range nodes {
		_, err := bls.PublicKeyFromCompressedBytes(node.PublicKey)
		if err != nil {
			m.log.Warn("skipping validator with malformed public key",
				zap.Stringer("nodeID", node.NodeID),
				zap.Error(err),
			)
			continue
		}
		shard := m.shardFor(node.ShardKey)
		byShard[shard] = append(byShard[shard], &validators.GetValidatorOutput{
			NodeID:    node.NodeID,
			PublicKey: node.PublicKey,
			Weight:    1,
		})
	}

	committees := make(map[types.Shard]*types.Committee, len(byShard))
	for shard, members := range byShard {
		committees[shard] = types.NewCommittee(members)
	}

	m.mu.Lock()
	m.current = types.Epoch(tip.BestHeight / m.epochLength)
	m.committees = committees
	m.mu.Unlock()

	m.log.Info("epoch synced",
		zap.Stringer("epoch", m.CurrentEpoch()),
		zap.Uint64("baseHeight", tip.BestHeight),
		zap.Int("validators", len(nodes)),
	)
	return nil
}

// Run resyncs on the given interval until the context is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sync(ctx); err != nil {
				m.log.Warn("epoch sync failed", zap.Error(err))
			}
		}
	}
}

// CurrentEpoch returns the last synced epoch.
func (m *Manager) CurrentEpoch() types.Epoch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LocalCommittee returns the committee owning a shard in the given epoch.
func (m *Manager) LocalCommittee(epoch types.Epoch, shard types.Shard) (*types.Committee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if epoch != m.current {
		return nil, fmt.Errorf("no committee for %s, current is %s", epoch, m.current)
	}
	committee, ok := m.committees[shard]
	if !ok || committee.Len() == 0 {
		return nil, fmt.Errorf("no committee registered for %s", shard)
	}
	return committee, nil
}

func (m *Manager) epochLengthCached() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epochLength
}

// shardFor buckets a shard key into one of the configured shards.
func (m *Manager) shardFor(key types.SubstateAddress) types.Shard {
	hash := key.Hash()
	return types.Shard(binary.BigEndian.Uint32(hash[:4]) % m.numShards)
}
