// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// The validator binary wires the consensus collaborators together and runs
// one hotstuff worker for the configured shard.
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/bls/signer/localsigner"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AaronFeickert/tari-dan/baselayer"
	"github.com/AaronFeickert/tari-dan/config"
	"github.com/AaronFeickert/tari-dan/epoch"
	"github.com/AaronFeickert/tari-dan/execution"
	"github.com/AaronFeickert/tari-dan/hotstuff"
	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	logger := log.NewLogger("validator")
	if err := run(logger, *configPath); err != nil {
		logger.Error("validator exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger log.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	network, err := cfg.Node.ParseNetwork()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := baselayer.Connect(ctx, logger, cfg.BaseLayer.Endpoint)
	if err != nil {
		return fmt.Errorf("connecting to base node: %w", err)
	}
	epochManager := epoch.NewManager(logger, client, cfg.BaseLayer.NumShards)
	if err := epochManager.Sync(ctx); err != nil {
		return fmt.Errorf("initial epoch sync: %w", err)
	}
	go epochManager.Run(ctx, cfg.BaseLayer.ScanInterval)

	signer, err := localsigner.New()
	if err != nil {
		return fmt.Errorf("generating signer: %w", err)
	}
	localNodeID, err := deriveNodeID(signer.PublicKey())
	if err != nil {
		return err
	}
	logger.Info("validator identity", zap.Stringer("nodeID", localNodeID))

	store := storage.New(logger, memdb.New())
	registry := prometheus.NewRegistry()

	worker, err := hotstuff.New(hotstuff.Config{
		Log:            logger,
		Network:        network,
		Shard:          types.Shard(cfg.Node.Shard),
		Store:          store,
		EpochManager:   epochManager,
		LeaderStrategy: hotstuff.RoundRobinLeaderStrategy{},
		Signatures:     hotstuff.NewSignatureService(localNodeID, signer),
		Outbound:       newLoopbackMessaging(logger),
		Executor:       execution.New(),
		Registerer:     registry,
		ViewTimeout:    cfg.Consensus.ViewTimeout,
		MaxViewTimeout: cfg.Consensus.MaxViewTimeout,
		CatchUpAfter:   cfg.Consensus.CatchUpAfter,
		MaxSyncBlocks:  cfg.Consensus.MaxSyncBlocks,
		SyncWorkers:    cfg.Consensus.SyncWorkers,
		Retention:      cfg.Consensus.Retention,
	})
	if err != nil {
		return err
	}

	logger.Info("starting consensus",
		zap.Stringer("network", network),
		zap.Stringer("shard", types.Shard(cfg.Node.Shard)),
		zap.Stringer("epoch", epochManager.CurrentEpoch()),
	)
	return worker.Run(ctx)
}

// deriveNodeID binds the node identity to the bls public key.
func deriveNodeID(publicKey *bls.PublicKey) (ids.NodeID, error) {
	sum := sha256.Sum256(bls.PublicKeyToCompressedBytes(publicKey))
	return ids.ToNodeID(sum[:ids.NodeIDLen])
}
