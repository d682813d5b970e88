// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads validator and watcher configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AaronFeickert/tari-dan/types"
	"github.com/AaronFeickert/tari-dan/watcher"
)

// Config is the top-level configuration for the validator node and its
// watcher.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	BaseLayer BaseLayerConfig `yaml:"base_layer"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Watcher   WatcherConfig   `yaml:"watcher"`
}

// NodeConfig identifies the validator.
type NodeConfig struct {
	Network string `yaml:"network"`
	Shard   uint32 `yaml:"shard"`
	DataDir string `yaml:"data_dir"`
}

// ParseNetwork parses the configured network name.
func (n NodeConfig) ParseNetwork() (types.Network, error) {
	switch n.Network {
	case "mainnet":
		return types.NetworkMainNet, nil
	case "testnet":
		return types.NetworkTestNet, nil
	case "localnet", "":
		return types.NetworkLocalNet, nil
	default:
		return 0, fmt.Errorf("unknown network %q", n.Network)
	}
}

// BaseLayerConfig points at the anchoring base node.
type BaseLayerConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	ScanInterval time.Duration `yaml:"scan_interval"`
	NumShards    uint32        `yaml:"num_shards"`
}

// ConsensusConfig tunes the pacemaker.
type ConsensusConfig struct {
	ViewTimeout    time.Duration `yaml:"view_timeout"`
	MaxViewTimeout time.Duration `yaml:"max_view_timeout"`
	CatchUpAfter   int           `yaml:"catch_up_after"`
	MaxSyncBlocks  int           `yaml:"max_sync_blocks"`
	SyncWorkers    int           `yaml:"sync_workers"`
	Retention      uint64        `yaml:"retention"`
}

// WatcherConfig configures process supervision and alerting.
type WatcherConfig struct {
	ValidatorBinary string           `yaml:"validator_binary"`
	Channels        watcher.Channels `yaml:"channels"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Node: NodeConfig{
			Network: "localnet",
			DataDir: "data",
		},
		BaseLayer: BaseLayerConfig{
			Endpoint:     "http://127.0.0.1:18142",
			ScanInterval: 10 * time.Second,
			NumShards:    1,
		},
		Consensus: ConsensusConfig{
			ViewTimeout:    2 * time.Second,
			MaxViewTimeout: time.Minute,
			CatchUpAfter:   3,
			MaxSyncBlocks:  1000,
			SyncWorkers:    4,
			Retention:      0,
		},
		Watcher: WatcherConfig{
			ValidatorBinary: "tari-dan-validator",
		},
	}
}

// Load reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
