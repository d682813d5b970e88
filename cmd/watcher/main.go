// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// The watcher binary supervises a validator-node process, restarting it on
// exit and fanning status out to the configured alert channels.
package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/AaronFeickert/tari-dan/config"
	"github.com/AaronFeickert/tari-dan/watcher"
)

const restartDelay = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	logger := log.New("component", "watcher")
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	txLogging := make(chan watcher.ProcessStatus, 16)
	txAlerting := make(chan watcher.ProcessStatus, 16)
	txRestart := make(chan struct{}, 1)

	go watcher.ProcessStatusLog(ctx, logger, txLogging)
	notifiers := watcher.SetupNotifiers(logger, cfg.Watcher.Channels)
	go watcher.ProcessStatusAlerts(ctx, logger, txAlerting, notifiers)

	for {
		cmd := exec.Command(cfg.Watcher.ValidatorBinary, "--config", *configPath)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			logger.Error("failed to start validator node", zap.Error(err))
			select {
			case <-time.After(restartDelay):
				continue
			case <-ctx.Done():
				return
			}
		}
		logger.Info("validator node started", zap.Int("pid", cmd.Process.Pid))

		go watcher.MonitorChild(ctx, cmd, txLogging, txAlerting, txRestart)

		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return
		case <-txRestart:
			logger.Info("restarting validator node")
			select {
			case <-time.After(restartDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}
