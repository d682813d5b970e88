// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package watcher supervises a validator-node child process: it watches the
// process, fans its status out over independent logging and alerting
// channels, and pulses a restart channel so the supervisor loop can bring
// the node back up.
package watcher

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"
)

// Transaction identifies a validator registration submitted to the base
// layer.
type Transaction struct {
	ID    uint64
	Block uint64
}

// ProcessStatus is the supervised process state fanned out to the status
// channels.
type ProcessStatus interface {
	isProcessStatus()
	String() string
}

type (
	// StatusRunning signals the process is up.
	StatusRunning struct{}
	// StatusExited carries the exit code of a clean exit.
	StatusExited struct{ Code int }
	// StatusCrashed signals an unclean exit.
	StatusCrashed struct{}
	// StatusInternalError carries a supervisor-side failure unrelated to
	// the process itself.
	StatusInternalError struct{ Err string }
	// StatusSubmitted reports a validator registration submission.
	StatusSubmitted struct{ Tx Transaction }
)

func (StatusRunning) isProcessStatus()       {}
func (StatusExited) isProcessStatus()        {}
func (StatusCrashed) isProcessStatus()       {}
func (StatusInternalError) isProcessStatus() {}
func (StatusSubmitted) isProcessStatus()     {}

func (StatusRunning) String() string { return "running" }
func (s StatusExited) String() string {
	return fmt.Sprintf("exited with code %d", s.Code)
}
func (StatusCrashed) String() string { return "crashed" }
func (s StatusInternalError) String() string {
	return fmt.Sprintf("internal error: %s", s.Err)
}
func (s StatusSubmitted) String() string {
	return fmt.Sprintf("registration submitted (tx: %d, block: %d)", s.Tx.ID, s.Tx.Block)
}

// MonitorChild waits on a started child process and reports its fate to both
// status channels, then pulses the restart channel. It returns when the
// process has exited and every notification is delivered or the context is
// cancelled.
func MonitorChild(
	ctx context.Context,
	cmd *exec.Cmd,
	txLogging chan<- ProcessStatus,
	txAlerting chan<- ProcessStatus,
	txRestart chan<- struct{},
) {
	notify := func(status ProcessStatus) {
		for _, ch := range []chan<- ProcessStatus{txLogging, txAlerting} {
			select {
			case ch <- status:
			case <-ctx.Done():
			}
		}
	}

	notify(StatusRunning{})

	err := cmd.Wait()
	switch {
	case err == nil:
		notify(StatusExited{Code: 0})
	case isExitError(err):
		notify(StatusCrashed{})
	default:
		// The supervisor failed, not the process.
		notify(StatusInternalError{Err: err.Error()})
	}

	select {
	case txRestart <- struct{}{}:
	case <-ctx.Done():
	}
}

func isExitError(err error) bool {
	_, ok := err.(*exec.ExitError)
	return ok
}

// restartLogPause gives the restarted node a moment before log processing
// resumes.
const restartLogPause = 5 * time.Second

// ProcessStatusLog drains one status channel into the logger.
func ProcessStatusLog(ctx context.Context, logger log.Logger, rx <-chan ProcessStatus) {
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-rx:
			if !ok {
				return
			}
			switch s := status.(type) {
			case StatusExited:
				logger.Error("validator node process exited", zap.Int("code", s.Code))
				pause(ctx)
			case StatusInternalError:
				logger.Error("validator node process error", zap.String("error", s.Err))
				pause(ctx)
			case StatusCrashed:
				logger.Error("validator node process crashed")
				pause(ctx)
			case StatusRunning:
				// process is still up
			case StatusSubmitted:
				logger.Info("validator node registration submitted",
					zap.Uint64("tx", s.Tx.ID),
					zap.Uint64("block", s.Tx.Block),
				)
			}
		}
	}
}

func pause(ctx context.Context) {
	select {
	case <-time.After(restartLogPause):
	case <-ctx.Done():
	}
}

// ProcessStatusAlerts drains one status channel into the configured
// notifiers. Running statuses become heartbeat pings; everything else
// becomes an alert.
func ProcessStatusAlerts(ctx context.Context, logger log.Logger, rx <-chan ProcessStatus, notifiers []Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-rx:
			if !ok {
				return
			}
			for _, notifier := range notifiers {
				switch status.(type) {
				case StatusRunning:
					if err := notifier.Ping(ctx); err != nil {
						logger.Warn("failed to send heartbeat", zap.String("notifier", notifier.Name()), zap.Error(err))
					}
				default:
					if err := notifier.Alert(ctx, "validator node "+status.String()); err != nil {
						logger.Warn("failed to send alert", zap.String("notifier", notifier.Name()), zap.Error(err))
					}
				}
			}
		}
	}
}
