// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package watcher

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func noopLogger(t *testing.T) log.Logger {
	t.Helper()
	return log.NewNoOpLogger()
}

func waitStatus(t *testing.T, ch <-chan ProcessStatus) ProcessStatus {
	t.Helper()
	select {
	case status := <-ch:
		return status
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for process status")
		return nil
	}
}

func TestMonitorChildCleanExit(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())

	txLogging := make(chan ProcessStatus, 4)
	txAlerting := make(chan ProcessStatus, 4)
	txRestart := make(chan struct{}, 1)

	go MonitorChild(context.Background(), cmd, txLogging, txAlerting, txRestart)

	require.IsType(t, StatusRunning{}, waitStatus(t, txLogging))
	require.IsType(t, StatusRunning{}, waitStatus(t, txAlerting))

	exited := waitStatus(t, txLogging)
	require.IsType(t, StatusExited{}, exited)
	require.Equal(t, 0, exited.(StatusExited).Code)
	require.IsType(t, StatusExited{}, waitStatus(t, txAlerting))

	select {
	case <-txRestart:
	case <-time.After(5 * time.Second):
		t.Fatal("no restart pulse")
	}
}

func TestMonitorChildCrash(t *testing.T) {
	cmd := exec.Command("false")
	require.NoError(t, cmd.Start())

	txLogging := make(chan ProcessStatus, 4)
	txAlerting := make(chan ProcessStatus, 4)
	txRestart := make(chan struct{}, 1)

	go MonitorChild(context.Background(), cmd, txLogging, txAlerting, txRestart)

	require.IsType(t, StatusRunning{}, waitStatus(t, txLogging))
	require.IsType(t, StatusRunning{}, waitStatus(t, txAlerting))
	require.IsType(t, StatusCrashed{}, waitStatus(t, txLogging))
	require.IsType(t, StatusCrashed{}, waitStatus(t, txAlerting))

	select {
	case <-txRestart:
	case <-time.After(5 * time.Second):
		t.Fatal("no restart pulse")
	}
}

func TestSetupNotifiers(t *testing.T) {
	cfg := Channels{
		Mattermost: ChannelConfig{Enabled: true, ServerURL: "http://localhost", ChannelID: "c1", Credentials: "token"},
		Telegram:   ChannelConfig{Enabled: false},
	}
	notifiers := SetupNotifiers(noopLogger(t), cfg)
	require.Len(t, notifiers, 1)
	require.Equal(t, "mattermost", notifiers[0].Name())
}
