// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPacemakerBackoffDoublesAndCaps(t *testing.T) {
	pm := newPacemaker(time.Second, 10*time.Second)
	defer pm.stop()

	require.Equal(t, time.Second, pm.duration())

	require.Equal(t, 1, pm.onTimeout())
	require.Equal(t, 2*time.Second, pm.duration())

	require.Equal(t, 2, pm.onTimeout())
	require.Equal(t, 4*time.Second, pm.duration())

	pm.onTimeout()
	pm.onTimeout()
	require.Equal(t, 10*time.Second, pm.duration())

	pm.resetOnProgress()
	require.Equal(t, time.Second, pm.duration())
}

func TestPacemakerFires(t *testing.T) {
	pm := newPacemaker(10*time.Millisecond, 100*time.Millisecond)
	defer pm.stop()

	select {
	case <-pm.C():
	case <-time.After(time.Second):
		t.Fatal("view timer did not fire")
	}
}
