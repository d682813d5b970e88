// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epoch

import (
	"context"
	"testing"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/bls/signer/localsigner"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/AaronFeickert/tari-dan/baselayer"
	"github.com/AaronFeickert/tari-dan/types"
)

type fakeBaseNode struct {
	baselayer.Client

	tip         baselayer.Metadata
	nodes       []baselayer.ValidatorNode
	epochLength uint64
}

func (f *fakeBaseNode) GetTipInfo(context.Context) (baselayer.Metadata, error) {
	return f.tip, nil
}

func (f *fakeBaseNode) GetValidatorNodes(context.Context, uint64) ([]baselayer.ValidatorNode, error) {
	return f.nodes, nil
}

func (f *fakeBaseNode) GetConsensusConstants(context.Context, uint64) (baselayer.ConsensusConstants, error) {
	return baselayer.ConsensusConstants{EpochLength: f.epochLength, VNMinDeposit: 100}, nil
}

func makeValidator(t *testing.T) baselayer.ValidatorNode {
	t.Helper()
	signer, err := localsigner.New()
	require.NoError(t, err)
	shardKey := types.SubstateID("validator").ToHash()
	return baselayer.ValidatorNode{
		NodeID:    ids.GenerateTestNodeID(),
		PublicKey: bls.PublicKeyToCompressedBytes(signer.PublicKey()),
		ShardKey:  types.SubstateAddressFromHashAndVersion(shardKey, 0),
	}
}

func TestManagerSyncBuildsCommittees(t *testing.T) {
	client := &fakeBaseNode{
		tip:         baselayer.Metadata{BestHeight: 250},
		epochLength: 100,
		nodes: []baselayer.ValidatorNode{
			makeValidator(t),
			makeValidator(t),
			makeValidator(t),
		},
	}
	manager := NewManager(log.NewNoOpLogger(), client, 1)
	require.NoError(t, manager.Sync(context.Background()))

	require.Equal(t, types.Epoch(2), manager.CurrentEpoch())

	committee, err := manager.LocalCommittee(2, 0)
	require.NoError(t, err)
	require.Equal(t, 3, committee.Len())

	_, err = manager.LocalCommittee(1, 0)
	require.Error(t, err)
}

func TestManagerSkipsMalformedKeys(t *testing.T) {
	good := makeValidator(t)
	bad := good
	bad.NodeID = ids.GenerateTestNodeID()
	bad.PublicKey = []byte{0x01, 0x02}

	client := &fakeBaseNode{
		tip:         baselayer.Metadata{BestHeight: 10},
		epochLength: 100,
		nodes:       []baselayer.ValidatorNode{good, bad},
	}
	manager := NewManager(log.NewNoOpLogger(), client, 1)
	require.NoError(t, manager.Sync(context.Background()))

	committee, err := manager.LocalCommittee(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, committee.Len())
}
