// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"context"
	"sync"
	"testing"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/bls/signer/localsigner"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/validators"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/AaronFeickert/tari-dan/statetree"
	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

const (
	testEpoch = types.Epoch(1)
	testShard = types.Shard(0)
)

type testNode struct {
	nodeID ids.NodeID
	signer bls.Signer
}

type fakeEpochManager struct {
	epoch     types.Epoch
	committee *types.Committee
}

func (f *fakeEpochManager) CurrentEpoch() types.Epoch {
	return f.epoch
}

func (f *fakeEpochManager) LocalCommittee(types.Epoch, types.Shard) (*types.Committee, error) {
	return f.committee, nil
}

// recordingOutbound captures every sent message for assertions.
type recordingOutbound struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	to  ids.NodeID
	msg Message
}

func (r *recordingOutbound) Send(_ context.Context, to ids.NodeID, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{to: to, msg: msg})
	return nil
}

func (r *recordingOutbound) Multicast(ctx context.Context, to []ids.NodeID, msg Message) error {
	for _, peer := range to {
		if err := r.Send(ctx, peer, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *recordingOutbound) messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentMessage, len(r.sent))
	copy(out, r.sent)
	return out
}

// mapExecutor resolves blocks to the substate changes registered for them.
type mapExecutor struct {
	changes map[ids.ID][]statetree.SubstateTreeChange
}

func newMapExecutor() *mapExecutor {
	return &mapExecutor{changes: make(map[ids.ID][]statetree.SubstateTreeChange)}
}

func (e *mapExecutor) Execute(block *storage.Block) ([]statetree.SubstateTreeChange, error) {
	return e.changes[block.ID()], nil
}

type testEnv struct {
	t         *testing.T
	nodes     []*testNode
	committee *types.Committee
	store     *storage.Store
	outbound  *recordingOutbound
	executor  *mapExecutor
	hs        *HotStuff
	genesis   *storage.Block
}

func newTestEnv(t *testing.T, size int) *testEnv {
	t.Helper()

	nodes := make([]*testNode, size)
	members := make([]*validators.GetValidatorOutput, size)
	for i := range nodes {
		signer, err := localsigner.New()
		require.NoError(t, err)
		nodes[i] = &testNode{nodeID: ids.GenerateTestNodeID(), signer: signer}
		members[i] = &validators.GetValidatorOutput{
			NodeID:    nodes[i].nodeID,
			PublicKey: signer.PublicKey(),
			Weight:    1,
		}
	}
	committee := types.NewCommittee(members)

	env := &testEnv{
		t:         t,
		nodes:     nodes,
		committee: committee,
		store:     storage.New(log.NewNoOpLogger(), memdb.New()),
		outbound:  &recordingOutbound{},
		executor:  newMapExecutor(),
	}

	hs, err := New(Config{
		Log:            log.NewNoOpLogger(),
		Network:        types.NetworkLocalNet,
		Shard:          testShard,
		Store:          env.store,
		EpochManager:   &fakeEpochManager{epoch: testEpoch, committee: committee},
		LeaderStrategy: RoundRobinLeaderStrategy{},
		Signatures:     NewSignatureService(nodes[0].nodeID, nodes[0].signer),
		Outbound:       env.outbound,
		Executor:       env.executor,
		Registerer:     prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	env.hs = hs
	require.NoError(t, hs.ensureGenesis())

	require.NoError(t, env.store.WithReadTx(func(tx *storage.ReadTx) error {
		leaf, err := tx.LeafBlockGet(testEpoch, testShard)
		require.NoError(t, err)
		env.genesis, err = tx.BlocksGet(leaf.BlockID)
		return err
	}))
	return env
}

// nodeFor returns the test node holding the given id.
func (env *testEnv) nodeFor(nodeID ids.NodeID) *testNode {
	for _, n := range env.nodes {
		if n.nodeID == nodeID {
			return n
		}
	}
	return nil
}

// leaderAt returns the round-robin leader for a height.
func (env *testEnv) leaderAt(height types.Height) *testNode {
	return env.nodeFor(RoundRobinLeaderStrategy{}.Leader(env.committee, height))
}

// makeQC builds a full-committee certificate over a block.
func (env *testEnv) makeQC(blockID ids.ID, height types.Height) *storage.QuorumCertificate {
	env.t.Helper()
	msg := voteChallenge(testEpoch, testShard, blockID, height, storage.DecisionAccept)
	sigs := make([]storage.QuorumSignature, len(env.nodes))
	for i, node := range env.nodes {
		sig, err := node.signer.Sign(msg)
		require.NoError(env.t, err)
		sigs[i] = storage.QuorumSignature{Signer: node.nodeID, Signature: bls.SignatureToBytes(sig)}
	}
	return &storage.QuorumCertificate{
		BlockID:     blockID,
		BlockHeight: height,
		Epoch:       testEpoch,
		Shard:       testShard,
		Signatures:  sigs,
	}
}

// highQC reads the persisted high certificate.
func (env *testEnv) highQC() *storage.QuorumCertificate {
	env.t.Helper()
	var qc *storage.QuorumCertificate
	require.NoError(env.t, env.store.WithReadTx(func(tx *storage.ReadTx) error {
		var err error
		qc, err = tx.HighQcGet(testEpoch, testShard)
		return err
	}))
	return qc
}

// buildProposal constructs a valid proposal extending parent at the given
// height and registers its substate changes with the executor.
func (env *testEnv) buildProposal(
	parent *storage.Block,
	height types.Height,
	justify *storage.QuorumCertificate,
	changes []statetree.SubstateTreeChange,
) *storage.Block {
	env.t.Helper()

	var root types.Hash
	require.NoError(env.t, env.store.WithReadTx(func(tx *storage.ReadTx) error {
		pending, err := tx.PendingDiffsGetAll(testEpoch, testShard)
		if err != nil {
			return err
		}
		current, err := currentStateVersion(tx, testEpoch, testShard, pending)
		if err != nil {
			return err
		}
		root, _, err = CalculateStateMerkleDiff(tx, current, statetree.Version(height), pending, changes)
		return err
	}))

	block := storage.NewBlock(
		types.NetworkLocalNet,
		parent.ID(),
		height,
		testEpoch,
		testShard,
		justify,
		env.leaderAt(height).nodeID,
		root,
		uint64(1700000000+height),
		100,
		types.Hash{},
		nil,
	)
	env.executor.changes[block.ID()] = changes
	return block
}

// applyProposal feeds a proposal through the receive path.
func (env *testEnv) applyProposal(block *storage.Block) {
	env.t.Helper()
	env.hs.onProposal(context.Background(), block.Proposer, ProposalMessage{Block: block})
}

// leaf reads the current tip.
func (env *testEnv) leaf() storage.LeafBlock {
	env.t.Helper()
	var leaf storage.LeafBlock
	require.NoError(env.t, env.store.WithReadTx(func(tx *storage.ReadTx) error {
		var err error
		leaf, err = tx.LeafBlockGet(testEpoch, testShard)
		return err
	}))
	return leaf
}
