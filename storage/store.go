// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/AaronFeickert/tari-dan/statetree"
	"github.com/AaronFeickert/tari-dan/types"
)

// ErrNotFound is returned when a model row does not exist. Optional lookups
// translate it to a nil result.
var ErrNotFound = database.ErrNotFound

var (
	blocksPrefix       = []byte("blocks")
	heightIndexPrefix  = []byte("block_heights")
	foreignPrefix      = []byte("foreign_proposals")
	singletonsPrefix   = []byte("singletons")
	pendingDiffsPrefix = []byte("pending_tree_diffs")
	treeNodesPrefix    = []byte("tree_nodes")
)

var (
	leafBlockKey    = []byte("leaf_block")
	lastProposedKey = []byte("last_proposed")
	lastVoteKey     = []byte("last_sent_vote")
	highQcKey       = []byte("high_qc")
	committedKey    = []byte("committed_height")
	committedVerKey = []byte("committed_version")
)

// encMode is the deterministic encoder used for every persisted model.
var encMode, _ = cbor.CoreDetEncOptions().EncMode()

func marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// Store is the persistent consensus state store. All mutation is serialized
// through write transactions with single-writer discipline; reads use
// short-lived read transactions against the same backing database.
type Store struct {
	log log.Logger
	db  database.Database

	writeLock sync.Mutex
}

// New wraps the backing database.
func New(logger log.Logger, db database.Database) *Store {
	return &Store{log: logger, db: db}
}

// ReadTx is a read-only view over the store.
type ReadTx struct {
	db database.Database
}

// WriteTx extends ReadTx with staged mutations. Writes become visible to
// readers only when the surrounding WithWriteTx closure returns nil.
type WriteTx struct {
	ReadTx
	vdb *versiondb.Database
}

// WithReadTx runs f against a read-only transaction.
func (s *Store) WithReadTx(f func(tx *ReadTx) error) error {
	return f(&ReadTx{db: s.db})
}

// WithWriteTx runs f against an exclusive write transaction, committing on
// nil and discarding all staged writes on error.
func (s *Store) WithWriteTx(f func(tx *WriteTx) error) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	vdb := versiondb.New(s.db)
	tx := &WriteTx{ReadTx: ReadTx{db: vdb}, vdb: vdb}
	if err := f(tx); err != nil {
		vdb.Abort()
		s.log.Debug("write transaction aborted", zap.Error(err))
		return err
	}
	if err := vdb.Commit(); err != nil {
		return fmt.Errorf("committing write tx: %w", err)
	}
	return nil
}

func (t *ReadTx) bucket(prefix []byte) database.Database {
	return prefixdb.New(prefix, t.db)
}

func heightKey(epoch types.Epoch, shard types.Shard, height types.Height) []byte {
	key := make([]byte, 8+4+8)
	binary.BigEndian.PutUint64(key, uint64(epoch))
	binary.BigEndian.PutUint32(key[8:], uint32(shard))
	binary.BigEndian.PutUint64(key[12:], uint64(height))
	return key
}

func singletonKey(name []byte, epoch types.Epoch, shard types.Shard) []byte {
	key := make([]byte, 0, len(name)+12)
	key = append(key, name...)
	var suffix [12]byte
	binary.BigEndian.PutUint64(suffix[:], uint64(epoch))
	binary.BigEndian.PutUint32(suffix[8:], uint32(shard))
	return append(key, suffix[:]...)
}

func getModel(db database.Database, key []byte, v interface{}) error {
	data, err := db.Get(key)
	if err != nil {
		return err
	}
	return unmarshal(data, v)
}

func putModel(db database.Database, key []byte, v interface{}) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	return db.Put(key, data)
}

// optional converts an ErrNotFound into (false, nil).
func optional(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// BlocksGet loads a block by id.
func (t *ReadTx) BlocksGet(id ids.ID) (*Block, error) {
	var block Block
	if err := getModel(t.bucket(blocksPrefix), id[:], &block); err != nil {
		return nil, err
	}
	block.id = id
	return &block, nil
}

// BlocksGetOptional loads a block by id, returning nil when absent.
func (t *ReadTx) BlocksGetOptional(id ids.ID) (*Block, error) {
	block, err := t.BlocksGet(id)
	if ok, err2 := optional(err); !ok {
		return nil, err2
	}
	return block, nil
}

// BlockIDAtHeight resolves the chain block at the given height.
func (t *ReadTx) BlockIDAtHeight(epoch types.Epoch, shard types.Shard, height types.Height) (ids.ID, error) {
	data, err := t.bucket(heightIndexPrefix).Get(heightKey(epoch, shard, height))
	if err != nil {
		return ids.Empty, err
	}
	return ids.ToID(data)
}

// BlocksGetAllBetween returns the chain blocks with heights in [lo, hi],
// endpoints included only when inclusive is set, ordered by ascending
// height. The walk follows parent links down from the block at hi, so the
// result is a single chain even in the presence of forks. limit is a hard
// cap applied from the low end; callers page if more are needed.
func (t *ReadTx) BlocksGetAllBetween(
	epoch types.Epoch,
	shard types.Shard,
	lo types.Height,
	hi types.Height,
	inclusive bool,
	limit int,
) ([]*Block, error) {
	if hi < lo || (!inclusive && hi == lo) {
		return nil, nil
	}

	tipID, err := t.BlockIDAtHeight(epoch, shard, hi)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var chain []*Block
	cursor := tipID
	for {
		block, err := t.BlocksGet(cursor)
		if err != nil {
			return nil, err
		}
		if block.Height < lo {
			break
		}
		boundary := block.Height == lo || block.Height == hi
		if inclusive || !boundary {
			chain = append(chain, block)
		}
		if block.Height <= lo || block.IsGenesis() {
			break
		}
		cursor = block.ParentID
	}

	// Reverse into ascending height order, then cap keeping the earliest
	// blocks so the peer can apply them in receipt order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if limit > 0 && len(chain) > limit {
		chain = chain[:limit]
	}
	return chain, nil
}

// LeafBlockGet returns the current tip for (epoch, shard).
func (t *ReadTx) LeafBlockGet(epoch types.Epoch, shard types.Shard) (LeafBlock, error) {
	var leaf LeafBlock
	err := getModel(t.bucket(singletonsPrefix), singletonKey(leafBlockKey, epoch, shard), &leaf)
	return leaf, err
}

// LastProposedGet returns the most recent locally authored block, or nil.
func (t *ReadTx) LastProposedGet(epoch types.Epoch, shard types.Shard) (*LastProposed, error) {
	var lp LastProposed
	err := getModel(t.bucket(singletonsPrefix), singletonKey(lastProposedKey, epoch, shard), &lp)
	if ok, err := optional(err); !ok {
		return nil, err
	}
	return &lp, nil
}

// LastSentVoteGet returns the last vote emitted, or nil.
func (t *ReadTx) LastSentVoteGet(epoch types.Epoch, shard types.Shard) (*Vote, error) {
	var vote Vote
	err := getModel(t.bucket(singletonsPrefix), singletonKey(lastVoteKey, epoch, shard), &vote)
	if ok, err := optional(err); !ok {
		return nil, err
	}
	return &vote, nil
}

// HighQcGet returns the highest known certificate for (epoch, shard).
func (t *ReadTx) HighQcGet(epoch types.Epoch, shard types.Shard) (*QuorumCertificate, error) {
	var qc QuorumCertificate
	if err := getModel(t.bucket(singletonsPrefix), singletonKey(highQcKey, epoch, shard), &qc); err != nil {
		return nil, err
	}
	return &qc, nil
}

// CommittedHeightGet returns the committed frontier, zero when nothing has
// committed yet.
func (t *ReadTx) CommittedHeightGet(epoch types.Epoch, shard types.Shard) (types.Height, error) {
	var h types.Height
	err := getModel(t.bucket(singletonsPrefix), singletonKey(committedKey, epoch, shard), &h)
	if _, err := optional(err); err != nil {
		return 0, err
	}
	return h, nil
}

// CommittedVersionGet returns the state-tree version of the committed
// frontier, zero when nothing has committed yet.
func (t *ReadTx) CommittedVersionGet(epoch types.Epoch, shard types.Shard) (statetree.Version, error) {
	var v statetree.Version
	err := getModel(t.bucket(singletonsPrefix), singletonKey(committedVerKey, epoch, shard), &v)
	if _, err := optional(err); err != nil {
		return 0, err
	}
	return v, nil
}

// ForeignProposalsGet returns the cross-shard proposals attached to a block.
func (t *ReadTx) ForeignProposalsGet(blockID ids.ID) ([]ForeignProposal, error) {
	iter := t.bucket(foreignPrefix).NewIteratorWithPrefix(blockID[:])
	defer iter.Release()

	var proposals []ForeignProposal
	for iter.Next() {
		var fp ForeignProposal
		if err := unmarshal(iter.Value(), &fp); err != nil {
			return nil, err
		}
		proposals = append(proposals, fp)
	}
	return proposals, iter.Error()
}

func shardPrefix(epoch types.Epoch, shard types.Shard) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint64(key, uint64(epoch))
	binary.BigEndian.PutUint32(key[8:], uint32(shard))
	return key
}

func pendingDiffKey(epoch types.Epoch, shard types.Shard, v statetree.Version, blockID ids.ID) []byte {
	key := make([]byte, 20+len(blockID))
	copy(key, shardPrefix(epoch, shard))
	binary.BigEndian.PutUint64(key[12:], v)
	copy(key[20:], blockID[:])
	return key
}

// PendingDiffsGetAll returns every pending state-tree diff ordered by
// ascending version.
func (t *ReadTx) PendingDiffsGetAll(epoch types.Epoch, shard types.Shard) ([]PendingStateTreeDiff, error) {
	iter := t.bucket(pendingDiffsPrefix).NewIteratorWithPrefix(shardPrefix(epoch, shard))
	defer iter.Release()

	var diffs []PendingStateTreeDiff
	for iter.Next() {
		var diff PendingStateTreeDiff
		if err := unmarshal(iter.Value(), &diff); err != nil {
			return nil, err
		}
		diffs = append(diffs, diff)
	}
	return diffs, iter.Error()
}

// GetNode implements statetree.TreeStoreReader over the committed node set.
func (t *ReadTx) GetNode(key statetree.NodeKey) (statetree.Node, error) {
	var node statetree.Node
	if err := getModel(t.bucket(treeNodesPrefix), key.Bytes(), &node); err != nil {
		if errors.Is(err, ErrNotFound) {
			return statetree.Node{}, fmt.Errorf("%w: %s", statetree.ErrNodeNotFound, key)
		}
		return statetree.Node{}, err
	}
	return node, nil
}

var _ statetree.TreeStoreReader = (*ReadTx)(nil)

// BlocksInsert persists a block and indexes it by height.
func (t *WriteTx) BlocksInsert(block *Block) error {
	data, err := marshal(block)
	if err != nil {
		return err
	}
	id := block.ID()
	if err := t.bucket(blocksPrefix).Put(id[:], data); err != nil {
		return err
	}
	return t.bucket(heightIndexPrefix).Put(heightKey(block.Epoch, block.Shard, block.Height), id[:])
}

// LeafBlockSet records the new tip.
func (t *WriteTx) LeafBlockSet(shard types.Shard, leaf LeafBlock) error {
	return putModel(t.bucket(singletonsPrefix), singletonKey(leafBlockKey, leaf.Epoch, shard), leaf)
}

// LastProposedSet records the most recent locally authored block.
func (t *WriteTx) LastProposedSet(shard types.Shard, lp LastProposed) error {
	return putModel(t.bucket(singletonsPrefix), singletonKey(lastProposedKey, lp.Epoch, shard), lp)
}

// LastSentVoteSet records the most recent vote this node signed; the worker
// persists it before sending it.
func (t *WriteTx) LastSentVoteSet(vote Vote) error {
	return putModel(t.bucket(singletonsPrefix), singletonKey(lastVoteKey, vote.Epoch, vote.Shard), vote)
}

// HighQcSet records the highest known certificate.
func (t *WriteTx) HighQcSet(qc *QuorumCertificate) error {
	return putModel(t.bucket(singletonsPrefix), singletonKey(highQcKey, qc.Epoch, qc.Shard), qc)
}

// CommittedHeightSet advances the committed frontier.
func (t *WriteTx) CommittedHeightSet(epoch types.Epoch, shard types.Shard, h types.Height) error {
	return putModel(t.bucket(singletonsPrefix), singletonKey(committedKey, epoch, shard), h)
}

// CommittedVersionSet records the state-tree version of the committed
// frontier.
func (t *WriteTx) CommittedVersionSet(epoch types.Epoch, shard types.Shard, v statetree.Version) error {
	return putModel(t.bucket(singletonsPrefix), singletonKey(committedVerKey, epoch, shard), v)
}

// ForeignProposalInsert attaches a cross-shard proposal to a local block.
func (t *WriteTx) ForeignProposalInsert(localBlockID ids.ID, index uint32, fp ForeignProposal) error {
	key := make([]byte, len(localBlockID)+4)
	copy(key, localBlockID[:])
	binary.BigEndian.PutUint32(key[len(localBlockID):], index)
	return putModel(t.bucket(foreignPrefix), key, fp)
}

// PendingDiffInsert stages the tree diff produced by a not-yet-committed
// block.
func (t *WriteTx) PendingDiffInsert(epoch types.Epoch, shard types.Shard, diff PendingStateTreeDiff) error {
	return putModel(t.bucket(pendingDiffsPrefix), pendingDiffKey(epoch, shard, diff.Version, diff.BlockID), diff)
}

// PendingDiffsRemoveUpTo drops pending diffs with version at most v,
// returning them in ascending version order so the caller can fold them into
// the committed node set.
func (t *WriteTx) PendingDiffsRemoveUpTo(epoch types.Epoch, shard types.Shard, v statetree.Version) ([]PendingStateTreeDiff, error) {
	all, err := t.PendingDiffsGetAll(epoch, shard)
	if err != nil {
		return nil, err
	}
	bucket := t.bucket(pendingDiffsPrefix)
	var removed []PendingStateTreeDiff
	for _, diff := range all {
		if diff.Version > v {
			break
		}
		if err := bucket.Delete(pendingDiffKey(epoch, shard, diff.Version, diff.BlockID)); err != nil {
			return nil, err
		}
		removed = append(removed, diff)
	}
	return removed, nil
}

// TreeDiffCommit folds a state-tree diff into the committed node set:
// inserts every new node and evicts the stale ones.
func (t *WriteTx) TreeDiffCommit(diff statetree.StateHashTreeDiff) error {
	bucket := t.bucket(treeNodesPrefix)
	for _, entry := range diff.NewNodes {
		if err := putModel(bucket, entry.Key.Bytes(), entry.Node); err != nil {
			return err
		}
	}
	for _, stale := range diff.StaleNodes {
		if err := bucket.Delete(stale.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// PruneBlocksBelow removes blocks and their attachments below the given
// height, per the retention policy applied under the committed frontier.
func (t *WriteTx) PruneBlocksBelow(epoch types.Epoch, shard types.Shard, height types.Height) error {
	heights := t.bucket(heightIndexPrefix)
	blocks := t.bucket(blocksPrefix)
	foreign := t.bucket(foreignPrefix)

	iter := heights.NewIteratorWithPrefix(shardPrefix(epoch, shard))
	defer iter.Release()

	type doomed struct {
		key []byte
		id  ids.ID
	}
	var victims []doomed
	for iter.Next() {
		key := iter.Key()
		h := types.Height(binary.BigEndian.Uint64(key[len(key)-8:]))
		if h >= height {
			continue
		}
		id, err := ids.ToID(iter.Value())
		if err != nil {
			return err
		}
		victims = append(victims, doomed{key: append([]byte{}, key...), id: id})
	}
	if err := iter.Error(); err != nil {
		return err
	}

	for _, v := range victims {
		if err := heights.Delete(v.key); err != nil {
			return err
		}
		if err := blocks.Delete(v.id[:]); err != nil {
			return err
		}
		fps := foreign.NewIteratorWithPrefix(v.id[:])
		var fpKeys [][]byte
		for fps.Next() {
			fpKeys = append(fpKeys, append([]byte{}, fps.Key()...))
		}
		fps.Release()
		for _, k := range fpKeys {
			if err := foreign.Delete(k); err != nil {
				return err
			}
		}
	}
	return nil
}
