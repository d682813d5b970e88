// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package baselayer

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/AaronFeickert/tari-dan/types"
)

// Client surfaces the base-layer state the validator network anchors to.
type Client interface {
	TestConnection(ctx context.Context) error
	GetTipInfo(ctx context.Context) (Metadata, error)
	GetValidatorNodes(ctx context.Context, height uint64) ([]ValidatorNode, error)
	GetValidatorNodeChanges(ctx context.Context, startHeight, endHeight uint64) ([]ValidatorNodeChange, error)
	GetTemplateRegistrations(ctx context.Context, startHeight, endHeight uint64) ([]TemplateRegistration, error)
	GetSideChainUTXOs(ctx context.Context, fromHeight uint64, count uint64) ([]SideChainUTXO, error)
	GetConsensusConstants(ctx context.Context, height uint64) (ConsensusConstants, error)
	GetMempoolTransactionCount(ctx context.Context) (int, error)
}

// RPCClient talks JSON-RPC to a base node. The connection is dialed lazily
// on first use and reused afterwards.
type RPCClient struct {
	log      log.Logger
	endpoint string

	mu     sync.Mutex
	client *rpc.Client
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient builds a client for the given endpoint without connecting.
func NewRPCClient(logger log.Logger, endpoint string) *RPCClient {
	return &RPCClient{log: logger, endpoint: endpoint}
}

// Connect dials the endpoint and verifies the connection.
func Connect(ctx context.Context, logger log.Logger, endpoint string) (*RPCClient, error) {
	client := NewRPCClient(logger, endpoint)
	if err := client.TestConnection(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *RPCClient) connection(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		client, err := rpc.DialContext(ctx, c.endpoint)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrConnection, err)
		}
		c.client = client
	}
	return c.client, nil
}

func (c *RPCClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	client, err := c.connection(ctx)
	if err != nil {
		return err
	}
	if err := client.CallContext(ctx, result, method, args...); err != nil {
		c.log.Warn("base node call failed", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("%w: %s: %s", ErrConnection, method, err)
	}
	return nil
}

func (c *RPCClient) TestConnection(ctx context.Context) error {
	_, err := c.GetTipInfo(ctx)
	return err
}

type wireTipInfo struct {
	BestHeight uint64 `json:"best_block_height"`
	BestHash   string `json:"best_block_hash"`
}

func (c *RPCClient) GetTipInfo(ctx context.Context) (Metadata, error) {
	var tip wireTipInfo
	if err := c.call(ctx, &tip, "base_node_getTipInfo"); err != nil {
		return Metadata{}, err
	}
	hash, err := parseHash(tip.BestHash)
	if err != nil {
		return Metadata{}, &InvalidPeerMessageError{Details: "best_block_hash was not a valid fixed hash"}
	}
	return Metadata{BestHeight: tip.BestHeight, BestHash: hash}, nil
}

type wireValidatorNode struct {
	NodeID    string `json:"node_id"`
	PublicKey string `json:"public_key"`
	ShardKey  string `json:"shard_key"`
}

func (c *RPCClient) GetValidatorNodes(ctx context.Context, height uint64) ([]ValidatorNode, error) {
	var wire []wireValidatorNode
	if err := c.call(ctx, &wire, "base_node_getActiveValidatorNodes", height); err != nil {
		return nil, err
	}

	nodes := make([]ValidatorNode, 0, len(wire))
	for _, vn := range wire {
		node, err := parseValidatorNode(vn)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if len(nodes) == 0 {
		c.log.Debug("no validator nodes", zap.Uint64("height", height))
	}
	return nodes, nil
}

type wireValidatorNodeChange struct {
	Kind   string            `json:"kind"`
	Node   wireValidatorNode `json:"node"`
	Height uint64            `json:"height"`
}

func (c *RPCClient) GetValidatorNodeChanges(ctx context.Context, startHeight, endHeight uint64) ([]ValidatorNodeChange, error) {
	var wire []wireValidatorNodeChange
	if err := c.call(ctx, &wire, "base_node_getValidatorNodeChanges", startHeight, endHeight); err != nil {
		return nil, err
	}

	changes := make([]ValidatorNodeChange, 0, len(wire))
	for _, wc := range wire {
		node, err := parseValidatorNode(wc.Node)
		if err != nil {
			return nil, err
		}
		var kind ValidatorNodeChangeKind
		switch wc.Kind {
		case "added":
			kind = ValidatorNodeAdded
		case "removed":
			kind = ValidatorNodeRemoved
		default:
			return nil, &InvalidPeerMessageError{Details: "unknown validator change kind " + wc.Kind}
		}
		changes = append(changes, ValidatorNodeChange{Kind: kind, Node: node, Height: wc.Height})
	}
	return changes, nil
}

type wireTemplateRegistration struct {
	AuthorPublicKey string `json:"author_public_key"`
	TemplateAddress string `json:"template_address"`
	TemplateName    string `json:"template_name"`
	BinaryHash      string `json:"binary_sha"`
	Height          uint64 `json:"height"`
}

func (c *RPCClient) GetTemplateRegistrations(ctx context.Context, startHeight, endHeight uint64) ([]TemplateRegistration, error) {
	var wire []wireTemplateRegistration
	if err := c.call(ctx, &wire, "base_node_getTemplateRegistrations", startHeight, endHeight); err != nil {
		return nil, err
	}

	registrations := make([]TemplateRegistration, 0, len(wire))
	for _, wr := range wire {
		address, err := parseHash(wr.TemplateAddress)
		if err != nil {
			return nil, &InvalidPeerMessageError{Details: "template_address was not a valid fixed hash"}
		}
		binaryHash, err := parseHash(wr.BinaryHash)
		if err != nil {
			return nil, &InvalidPeerMessageError{Details: "binary_sha was not a valid fixed hash"}
		}
		author, err := hex.DecodeString(wr.AuthorPublicKey)
		if err != nil {
			return nil, &InvalidPeerMessageError{Details: "author_public_key was not valid hex"}
		}
		registrations = append(registrations, TemplateRegistration{
			AuthorPublicKey: author,
			TemplateAddress: address,
			TemplateName:    wr.TemplateName,
			BinaryHash:      binaryHash,
			Height:          wr.Height,
		})
	}
	return registrations, nil
}

type wireSideChainUTXO struct {
	BlockHeight uint64   `json:"block_height"`
	BlockHash   string   `json:"block_hash"`
	Outputs     []string `json:"outputs"`
}

func (c *RPCClient) GetSideChainUTXOs(ctx context.Context, fromHeight uint64, count uint64) ([]SideChainUTXO, error) {
	var wire []wireSideChainUTXO
	if err := c.call(ctx, &wire, "base_node_getSideChainUtxos", fromHeight, count); err != nil {
		return nil, err
	}

	utxos := make([]SideChainUTXO, 0, len(wire))
	for _, wu := range wire {
		hash, err := parseHash(wu.BlockHash)
		if err != nil {
			return nil, &InvalidPeerMessageError{Details: "block_hash was not a valid fixed hash"}
		}
		outputs := make([][]byte, 0, len(wu.Outputs))
		for _, out := range wu.Outputs {
			decoded, err := hex.DecodeString(out)
			if err != nil {
				return nil, &InvalidPeerMessageError{Details: "output was not valid hex"}
			}
			outputs = append(outputs, decoded)
		}
		utxos = append(utxos, SideChainUTXO{BlockHeight: wu.BlockHeight, BlockHash: hash, Outputs: outputs})
	}
	return utxos, nil
}

type wireConsensusConstants struct {
	EpochLength  uint64 `json:"epoch_length"`
	VNMinDeposit uint64 `json:"validator_node_registration_min_deposit_amount"`
}

func (c *RPCClient) GetConsensusConstants(ctx context.Context, height uint64) (ConsensusConstants, error) {
	var wire wireConsensusConstants
	if err := c.call(ctx, &wire, "base_node_getConstants", height); err != nil {
		return ConsensusConstants{}, err
	}
	return ConsensusConstants{EpochLength: wire.EpochLength, VNMinDeposit: wire.VNMinDeposit}, nil
}

func (c *RPCClient) GetMempoolTransactionCount(ctx context.Context) (int, error) {
	var txs []string
	if err := c.call(ctx, &txs, "base_node_getMempoolTransactions"); err != nil {
		return 0, err
	}
	return len(txs), nil
}

func parseHash(s string) (types.Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return types.Hash{}, err
	}
	return ids.ToID(raw)
}

func parseValidatorNode(vn wireValidatorNode) (ValidatorNode, error) {
	nodeID, err := ids.NodeIDFromString(vn.NodeID)
	if err != nil {
		return ValidatorNode{}, &InvalidPeerMessageError{Details: "node_id was not a valid node id"}
	}
	publicKey, err := hex.DecodeString(vn.PublicKey)
	if err != nil {
		return ValidatorNode{}, &InvalidPeerMessageError{Details: "public_key was not valid hex"}
	}
	shardHash, err := parseHash(vn.ShardKey)
	if err != nil {
		return ValidatorNode{}, &InvalidPeerMessageError{Details: "shard_key was not a valid fixed hash"}
	}
	return ValidatorNode{
		NodeID:    nodeID,
		PublicKey: publicKey,
		// The 32-byte shard key is padded into a substate address with
		// version 0.
		ShardKey: types.SubstateAddressFromHashAndVersion(shardHash, 0),
	}, nil
}
