// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"

	"github.com/AaronFeickert/tari-dan/storage"
	"github.com/AaronFeickert/tari-dan/types"
)

// voteDomain separates vote signatures from any other bls use.
const voteDomain = "tari.dan.consensus.vote"

// voteChallenge is the message committee members sign when voting.
func voteChallenge(
	epoch types.Epoch,
	shard types.Shard,
	blockID ids.ID,
	height types.Height,
	decision storage.QuorumDecision,
) []byte {
	hasher := sha256.New()
	hasher.Write([]byte(voteDomain))
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], uint64(epoch))
	hasher.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(shard))
	hasher.Write(scratch[:])
	hasher.Write(blockID[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(height))
	hasher.Write(scratch[:])
	hasher.Write([]byte{byte(decision)})
	return hasher.Sum(nil)
}

// SignatureService signs this node's votes and validates vote signatures and
// certificate quorums against the committee.
type SignatureService struct {
	nodeID ids.NodeID
	signer bls.Signer
}

// NewSignatureService binds the node identity to its bls signer.
func NewSignatureService(nodeID ids.NodeID, signer bls.Signer) *SignatureService {
	return &SignatureService{nodeID: nodeID, signer: signer}
}

// NodeID returns the local signing identity.
func (s *SignatureService) NodeID() ids.NodeID {
	return s.nodeID
}

// SignVote produces this node's vote on a block.
func (s *SignatureService) SignVote(
	epoch types.Epoch,
	shard types.Shard,
	blockID ids.ID,
	height types.Height,
	decision storage.QuorumDecision,
) (storage.Vote, error) {
	sig, err := s.signer.Sign(voteChallenge(epoch, shard, blockID, height, decision))
	if err != nil {
		return storage.Vote{}, fmt.Errorf("signing vote: %w", err)
	}
	return storage.Vote{
		Epoch:       epoch,
		Shard:       shard,
		BlockID:     blockID,
		BlockHeight: height,
		Decision:    decision,
		Signer:      s.nodeID,
		Signature:   bls.SignatureToBytes(sig),
	}, nil
}

// VerifyVote checks the vote signature against the committee member's public
// key.
func (s *SignatureService) VerifyVote(committee *types.Committee, vote storage.Vote) error {
	member := committee.Member(vote.Signer)
	if member == nil {
		return fmt.Errorf("%w: signer %s is not a committee member", ErrInvalidQuorumCertificate, vote.Signer)
	}
	sig, err := bls.SignatureFromBytes(vote.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature: %s", ErrInvalidQuorumCertificate, err)
	}
	pubKey, err := bls.PublicKeyFromCompressedBytes(member.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: malformed public key for %s: %s", ErrInvalidQuorumCertificate, vote.Signer, err)
	}
	msg := voteChallenge(vote.Epoch, vote.Shard, vote.BlockID, vote.BlockHeight, vote.Decision)
	if !bls.Verify(pubKey, sig, msg) {
		return fmt.Errorf("%w: vote signature does not verify for %s", ErrInvalidQuorumCertificate, vote.Signer)
	}
	return nil
}

// VerifyQuorumCertificate checks that the certificate carries a valid quorum
// of distinct committee signatures. The genesis sentinel passes without
// signatures.
func (s *SignatureService) VerifyQuorumCertificate(committee *types.Committee, qc *storage.QuorumCertificate) error {
	if qc == nil {
		return fmt.Errorf("%w: missing certificate", ErrInvalidQuorumCertificate)
	}
	if qc.IsGenesis() {
		return nil
	}
	if len(qc.Signatures) < committee.QuorumThreshold() {
		return fmt.Errorf("%w: %d signatures, quorum is %d",
			ErrInvalidQuorumCertificate, len(qc.Signatures), committee.QuorumThreshold())
	}

	msg := voteChallenge(qc.Epoch, qc.Shard, qc.BlockID, qc.BlockHeight, qc.Decision)
	seen := make(map[ids.NodeID]struct{}, len(qc.Signatures))
	for _, quorumSig := range qc.Signatures {
		if _, ok := seen[quorumSig.Signer]; ok {
			return fmt.Errorf("%w: duplicate signer %s", ErrInvalidQuorumCertificate, quorumSig.Signer)
		}
		seen[quorumSig.Signer] = struct{}{}

		member := committee.Member(quorumSig.Signer)
		if member == nil {
			return fmt.Errorf("%w: signer %s is not a committee member", ErrInvalidQuorumCertificate, quorumSig.Signer)
		}
		sig, err := bls.SignatureFromBytes(quorumSig.Signature)
		if err != nil {
			return fmt.Errorf("%w: malformed signature: %s", ErrInvalidQuorumCertificate, err)
		}
		pubKey, err := bls.PublicKeyFromCompressedBytes(member.PublicKey)
		if err != nil {
			return fmt.Errorf("%w: malformed public key for %s: %s", ErrInvalidQuorumCertificate, quorumSig.Signer, err)
		}
		if !bls.Verify(pubKey, sig, msg) {
			return fmt.Errorf("%w: signature by %s does not verify", ErrInvalidQuorumCertificate, quorumSig.Signer)
		}
	}
	return nil
}
