package inter

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter/validatorpk"
)

// VoteFlag is the stage of agreement a vote expresses.
type VoteFlag uint8

const (
	// VoteNull marks an absent vote.
	VoteNull VoteFlag = iota
	// VotePreVote is the first round of a two-phase vote.
	VotePreVote
	// VotePreCommit attests that the block is final.
	VotePreCommit
)

func (f VoteFlag) String() string {
	switch f {
	case VoteNull:
		return "null"
	case VotePreVote:
		return "prevote"
	case VotePreCommit:
		return "precommit"
	default:
		return fmt.Sprintf("VoteFlag(%d)", uint8(f))
	}
}

// VoteMetadata is the signed part of a vote.
type VoteMetadata struct {
	Height    idx.Block
	Round     uint32
	BlockHash hash.Hash
	Timestamp Timestamp
	Validator validatorpk.PubKey
	Flag      VoteFlag
}

func (m *VoteMetadata) digest() hash.Hash {
	return hash.Of(mustEncode(m))
}

// Sign produces a vote. The metadata's Validator must belong to key.
func (m VoteMetadata) Sign(key *ecdsa.PrivateKey) (Vote, error) {
	if !m.Validator.Equal(validatorpk.FromECDSA(&key.PublicKey)) {
		return Vote{}, errors.New("vote validator does not match signing key")
	}
	sig, err := crypto.Sign(m.digest().Bytes(), key)
	if err != nil {
		return Vote{}, err
	}
	return Vote{Metadata: m, Signature: sig}, nil
}

// Vote is a validator's signed statement about one block.
type Vote struct {
	Metadata  VoteMetadata
	Signature []byte
}

// Verify checks the vote signature against the metadata's validator key.
func (v *Vote) Verify() error {
	return verifySignature(v.Metadata.Validator, v.Metadata.digest(), v.Signature)
}

// BlockCommit bundles the precommit votes that finalize one block.
type BlockCommit struct {
	Height    idx.Block
	Round     uint32
	BlockHash hash.Hash
	Votes     []Vote
}

// Verify checks that every vote is a correctly signed precommit for this
// commit's block, height and round, and that no validator voted twice.
//
// When set is non-empty the signers must also be members of it and their
// combined power must reach the quorum (see QuorumPower). An empty set
// means the chain has no validator roster yet, so only signatures count.
func (c *BlockCommit) Verify(set *ValidatorSet) error {
	if len(c.Votes) == 0 {
		return errors.New("commit has no votes")
	}
	seen := make(map[string]struct{}, len(c.Votes))
	var power uint64
	for i := range c.Votes {
		v := &c.Votes[i]
		m := v.Metadata
		if m.Height != c.Height || m.Round != c.Round || m.BlockHash != c.BlockHash {
			return errors.Errorf("vote %d does not match commit (height %d, round %d, block %s)", i, c.Height, c.Round, c.BlockHash)
		}
		if m.Flag != VotePreCommit {
			return errors.Errorf("vote %d is a %s, want precommit", i, m.Flag)
		}
		key := string(m.Validator.Bytes())
		if _, dup := seen[key]; dup {
			return errors.Errorf("validator %s voted twice", m.Validator)
		}
		seen[key] = struct{}{}
		if err := v.Verify(); err != nil {
			return errors.Wrapf(err, "vote %d", i)
		}
		if set.Len() > 0 {
			val, ok := set.GetValidator(m.Validator)
			if !ok {
				return errors.Errorf("vote %d signed by non-validator %s", i, m.Validator)
			}
			power += val.Power
		}
	}
	if set.Len() > 0 {
		if required := QuorumPower(set.TotalPower()); power < required {
			return errors.Errorf("commit power %d below quorum %d", power, required)
		}
	}
	return nil
}
