// Package genesis builds genesis blocks, the fixed first block every node of
// a network must agree on. A genesis block carries a single transaction
// that mints the initial allocations and installs the initial validator
// set; both actions only take effect at index 0.
//
// Key concepts:
//   - Genesis: the declarative definition (time, validators, allocations)
//   - Build: turns a definition into a signed block 0
//   - FakeGenesis: a deterministic definition for local and test networks
//
// Usage:
//
//	g := genesis.FakeGenesis(3, big.NewInt(1e18))
//	block, err := g.Build(genesis.FakeKey(1))
//	err = genesis.WriteFile("genesis.bin", block)
package genesis

import (
	"crypto/ecdsa"
	"encoding/binary"
	"io/ioutil"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/actions"
	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/inter/validatorpk"
	"github.com/rony4d/go-planet-node/policy"
)

// FakeGenesisTime is the timestamp of every fake genesis block.
var FakeGenesisTime = time.Unix(1608600000, 0).UTC()

// Genesis defines the initial state of a network.
type Genesis struct {
	// Time becomes the timestamp of block 0 and of its transaction.
	Time time.Time

	// Validators is the initial commit-signer roster.
	Validators []inter.Validator

	// Allocations are minted to their addresses at block 0.
	Allocations []actions.Allocation
}

// Actions returns the genesis transaction's actions in execution order.
func (g Genesis) Actions() []actions.Action {
	aa := make([]actions.Action, 0, 1+len(g.Validators))
	aa = append(aa, &actions.InitializeStates{Allocations: g.Allocations})
	for _, v := range g.Validators {
		aa = append(aa, &actions.SetValidator{Validator: v})
	}
	return aa
}

// Validate checks the definition is self-consistent.
func (g Genesis) Validate() error {
	if _, err := inter.NewValidatorSet(g.Validators); err != nil {
		return errors.Wrap(err, "genesis validators")
	}
	for _, a := range g.Allocations {
		if a.Amount.RawValue == nil || a.Amount.RawValue.Sign() <= 0 {
			return errors.Errorf("genesis allocation to %s must be positive", a.Address.Hex())
		}
	}
	return nil
}

// Build signs block 0 with key. The key's account signs the genesis
// transaction with nonce 0.
func (g Genesis) Build(key *ecdsa.PrivateKey) (*inter.Block, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	raw, err := actions.EncodeAll(g.Actions()...)
	if err != nil {
		return nil, err
	}
	tx, err := inter.NewTransaction(key, 0, raw, g.Time)
	if err != nil {
		return nil, err
	}
	b := &inter.Block{
		Header: inter.Header{
			ProtocolVersion: inter.ProtocolVersion,
			Index:           0,
			Timestamp:       inter.TimestampOf(g.Time),
		},
		Transactions: []*inter.Transaction{tx},
	}
	if err := b.Sign(key); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteFile stores the RLP encoding of b at path, the format read back by
// integration.GenesisResolver.
func WriteFile(path string, b *inter.Block) error {
	raw, err := inter.EncodeBlock(b)
	if err != nil {
		return err
	}
	return errors.Wrapf(ioutil.WriteFile(path, raw, 0644), "write genesis to %s", path)
}

// FakeKey derives a deterministic private key for index n. Keys 1..n are
// the validators of FakeGenesis(n, ...).
func FakeKey(n int) *ecdsa.PrivateKey {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(n))
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("planetnode fake key"), seed[:]))
	if err != nil {
		panic(err)
	}
	return key
}

// FakeGenesis defines a network of n equally powered validators
// FakeKey(1)..FakeKey(n), each holding balance units of the key currency.
func FakeGenesis(n int, balance *big.Int) Genesis {
	g := Genesis{Time: FakeGenesisTime}
	for i := 1; i <= n; i++ {
		key := FakeKey(i)
		g.Validators = append(g.Validators, inter.Validator{
			PubKey: validatorpk.FromECDSA(&key.PublicKey),
			Power:  1,
		})
		if balance != nil && balance.Sign() > 0 {
			g.Allocations = append(g.Allocations, actions.Allocation{
				Address: crypto.PubkeyToAddress(key.PublicKey),
				Amount: inter.FungibleAssetValue{
					Currency: policy.KeyCurrency,
					RawValue: new(big.Int).Set(balance),
				},
			})
		}
	}
	return g
}
