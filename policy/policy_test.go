package policy

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-planet-node/actions"
	"github.com/rony4d/go-planet-node/inter"
)

// TestNetworkConstants verifies the network identifiers.
func TestNetworkConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant uint64
		want     uint64
	}{
		{"MainNetworkID", MainNetworkID, 0x504e},
		{"FakeNetworkID", FakeNetworkID, 0x5046},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.want {
				t.Errorf("%s = %#x, want %#x", tt.name, tt.constant, tt.want)
			}
		})
	}
}

// TestRulesPresets checks the preset limits and the native token.
func TestRulesPresets(t *testing.T) {
	main := MainNetRules()
	if main.Name != "main" || main.Blocks.MaxTransactionsPerBlock != 100 || main.Blocks.MaxTransactionsPerSignerPerBlock != 10 {
		t.Errorf("unexpected mainnet rules: %s", main)
	}
	fake := FakeNetRules()
	if fake.Name != "fake" || fake.Blocks.MaxBlockBytes != 0 {
		t.Errorf("unexpected fakenet rules: %s", fake)
	}
	for _, r := range []Rules{main, fake} {
		if len(r.NativeTokens) != 1 || r.NativeTokens[0].Hash() != KeyCurrency.Hash() {
			t.Errorf("%s: native tokens = %v", r.Name, r.NativeTokens)
		}
	}
}

// TestRulesCopy verifies that copies do not share the token list.
func TestRulesCopy(t *testing.T) {
	orig := MainNetRules()
	cp := orig.Copy()
	cp.NativeTokens[0].Ticker = "XXX"
	if orig.NativeTokens[0].Ticker != "PNG" {
		t.Fatal("Copy shares NativeTokens with the original")
	}
}

func TestDefaultUsesGivenTokens(t *testing.T) {
	gold := inter.Currency{Ticker: "GOLD"}
	p := Default([]inter.Currency{gold})
	require.Len(t, p.NativeTokens(), 1)
	require.Equal(t, gold.Hash(), p.NativeTokens()[0].Hash())
	require.Empty(t, Default(nil).NativeTokens())
}

func signedTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, raw ...[]byte) *inter.Transaction {
	tx, err := inter.NewTransaction(key, nonce, raw, time.Unix(1, 0))
	require.NoError(t, err)
	return tx
}

func TestValidateNextTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p := New(FakeNetRules())

	good, err := actions.Encode(&actions.MintAsset{Amount: inter.NewFungibleAssetValue(KeyCurrency, 1, 0)})
	require.NoError(t, err)

	require.NoError(t, p.ValidateNextTransaction(signedTx(t, key, 0, good)))
	require.Error(t, p.ValidateNextTransaction(signedTx(t, key, 0, []byte{0x80})))

	forged := signedTx(t, key, 0, good)
	forged.Nonce = 9
	require.Error(t, p.ValidateNextTransaction(forged))
}

func TestValidateNextBlockLimits(t *testing.T) {
	a, err := crypto.GenerateKey()
	require.NoError(t, err)
	b, err := crypto.GenerateKey()
	require.NoError(t, err)

	rules := FakeNetRules()
	rules.Blocks = BlocksRules{MaxTransactionsPerBlock: 3, MaxTransactionsPerSignerPerBlock: 2}
	p := New(rules)

	tests := []struct {
		name string
		txs  []*inter.Transaction
		ok   bool
	}{
		{"empty", nil, true},
		{"within limits", []*inter.Transaction{signedTx(t, a, 0), signedTx(t, a, 1), signedTx(t, b, 0)}, true},
		{"too many", []*inter.Transaction{signedTx(t, a, 0), signedTx(t, b, 0), signedTx(t, b, 1), signedTx(t, a, 1)}, false},
		{"one signer over", []*inter.Transaction{signedTx(t, a, 0), signedTx(t, a, 1), signedTx(t, a, 2)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blk := &inter.Block{Header: inter.Header{Index: 1}, Transactions: tt.txs}
			require.NoError(t, blk.Sign(a))
			err := p.ValidateNextBlock(blk)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}

	require.Equal(t, 3, p.MaxTransactionsPerBlock(1))
	require.Equal(t, 2, p.MaxTransactionsPerSignerPerBlock(1))

	rules.Blocks = BlocksRules{MaxBlockBytes: 64}
	blk := &inter.Block{Header: inter.Header{Index: 1}, Transactions: []*inter.Transaction{signedTx(t, a, 0)}}
	require.NoError(t, blk.Sign(a))
	require.Error(t, New(rules).ValidateNextBlock(blk))
}
