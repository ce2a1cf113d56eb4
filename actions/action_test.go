package actions

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/inter/validatorpk"
)

var png = inter.Currency{Ticker: "PNG", DecimalPlaces: 18}

type memState struct {
	balances map[common.Address]*big.Int
	set      *inter.ValidatorSet
}

func (m *memState) Balance(addr common.Address, _ inter.Currency) (*big.Int, error) {
	return m.balances[addr], nil
}

func (m *memState) ValidatorSet() (*inter.ValidatorSet, error) {
	if m.set == nil {
		return inter.EmptyValidatorSet(), nil
	}
	return m.set, nil
}

func amount(n int64) inter.FungibleAssetValue {
	return inter.FungibleAssetValue{Currency: png, RawValue: big.NewInt(n)}
}

func TestEncodeDecodeEveryKind(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	a, b := common.HexToAddress("0x01"), common.HexToAddress("0x02")

	all := []Action{
		&InitializeStates{Allocations: []Allocation{{Address: a, Amount: amount(5)}}},
		&TransferAsset{Sender: a, Recipient: b, Amount: amount(3)},
		&MintAsset{Recipient: b, Amount: amount(1)},
		&SetValidator{Validator: inter.Validator{PubKey: validatorpk.FromECDSA(&key.PublicKey), Power: 7}},
	}
	for _, act := range all {
		t.Run(act.Kind().String(), func(t *testing.T) {
			raw, err := Encode(act)
			require.NoError(t, err)
			got, err := Decode(raw)
			require.NoError(t, err)
			require.Equal(t, act.Kind(), got.Kind())

			again, err := Encode(got)
			require.NoError(t, err)
			require.Equal(t, raw, again)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	raw, err := rlp.EncodeToBytes(&envelope{Kind: 99, Payload: []byte{0xc0}})
	require.NoError(t, err)
	_, err = Decode(raw)
	require.Error(t, err)

	_, err = Decode([]byte{0xff})
	require.Error(t, err)
}

func TestInitializeStatesOnlyAtGenesis(t *testing.T) {
	require := require.New(t)
	addr := common.HexToAddress("0x01")
	act := &InitializeStates{Allocations: []Allocation{{Address: addr, Amount: amount(100)}}}

	d := NewDelta(&memState{})
	require.NoError(act.Execute(&ExecutionContext{BlockIndex: 0}, d))
	bal, err := d.Balance(addr, png)
	require.NoError(err)
	require.Equal(int64(100), bal.Int64())

	d = NewDelta(&memState{})
	require.NoError(act.Execute(&ExecutionContext{BlockIndex: 3}, d))
	require.Empty(d.Balances())
}

func TestTransferAsset(t *testing.T) {
	alice, bob := common.HexToAddress("0xa1"), common.HexToAddress("0xb0")
	other := inter.Currency{Ticker: "XYZ"}

	tests := []struct {
		name    string
		ctx     ExecutionContext
		act     TransferAsset
		check   func(err error) bool
		balance int64
	}{
		{
			name:    "ok",
			ctx:     ExecutionContext{Signer: alice},
			act:     TransferAsset{Sender: alice, Recipient: bob, Amount: amount(40)},
			check:   func(err error) bool { return err == nil },
			balance: 60,
		},
		{
			name: "foreign signer",
			ctx:  ExecutionContext{Signer: bob},
			act:  TransferAsset{Sender: alice, Recipient: bob, Amount: amount(40)},
			check: func(err error) bool {
				var e *InvalidTransferSignerError
				return errors.As(err, &e) && e.Signer == bob
			},
			balance: 100,
		},
		{
			name: "insufficient",
			ctx:  ExecutionContext{Signer: alice},
			act:  TransferAsset{Sender: alice, Recipient: bob, Amount: amount(101)},
			check: func(err error) bool {
				var e *InsufficientBalanceError
				return errors.As(err, &e) && e.Balance.RawValue.Int64() == 100
			},
			balance: 100,
		},
		{
			name: "non native",
			ctx:  ExecutionContext{Signer: alice, NativeTokens: []inter.Currency{other}},
			act:  TransferAsset{Sender: alice, Recipient: bob, Amount: amount(1)},
			check: func(err error) bool {
				var e *NonNativeCurrencyError
				return errors.As(err, &e)
			},
			balance: 100,
		},
		{
			name:    "zero amount",
			ctx:     ExecutionContext{Signer: alice},
			act:     TransferAsset{Sender: alice, Recipient: bob, Amount: amount(0)},
			check:   func(err error) bool { return err != nil },
			balance: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDelta(&memState{balances: map[common.Address]*big.Int{alice: big.NewInt(100)}})
			err := tt.act.Execute(&tt.ctx, d)
			if !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			bal, err := d.Balance(alice, png)
			require.NoError(t, err)
			require.Equal(t, tt.balance, bal.Int64())
		})
	}
}

func TestMintAssetRequiresMinter(t *testing.T) {
	minter, bob := common.HexToAddress("0x0a"), common.HexToAddress("0xb0")
	c := inter.Currency{Ticker: "GOLD", Minters: []common.Address{minter}}
	act := &MintAsset{Recipient: bob, Amount: inter.FungibleAssetValue{Currency: c, RawValue: big.NewInt(9)}}

	d := NewDelta(&memState{})
	var e *UnauthorizedMinterError
	require.True(t, errors.As(act.Execute(&ExecutionContext{Signer: bob}, d), &e))

	require.NoError(t, act.Execute(&ExecutionContext{Signer: minter}, d))
	bal, err := d.Balance(bob, c)
	require.NoError(t, err)
	require.Equal(t, int64(9), bal.Int64())
}

func TestSetValidatorOnlyAtGenesis(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	act := &SetValidator{Validator: inter.Validator{PubKey: validatorpk.FromECDSA(&key.PublicKey), Power: 5}}

	d := NewDelta(&memState{})
	require.Error(t, act.Execute(&ExecutionContext{BlockIndex: 1}, d))
	require.Nil(t, d.UpdatedValidators())

	require.NoError(t, act.Execute(&ExecutionContext{BlockIndex: 0}, d))
	set, err := d.ValidatorSet()
	require.NoError(t, err)
	require.Equal(t, uint64(5), set.TotalPower())
}

func TestDeltaMergeIsolatesFailedTransaction(t *testing.T) {
	require := require.New(t)
	alice, bob := common.HexToAddress("0xa1"), common.HexToAddress("0xb0")
	block := NewDelta(&memState{balances: map[common.Address]*big.Int{alice: big.NewInt(10)}})

	ok := NewDelta(block)
	require.NoError(ok.Transfer(alice, bob, amount(4)))
	block.Merge(ok)

	failed := NewDelta(block)
	require.NoError(failed.Transfer(alice, bob, amount(1)))
	require.Error(failed.Transfer(alice, bob, amount(100)))

	bal, err := block.Balance(alice, png)
	require.NoError(err)
	require.Equal(int64(6), bal.Int64())
	require.Len(block.Balances(), 2)
}

func TestEvaluate(t *testing.T) {
	require := require.New(t)
	key, err := crypto.GenerateKey()
	require.NoError(err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	bob := common.HexToAddress("0xb0")

	raw, err := EncodeAll(&TransferAsset{Sender: signer, Recipient: bob, Amount: amount(2)})
	require.NoError(err)
	tx, err := inter.NewTransaction(key, 0, raw, time.Unix(0, 0))
	require.NoError(err)

	d := NewDelta(&memState{balances: map[common.Address]*big.Int{signer: big.NewInt(3)}})
	require.NoError(Evaluate(tx, ExecutionContext{BlockIndex: 1}, d))
	bal, err := d.Balance(bob, png)
	require.NoError(err)
	require.Equal(int64(2), bal.Int64())

	tx.Actions = append(tx.Actions, []byte{0x01})
	require.Error(Evaluate(tx, ExecutionContext{BlockIndex: 1}, NewDelta(d)))
}
