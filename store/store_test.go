package store

import (
	"math/big"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-planet-node/actions"
	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/inter/validatorpk"
	"github.com/rony4d/go-planet-node/utils/configerr"
)

func TestResolveUnsupportedSchemeListsRegistered(t *testing.T) {
	require := require.New(t)

	r := NewRegistry()
	require.NoError(r.Register("memory", "in-memory", OpenMemory))
	require.NoError(r.Register("rocksdb", "rocks", OpenMemory))

	_, _, _, err := r.Resolve("mysql://localhost/db")
	var e *UnsupportedStoreSchemeError
	require.True(errors.As(err, &e))
	require.Equal("mysql", e.Scheme)
	require.Equal([]Registration{{"memory", "in-memory"}, {"rocksdb", "rocks"}}, e.Registered)
	require.True(strings.Contains(err.Error(), "memory: in-memory"))
	require.True(strings.Contains(err.Error(), "rocksdb: rocks"))
	require.True(errors.Is(err, configerr.ErrInvalidConfiguration))
}

func TestRegisterTwiceFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("memory", "a", OpenMemory))
	require.Error(t, r.Register("MEMORY", "b", OpenMemory))
}

func TestDefaultRegistryProviders(t *testing.T) {
	list := DefaultRegistry.List()
	schemes := make([]string, len(list))
	for i, r := range list {
		schemes[i] = r.Scheme
	}
	require.Equal(t, []string{"leveldb", "memory"}, schemes)
}

func TestResolveMemoryIsFresh(t *testing.T) {
	s, st, has, err := Resolve("memory://")
	require.NoError(t, err)
	defer s.Close()
	require.False(t, has)
	require.NotNil(t, st)
}

func TestResolveLevelDBDetectsCanonicalChain(t *testing.T) {
	require := require.New(t)
	uri := "leveldb://" + t.TempDir() + "?preset=lite"

	s, _, has, err := Resolve(uri)
	require.NoError(err)
	require.False(has)

	id := uuid.New()
	batch := s.NewBatch()
	require.NoError(s.SetCanonicalChainID(batch, id))
	require.NoError(batch.Write())
	require.NoError(s.Close())

	s, _, has, err = Resolve(uri)
	require.NoError(err)
	defer s.Close()
	require.True(has)
	got, ok, err := s.CanonicalChainID()
	require.NoError(err)
	require.True(ok)
	require.Equal(id, got)
}

func TestLevelDBBadQuery(t *testing.T) {
	_, _, _, err := Resolve("leveldb://" + t.TempDir() + "?preset=huge")
	require.True(t, errors.Is(err, configerr.ErrInvalidConfiguration))

	_, _, _, err = Resolve("leveldb://" + t.TempDir() + "?cache=-1")
	require.Error(t, err)
}

func TestPresetFromQuery(t *testing.T) {
	tests := []struct {
		query   string
		want    PresetConfig
		wantErr bool
	}{
		{"", DefaultPreset(), false},
		{"preset=full", FullPreset(), false},
		{"preset=lite&cache=48", PresetConfig{Name: "lite", CacheMB: 48, Handles: 64}, false},
		{"handles=10", PresetConfig{Name: "default", CacheMB: 256, Handles: 10}, false},
		{"preset=nope", PresetConfig{}, true},
		{"cache=abc", PresetConfig{}, true},
	}
	for _, tt := range tests {
		q, err := url.ParseQuery(tt.query)
		require.NoError(t, err)
		got, err := presetFromQuery(q)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("query %q: expected error", tt.query)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("query %q: got %+v, %v; want %+v", tt.query, got, err, tt.want)
		}
	}
}

func newMemStore() *Store {
	var db kvdb.Store = memorydb.New()
	return NewStore(db)
}

func TestBlockAndCommitRoundTrip(t *testing.T) {
	require := require.New(t)
	s := newMemStore()
	key, err := crypto.GenerateKey()
	require.NoError(err)

	b := &inter.Block{Header: inter.Header{Index: 7, Timestamp: inter.TimestampOf(time.Unix(5, 0))}}
	require.NoError(b.Sign(key))
	vote, err := inter.VoteMetadata{
		Height:    7,
		BlockHash: b.Hash(),
		Validator: validatorpk.FromECDSA(&key.PublicKey),
		Flag:      inter.VotePreCommit,
	}.Sign(key)
	require.NoError(err)
	commit := &inter.BlockCommit{Height: 7, BlockHash: b.Hash(), Votes: []inter.Vote{vote}}

	batch := s.NewBatch()
	require.NoError(s.PutBlock(batch, b))
	require.NoError(s.PutCommit(batch, commit))
	require.NoError(s.SetTip(batch, 7))
	require.NoError(s.SetTxNonce(batch, b.Header.Miner, 3))

	// Nothing is visible before the batch is written.
	got, err := s.GetBlock(b.Hash())
	require.NoError(err)
	require.Nil(got)
	_, ok, err := s.Tip()
	require.NoError(err)
	require.False(ok)

	require.NoError(batch.Write())

	got, err = s.GetBlock(b.Hash())
	require.NoError(err)
	require.Equal(b.Hash(), got.Hash())

	h, ok, err := s.GetBlockHash(7)
	require.NoError(err)
	require.True(ok)
	require.Equal(b.Hash(), h)

	c, err := s.GetCommit(b.Hash())
	require.NoError(err)
	require.NoError(c.Verify(nil))

	tip, ok, err := s.Tip()
	require.NoError(err)
	require.True(ok)
	require.EqualValues(7, tip)

	n, err := s.GetTxNonce(b.Header.Miner)
	require.NoError(err)
	require.Equal(uint64(3), n)
	n, err = s.GetTxNonce(common.Address{})
	require.NoError(err)
	require.Zero(n)
}

func TestStateStoreWriteDelta(t *testing.T) {
	require := require.New(t)
	s := newMemStore()
	st := s.State()

	png := inter.Currency{Ticker: "PNG", DecimalPlaces: 18}
	alice, bob := common.HexToAddress("0xa1"), common.HexToAddress("0xb0")
	key, err := crypto.GenerateKey()
	require.NoError(err)

	set, err := st.ValidatorSet()
	require.NoError(err)
	require.Zero(set.Len())

	d := actions.NewDelta(st)
	require.NoError(d.Mint(alice, inter.FungibleAssetValue{Currency: png, RawValue: big.NewInt(10)}))
	require.NoError(d.Transfer(alice, bob, inter.FungibleAssetValue{Currency: png, RawValue: big.NewInt(10)}))
	require.NoError(d.SetValidator(inter.Validator{PubKey: validatorpk.FromECDSA(&key.PublicKey), Power: 4}))

	batch := s.NewBatch()
	require.NoError(st.WriteDelta(batch, d))
	require.NoError(batch.Write())

	a, err := st.Balance(alice, png)
	require.NoError(err)
	require.Zero(a.Sign())
	b, err := st.Balance(bob, png)
	require.NoError(err)
	require.Equal(int64(10), b.Int64())

	set, err = st.ValidatorSet()
	require.NoError(err)
	require.Equal(uint64(4), set.TotalPower())
}
