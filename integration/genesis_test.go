package integration

import (
	"context"
	"io/ioutil"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-planet-node/genesis"
	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/utils/configerr"
)

func fakeGenesisBlock(t *testing.T, balance int64) *inter.Block {
	b, err := genesis.FakeGenesis(1, big.NewInt(balance)).Build(genesis.FakeKey(1))
	require.NoError(t, err)
	return b
}

func writeGenesis(t *testing.T, b *inter.Block) string {
	path := filepath.Join(t.TempDir(), "genesis.rlp")
	require.NoError(t, genesis.WriteFile(path, b))
	return path
}

func genesisServer(t *testing.T, b *inter.Block) (*httptest.Server, *int32) {
	raw, err := inter.EncodeBlock(b)
	require.NoError(t, err)
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/genesis", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write(raw)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Redirect(w, r, "/genesis", http.StatusFound)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("not a block"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolveGenesisFromFile(t *testing.T) {
	require := require.New(t)
	want := fakeGenesisBlock(t, 100)
	path := writeGenesis(t, want)

	r := &GenesisResolver{}
	for _, location := range []string{path, "file://" + filepath.ToSlash(path)} {
		got, err := r.Resolve(context.Background(), location)
		require.NoError(err, location)
		require.Equal(want.Hash(), got.Hash())
	}

	_, err := r.Resolve(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(err)
}

func TestResolveGenesisOverHTTP(t *testing.T) {
	require := require.New(t)
	want := fakeGenesisBlock(t, 100)
	srv, _ := genesisServer(t, want)

	r := &GenesisResolver{Client: srv.Client()}
	got, err := r.Resolve(context.Background(), srv.URL+"/genesis")
	require.NoError(err)
	require.Equal(want.Hash(), got.Hash())

	got, err = r.Resolve(context.Background(), srv.URL+"/moved")
	require.NoError(err)
	require.Equal(want.Hash(), got.Hash())

	_, err = r.Resolve(context.Background(), srv.URL+"/nowhere")
	require.Error(err)
	require.Contains(err.Error(), "404")
}

func TestResolveMalformedGenesis(t *testing.T) {
	srv, _ := genesisServer(t, fakeGenesisBlock(t, 1))
	path := filepath.Join(t.TempDir(), "bad.rlp")
	require.NoError(t, ioutil.WriteFile(path, []byte{0xc2, 0x01, 0x02}, 0600))

	r := &GenesisResolver{Client: srv.Client()}
	for _, location := range []string{srv.URL + "/garbage", path} {
		_, err := r.Resolve(context.Background(), location)
		var malformed *MalformedGenesisError
		if !errors.As(err, &malformed) {
			t.Fatalf("%s: expected MalformedGenesisError, got %v", location, err)
		}
		require.Equal(t, location, malformed.Location)
	}
}

func TestResolveUnsupportedSchemeWithoutIO(t *testing.T) {
	srv, hits := genesisServer(t, fakeGenesisBlock(t, 1))

	r := &GenesisResolver{Client: srv.Client()}
	_, err := r.Resolve(context.Background(), "ftp://"+srv.Listener.Addr().String()+"/genesis")
	var unsupported *UnsupportedSchemeError
	require.True(t, errors.As(err, &unsupported))
	require.Equal(t, "ftp", unsupported.Scheme)
	require.True(t, errors.Is(err, configerr.ErrInvalidConfiguration))
	require.Zero(t, atomic.LoadInt32(hits))
}
