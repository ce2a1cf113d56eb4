package integration

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/utils/configerr"
)

const maxGenesisBytes = 256 << 20

// UnsupportedSchemeError is returned for a genesis location that is
// neither a file nor an http(s) URL.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported genesis scheme %q (want file, http or https)", e.Scheme)
}

func (e *UnsupportedSchemeError) Is(target error) bool {
	return target == configerr.ErrInvalidConfiguration
}

// MalformedGenesisError is returned when the genesis bytes do not decode
// into a block.
type MalformedGenesisError struct {
	Location string
	Cause    error
}

func (e *MalformedGenesisError) Error() string {
	return fmt.Sprintf("malformed genesis block at %s: %v", e.Location, e.Cause)
}

func (e *MalformedGenesisError) Unwrap() error { return e.Cause }

// GenesisResolver loads the genesis block. It never retries.
type GenesisResolver struct {
	// Client fetches http(s) locations, http.DefaultClient when nil.
	// Redirects are followed.
	Client *http.Client
}

// Resolve reads the block at location. A location without a scheme is a
// local path.
func (r *GenesisResolver) Resolve(ctx context.Context, location string) (*inter.Block, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, configerr.Invalid("GenesisBlockPath", location, err)
	}

	var raw []byte
	switch strings.ToLower(u.Scheme) {
	case "":
		raw, err = ioutil.ReadFile(location)
	case "file":
		raw, err = ioutil.ReadFile(filePath(u))
	case "http", "https":
		raw, err = r.fetch(ctx, u)
	default:
		return nil, &UnsupportedSchemeError{Scheme: u.Scheme}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load genesis block from %s", location)
	}
	return decodeGenesis(location, raw)
}

func filePath(u *url.URL) string {
	p := u.Path
	if u.Host != "" && u.Host != "localhost" {
		p = filepath.Join(u.Host, p)
	}
	if u.Opaque != "" {
		p = u.Opaque
	}
	return filepath.FromSlash(p)
}

func (r *GenesisResolver) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("GET %s: %s", u.Redacted(), resp.Status)
	}
	return ioutil.ReadAll(io.LimitReader(resp.Body, maxGenesisBytes))
}

// decodeGenesis checks that raw is a single rlp list before decoding it as
// a block, so that garbage is reported as malformed rather than as a
// field mismatch.
func decodeGenesis(location string, raw []byte) (*inter.Block, error) {
	kind, _, rest, err := rlp.Split(raw)
	if err != nil {
		return nil, &MalformedGenesisError{Location: location, Cause: err}
	}
	if kind != rlp.List {
		return nil, &MalformedGenesisError{Location: location, Cause: errors.New("not an rlp list")}
	}
	if len(rest) > 0 {
		return nil, &MalformedGenesisError{Location: location, Cause: errors.Errorf("%d trailing bytes", len(rest))}
	}
	b, err := inter.DecodeBlock(raw)
	if err != nil {
		return nil, &MalformedGenesisError{Location: location, Cause: err}
	}
	return b, nil
}
