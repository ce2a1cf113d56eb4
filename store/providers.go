package store

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/leveldb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/rony4d/go-planet-node/utils/configerr"
)

func init() {
	if err := Register("memory", "memory (lachesis memorydb)", OpenMemory); err != nil {
		panic(err)
	}
	if err := Register("leveldb", "leveldb (lachesis leveldb)", OpenLevelDB); err != nil {
		panic(err)
	}
}

// OpenMemory opens a fresh in-memory database. Every call returns a new,
// empty one, so memory:// stores never resume a chain.
func OpenMemory(*url.URL) (kvdb.Store, error) {
	return memorydb.New(), nil
}

// OpenLevelDB opens leveldb:///path?preset=NAME&cache=MB&handles=N.
// A host part is taken as the start of a relative path, so
// leveldb://data/chain opens ./data/chain.
func OpenLevelDB(u *url.URL) (kvdb.Store, error) {
	path := u.Path
	if u.Host != "" {
		path = filepath.Join(u.Host, u.Path)
	}
	if path == "" {
		return nil, configerr.Invalid("StoreUri", u.String(), errors.New("leveldb store needs a path"))
	}

	cfg, err := presetFromQuery(u.Query())
	if err != nil {
		return nil, configerr.Invalid("StoreUri", u.String(), err)
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	db, err := leveldb.New(path, cfg.CacheMB*opt.MiB, cfg.Handles, nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb at %s", path)
	}
	return db, nil
}

func presetFromQuery(q url.Values) (PresetConfig, error) {
	cfg, err := GetPresetByName(q.Get("preset"))
	if err != nil {
		return cfg, err
	}
	var override PresetConfig
	if v := q.Get("cache"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, errors.Errorf("invalid cache %q", v)
		}
		override.CacheMB = n
	}
	if v := q.Get("handles"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, errors.Errorf("invalid handles %q", v)
		}
		override.Handles = n
	}
	ApplyPreset(&cfg, override)
	return cfg, nil
}
