// Package stage implements the pending-transaction pool's admission and
// eviction policy.
package stage

import (
	"bytes"
	"sort"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/benbjohnson/clock"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter"
)

// ErrExpired is returned when staging a transaction older than the lifetime.
var ErrExpired = errors.New("transaction expired")

// ErrIgnored is returned when staging a transaction that was ignored.
var ErrIgnored = errors.New("transaction ignored")

// VolatileStagePolicy keeps staged transactions in memory for a fixed
// lifetime counted from each transaction's own timestamp. Nothing survives
// a restart.
//
// Ignored ids are remembered for the same lifetime so that a rejected
// transaction relayed again by peers is not staged twice.
type VolatileStagePolicy struct {
	lifetime time.Duration
	clock    clock.Clock
	staged   *cache.Cache
	ignored  *cache.Cache
}

// NewVolatileStagePolicy creates a policy. A nil clock uses the wall clock.
func NewVolatileStagePolicy(lifetime time.Duration, clk clock.Clock) *VolatileStagePolicy {
	if clk == nil {
		clk = clock.New()
	}
	cleanup := lifetime
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &VolatileStagePolicy{
		lifetime: lifetime,
		clock:    clk,
		staged:   cache.New(lifetime, cleanup),
		ignored:  cache.New(lifetime, cleanup),
	}
}

// Lifetime returns the configured transaction lifetime.
func (p *VolatileStagePolicy) Lifetime() time.Duration {
	return p.lifetime
}

func key(id hash.Hash) string {
	return string(id[:])
}

func (p *VolatileStagePolicy) expired(tx *inter.Transaction) bool {
	return p.clock.Now().Sub(tx.Timestamp.Time()) > p.lifetime
}

// Stage adds tx to the pool. Staging an already staged transaction is a
// no-op.
func (p *VolatileStagePolicy) Stage(tx *inter.Transaction) error {
	id := tx.ID()
	if p.Ignores(id) {
		return ErrIgnored
	}
	if p.expired(tx) {
		return errors.Wrapf(ErrExpired, "transaction %s from %s", id, tx.Timestamp)
	}
	p.staged.Set(key(id), tx, cache.DefaultExpiration)
	return nil
}

// Unstage removes a transaction and reports whether it was staged.
func (p *VolatileStagePolicy) Unstage(id hash.Hash) bool {
	_, ok := p.staged.Get(key(id))
	p.staged.Delete(key(id))
	return ok
}

// Ignore drops a transaction and refuses it until the lifetime passes.
func (p *VolatileStagePolicy) Ignore(id hash.Hash) {
	p.staged.Delete(key(id))
	p.ignored.Set(key(id), struct{}{}, cache.DefaultExpiration)
}

// Ignores reports whether id was ignored.
func (p *VolatileStagePolicy) Ignores(id hash.Hash) bool {
	_, ok := p.ignored.Get(key(id))
	return ok
}

// Get returns a staged transaction. Expired ones are reported missing.
func (p *VolatileStagePolicy) Get(id hash.Hash) (*inter.Transaction, bool) {
	v, ok := p.staged.Get(key(id))
	if !ok {
		return nil, false
	}
	tx := v.(*inter.Transaction)
	if p.expired(tx) {
		return nil, false
	}
	return tx, true
}

// Iterate lists staged transactions ordered by signer, then nonce, with
// expired transactions left out.
func (p *VolatileStagePolicy) Iterate() []*inter.Transaction {
	items := p.staged.Items()
	out := make([]*inter.Transaction, 0, len(items))
	for _, it := range items {
		tx := it.Object.(*inter.Transaction)
		if p.expired(tx) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Signer[:], out[j].Signer[:]); c != 0 {
			return c < 0
		}
		if out[i].Nonce != out[j].Nonce {
			return out[i].Nonce < out[j].Nonce
		}
		return bytes.Compare(out[i].Signature, out[j].Signature) < 0
	})
	return out
}

// Count returns the number of staged transactions, including ones that
// expired but were not swept yet.
func (p *VolatileStagePolicy) Count() int {
	return p.staged.ItemCount()
}
