package store

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/utils/configerr"
)

// Provider opens the database a store URI points at.
type Provider func(u *url.URL) (kvdb.Store, error)

// Registration describes one registered provider.
type Registration struct {
	Scheme   string
	Provider string
}

func (r Registration) String() string {
	return r.Scheme + ": " + r.Provider
}

// UnsupportedStoreSchemeError is returned for a store URI whose scheme has
// no provider. It lists every registered one so an operator can fix the
// configuration without reading the source.
type UnsupportedStoreSchemeError struct {
	Scheme     string
	Registered []Registration
}

func (e *UnsupportedStoreSchemeError) Error() string {
	parts := make([]string, len(e.Registered))
	for i, r := range e.Registered {
		parts[i] = r.String()
	}
	return fmt.Sprintf("unsupported store URI scheme %q; registered schemes: %s", e.Scheme, strings.Join(parts, ", "))
}

func (e *UnsupportedStoreSchemeError) Is(target error) bool {
	return target == configerr.ErrInvalidConfiguration
}

type provider struct {
	name string
	open Provider
}

// Registry maps URI schemes to store providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]provider)}
}

// Register adds a provider. Registering a scheme twice is an error.
func (r *Registry) Register(scheme, name string, open Provider) error {
	scheme = strings.ToLower(scheme)
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.providers[scheme]; ok {
		return errors.Errorf("store scheme %q already registered by %s", scheme, prev.name)
	}
	r.providers[scheme] = provider{name: name, open: open}
	return nil
}

// List returns the registered providers sorted by scheme.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.providers))
	for scheme, p := range r.providers {
		out = append(out, Registration{Scheme: scheme, Provider: p.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scheme < out[j].Scheme })
	return out
}

// Resolve opens the store behind uri and reports whether it already holds
// a canonical chain. The flag is computed once here; callers must not
// re-derive it later.
func (r *Registry) Resolve(uri string) (*Store, *StateStore, bool, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, nil, false, configerr.Invalid("StoreUri", uri, err)
	}
	scheme := strings.ToLower(u.Scheme)

	r.mu.RLock()
	p, ok := r.providers[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, false, &UnsupportedStoreSchemeError{Scheme: u.Scheme, Registered: r.List()}
	}

	db, err := p.open(u)
	if err != nil {
		return nil, nil, false, errors.Wrapf(err, "open %s store", p.name)
	}
	s := NewStore(db)
	_, has, err := s.CanonicalChainID()
	if err != nil {
		_ = s.Close()
		return nil, nil, false, err
	}
	return s, s.State(), has, nil
}

// DefaultRegistry is populated by the providers of this package at init.
var DefaultRegistry = NewRegistry()

// Register adds a provider to DefaultRegistry.
func Register(scheme, name string, open Provider) error {
	return DefaultRegistry.Register(scheme, name, open)
}

// Resolve resolves uri against DefaultRegistry.
func Resolve(uri string) (*Store, *StateStore, bool, error) {
	return DefaultRegistry.Resolve(uri)
}
