// Package network assembles the node's peer-to-peer side: the data
// transport every node runs, the separate consensus transport a validator
// runs, gossip broadcast of blocks and transactions, and the status and
// block-sync protocols a joining node catches up with.
//
// Transports are libp2p hosts. Broadcast uses gossipsub with the mesh
// degree raised to the configured broadcast target, and the routing table
// is a Kademlia DHT with the configured bucket size.
package network

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter/validatorpk"
	"github.com/rony4d/go-planet-node/utils/configerr"
)

const (
	// DefaultBroadcastTarget is the minimum number of peers a message is
	// pushed to.
	DefaultBroadcastTarget = 10

	// DefaultBucketSize is the Kademlia k.
	DefaultBucketSize = 16
)

// Settings is the network block of the node configuration.
type Settings struct {
	// Host and Port bind the data transport. An empty host listens on all
	// interfaces, port 0 picks a free port.
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	// ConsensusHost and ConsensusPort bind the validator transport. They
	// are required when the node runs with a validator key.
	ConsensusHost string `yaml:"consensusHost"`
	ConsensusPort uint16 `yaml:"consensusPort"`

	AppProtocolVersion               string   `yaml:"appProtocolVersion"`
	TrustedAppProtocolVersionSigners []string `yaml:"trustedAppProtocolVersionSigners"`

	// IceServers are relays used to reach the node from behind NAT.
	IceServers []string `yaml:"iceServers"`

	// Peers are bootstrap (seed) peers, StaticPeers are kept connected.
	// Both take either a p2p multiaddr or "pubkeyhex,host,port".
	Peers       []string `yaml:"peers"`
	StaticPeers []string `yaml:"staticPeers"`

	MinimumBroadcastTarget int `yaml:"minimumBroadcastTarget"`
	BucketSize             int `yaml:"bucketSize"`
}

// DefaultSettings returns settings with the default broadcast target and
// bucket size and nothing else.
func DefaultSettings() Settings {
	return Settings{
		MinimumBroadcastTarget: DefaultBroadcastTarget,
		BucketSize:             DefaultBucketSize,
	}
}

// Validate checks the settings as a whole. validator tells whether the node
// also runs a consensus transport.
func (s *Settings) Validate(validator bool) error {
	if validator {
		if s.ConsensusHost == "" {
			return &configerr.MissingFieldError{
				Field:   "ConsensusHost",
				Message: "consensus host must be set when the node is a validator",
			}
		}
		if s.ConsensusPort == s.Port {
			return configerr.Conflict("ConsensusPort", "Port", "consensus port and port must be different")
		}
	}
	if s.AppProtocolVersion == "" {
		return configerr.Missing("AppProtocolVersion")
	}
	if _, err := ParseAppProtocolVersion(s.AppProtocolVersion); err != nil {
		return err
	}
	if _, err := parseTrustedSigners(s.TrustedAppProtocolVersionSigners); err != nil {
		return err
	}
	if s.MinimumBroadcastTarget < 0 {
		return configerr.Invalid("MinimumBroadcastTarget", strconv.Itoa(s.MinimumBroadcastTarget), errors.New("must not be negative"))
	}
	if s.BucketSize <= 0 {
		return configerr.Invalid("BucketSize", strconv.Itoa(s.BucketSize), errors.New("must be positive"))
	}
	if _, err := parsePeers("IceServers", s.IceServers); err != nil {
		return err
	}
	if _, err := parsePeers("Peers", s.Peers); err != nil {
		return err
	}
	_, err := parsePeers("StaticPeers", s.StaticPeers)
	return err
}

// HostOptions describes one transport.
type HostOptions struct {
	Host string
	Port uint16

	// IceServers are tried in order.
	IceServers []peer.AddrInfo
}

// ListenAddr is the transport's TCP listen multiaddr.
func (o HostOptions) ListenAddr() string {
	return hostAddr(o.Host, o.Port, "0.0.0.0")
}

// HostOptions returns the data transport options. The relay order is
// shuffled with r so that nodes sharing a configuration do not all pick the
// same relay first. A nil r is seeded from the clock.
func (s *Settings) HostOptions(r *rand.Rand) (HostOptions, error) {
	relays, err := parsePeers("IceServers", s.IceServers)
	if err != nil {
		return HostOptions{}, err
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r.Shuffle(len(relays), func(i, j int) {
		relays[i], relays[j] = relays[j], relays[i]
	})
	return HostOptions{Host: s.Host, Port: s.Port, IceServers: relays}, nil
}

// ConsensusHostOptions returns the validator transport options. The
// consensus transport never goes through relays.
func (s *Settings) ConsensusHostOptions() HostOptions {
	return HostOptions{Host: s.ConsensusHost, Port: s.ConsensusPort}
}

// TimeoutOptions bound the sync protocol round trips.
type TimeoutOptions struct {
	MaxTimeout            time.Duration
	GetBlockHashesTimeout time.Duration
	GetBlocksBaseTimeout  time.Duration
}

// DefaultTimeoutOptions are 50s, 50s and 5s.
func DefaultTimeoutOptions() TimeoutOptions {
	return TimeoutOptions{
		MaxTimeout:            50 * time.Second,
		GetBlockHashesTimeout: 50 * time.Second,
		GetBlocksBaseTimeout:  5 * time.Second,
	}
}

// SwarmOptions are the peer lists and tuning of a Swarm.
type SwarmOptions struct {
	StaticPeers            []peer.AddrInfo
	SeedPeers              []peer.AddrInfo
	BucketSize             int
	MinimumBroadcastTarget int
	Timeouts               TimeoutOptions
}

// SwarmOptions parses the peer lists.
func (s *Settings) SwarmOptions() (SwarmOptions, error) {
	static, err := parsePeers("StaticPeers", s.StaticPeers)
	if err != nil {
		return SwarmOptions{}, err
	}
	seeds, err := parsePeers("Peers", s.Peers)
	if err != nil {
		return SwarmOptions{}, err
	}
	return SwarmOptions{
		StaticPeers:            static,
		SeedPeers:              seeds,
		BucketSize:             s.BucketSize,
		MinimumBroadcastTarget: s.MinimumBroadcastTarget,
		Timeouts:               DefaultTimeoutOptions(),
	}, nil
}

// AppProtocolVersionOptions parses the local version token and the trusted
// signer keys.
func (s *Settings) AppProtocolVersionOptions() (AppProtocolVersionOptions, error) {
	if s.AppProtocolVersion == "" {
		return AppProtocolVersionOptions{}, configerr.Missing("AppProtocolVersion")
	}
	v, err := ParseAppProtocolVersion(s.AppProtocolVersion)
	if err != nil {
		return AppProtocolVersionOptions{}, err
	}
	signers, err := parseTrustedSigners(s.TrustedAppProtocolVersionSigners)
	if err != nil {
		return AppProtocolVersionOptions{}, err
	}
	return AppProtocolVersionOptions{Version: v, TrustedSigners: signers}, nil
}

// BootstrapRole tells whether a node dials out before starting.
type BootstrapRole int

const (
	// Seed nodes have no peers configured and wait to be dialed.
	Seed BootstrapRole = iota
	// Participant nodes bootstrap against their configured peers first.
	Participant
)

func (r BootstrapRole) String() string {
	switch r {
	case Seed:
		return "seed"
	case Participant:
		return "participant"
	default:
		return fmt.Sprintf("BootstrapRole(%d)", int(r))
	}
}

// Role is Seed when neither bootstrap peers nor static peers are
// configured, Participant otherwise.
func (s *Settings) Role() BootstrapRole {
	if len(s.Peers) == 0 && len(s.StaticPeers) == 0 {
		return Seed
	}
	return Participant
}

// ParsePeer accepts a p2p multiaddr such as
// /ip4/10.0.0.1/tcp/31234/p2p/16Uiu2HAm..., or the "pubkeyhex,host,port"
// form where pubkeyhex is the peer's secp256k1 key.
func ParsePeer(s string) (peer.AddrInfo, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "/") {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return peer.AddrInfo{}, err
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			return peer.AddrInfo{}, err
		}
		return *info, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return peer.AddrInfo{}, errors.Errorf("peer %q is neither a multiaddr nor pubkeyhex,host,port", s)
	}
	pk, err := validatorpk.FromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return peer.AddrInfo{}, errors.Wrap(err, "peer public key")
	}
	id, err := PeerIDOf(pk)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	port, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 16)
	if err != nil {
		return peer.AddrInfo{}, errors.Wrap(err, "peer port")
	}
	host := strings.TrimSpace(parts[1])
	if host == "" {
		return peer.AddrInfo{}, errors.New("peer host is empty")
	}
	addr, err := ma.NewMultiaddr(hostAddr(host, uint16(port), ""))
	if err != nil {
		return peer.AddrInfo{}, err
	}
	return peer.AddrInfo{ID: id, Addrs: []ma.Multiaddr{addr}}, nil
}

func parsePeers(field string, list []string) ([]peer.AddrInfo, error) {
	out := make([]peer.AddrInfo, 0, len(list))
	for _, s := range list {
		info, err := ParsePeer(s)
		if err != nil {
			return nil, configerr.Invalid(field, s, err)
		}
		out = append(out, info)
	}
	return out, nil
}

// PeerIDOf derives the libp2p peer id of a secp256k1 key.
func PeerIDOf(pk validatorpk.PubKey) (peer.ID, error) {
	if pk.Type != validatorpk.Types.Secp256k1 {
		return "", errors.New("peer key must be secp256k1")
	}
	pub, err := p2pcrypto.UnmarshalSecp256k1PublicKey(pk.Raw)
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(pub)
}

func hostAddr(host string, port uint16, fallback string) string {
	if host == "" {
		host = fallback
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			return fmt.Sprintf("/ip4/%s/tcp/%d", ip, port)
		}
		return fmt.Sprintf("/ip6/%s/tcp/%d", ip, port)
	}
	if host == "localhost" {
		return fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", port)
	}
	return fmt.Sprintf("/dns/%s/tcp/%d", host, port)
}
