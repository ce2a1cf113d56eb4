package network

import (
	"context"
	"crypto/ecdsa"
	"math/rand"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rony4d/go-planet-node/chain"
	"github.com/rony4d/go-planet-node/inter"
)

const (
	dhtProtocolPrefix   = "/planetnode"
	staticPeersInterval = 30 * time.Second
)

// ErrIncompatiblePeer is returned by the handshake with a peer that runs
// another app protocol version or another chain.
var ErrIncompatiblePeer = errors.New("incompatible peer")

// Keys are the identities of the transports.
type Keys struct {
	// Node signs the data transport. A fresh key is generated when nil.
	Node *ecdsa.PrivateKey

	// Validator, when set, signs the consensus transport.
	Validator *ecdsa.PrivateKey
}

// Options are the assembler's collaborators. All fields may be left zero.
type Options struct {
	// Random orders the ICE servers.
	Random *rand.Rand

	DifferentVersionEncountered DifferentVersionFunc

	Logger logrus.FieldLogger
}

// Swarm is the node's network handle.
type Swarm struct {
	host      host.Host
	consensus host.Host
	dht       *dht.IpfsDHT
	pubsub    *pubsub.PubSub
	blocks    *pubsub.Topic
	txs       *pubsub.Topic

	chain *chain.BlockChain
	opts  SwarmOptions
	apv   AppProtocolVersionOptions
	log   logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	syncMu sync.Mutex
}

// Assemble validates settings and builds the swarm: the data transport,
// the consensus transport when keys.Validator is set, the routing table and
// the gossip topics. It also returns the node's bootstrap role.
//
// Every configuration error is reported before a transport is created.
func Assemble(ctx context.Context, settings Settings, bc *chain.BlockChain, keys Keys, opts Options) (*Swarm, BootstrapRole, error) {
	if err := settings.Validate(keys.Validator != nil); err != nil {
		return nil, Seed, err
	}
	apv, err := settings.AppProtocolVersionOptions()
	if err != nil {
		return nil, Seed, err
	}
	apv.DifferentVersionEncountered = opts.DifferentVersionEncountered
	hostOpts, err := settings.HostOptions(opts.Random)
	if err != nil {
		return nil, Seed, err
	}
	swarmOpts, err := settings.SwarmOptions()
	if err != nil {
		return nil, Seed, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Seed, err
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	nodeKey := keys.Node
	if nodeKey == nil {
		if nodeKey, err = ethcrypto.GenerateKey(); err != nil {
			return nil, Seed, err
		}
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Swarm{
		chain:  bc,
		opts:   swarmOpts,
		apv:    apv,
		log:    opts.Logger.WithField("module", "swarm"),
		ctx:    sctx,
		cancel: cancel,
	}
	if err := s.setup(nodeKey, hostOpts, keys.Validator, settings.ConsensusHostOptions()); err != nil {
		s.Close()
		return nil, Seed, err
	}

	role := settings.Role()
	s.log.WithFields(logrus.Fields{
		"peer":  s.host.ID().String(),
		"addrs": s.Addrs(),
		"role":  role.String(),
	}).Info("Network assembled")
	return s, role, nil
}

func (s *Swarm) setup(nodeKey *ecdsa.PrivateKey, hostOpts HostOptions, validatorKey *ecdsa.PrivateKey, consensusOpts HostOptions) error {
	h, err := newHost(nodeKey, hostOpts)
	if err != nil {
		return errors.Wrap(err, "create data transport")
	}
	s.host = h

	if validatorKey != nil {
		c, err := newHost(validatorKey, consensusOpts)
		if err != nil {
			return errors.Wrap(err, "create consensus transport")
		}
		s.consensus = c
		c.SetStreamHandler(StatusProtocol, s.handleStatus)
	}

	s.dht, err = dht.New(s.ctx, h,
		dht.Mode(dht.ModeServer),
		dht.BucketSize(s.opts.BucketSize),
		dht.ProtocolPrefix(dhtProtocolPrefix),
	)
	if err != nil {
		return errors.Wrap(err, "create routing table")
	}

	s.pubsub, err = pubsub.NewGossipSub(s.ctx, h,
		pubsub.WithGossipSubParams(gossipParams(s.opts.MinimumBroadcastTarget)),
		pubsub.WithPeerExchange(true),
	)
	if err != nil {
		return errors.Wrap(err, "create pubsub")
	}
	prefix := "/planetnode/" + s.chain.Genesis().Hash().Hex()
	if s.blocks, err = s.pubsub.Join(prefix + "/blocks"); err != nil {
		return err
	}
	if s.txs, err = s.pubsub.Join(prefix + "/txs"); err != nil {
		return err
	}

	h.SetStreamHandler(StatusProtocol, s.handleStatus)
	h.SetStreamHandler(SyncProtocol, s.handleSync)
	return nil
}

func newHost(key *ecdsa.PrivateKey, o HostOptions) (host.Host, error) {
	priv, err := p2pcrypto.UnmarshalSecp256k1PrivateKey(ethcrypto.FromECDSA(key))
	if err != nil {
		return nil, err
	}
	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(o.ListenAddr()),
	}
	if len(o.IceServers) > 0 {
		opts = append(opts,
			libp2p.EnableRelay(),
			libp2p.EnableAutoRelayWithStaticRelays(o.IceServers),
			libp2p.EnableHolePunching(),
		)
	}
	return libp2p.New(opts...)
}

// gossipParams raises the mesh degree to target. Below the gossipsub
// default the defaults are kept.
func gossipParams(target int) pubsub.GossipSubParams {
	params := pubsub.DefaultGossipSubParams()
	if target > params.D {
		params.D = target
		if params.Dhi < 2*target {
			params.Dhi = 2 * target
		}
	}
	return params
}

// ID is the data transport's peer id.
func (s *Swarm) ID() peer.ID {
	return s.host.ID()
}

// ConsensusID is the consensus transport's peer id, empty without one.
func (s *Swarm) ConsensusID() peer.ID {
	if s.consensus == nil {
		return ""
	}
	return s.consensus.ID()
}

// Addrs lists the data transport's dialable addresses with the /p2p part.
func (s *Swarm) Addrs() []string {
	out := make([]string, 0, len(s.host.Addrs()))
	for _, a := range s.host.Addrs() {
		out = append(out, a.String()+"/p2p/"+s.host.ID().String())
	}
	return out
}

// Peers lists connected peers.
func (s *Swarm) Peers() []peer.ID {
	return s.host.Network().Peers()
}

func (s *Swarm) localStatus() *statusMessage {
	tip := s.chain.Tip()
	return &statusMessage{
		AppProtocolVersion: s.apv.Version.Token(),
		Genesis:            s.chain.Genesis().Hash(),
		TipIndex:           tip.Index(),
		TipHash:            tip.Hash(),
	}
}

// handshake exchanges status with p and disconnects it when it runs
// another version or another chain.
func (s *Swarm) handshake(ctx context.Context, p peer.ID) (*statusMessage, error) {
	var st statusMessage
	req := &statusRequest{AppProtocolVersion: s.apv.Version.Token()}
	if err := request(ctx, s.host, p, StatusProtocol, s.opts.Timeouts.GetBlockHashesTimeout, req, &st); err != nil {
		return nil, err
	}
	if err := s.checkPeer(p, st.AppProtocolVersion); err != nil {
		_ = s.host.Network().ClosePeer(p)
		return nil, err
	}
	if st.Genesis != s.chain.Genesis().Hash() {
		_ = s.host.Network().ClosePeer(p)
		return nil, errors.Wrapf(ErrIncompatiblePeer, "peer %s has genesis %s", p, st.Genesis.String())
	}
	return &st, nil
}

func (s *Swarm) checkPeer(p peer.ID, token string) error {
	remote, err := ParseAppProtocolVersion(token)
	if err != nil {
		return errors.Wrapf(ErrIncompatiblePeer, "peer %s: %v", p, err)
	}
	if !s.apv.Accept(p, remote) {
		return errors.Wrapf(ErrIncompatiblePeer, "peer %s runs version %d", p, remote.Version)
	}
	return nil
}

func (s *Swarm) handleStatus(stream network.Stream) {
	var req statusRequest
	// A mismatching peer still gets our status so it can report the
	// version it saw and hang up on its side.
	err := serve(stream, s.opts.Timeouts.MaxTimeout, &req, func(p peer.ID) (interface{}, error) {
		if err := s.checkPeer(p, req.AppProtocolVersion); err != nil {
			s.log.WithError(err).Debug("Answering incompatible peer")
		}
		return s.localStatus(), nil
	})
	if err != nil {
		s.log.WithError(err).Debug("Status request failed")
	}
}

func (s *Swarm) handleSync(stream network.Stream) {
	var req syncRequest
	err := serve(stream, s.opts.Timeouts.MaxTimeout, &req, func(peer.ID) (interface{}, error) {
		limit := req.Max
		if limit == 0 || limit > maxSyncBatch {
			limit = maxSyncBatch
		}
		resp := &syncResponse{}
		for i := idx.Block(0); i < idx.Block(limit); i++ {
			b, err := s.chain.BlockByIndex(req.From + i)
			if err != nil {
				return nil, err
			}
			if b == nil {
				break
			}
			c, err := s.chain.GetBlockCommit(b.Hash())
			if err != nil {
				return nil, err
			}
			resp.Blocks = append(resp.Blocks, blockMessage{Block: b, Commit: c})
		}
		return resp, nil
	})
	if err != nil {
		s.log.WithError(err).Debug("Sync request failed")
	}
}

func (s *Swarm) connect(ctx context.Context, p peer.AddrInfo) error {
	s.host.Peerstore().AddAddrs(p.ID, p.Addrs, peerstore.PermanentAddrTTL)
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeouts.MaxTimeout)
	defer cancel()
	if err := s.host.Connect(cctx, p); err != nil {
		return err
	}
	if _, err := s.handshake(ctx, p.ID); err != nil {
		return err
	}
	if _, err := s.dht.RoutingTable().TryAddPeer(p.ID, true, true); err != nil {
		s.log.WithError(err).WithField("peer", p.ID.String()).Debug("Peer not added to routing table")
	}
	return nil
}

// Bootstrap dials the seed and static peers and fills the routing table.
// It fails when seed peers are configured and none of them answers.
func (s *Swarm) Bootstrap(ctx context.Context) error {
	reached := 0
	for _, p := range s.opts.SeedPeers {
		if err := s.connect(ctx, p); err != nil {
			s.log.WithError(err).WithField("peer", p.ID.String()).Warn("Seed peer unreachable")
			continue
		}
		reached++
	}
	for _, p := range s.opts.StaticPeers {
		if err := s.connect(ctx, p); err != nil {
			s.log.WithError(err).WithField("peer", p.ID.String()).Warn("Static peer unreachable")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.opts.SeedPeers) > 0 && reached == 0 {
		return errors.New("no seed peer reachable")
	}
	s.log.WithField("peers", len(s.Peers())).Info("Bootstrapped")
	return s.dht.Bootstrap(ctx)
}

// Preload catches up with the connected peer that has the highest tip.
func (s *Swarm) Preload(ctx context.Context) error {
	var (
		best   peer.ID
		bestAt = s.chain.Tip().Index()
	)
	for _, p := range s.Peers() {
		st, err := s.handshake(ctx, p)
		if err != nil {
			s.log.WithError(err).WithField("peer", p.String()).Debug("Skipping peer for preload")
			continue
		}
		if st.TipIndex > bestAt {
			best, bestAt = p, st.TipIndex
		}
	}
	if best == "" {
		s.log.WithField("tip", s.chain.Tip().Index()).Info("Nothing to preload")
		return nil
	}
	return s.syncFrom(ctx, best)
}

// syncFrom pulls blocks from p until it has no more. One sync runs at a
// time.
func (s *Swarm) syncFrom(ctx context.Context, p peer.ID) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	timeout := s.opts.Timeouts.GetBlocksBaseTimeout + maxSyncBatch*perBlockTimeout
	if timeout > s.opts.Timeouts.MaxTimeout {
		timeout = s.opts.Timeouts.MaxTimeout
	}
	for {
		from := s.chain.Tip().Index() + 1
		var resp syncResponse
		if err := request(ctx, s.host, p, SyncProtocol, timeout, &syncRequest{From: from, Max: maxSyncBatch}, &resp); err != nil {
			return err
		}
		if len(resp.Blocks) == 0 {
			return nil
		}
		for _, m := range resp.Blocks {
			if m.Block == nil {
				return errors.Errorf("peer %s sent an empty block", p)
			}
			if m.Block.Index() <= s.chain.Tip().Index() {
				continue
			}
			if err := s.chain.Append(m.Block, m.Commit); err != nil {
				return errors.Wrapf(err, "sync from %s", p)
			}
		}
		s.log.WithFields(logrus.Fields{
			"peer": p.String(),
			"tip":  s.chain.Tip().Index(),
		}).Info("Synced blocks")
	}
}

// Start serves gossip until ctx is done: blocks from peers are appended
// (or trigger a sync when they are ahead), transactions are staged, and
// static peers are redialed.
func (s *Swarm) Start(ctx context.Context) error {
	blockSub, err := s.blocks.Subscribe()
	if err != nil {
		return err
	}
	defer blockSub.Cancel()
	txSub, err := s.txs.Subscribe()
	if err != nil {
		return err
	}
	defer txSub.Cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.consume(gctx, blockSub, s.handleBlockMessage) })
	g.Go(func() error { return s.consume(gctx, txSub, s.handleTxMessage) })
	g.Go(func() error { return s.keepStaticPeers(gctx) })

	s.log.Info("Swarm started")
	err = g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (s *Swarm) consume(ctx context.Context, sub *pubsub.Subscription, handle func(context.Context, *pubsub.Message) error) error {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		if err := handle(ctx, msg); err != nil {
			s.log.WithError(err).WithField("peer", msg.ReceivedFrom.String()).Debug("Dropped gossip message")
		}
	}
}

func (s *Swarm) handleBlockMessage(ctx context.Context, msg *pubsub.Message) error {
	var m blockMessage
	if err := rlp.DecodeBytes(msg.Data, &m); err != nil {
		return err
	}
	if m.Block == nil {
		return errors.New("empty block message")
	}
	tip := s.chain.Tip().Index()
	switch {
	case m.Block.Index() <= tip:
		return nil
	case m.Block.Index() == tip+1:
		return s.chain.Append(m.Block, m.Commit)
	default:
		return s.syncFrom(ctx, msg.ReceivedFrom)
	}
}

func (s *Swarm) handleTxMessage(_ context.Context, msg *pubsub.Message) error {
	tx := new(inter.Transaction)
	if err := rlp.DecodeBytes(msg.Data, tx); err != nil {
		return err
	}
	if _, ok := s.chain.Stage().Get(tx.ID()); ok {
		return nil
	}
	return s.chain.StageTransaction(tx)
}

func (s *Swarm) keepStaticPeers(ctx context.Context) error {
	if len(s.opts.StaticPeers) == 0 {
		return nil
	}
	ticker := time.NewTicker(staticPeersInterval)
	defer ticker.Stop()
	for {
		for _, p := range s.opts.StaticPeers {
			if s.host.Network().Connectedness(p.ID) == network.Connected {
				continue
			}
			if err := s.connect(ctx, p); err != nil {
				s.log.WithError(err).WithField("peer", p.ID.String()).Debug("Static peer still unreachable")
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// BroadcastBlock gossips b with its stored commit.
func (s *Swarm) BroadcastBlock(ctx context.Context, b *inter.Block) error {
	commit, err := s.chain.GetBlockCommit(b.Hash())
	if err != nil {
		return err
	}
	data, err := rlp.EncodeToBytes(&blockMessage{Block: b, Commit: commit})
	if err != nil {
		return err
	}
	return s.blocks.Publish(ctx, data)
}

// BroadcastTransaction gossips tx.
func (s *Swarm) BroadcastTransaction(ctx context.Context, tx *inter.Transaction) error {
	data, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return err
	}
	return s.txs.Publish(ctx, data)
}

// Close shuts the transports down. It is safe on a partially assembled
// swarm.
func (s *Swarm) Close() error {
	defer s.cancel()
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.blocks != nil {
		keep(s.blocks.Close())
	}
	if s.txs != nil {
		keep(s.txs.Close())
	}
	if s.dht != nil {
		keep(s.dht.Close())
	}
	if s.consensus != nil {
		keep(s.consensus.Close())
	}
	if s.host != nil {
		keep(s.host.Close())
	}
	return firstErr
}
