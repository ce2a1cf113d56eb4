package network

import (
	"context"
	"io"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/pkg/errors"

	"github.com/rony4d/go-planet-node/inter"
)

// Stream protocols
const (
	StatusProtocol protocol.ID = "/planetnode/status/1.0.0"
	SyncProtocol   protocol.ID = "/planetnode/sync/1.0.0"
)

const (
	maxMessageBytes = 64 << 20

	// maxSyncBatch caps the blocks served per sync request.
	maxSyncBatch = 100

	perBlockTimeout = 100 * time.Millisecond
)

// statusRequest opens the handshake with the caller's version token.
type statusRequest struct {
	AppProtocolVersion string
}

// statusMessage describes a node's chain.
type statusMessage struct {
	AppProtocolVersion string
	Genesis            hash.Hash
	TipIndex           idx.Block
	TipHash            hash.Hash
}

type syncRequest struct {
	From idx.Block
	Max  uint32
}

// blockMessage is a block with the commit that finalized it. It is both
// the gossip payload and the sync response element.
type blockMessage struct {
	Block  *inter.Block
	Commit *inter.BlockCommit `rlp:"nil"`
}

type syncResponse struct {
	Blocks []blockMessage
}

func readMessage(r io.Reader, v interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(r, maxMessageBytes))
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(raw, v)
}

// request sends req on a new stream and reads resp, like a unary RPC. The
// request side is closed for writing so the handler sees EOF.
func request(ctx context.Context, h host.Host, p peer.ID, proto protocol.ID, timeout time.Duration, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := h.NewStream(ctx, p, proto)
	if err != nil {
		return errors.Wrapf(err, "open %s stream to %s", proto, p)
	}
	defer s.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}
	if err := rlp.Encode(s, req); err != nil {
		s.Reset()
		return errors.Wrap(err, "write request")
	}
	if err := s.CloseWrite(); err != nil {
		s.Reset()
		return errors.Wrap(err, "close write")
	}
	if err := readMessage(s, resp); err != nil {
		s.Reset()
		return errors.Wrap(err, "read response")
	}
	return nil
}

// serve reads one request from s, answers with handle's response and
// closes the stream.
func serve(s network.Stream, timeout time.Duration, req interface{}, handle func(peer.ID) (interface{}, error)) error {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(timeout))

	if err := readMessage(s, req); err != nil {
		s.Reset()
		return errors.Wrap(err, "read request")
	}
	resp, err := handle(s.Conn().RemotePeer())
	if err != nil {
		s.Reset()
		return err
	}
	if err := rlp.Encode(s, resp); err != nil {
		s.Reset()
		return errors.Wrap(err, "write response")
	}
	return nil
}
