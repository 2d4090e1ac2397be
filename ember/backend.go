// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package ember wires blocksync's per-track Downloaders into a runnable p2p
// service: peer bookkeeping, the synchronisation loop, and enough of the
// wire protocol to exchange header/body/receipt requests with a peer.
package ember

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/emberchain/go-ember/ember/blocksync"
)

// Responder is the local-chain read surface the protocol handler needs to
// answer a peer's own GetBlockHeaders/GetBlockBodies/GetReceipts requests.
// It is deliberately narrow: serving wire data, not importing it.
type Responder interface {
	HeadersFrom(origin common.Hash, amount, skip uint64) []byte
	BodiesFor(hashes []common.Hash) []byte
	ReceiptsFor(hashes []common.Hash) []byte
	Head() (hash common.Hash, td *big.Int, number uint64)
}

// Backend is the top-level ember service: it owns the peer set, the two
// download tracks, and the protocol handler that moves bytes between them
// and the network.
type Backend struct {
	config *Config

	chain     blocksync.ChainOracle
	responder Responder

	eventMux *event.TypeMux
	peers    *peerSet
	syncer   *Syncer
}

// New builds a Backend ready to have its Protocols() registered with a
// p2p.Server.
func New(config *Config, chain blocksync.ChainOracle, responder Responder, eventMux *event.TypeMux) (*Backend, error) {
	if config.NetworkId == 0 {
		return nil, errors.New("ember: NetworkId must be non-zero")
	}
	headHash, _, headNumber := responder.Head()

	peers := newPeerSet()
	return &Backend{
		config:    config,
		chain:     chain,
		responder: responder,
		eventMux:  eventMux,
		peers:     peers,
		syncer:    NewSyncer(chain, peers, eventMux, config.Whitelist, headHash, headNumber),
	}, nil
}

// EventMux returns the backend's pub/sub hub for sync lifecycle events.
func (b *Backend) EventMux() *event.TypeMux { return b.eventMux }

// NewBlocksDownloader and OldBlocksDownloader satisfy syncstatus.Source.
func (b *Backend) NewBlocksDownloader() *blocksync.Downloader { return b.syncer.NewBlocksDownloader() }
func (b *Backend) OldBlocksDownloader() *blocksync.Downloader { return b.syncer.OldBlocksDownloader() }

// Start launches the synchronisation loop.
func (b *Backend) Start(srvr *p2p.Server) error {
	go b.syncer.Loop()
	return nil
}

// Stop terminates the synchronisation loop and closes the peer set to new
// registrations. Already connected peers are not disconnected by it.
func (b *Backend) Stop() error {
	b.syncer.Terminate()
	b.peers.Close()
	return nil
}

// Protocols returns the p2p sub-protocol this backend speaks.
func (b *Backend) Protocols() []p2p.Protocol {
	return []p2p.Protocol{
		{
			Name:    ProtocolName,
			Version: ProtocolVersions[0],
			Length:  ProtocolLengths[0],
			Run: func(p *p2p.Peer, rw p2p.MsgReadWriter) error {
				return b.handle(p, rw)
			},
		},
	}
}

func (b *Backend) handle(p *p2p.Peer, rw p2p.MsgReadWriter) error {
	peer := newPeer(int(ProtocolVersions[0]), p, rw)
	if err := b.peers.Register(peer); err != nil {
		return errors.Wrapf(err, "ember: registering peer %s", peer.id)
	}
	defer b.peers.Unregister(peer.id)
	defer peer.close()

	b.syncer.RegisterPeer()

	for {
		msg, err := rw.ReadMsg()
		if err != nil {
			return errors.Wrapf(err, "ember: reading message from %s", peer.id)
		}
		if err := b.handleMsg(peer, msg); err != nil {
			msg.Discard()
			return err
		}
		msg.Discard()
	}
}

// handleMsg answers a peer's own data requests directly, and forwards
// responses to our own outstanding requests to peer.deliverResponse, where
// Syncer.runTrack is waiting for them.
func (b *Backend) handleMsg(peer *peer, msg p2p.Msg) error {
	if msg.Size > ProtocolMaxMsgSize {
		return fmt.Errorf("ember: message %d too large: %d > %d", msg.Code, msg.Size, ProtocolMaxMsgSize)
	}

	switch msg.Code {
	case GetBlockHeadersMsg, GetBlockHeadersOldMsg:
		var req getBlockHeadersData
		if err := msg.Decode(&req); err != nil {
			return errors.Wrap(err, "ember: decoding header request")
		}
		raw := b.responder.HeadersFrom(req.Origin.Hash, req.Amount, req.Skip)
		return peer.SendHeaders(raw)

	case GetBlockBodiesMsg, GetBlockBodiesOldMsg:
		var hashes []common.Hash
		if err := msg.Decode(&hashes); err != nil {
			return errors.Wrap(err, "ember: decoding body request")
		}
		return peer.SendBodies(b.responder.BodiesFor(hashes))

	case GetReceiptsMsg, GetReceiptsOldMsg:
		var hashes []common.Hash
		if err := msg.Decode(&hashes); err != nil {
			return errors.Wrap(err, "ember: decoding receipts request")
		}
		return peer.SendReceipts(b.responder.ReceiptsFor(hashes))

	case BlockHeadersMsg, BlockBodiesMsg, ReceiptsMsg:
		var raw rlp.RawValue
		if err := msg.Decode(&raw); err != nil {
			return errors.Wrap(err, "ember: decoding response")
		}
		peer.deliverResponse(raw)
		return nil

	default:
		return fmt.Errorf("ember: unknown message code %d", msg.Code)
	}
}
