// Copyright 2015 The go-ethereum Authors
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

package ember

import (
	"errors"
	"math/big"
	"sync"

	mapset "github.com/deckarep/golang-set"
	lru "github.com/hashicorp/golang-lru"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/emberchain/go-ember/ember/blocksync"
)

var (
	errClosed            = errors.New("peer set is closed")
	errAlreadyRegistered = errors.New("peer is already registered")
	errNotRegistered     = errors.New("peer is not registered")
	errPeerClosed        = errors.New("peer connection closed")
)

const (
	// maxKnownBlocks bounds the peer's known-block set (see MarkBlock).
	maxKnownBlocks = 1024
	// maxKnownHeaders is the size of the LRU behind markServed and
	// RecallServed, which records header hashes a peer has served.
	maxKnownHeaders = 8192

	handshakeTimeout = 5 * 1e9 // ns; nothing in this package reads it
)

// peer wraps a single connected protocol session: its live p2p.Peer plus
// the sync-relevant state the coordinator needs - advertised head, known
// announcements, and in-flight request bookkeeping.
type peer struct {
	id string

	*p2p.Peer
	rw p2p.MsgReadWriter

	version int

	lock sync.RWMutex
	head common.Hash
	td   *big.Int

	knownBlocks mapset.Set
	knownHeads  *lru.Cache

	// responses carries the raw payload of whatever BlockHeaders/
	// BlockBodies/Receipts message the protocol loop last read on this
	// peer's connection, so the syncer's single in-flight request can be
	// answered without racing the protocol loop's own rw.ReadMsg call.
	responses chan rlp.RawValue
	closed    chan struct{}
}

func newPeer(version int, p *p2p.Peer, rw p2p.MsgReadWriter) *peer {
	knownHeads, _ := lru.New(maxKnownHeaders)
	return &peer{
		id:          p.ID().String(),
		Peer:        p,
		rw:          rw,
		version:     version,
		knownBlocks: mapset.NewSet(),
		knownHeads:  knownHeads,
		responses:   make(chan rlp.RawValue),
		closed:      make(chan struct{}),
	}
}

// Head returns the hash and total difficulty of the peer's best known block.
func (p *peer) Head() (hash common.Hash, td *big.Int) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	copy(hash[:], p.head[:])
	return hash, new(big.Int).Set(p.td)
}

// SetHead updates the peer's advertised head.
func (p *peer) SetHead(hash common.Hash, td *big.Int) {
	p.lock.Lock()
	defer p.lock.Unlock()

	copy(p.head[:], hash[:])
	p.td = td
}

// MarkBlock records hash as known to the peer, first evicting arbitrary
// entries (mapset.Pop) while the set is full.
func (p *peer) MarkBlock(hash common.Hash) {
	for p.knownBlocks.Cardinality() >= maxKnownBlocks {
		p.knownBlocks.Pop()
	}
	p.knownBlocks.Add(hash)
}

// RecallServed reports whether markServed recorded hash for this peer.
// Nothing in this package calls markServed or RecallServed.
func (p *peer) RecallServed(hash common.Hash) bool {
	_, ok := p.knownHeads.Get(hash)
	return ok
}

func (p *peer) markServed(hash common.Hash) {
	p.knownHeads.Add(hash, struct{}{})
}

// Send dispatches req over the wire, translating blocksync's abstract
// Request into the matching eth wire protocol message for the given track.
// Track is per-request, not per-connection: the same peer serves both the
// NewBlocks and OldBlocks downloaders, round-robin, over its one connection.
func (p *peer) Send(track blocksync.Track, req *blocksync.Request) error {
	switch {
	case req.Headers != nil:
		return p2p.Send(p.rw, headersMsgCode(track), &getBlockHeadersData{
			Origin: hashOrNumber{Hash: req.Headers.Start},
			Amount: req.Headers.Count,
			Skip:   req.Headers.Skip,
		})
	case req.Bodies != nil:
		return p2p.Send(p.rw, bodiesMsgCode(track), req.Bodies.Hashes)
	case req.Receipts != nil:
		return p2p.Send(p.rw, receiptsMsgCode(track), req.Receipts.Hashes)
	default:
		return nil
	}
}

func headersMsgCode(track blocksync.Track) uint64 {
	if track == blocksync.OldBlocks {
		return GetBlockHeadersOldMsg
	}
	return GetBlockHeadersMsg
}

func bodiesMsgCode(track blocksync.Track) uint64 {
	if track == blocksync.OldBlocks {
		return GetBlockBodiesOldMsg
	}
	return GetBlockBodiesMsg
}

func receiptsMsgCode(track blocksync.Track) uint64 {
	if track == blocksync.OldBlocks {
		return GetReceiptsOldMsg
	}
	return GetReceiptsMsg
}

// SendHeaders replies to a peer's own header request.
func (p *peer) SendHeaders(raw rlp.RawValue) error {
	return p2p.Send(p.rw, BlockHeadersMsg, raw)
}

// SendBodies replies to a peer's own body request.
func (p *peer) SendBodies(raw rlp.RawValue) error {
	return p2p.Send(p.rw, BlockBodiesMsg, raw)
}

// SendReceipts replies to a peer's own receipts request.
func (p *peer) SendReceipts(raw rlp.RawValue) error {
	return p2p.Send(p.rw, ReceiptsMsg, raw)
}

func (p *peer) String() string {
	return p.id
}

// deliverResponse hands a BlockHeaders/BlockBodies/Receipts payload read by
// the protocol loop to whoever is waiting on it. It blocks until the syncer
// consumes it or the peer's connection tears down, since at most one request
// is ever outstanding per peer.
func (p *peer) deliverResponse(raw rlp.RawValue) {
	select {
	case p.responses <- raw:
	case <-p.closed:
	}
}

// awaitResponse blocks until a response arrives or the peer's connection is
// torn down. No timeout applies.
func (p *peer) awaitResponse() (rlp.RawValue, error) {
	select {
	case raw := <-p.responses:
		return raw, nil
	case <-p.closed:
		return nil, errPeerClosed
	}
}

// close signals any blocked awaitResponse call that this peer is gone.
func (p *peer) close() {
	close(p.closed)
}

// hashOrNumber is a header request's origin, RLP-encoded as a plain
// two-field list. Send sets only Hash, and handleMsg serves from Hash
// alone; Number is carried but never read.
type hashOrNumber struct {
	Hash   common.Hash
	Number uint64
}

type getBlockHeadersData struct {
	Origin hashOrNumber
	Amount uint64
	Skip   uint64
}

// peerSet is the coordinator's registry of live sessions, guarded by a
// single lock since registration/lookup happen far less often than the
// sync loop's steady-state traffic.
type peerSet struct {
	peers  map[string]*peer
	lock   sync.RWMutex
	closed bool
}

func newPeerSet() *peerSet {
	return &peerSet{peers: make(map[string]*peer)}
}

func (ps *peerSet) Register(p *peer) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if ps.closed {
		return errClosed
	}
	if _, ok := ps.peers[p.id]; ok {
		return errAlreadyRegistered
	}
	ps.peers[p.id] = p
	return nil
}

func (ps *peerSet) Unregister(id string) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if _, ok := ps.peers[id]; !ok {
		return errNotRegistered
	}
	delete(ps.peers, id)
	return nil
}

func (ps *peerSet) Peer(id string) *peer {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	return ps.peers[id]
}

func (ps *peerSet) Len() int {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	return len(ps.peers)
}

// PeersForTrack returns the peers usable for the given download track. Every
// peer serves both tracks today, but the split is kept explicit since a
// light/ULC peer would only ever serve NewBlocks.
func (ps *peerSet) PeersForTrack(track blocksync.Track) []*peer {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	list := make([]*peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		list = append(list, p)
	}
	return list
}

// BestPeer returns the peer advertising the highest total difficulty.
func (ps *peerSet) BestPeer() *peer {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	var best *peer
	var bestTd *big.Int
	for _, p := range ps.peers {
		if _, td := p.Head(); bestTd == nil || td.Cmp(bestTd) > 0 {
			best, bestTd = p, td
		}
	}
	return best
}

func (ps *peerSet) Close() {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.closed = true
}
