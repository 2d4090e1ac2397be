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
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/emberchain/go-ember/ember/blocksync"
)

// StartEvent/DoneEvent/FailedEvent are posted on the Syncer's event.TypeMux
// around each synchronisation round, for whatever part of the node wants to
// gate its own behavior on sync progress (e.g. refusing to accept
// transactions until the first round completes).
type StartEvent struct{}
type DoneEvent struct{}
type FailedEvent struct{ Err error }

const (
	forceSyncCycle      = 10 * time.Second
	minDesiredPeerCount = 5
)

// Syncer drives the two block-download tracks (NewBlocks follows the
// canonical head, OldBlocks backfills ancient history) against whichever
// peer currently advertises the best chain. The downloaders themselves hold
// no concurrency of their own; Syncer is the single caller that serializes
// access to each one.
type Syncer struct {
	chain     blocksync.ChainOracle
	peers     *peerSet
	eventMux  *event.TypeMux
	whitelist map[uint64]common.Hash

	newBlocks *blocksync.Downloader
	oldBlocks *blocksync.Downloader

	synchronising int32
	lock          sync.Mutex

	newPeerCh   chan struct{}
	noMorePeers chan struct{}
	quitSync    chan struct{}
}

// NewSyncer builds a Syncer rooted at the chain's current head. whitelist
// may be nil, in which case no pinned-block check is performed.
func NewSyncer(chain blocksync.ChainOracle, peers *peerSet, eventMux *event.TypeMux, whitelist map[uint64]common.Hash, headHash common.Hash, headNumber uint64) *Syncer {
	return &Syncer{
		chain:       chain,
		peers:       peers,
		eventMux:    eventMux,
		whitelist:   whitelist,
		newBlocks:   blocksync.New(blocksync.NewBlocks, headHash, headNumber, chain),
		oldBlocks:   blocksync.New(blocksync.OldBlocks, headHash, headNumber, chain),
		newPeerCh:   make(chan struct{}),
		noMorePeers: make(chan struct{}),
		quitSync:    make(chan struct{}),
	}
}

// NewBlocksDownloader exposes the head-following track, e.g. for a debug
// status endpoint.
func (s *Syncer) NewBlocksDownloader() *blocksync.Downloader { return s.newBlocks }

// OldBlocksDownloader exposes the ancient-history-backfill track.
func (s *Syncer) OldBlocksDownloader() *blocksync.Downloader { return s.oldBlocks }

// RegisterPeer notifies the syncer loop that a new candidate peer connected.
func (s *Syncer) RegisterPeer() {
	select {
	case s.newPeerCh <- struct{}{}:
	default:
	}
}

// Terminate stops the syncer loop and any in-flight round.
func (s *Syncer) Terminate() {
	close(s.quitSync)
}

// Loop is the syncer's main goroutine: periodically, or whenever a peer
// announcement arrives with enough peers on hand, it picks the best peer and
// runs a synchronisation round against it.
func (s *Syncer) Loop() {
	forceSync := time.NewTicker(forceSyncCycle)
	defer forceSync.Stop()

	for {
		select {
		case <-s.newPeerCh:
			if s.peers.Len() < minDesiredPeerCount {
				continue
			}
			go s.synchronise(s.peers.BestPeer())

		case <-forceSync.C:
			go s.synchronise(s.peers.BestPeer())

		case <-s.quitSync:
			return
		}
	}
}

// synchronise runs one round of both tracks against p, serialized behind
// synchronising so overlapping peer announcements never run two rounds
// concurrently against the same Downloaders.
func (s *Syncer) synchronise(p *peer) {
	if p == nil {
		return
	}
	if !atomic.CompareAndSwapInt32(&s.synchronising, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&s.synchronising, 0)

	s.lock.Lock()
	defer s.lock.Unlock()

	head, td := p.Head()
	s.newBlocks.SetTarget(head)
	log.Debug("starting sync round", "peer", p.id, "head", head, "td", td)
	s.eventMux.Post(StartEvent{})

	errNew := s.runTrack(s.newBlocks, blocksync.NewBlocks, p)
	if errNew != nil {
		log.Debug("new-blocks track aborted", "peer", p.id, "err", errNew)
	}
	errOld := s.runTrack(s.oldBlocks, blocksync.OldBlocks, p)
	if errOld != nil {
		log.Debug("old-blocks track aborted", "peer", p.id, "err", errOld)
	}

	if errNew != nil {
		s.eventMux.Post(FailedEvent{Err: errNew})
	} else if errOld != nil {
		s.eventMux.Post(FailedEvent{Err: errOld})
	} else {
		s.eventMux.Post(DoneEvent{})
	}
}

// runTrack drives d to completion (or until it has nothing left to request)
// against a single peer, round-tripping one request at a time. track
// selects which of the peer's wire message codes (NewBlocks or OldBlocks)
// this round's requests go out on.
func (s *Syncer) runTrack(d *blocksync.Downloader, track blocksync.Track, p *peer) error {
	for !d.IsComplete() {
		req := d.RequestBlocks(0)
		if req == nil {
			if action := d.CollectBlocks(false); action == blocksync.ResetAction {
				d.Reset()
			}
			return nil
		}
		if err := p.Send(track, req); err != nil {
			return err
		}
		raw, err := s.readResponse(p)
		if err != nil {
			return err
		}
		if err := s.deliver(d, req, raw, p); err != nil {
			return err
		}
		if action := d.CollectBlocks(false); action == blocksync.ResetAction {
			d.Reset()
			return nil
		}
	}
	return nil
}

// readResponse waits for the protocol loop to deliver the response to
// whatever request runTrack just sent, rather than reading rw directly -
// Backend.handle's goroutine is the only reader of a peer's connection.
func (s *Syncer) readResponse(p *peer) (rlp.RawValue, error) {
	return p.awaitResponse()
}

func (s *Syncer) deliver(d *blocksync.Downloader, req *blocksync.Request, raw rlp.RawValue, p *peer) error {
	switch {
	case req.Headers != nil:
		expected := req.Headers.Start
		_, err := d.ImportHeaders(raw, &expected)
		if err == nil {
			err = s.checkWhitelist(raw)
		}
		return s.penalize(p, err)
	case req.Bodies != nil:
		return s.penalize(p, d.ImportBodies(raw))
	case req.Receipts != nil:
		return s.penalize(p, d.ImportReceipts(raw))
	default:
		return nil
	}
}

// checkWhitelist rejects a just-imported headers response if any of its
// headers lands on a pinned block number with a disagreeing hash. A
// mismatch is treated exactly like
// an invalid response: the peer is dropped rather than trusted further.
func (s *Syncer) checkWhitelist(raw rlp.RawValue) error {
	var headers []*types.Header
	if len(s.whitelist) == 0 || rlp.DecodeBytes(raw, &headers) != nil {
		return nil
	}
	for _, h := range headers {
		if pinned, ok := s.whitelist[h.Number.Uint64()]; ok && pinned != h.Hash() {
			return blocksync.ErrInvalid
		}
	}
	return nil
}

// penalize translates a Downloader error into a peer-management decision:
// ErrInvalid drops the peer outright, ErrUseless only logs it, anything else
// is a transport-level failure that ends the round.
func (s *Syncer) penalize(p *peer, err error) error {
	switch err {
	case nil:
		return nil
	case blocksync.ErrUseless:
		log.Trace("peer response marked useless", "peer", p.id)
		return nil
	case blocksync.ErrInvalid:
		log.Debug("dropping invalid peer", "peer", p.id)
		return err
	default:
		return err
	}
}
