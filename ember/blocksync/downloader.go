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

package blocksync

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
)

// Downloader drives the Idle -> ChainHead -> Blocks -> Complete lifecycle
// for a single track. It owns no goroutines and blocks on nothing: every
// method runs to completion synchronously, and the outer coordinator is
// responsible for serialising access to it.
type Downloader struct {
	track Track
	chain ChainOracle
	log   log.Logger

	state State

	highestBlock *uint64

	lastImportedBlock uint64
	lastImportedHash  common.Hash

	lastRoundStart      uint64
	lastRoundStartHash  common.Hash
	importedThisRound   *int
	roundParents        roundParents
	retractStep         uint64
	uselessHeadersCount int

	targetHash *common.Hash

	blocks *Collection
}

// New constructs a downloader for the given track, starting from a
// (hash, number) pair believed to already be part of the chain.
func New(track Track, startHash common.Hash, startNumber uint64, chain ChainOracle) *Downloader {
	return &Downloader{
		track:              track,
		chain:              chain,
		log:                log.New("track", track),
		state:              Idle,
		lastImportedBlock:  startNumber,
		lastImportedHash:   startHash,
		lastRoundStart:     startNumber,
		lastRoundStartHash: startHash,
		retractStep:        1,
		blocks:             NewCollection(track.needsReceipts()),
	}
}

// Reset clears all locally downloaded data and returns the downloader to
// Idle. last_imported_* and round_parents survive a reset; only the
// in-progress round's scaffold and useless counter are thrown away.
func (d *Downloader) Reset() {
	d.blocks.clear()
	d.uselessHeadersCount = 0
	d.state = Idle
}

// SetTarget marks hash as the terminal block: once CollectBlocks drains a
// block with this hash, the downloader transitions to Complete without
// submitting that block to the chain.
func (d *Downloader) SetTarget(hash common.Hash) {
	d.targetHash = &hash
}

// MarkAsKnown lets the outer coordinator report a block learned of through
// another path (e.g. a validated direct announcement) without going
// through CollectBlocks. It behaves like a successful import.
func (d *Downloader) MarkAsKnown(hash common.Hash, number uint64) {
	if number < d.lastImportedBlock+1 {
		return
	}
	d.lastImportedBlock = number
	d.lastImportedHash = hash
	round := 0
	if d.importedThisRound != nil {
		round = *d.importedThisRound
	}
	round++
	d.importedThisRound = &round
	d.lastRoundStart = number
	d.lastRoundStartHash = hash
}

// State reports the downloader's current lifecycle position.
func (d *Downloader) State() State { return d.state }

// IsComplete reports whether the track has reached its target.
func (d *Downloader) IsComplete() bool { return d.state == Complete }

// IsDownloading reports whether hash is currently out in a request for any
// piece.
func (d *Downloader) IsDownloading(hash common.Hash) bool { return d.blocks.IsDownloading(hash) }

// LastImportedBlock returns the tip this downloader believes it has already
// committed.
func (d *Downloader) LastImportedBlock() uint64 { return d.lastImportedBlock }

// LastImportedHash returns the hash of LastImportedBlock.
func (d *Downloader) LastImportedHash() common.Hash { return d.lastImportedHash }

// HighestBlock returns the highest block number seen in any header on this
// track, if any header has arrived yet.
func (d *Downloader) HighestBlock() (uint64, bool) {
	if d.highestBlock == nil {
		return 0, false
	}
	return *d.highestBlock, true
}

// ClearHeaderDownload reports that a peer holding a header request died
// before responding.
func (d *Downloader) ClearHeaderDownload(hash common.Hash) { d.blocks.ClearHeaderDownload(hash) }

// ClearBodyDownload reports that a peer holding a bodies request died
// before responding.
func (d *Downloader) ClearBodyDownload(hashes []common.Hash) { d.blocks.ClearBodyDownload(hashes) }

// ClearReceiptDownload reports that a peer holding a receipts request died
// before responding.
func (d *Downloader) ClearReceiptDownload(hashes []common.Hash) {
	d.blocks.ClearReceiptDownload(hashes)
}

// HeapSize approximates the downloader's total in-memory footprint: the
// collection's plus the round-parents ring's.
func (d *Downloader) HeapSize() uint64 {
	return d.blocks.HeapSize() + uint64(d.roundParents.len())*64
}

// RequestBlocks produces the next piece of work for a peer, or nil if
// there's nothing to ask for right now (either the track is saturated with
// in-flight work, or it's Complete).
func (d *Downloader) RequestBlocks(numActivePeers int) *Request {
	switch d.state {
	case Idle:
		d.startSyncRound()
		if d.state == ChainHead {
			return d.RequestBlocks(numActivePeers)
		}
		return nil

	case ChainHead:
		if numActivePeers >= maxParallelSubchains {
			return nil
		}
		// Ask for a sparse skeleton MAX_HEADERS_TO_REQUEST-2 apart so that
		// a later full MAX_HEADERS_TO_REQUEST-sized fill from any skeleton
		// hash reaches its neighbours, leaving the joints verifiable. The
		// exact value is load-bearing; don't touch it.
		return headersRequest(d.lastImportedHash, subchainSize, maxHeadersToRequest-2)

	case Blocks:
		if hashes := d.blocks.NeededBodies(maxBodiesToRequest, false); len(hashes) > 0 {
			return bodiesRequest(hashes)
		}
		if d.track.needsReceipts() {
			if hashes := d.blocks.NeededReceipts(maxReceiptsToRequest, false); len(hashes) > 0 {
				return receiptsRequest(hashes)
			}
		}
		if start, count, ok := d.blocks.NeededHeaders(maxHeadersToRequest, false); ok {
			return headersRequest(start, count, 0)
		}
		return nil

	default: // Complete
		return nil
	}
}

// startSyncRound begins a new round, retracting to look for a common
// ancestor when the previous round imported nothing.
func (d *Downloader) startSyncRound() {
	d.state = ChainHead
	start := d.lastRoundStart
	startHash := d.lastRoundStartHash

	switch {
	case d.importedThisRound != nil && *d.importedThisRound == 0 && start > 0:
		if parent, ok := d.roundParents.find(startHash); ok {
			d.lastImportedBlock = start - 1
			d.lastImportedHash = parent
			d.log.Trace("Searching common header from round history", "number", d.lastImportedBlock)
		} else {
			info := d.chain.ChainInfo()
			pruning := d.chain.PruningInfo()
			if d.track.limitReorg() && info.BestBlockNumber > start && start < pruning.EarliestState {
				d.log.Debug("Could not revert to previous ancient block", "start", start)
				d.Reset()
				return
			}
			step := d.retractStep
			if step > start {
				step = start
			}
			n := start - step
			d.retractStep *= 2
			if hash, ok := d.chain.BlockHash(n); ok {
				d.lastImportedBlock = n
				d.lastImportedHash = hash
				d.log.Trace("Searching common header in the chain", "number", n)
			} else {
				d.log.Debug("Could not revert to previous block", "start", start)
				d.Reset()
				return
			}
		}
	default:
		d.retractStep = 1
	}

	d.lastRoundStart = d.lastImportedBlock
	d.lastRoundStartHash = d.lastImportedHash
	d.importedThisRound = nil
}

// ImportHeaders processes a headers response. expectedHash, when set, is
// the hash the caller asked for as the first item of an explicit request.
func (d *Downloader) ImportHeaders(raw rlp.RawValue, expectedHash *common.Hash) (Action, error) {
	if d.state == Idle {
		d.log.Trace("Ignored unexpected headers")
		return NoAction, nil
	}

	var headers []*types.Header
	if len(raw) > 0 {
		if err := rlp.DecodeBytes(raw, &headers); err != nil {
			headerDropMeter.Mark(1)
			return NoAction, ErrInvalid
		}
	}
	if len(headers) == 0 && d.state == Blocks {
		headerDropMeter.Mark(1)
		return NoAction, ErrInvalid
	}

	var staged []*types.Header
	validResponse := len(headers) == 0
	anyKnown := false
	for _, h := range headers {
		hash := h.Hash()
		if !validResponse && expectedHash != nil && *expectedHash == hash {
			validResponse = true
		}
		if d.blocks.ContainsHead(hash) {
			anyKnown = true
		}
		if d.blocks.Contains(hash) {
			continue
		}
		number := h.Number.Uint64()
		if d.highestBlock == nil || number > *d.highestBlock {
			d.highestBlock = &number
		}
		switch d.chain.BlockStatus(hash) {
		case StatusBad:
			headerDropMeter.Mark(1)
			return NoAction, ErrInvalid
		case StatusInChain, StatusQueued, StatusUnknown:
			staged = append(staged, h)
		}
	}
	if !validResponse {
		d.log.Trace("Invalid headers response")
		headerDropMeter.Mark(1)
		return NoAction, ErrInvalid
	}

	switch d.state {
	case ChainHead:
		if len(staged) > 0 {
			hashes := make([]common.Hash, len(staged))
			for i, h := range staged {
				hashes[i] = h.Hash()
			}
			d.blocks.ResetTo(hashes)
			d.state = Blocks
			resetMeter.Mark(1)
			d.log.Debug("Received subchain heads, starting fill", "count", len(hashes))
			return ResetAction, nil
		}
		info := d.chain.ChainInfo()
		pruning := d.chain.PruningInfo()
		last := d.lastImportedBlock
		if d.track.limitReorg() && info.BestBlockNumber > last && last > 0 && last < pruning.EarliestState {
			d.log.Debug("No common block, dropping peer")
			headerDropMeter.Mark(1)
			return NoAction, ErrInvalid
		}
		return NoAction, nil

	case Blocks:
		if len(staged) == 0 || !anyKnown {
			uselessMeter.Mark(1)
			if expectedHash != nil {
				d.uselessHeadersCount++
				if d.blocks.HeadsLen() > 1 && d.uselessHeadersCount >= maxUselessHeaders {
					d.log.Debug("Consecutive useless headers, resetting round")
					d.Reset()
				}
			}
			return NoAction, ErrUseless
		}
		d.blocks.InsertHeaders(staged)
		headerInMeter.Mark(int64(len(staged)))
		return NoAction, nil

	default:
		return NoAction, nil
	}
}

// ImportBodies processes a bodies response.
func (d *Downloader) ImportBodies(raw rlp.RawValue) error {
	var bodies []*types.Body
	if len(raw) > 0 {
		if err := rlp.DecodeBytes(raw, &bodies); err != nil {
			return ErrInvalid
		}
	}
	if len(bodies) == 0 {
		return ErrUseless
	}
	if d.state != Blocks {
		d.log.Trace("Ignored unexpected bodies")
		return nil
	}
	matched := d.blocks.InsertBodies(bodies)
	if matched != len(bodies) {
		bodyDropMeter.Mark(1)
		return ErrInvalid
	}
	bodyInMeter.Mark(int64(matched))
	return nil
}

// ImportReceipts processes a receipts response. Receipts are never decoded
// by the core: each item is stored as the opaque bytes it arrived as and
// re-emitted unchanged to ChainOracle.QueueAncientBlock.
func (d *Downloader) ImportReceipts(raw rlp.RawValue) error {
	var items []rlp.RawValue
	if len(raw) > 0 {
		if err := rlp.DecodeBytes(raw, &items); err != nil {
			return ErrInvalid
		}
	}
	if len(items) == 0 {
		return ErrUseless
	}
	if d.state != Blocks {
		d.log.Trace("Ignored unexpected receipts")
		return nil
	}
	blobs := make([][]byte, len(items))
	for i, item := range items {
		blobs[i] = []byte(item)
	}
	matched := d.blocks.InsertReceipts(blobs)
	if matched != len(blobs) {
		receiptDropMeter.Mark(1)
		return ErrInvalid
	}
	receiptInMeter.Mark(int64(matched))
	return nil
}

// CollectBlocks drains every fully-downloaded block off the front of the
// collection and submits it to the chain, classifying each outcome. It
// returns ResetAction if the import queue backed up or a block was
// rejected for an unclassified reason; the outer coordinator should then
// discard every in-flight request for this track.
func (d *Downloader) CollectBlocks(allowOutOfOrder bool) Action {
	action := NoAction
	imported := 0

	blocks := d.blocks.Drain()
	for _, sb := range blocks {
		block := sb.Block
		hash := block.Hash()
		number := block.NumberU64()
		parent := block.ParentHash()

		if d.targetHash != nil && *d.targetHash == hash {
			d.state = Complete
			d.log.Info("Sync target reached", "number", number, "hash", hash)
			return action
		}

		var result ImportError
		if sb.Receipts != nil {
			result = d.chain.QueueAncientBlock(block, sb.Receipts)
		} else {
			result = d.chain.ImportBlock(block)
		}

		if result == nil {
			imported++
			d.blockImported(hash, number, parent)
			continue
		}

		switch result.Kind() {
		case ErrAlreadyInChain, ErrAlreadyQueued:
			imported++
			d.blockImported(hash, number, parent)
		case ErrUnknownParent:
			if !allowOutOfOrder {
				d.log.Debug("Unknown parent, restarting sync", "hash", hash)
			}
			goto stop
		case ErrTemporarilyInvalid:
			d.log.Debug("Block temporarily invalid, restarting sync", "hash", hash)
			goto stop
		case ErrQueueFull:
			d.log.Debug("Import queue full, restarting sync", "limit", result.Limit())
			action = ResetAction
			goto stop
		default:
			d.log.Debug("Bad block, restarting sync", "hash", hash, "err", result)
			action = ResetAction
			goto stop
		}
	}
stop:

	round := 0
	if d.importedThisRound != nil {
		round = *d.importedThisRound
	}
	round += imported
	d.importedThisRound = &round

	if d.blocks.IsEmpty() {
		d.log.Trace("Sync round complete")
		d.Reset()
	}
	return action
}

func (d *Downloader) blockImported(hash common.Hash, number uint64, parent common.Hash) {
	d.lastImportedBlock = number
	d.lastImportedHash = hash
	d.roundParents.push(hash, parent)
}
