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
	"github.com/fjl/memsize"
)

// SyncBlock is a fully assembled block plus its opaque receipts blob, ready
// to hand to the chain. Receipts is nil on tracks that don't download them.
type SyncBlock struct {
	Block    *types.Block
	Receipts []byte
}

// Collection is the in-memory store of partially-downloaded blocks keyed by
// hash. It is a flat arena: a header index, a parent->child edge index
// built from parent-hash (no cyclic pointers), and small side-sets for the
// subchain heads and the downloading marks. It belongs to exactly one
// Downloader and is never shared.
type Collection struct {
	needsReceipts bool

	heads    []common.Hash            // subchain anchors, in install order
	frontier map[common.Hash]common.Hash // head -> hash still needing a header
	anchor   common.Hash              // lowest head; drain starts at its children

	headers       map[common.Hash]*types.Header
	insertOrder   []common.Hash
	parentToChild map[common.Hash][]common.Hash

	bodies   map[common.Hash]*types.Body
	receipts map[common.Hash][]byte

	downloadingHeaders map[common.Hash]bool

	// Bodies and receipts are matched FIFO against the order their hashes
	// were handed out by NeededBodies/NeededReceipts, since a response
	// carries no hashes of its own - only a positional list of items.
	bodyQueue    []common.Hash
	bodySet      map[common.Hash]bool
	receiptQueue []common.Hash
	receiptSet   map[common.Hash]bool
}

// NewCollection constructs an empty collection. needsReceipts is fixed for
// the collection's lifetime, matching the Downloader's track.
func NewCollection(needsReceipts bool) *Collection {
	c := &Collection{needsReceipts: needsReceipts}
	c.clear()
	return c
}

func (c *Collection) clear() {
	c.heads = nil
	c.frontier = make(map[common.Hash]common.Hash)
	c.anchor = common.Hash{}
	c.headers = make(map[common.Hash]*types.Header)
	c.insertOrder = nil
	c.parentToChild = make(map[common.Hash][]common.Hash)
	c.bodies = make(map[common.Hash]*types.Body)
	c.receipts = make(map[common.Hash][]byte)
	c.downloadingHeaders = make(map[common.Hash]bool)
	c.bodyQueue = nil
	c.bodySet = make(map[common.Hash]bool)
	c.receiptQueue = nil
	c.receiptSet = make(map[common.Hash]bool)
}

// ResetTo clears everything and installs hashes as the new subchain heads,
// in the given order. The first hash is treated as the chain anchor: it is
// already known to the chain (it is how it was discovered), so its own
// header is never fetched and its frontier is left unseeded.
func (c *Collection) ResetTo(hashes []common.Hash) {
	c.clear()
	if len(hashes) == 0 {
		return
	}
	c.heads = append(c.heads, hashes...)
	c.anchor = hashes[0]
	for i, h := range hashes {
		if i == 0 {
			continue
		}
		c.frontier[h] = h
	}
}

// HeadsLen reports the number of in-flight subchains.
func (c *Collection) HeadsLen() int { return len(c.heads) }

// ContainsHead reports whether hash is one of the current subchain heads.
func (c *Collection) ContainsHead(hash common.Hash) bool {
	for _, h := range c.heads {
		if h == hash {
			return true
		}
	}
	return false
}

// Contains reports whether hash already has a header indexed.
func (c *Collection) Contains(hash common.Hash) bool {
	_, ok := c.headers[hash]
	return ok
}

// IsDownloading reports whether hash is currently out in a request for any
// piece.
func (c *Collection) IsDownloading(hash common.Hash) bool {
	return c.downloadingHeaders[hash] || c.bodySet[hash] || c.receiptSet[hash]
}

// IsEmpty reports whether the collection holds no work at all: no heads and
// no indexed headers.
func (c *Collection) IsEmpty() bool {
	return len(c.heads) == 0 && len(c.headers) == 0
}

// InsertHeaders indexes each header by hash, links it to its parent, clears
// its downloading mark and advances whichever subchain frontier was waiting
// on it.
func (c *Collection) InsertHeaders(headers []*types.Header) {
	for _, h := range headers {
		hash := h.Hash()
		delete(c.downloadingHeaders, hash)
		if _, ok := c.headers[hash]; ok {
			continue
		}
		c.headers[hash] = h
		c.insertOrder = append(c.insertOrder, hash)
		c.parentToChild[h.ParentHash] = append(c.parentToChild[h.ParentHash], hash)
		c.advanceFrontier(hash, h.ParentHash)
	}
}

// advanceFrontier moves any subchain whose frontier was waiting on hash one
// step further down (towards its parent), unless the parent is the anchor
// or already indexed - in which case the gap is joined and the frontier
// entry is cleared.
func (c *Collection) advanceFrontier(hash, parent common.Hash) {
	for head, want := range c.frontier {
		if want != hash {
			continue
		}
		if parent == c.anchor {
			delete(c.frontier, head)
			continue
		}
		if _, ok := c.headers[parent]; ok {
			delete(c.frontier, head)
			continue
		}
		c.frontier[head] = parent
	}
}

// NeededHeaders returns the frontier hash of the earliest-installed head
// with an unsatisfied, non-downloading frontier, and max as the count. Gap
// lengths are not measured, so the longest gap is not preferred over an
// earlier one. ignoreDownloading, when true,
// considers marked-downloading hashes eligible too (diagnostics only; the
// state machine always passes false).
func (c *Collection) NeededHeaders(max uint64, ignoreDownloading bool) (common.Hash, uint64, bool) {
	for _, head := range c.heads {
		want, ok := c.frontier[head]
		if !ok {
			continue
		}
		if !ignoreDownloading && c.downloadingHeaders[want] {
			continue
		}
		c.downloadingHeaders[want] = true
		return want, max, true
	}
	return common.Hash{}, 0, false
}

// NeededBodies returns up to max hashes whose body is missing and not
// currently downloading, marking them as downloading before returning.
func (c *Collection) NeededBodies(max int, ignoreDownloading bool) []common.Hash {
	missing := func(hash common.Hash) bool { _, ok := c.bodies[hash]; return !ok }
	out := c.neededPieces(max, ignoreDownloading, missing, c.bodySet)
	c.bodyQueue = append(c.bodyQueue, out...)
	return out
}

// NeededReceipts returns up to max hashes whose receipts are missing and
// not currently downloading, marking them as downloading before returning.
func (c *Collection) NeededReceipts(max int, ignoreDownloading bool) []common.Hash {
	if !c.needsReceipts {
		return nil
	}
	missing := func(hash common.Hash) bool { _, ok := c.receipts[hash]; return !ok }
	out := c.neededPieces(max, ignoreDownloading, missing, c.receiptSet)
	c.receiptQueue = append(c.receiptQueue, out...)
	return out
}

func (c *Collection) neededPieces(max int, ignoreDownloading bool, missing func(common.Hash) bool, downloading map[common.Hash]bool) []common.Hash {
	var out []common.Hash
	for _, hash := range c.insertOrder {
		if len(out) >= max {
			break
		}
		if !missing(hash) {
			continue
		}
		if !ignoreDownloading && downloading[hash] {
			continue
		}
		downloading[hash] = true
		out = append(out, hash)
	}
	return out
}

// InsertBodies matches each body against the oldest outstanding body
// request, FIFO, since a bodies response carries no hashes of its own. It
// returns the number matched; a caller whose count differs from
// len(bodies) is lying about what it has.
func (c *Collection) InsertBodies(bodies []*types.Body) int {
	matched := 0
	for _, body := range bodies {
		if len(c.bodyQueue) == 0 {
			break
		}
		hash := c.bodyQueue[0]
		c.bodyQueue = c.bodyQueue[1:]
		delete(c.bodySet, hash)
		if _, ok := c.headers[hash]; !ok {
			continue
		}
		if _, ok := c.bodies[hash]; ok {
			continue
		}
		c.bodies[hash] = body
		matched++
	}
	return matched
}

// InsertReceipts matches each opaque receipts blob against the oldest
// outstanding receipts request, FIFO, and returns the matched count.
func (c *Collection) InsertReceipts(receipts [][]byte) int {
	matched := 0
	for _, r := range receipts {
		if len(c.receiptQueue) == 0 {
			break
		}
		hash := c.receiptQueue[0]
		c.receiptQueue = c.receiptQueue[1:]
		delete(c.receiptSet, hash)
		if _, ok := c.headers[hash]; !ok {
			continue
		}
		if _, ok := c.receipts[hash]; ok {
			continue
		}
		c.receipts[hash] = r
		matched++
	}
	return matched
}

// ClearHeaderDownload unmarks hash as being downloaded as a header gap
// start, so it can be requested again from another peer.
func (c *Collection) ClearHeaderDownload(hash common.Hash) {
	delete(c.downloadingHeaders, hash)
}

// ClearBodyDownload unmarks hashes as being downloaded as bodies, dropping
// their reservation in the FIFO match queue so a dead peer's slot doesn't
// jam future responses.
func (c *Collection) ClearBodyDownload(hashes []common.Hash) {
	for _, h := range hashes {
		delete(c.bodySet, h)
		c.bodyQueue = removeHash(c.bodyQueue, h)
	}
}

// ClearReceiptDownload unmarks hashes as being downloaded as receipts.
func (c *Collection) ClearReceiptDownload(hashes []common.Hash) {
	for _, h := range hashes {
		delete(c.receiptSet, h)
		c.receiptQueue = removeHash(c.receiptQueue, h)
	}
}

func removeHash(list []common.Hash, hash common.Hash) []common.Hash {
	for i, h := range list {
		if h == hash {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Drain returns the longest prefix of blocks with every required piece
// present, in strictly ascending parent->child order starting from the
// collection's current anchor, and removes them from the collection.
func (c *Collection) Drain() []SyncBlock {
	var out []SyncBlock
	for {
		prevAnchor := c.anchor
		children := c.parentToChild[prevAnchor]
		if len(children) == 0 {
			break
		}
		child := children[0]
		header, ok := c.headers[child]
		if !ok {
			break
		}
		body, ok := c.bodies[child]
		if !ok {
			break
		}
		var receiptBytes []byte
		if c.needsReceipts {
			rb, ok := c.receipts[child]
			if !ok {
				break
			}
			receiptBytes = rb
		}

		block := types.NewBlockWithHeader(header).WithBody(body.Transactions, body.Uncles)
		out = append(out, SyncBlock{Block: block, Receipts: receiptBytes})

		c.remove(child)
		c.anchor = child
		// The head we just moved past (prevAnchor, most often the original
		// anchor which never gets its own header fetched) and the head we
		// just landed on both stop being in-flight subchains.
		c.dropHead(prevAnchor)
		c.dropHead(child)
	}
	return out
}

// remove deletes every trace of hash from the indexes once it has been
// drained.
func (c *Collection) remove(hash common.Hash) {
	header := c.headers[hash]
	delete(c.headers, hash)
	delete(c.bodies, hash)
	delete(c.receipts, hash)
	if header != nil {
		siblings := c.parentToChild[header.ParentHash]
		for i, s := range siblings {
			if s == hash {
				c.parentToChild[header.ParentHash] = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
		if len(c.parentToChild[header.ParentHash]) == 0 {
			delete(c.parentToChild, header.ParentHash)
		}
	}
	for i, h := range c.insertOrder {
		if h == hash {
			c.insertOrder = append(c.insertOrder[:i], c.insertOrder[i+1:]...)
			break
		}
	}
}

// dropHead removes hash from the heads list once its subchain is fully
// absorbed into the already-imported tip.
func (c *Collection) dropHead(hash common.Hash) {
	for i, h := range c.heads {
		if h == hash {
			c.heads = append(c.heads[:i], c.heads[i+1:]...)
			delete(c.frontier, h)
			return
		}
	}
}

// HeapSize reports the collection's real in-memory footprint via a reflect
// walk, for the diagnostics surface that reports per-track memory use.
func (c *Collection) HeapSize() uint64 {
	return uint64(memsize.Scan(c).Total)
}
