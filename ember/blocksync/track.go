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

// Track identifies which half of the chain a Downloader instance is
// responsible for. Exactly two tracks run side by side against the same
// local chain.
type Track int

const (
	// NewBlocks extends the canonical head. Reorgs are limited to what the
	// chain's retained state can still verify, and receipts are not fetched
	// since the importer recomputes them.
	NewBlocks Track = iota
	// OldBlocks backfills ancient history below the point state pruning
	// still covers. Reorg depth is unrestricted and receipts must be
	// fetched alongside bodies since they cannot be recomputed without
	// state.
	OldBlocks
)

func (t Track) String() string {
	switch t {
	case NewBlocks:
		return "new"
	case OldBlocks:
		return "old"
	default:
		return "unknown"
	}
}

// limitReorg reports whether retracting past the chain's earliest retained
// state is disallowed for this track.
func (t Track) limitReorg() bool {
	return t == NewBlocks
}

// needsReceipts reports whether this track downloads receipts alongside
// bodies.
func (t Track) needsReceipts() bool {
	return t == OldBlocks
}
