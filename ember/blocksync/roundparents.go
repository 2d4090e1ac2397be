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

import "github.com/ethereum/go-ethereum/common"

// parentLink is a (hash, parent-hash) pair recorded as a block is imported.
type parentLink struct {
	hash   common.Hash
	parent common.Hash
}

// roundParents is a bounded FIFO of recently imported parent links, used to
// walk back one block during a retract without a chain lookup. It is a
// plain slice holding at most maxRoundParents entries; the oldest entry is
// evicted by reslicing from the front, so append reallocates the backing
// array from time to time.
type roundParents struct {
	links []parentLink
}

func (r *roundParents) push(hash, parent common.Hash) {
	r.links = append(r.links, parentLink{hash: hash, parent: parent})
	if len(r.links) > maxRoundParents {
		r.links = r.links[1:]
	}
}

func (r *roundParents) len() int {
	return len(r.links)
}

// find returns the parent recorded for hash, if any.
func (r *roundParents) find(hash common.Hash) (common.Hash, bool) {
	for _, l := range r.links {
		if l.hash == hash {
			return l.parent, true
		}
	}
	return common.Hash{}, false
}

func (r *roundParents) reset() {
	r.links = nil
}
