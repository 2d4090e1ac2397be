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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

// chainFixture builds a linear chain of n headers rooted at parent, each
// with distinct extra-data so hashes are easy to tell apart in assertions.
func chainFixture(n int, parent common.Hash, startNumber uint64) []*types.Header {
	headers := make([]*types.Header, n)
	for i := 0; i < n; i++ {
		h := &types.Header{
			ParentHash: parent,
			Number:     new(big.Int).SetUint64(startNumber + uint64(i)),
			Extra:      []byte{byte(i)},
		}
		headers[i] = h
		parent = h.Hash()
	}
	return headers
}

func TestCollectionResetToTwoHeads(t *testing.T) {
	c := NewCollection(false)
	a := common.HexToHash("0xaa")
	b := common.HexToHash("0xbb")
	c.ResetTo([]common.Hash{a, b})

	require.Equal(t, 2, c.HeadsLen())
	require.True(t, c.ContainsHead(a))
	require.True(t, c.ContainsHead(b))
	require.False(t, c.IsEmpty())
}

func TestCollectionNeededHeadersSkipsAnchorAndOneGapPerCall(t *testing.T) {
	c := NewCollection(false)
	anchor := common.HexToHash("0xaa")
	first := common.HexToHash("0xbb")
	second := common.HexToHash("0xcc")
	c.ResetTo([]common.Hash{anchor, first, second})

	// The anchor is already known to the chain; it never needs its own
	// header fetched, so the first gap handed out is the next head.
	start, count, ok := c.NeededHeaders(128, false)
	require.True(t, ok)
	require.Equal(t, first, start)
	require.Equal(t, uint64(128), count)

	// first's gap is now marked downloading; the next call should surface
	// second's gap instead of handing out the same one.
	start2, _, ok2 := c.NeededHeaders(128, false)
	require.True(t, ok2)
	require.Equal(t, second, start2)

	// Both real gaps are now downloading; nothing left to hand out.
	_, _, ok3 := c.NeededHeaders(128, false)
	require.False(t, ok3)
}

func TestCollectionInsertHeadersAdvancesFrontier(t *testing.T) {
	c := NewCollection(false)
	headers := chainFixture(3, common.Hash{}, 1)
	anchor := headers[0].ParentHash // genesis-ish root, not itself indexed
	tip := headers[len(headers)-1].Hash()
	c.ResetTo([]common.Hash{anchor, tip})

	c.InsertHeaders(headers)

	for _, h := range headers {
		require.True(t, c.Contains(h.Hash()))
	}

	// tip's frontier walked down to a header whose parent was already
	// indexed, so the gap is joined and no header request is left.
	_, _, ok := c.NeededHeaders(128, false)
	require.False(t, ok)
}

func TestCollectionBodyReceiptFIFOMatching(t *testing.T) {
	c := NewCollection(true)
	headers := chainFixture(2, common.Hash{}, 1)
	anchor := headers[0].ParentHash
	tip := headers[1].Hash()
	c.ResetTo([]common.Hash{anchor, tip})
	c.InsertHeaders(headers)

	bodyHashes := c.NeededBodies(10, false)
	require.Len(t, bodyHashes, 2)

	bodies := []*types.Body{{}, {}}
	matched := c.InsertBodies(bodies)
	require.Equal(t, 2, matched)

	receiptHashes := c.NeededReceipts(10, false)
	require.Len(t, receiptHashes, 2)

	matchedReceipts := c.InsertReceipts([][]byte{{0x1}, {0x2}})
	require.Equal(t, 2, matchedReceipts)
}

func TestCollectionDrainDropsAnchorHead(t *testing.T) {
	c := NewCollection(false)
	headers := chainFixture(2, common.Hash{}, 1)
	anchor := headers[0].ParentHash
	tip := headers[1].Hash()
	c.ResetTo([]common.Hash{anchor, tip})
	c.InsertHeaders(headers)

	bodyHashes := c.NeededBodies(10, false)
	c.InsertBodies([]*types.Body{{}, {}})
	require.Len(t, bodyHashes, 2)

	blocks := c.Drain()
	require.Len(t, blocks, 2)
	require.True(t, c.IsEmpty())
	require.Equal(t, 0, c.HeadsLen())
}

func TestCollectionClearDownloadAllowsRetry(t *testing.T) {
	c := NewCollection(false)
	anchor := common.HexToHash("0xaa")
	tip := common.HexToHash("0xbb")
	c.ResetTo([]common.Hash{anchor, tip})

	start, _, ok := c.NeededHeaders(128, false)
	require.True(t, ok)

	_, _, ok2 := c.NeededHeaders(128, false)
	require.False(t, ok2, "gap is marked downloading, should not be handed out twice")

	c.ClearHeaderDownload(start)

	_, _, ok3 := c.NeededHeaders(128, false)
	require.True(t, ok3, "clearing the download mark should make the gap available again")
}
