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

package main

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/emberchain/go-ember/ember/blocksync"
)

// genesisChain is the smallest possible blocksync.ChainOracle/ember.Responder:
// an in-memory, genesis-rooted block store. It exists so goember has
// something concrete to sync against; persistent storage and validation are
// explicitly out of scope (SPEC_FULL.md §5) and belong to a real chain
// package, not this entrypoint.
type genesisChain struct {
	lock sync.RWMutex

	blocks   map[common.Hash]*types.Block
	byNumber map[uint64]common.Hash
	best     uint64
}

// newGenesisChain seeds the store from cfg, falling back to a bare block
// zero if cfg is nil. Only the header fields a block-download engine needs
// to identify and serve the genesis are taken from it; state-root
// computation is out of scope (no trie/state database backs this chain).
func newGenesisChain(cfg *core.Genesis) *genesisChain {
	header := &types.Header{
		Number: new(big.Int),
		Extra:  []byte("ember genesis"),
	}
	if cfg != nil {
		header.Number = new(big.Int).SetUint64(cfg.Number)
		header.ParentHash = cfg.ParentHash
		header.Extra = cfg.ExtraData
		header.GasLimit = cfg.GasLimit
		header.GasUsed = cfg.GasUsed
		header.Difficulty = cfg.Difficulty
		header.MixDigest = cfg.Mixhash
		header.Coinbase = cfg.Coinbase
		header.Time = cfg.Timestamp
		header.Nonce = types.EncodeNonce(cfg.Nonce)
	}
	genesis := types.NewBlockWithHeader(header)
	hash := genesis.Hash()
	number := header.Number.Uint64()
	return &genesisChain{
		blocks:   map[common.Hash]*types.Block{hash: genesis},
		byNumber: map[uint64]common.Hash{number: hash},
		best:     number,
	}
}

func (c *genesisChain) BlockStatus(hash common.Hash) blocksync.BlockStatus {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if _, ok := c.blocks[hash]; ok {
		return blocksync.StatusInChain
	}
	return blocksync.StatusUnknown
}

func (c *genesisChain) BlockHash(number uint64) (common.Hash, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	hash, ok := c.byNumber[number]
	return hash, ok
}

func (c *genesisChain) ChainInfo() blocksync.ChainInfo {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return blocksync.ChainInfo{BestBlockNumber: c.best}
}

func (c *genesisChain) PruningInfo() blocksync.PruningInfo {
	return blocksync.PruningInfo{EarliestState: 0}
}

func (c *genesisChain) ImportBlock(block *types.Block) blocksync.ImportError {
	c.lock.Lock()
	defer c.lock.Unlock()

	hash := block.Hash()
	if _, ok := c.blocks[hash]; ok {
		return blocksync.NewImportError(blocksync.ErrAlreadyInChain, "already known")
	}
	if _, ok := c.blocks[block.ParentHash()]; !ok {
		return blocksync.NewImportError(blocksync.ErrUnknownParent, "parent not present")
	}
	c.blocks[hash] = block
	number := block.NumberU64()
	c.byNumber[number] = hash
	if number > c.best {
		c.best = number
	}
	return nil
}

func (c *genesisChain) QueueAncientBlock(block *types.Block, receipts []byte) blocksync.ImportError {
	return c.ImportBlock(block)
}

func (c *genesisChain) HeadersFrom(origin common.Hash, amount, skip uint64) []byte {
	c.lock.RLock()
	defer c.lock.RUnlock()

	block, ok := c.blocks[origin]
	if !ok {
		raw, _ := rlp.EncodeToBytes([]*types.Header{})
		return raw
	}
	headers := make([]*types.Header, 0, amount)
	number := block.NumberU64()
	for uint64(len(headers)) < amount {
		hash, ok := c.byNumber[number]
		if !ok {
			break
		}
		headers = append(headers, c.blocks[hash].Header())
		number += skip + 1
	}
	raw, _ := rlp.EncodeToBytes(headers)
	return raw
}

func (c *genesisChain) BodiesFor(hashes []common.Hash) []byte {
	c.lock.RLock()
	defer c.lock.RUnlock()

	bodies := make([]*types.Body, 0, len(hashes))
	for _, h := range hashes {
		if b, ok := c.blocks[h]; ok {
			bodies = append(bodies, &types.Body{Transactions: b.Transactions(), Uncles: b.Uncles()})
		}
	}
	raw, _ := rlp.EncodeToBytes(bodies)
	return raw
}

func (c *genesisChain) ReceiptsFor(hashes []common.Hash) []byte {
	raw, _ := rlp.EncodeToBytes(make([]rlp.RawValue, len(hashes)))
	return raw
}

func (c *genesisChain) Head() (hash common.Hash, td *big.Int, number uint64) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	hash = c.byNumber[c.best]
	return hash, new(big.Int).SetUint64(c.best + 1), c.best
}
