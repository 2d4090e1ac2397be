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
)

// BlockStatus is the chain's verdict on a hash, as reported by ChainOracle.
type BlockStatus int

const (
	// StatusUnknown means the chain has no opinion on the hash yet.
	StatusUnknown BlockStatus = iota
	// StatusInChain means the block is already part of the canonical or a
	// known side chain.
	StatusInChain
	// StatusQueued means the block is already sitting in the import queue.
	StatusQueued
	// StatusBad means the block is known-bad; never admit it.
	StatusBad
)

// ImportErrorKind classifies the outcome of handing a block to the chain.
type ImportErrorKind int

const (
	// ErrAlreadyInChain means the block is already part of the chain.
	ErrAlreadyInChain ImportErrorKind = iota
	// ErrAlreadyQueued means the block is already sitting in the import
	// queue.
	ErrAlreadyQueued
	// ErrUnknownParent means the parent hasn't been imported yet.
	ErrUnknownParent
	// ErrTemporarilyInvalid means the block cannot be validated right now
	// (e.g. waiting on uncle or state availability) but isn't provably bad.
	ErrTemporarilyInvalid
	// ErrQueueFull means the import queue has hit its capacity limit.
	ErrQueueFull
	// ErrOther is the catch-all for any other import failure.
	ErrOther
)

// ImportError is returned by ChainOracle.ImportBlock and
// ChainOracle.QueueAncientBlock. Its Kind drives collect_blocks's
// classification; its error string is only for logs.
type ImportError interface {
	error
	Kind() ImportErrorKind
	// Limit is only meaningful for ErrQueueFull; it reports the queue
	// capacity that was hit.
	Limit() int
}

// importError is the concrete ImportError used throughout this package and
// its tests.
type importError struct {
	kind  ImportErrorKind
	limit int
	msg   string
}

func (e *importError) Error() string       { return e.msg }
func (e *importError) Kind() ImportErrorKind { return e.kind }
func (e *importError) Limit() int           { return e.limit }

// NewImportError builds an ImportError of the given kind.
func NewImportError(kind ImportErrorKind, msg string) ImportError {
	return &importError{kind: kind, msg: msg}
}

// NewQueueFullError builds an ErrQueueFull ImportError carrying the queue's
// capacity limit.
func NewQueueFullError(limit int) ImportError {
	return &importError{kind: ErrQueueFull, limit: limit, msg: "import queue full"}
}

// ChainInfo is the subset of chain head information the downloader
// consults when deciding whether it is safe to retract further back.
type ChainInfo struct {
	BestBlockNumber uint64
}

// PruningInfo reports how far back full state is still retained.
type PruningInfo struct {
	EarliestState uint64
}

// ChainOracle is the read/write capability the Downloader needs from the
// local chain. It is a synchronous abstraction: the downloader makes no
// timeout assumptions and treats every call as blocking until it returns.
type ChainOracle interface {
	// BlockStatus reports what the chain knows about hash.
	BlockStatus(hash common.Hash) BlockStatus
	// BlockHash returns the canonical hash at the given height, if any.
	BlockHash(number uint64) (common.Hash, bool)
	// ChainInfo reports the chain's current head.
	ChainInfo() ChainInfo
	// PruningInfo reports the chain's retained-state horizon.
	PruningInfo() PruningInfo
	// ImportBlock submits a fully assembled block for normal import.
	ImportBlock(block *types.Block) ImportError
	// QueueAncientBlock submits a fully assembled ancient block together
	// with its receipts (opaque, re-emitted unchanged from the wire) to the
	// ancient-import queue.
	QueueAncientBlock(block *types.Block, receipts []byte) ImportError
}
