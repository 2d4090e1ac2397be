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

// Fixed protocol-level constants. These are not configurable: changing them
// changes the wire contract the skeleton joints rely on (see §9 of the
// design notes on MAX_HEADERS_TO_REQUEST-2).
const (
	maxHeadersToRequest = 128
	maxBodiesToRequest  = 32
	maxReceiptsToRequest = 128
	subchainSize         = 256
	maxRoundParents      = 16
	maxParallelSubchains = 5
	maxUselessHeaders    = 3
)

// Request is the sum type of work the Downloader asks the outer coordinator
// to perform against some peer. Exactly one of the pointer fields is set;
// callers check which one is non-nil.
type Request struct {
	Headers *HeadersRequest
	Bodies  *BodiesRequest
	Receipts *ReceiptsRequest
}

// HeadersRequest asks for count headers starting at Start, every (Skip+1)
// blocks apart.
type HeadersRequest struct {
	Start common.Hash
	Count uint64
	Skip  uint64
}

// BodiesRequest asks for the bodies belonging to the given header hashes.
type BodiesRequest struct {
	Hashes []common.Hash
}

// ReceiptsRequest asks for the receipts belonging to the given header
// hashes.
type ReceiptsRequest struct {
	Hashes []common.Hash
}

func headersRequest(start common.Hash, count, skip uint64) *Request {
	return &Request{Headers: &HeadersRequest{Start: start, Count: count, Skip: skip}}
}

func bodiesRequest(hashes []common.Hash) *Request {
	return &Request{Bodies: &BodiesRequest{Hashes: hashes}}
}

func receiptsRequest(hashes []common.Hash) *Request {
	return &Request{Receipts: &ReceiptsRequest{Hashes: hashes}}
}
