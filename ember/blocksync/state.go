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

// State is the Downloader's lifecycle position.
type State int

const (
	// Idle means no active download round.
	Idle State = iota
	// ChainHead means the downloader is scaffolding a sparse skeleton of
	// subchain heads from one peer at a time.
	ChainHead
	// Blocks means the downloader is filling the skeleton with headers,
	// bodies and (if the track requires it) receipts.
	Blocks
	// Complete is terminal: the target hash has been committed and no
	// further requests are produced.
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ChainHead:
		return "chainhead"
	case Blocks:
		return "blocks"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Action is the cancellation/continuation signal returned to the outer
// coordinator by the intake methods.
type Action int

const (
	// NoAction means nothing the caller needs to react to.
	NoAction Action = iota
	// ResetAction means the scaffold changed or the import queue backed
	// up: every in-flight request for this track should be discarded and
	// its peers re-dispatched.
	ResetAction
)

func (a Action) String() string {
	if a == ResetAction {
		return "reset"
	}
	return "none"
}
