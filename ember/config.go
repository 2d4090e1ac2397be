// Copyright 2017 The go-ethereum Authors
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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
)

// DefaultConfig contains sane defaults for running an ember node against its
// main network.
var DefaultConfig = Config{
	NetworkId: 1,
}

// Config carries the settings a node needs to stand up an ember protocol
// manager: the network ID, the genesis header fields to seed block zero
// with, and pinned block hashes. No file or flag
// parsing lives here; that is cmd/goember's job. Cache sizing, trie
// timeouts, and light-peer limits belong to a full node's state/database
// layer, which this package does not have (see SPEC_FULL.md's Non-goals).
type Config struct {
	// Genesis supplies the header fields of block zero in cmd/goember's
	// in-memory chain. If nil, a fixed stand-in genesis header is used.
	Genesis *core.Genesis

	// NetworkId must be non-zero (Backend.New rejects zero). Peers are not
	// checked against it: there is no status handshake.
	NetworkId uint64

	// Whitelist pins required block number -> hash values; a peer whose
	// imported headers disagree with any pinned entry is dropped instead
	// of trusted, checked by Syncer.checkWhitelist after each header
	// import.
	Whitelist map[uint64]common.Hash
}
