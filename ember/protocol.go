// Copyright 2014 The go-ethereum Authors
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

// Constants to match up protocol versions and messages.
const (
	ember1 = 1
)

// ProtocolName is the official short name of the protocol used during
// capability negotiation.
var ProtocolName = "ember"

// ProtocolVersions are the supported versions of the ember protocol.
var ProtocolVersions = []uint{ember1}

// ProtocolLengths are the number of implemented messages for each entry in
// ProtocolVersions.
var ProtocolLengths = []uint64{17}

// ProtocolMaxMsgSize caps the size of a single protocol message.
const ProtocolMaxMsgSize = 10 * 1024 * 1024

// ember protocol message codes. Requests are split per track, mirroring the
// two independent Downloaders a session drives: NewBlocks follows the
// canonical head, OldBlocks backfills ancient history.
const (
	StatusMsg = 0x00

	NewBlockHashesMsg = 0x01
	NewBlockMsg       = 0x02

	GetBlockHeadersMsg = 0x03
	BlockHeadersMsg    = 0x04
	GetBlockBodiesMsg  = 0x05
	BlockBodiesMsg     = 0x06
	GetReceiptsMsg     = 0x07
	ReceiptsMsg        = 0x08

	GetBlockHeadersOldMsg = 0x09
	BlockHeadersOldMsg    = 0x0a
	GetBlockBodiesOldMsg  = 0x0b
	BlockBodiesOldMsg     = 0x0c
	GetReceiptsOldMsg     = 0x0d
	ReceiptsOldMsg        = 0x0e

	TxMsg         = 0x0f
	GetNodeDataMsg = 0x10
)

// Protocol error codes and their descriptions. The message handler in
// backend.go builds its errors directly and does not use these codes.
const (
	ErrMsgTooLarge = iota
	ErrDecode
	ErrInvalidMsgCode
	ErrProtocolVersionMismatch
	ErrNetworkIdMismatch
	ErrGenesisBlockMismatch
	ErrNoStatusMsg
	ErrExtraStatusMsg
)

func (e errCode) String() string {
	return errorToString[int(e)]
}

type errCode int

var errorToString = map[int]string{
	ErrMsgTooLarge:             "message too long",
	ErrDecode:                  "invalid message",
	ErrInvalidMsgCode:          "invalid message code",
	ErrProtocolVersionMismatch: "protocol version mismatch",
	ErrNetworkIdMismatch:       "network ID mismatch",
	ErrGenesisBlockMismatch:    "genesis block mismatch",
	ErrNoStatusMsg:             "no status message",
	ErrExtraStatusMsg:          "extra status message",
}
