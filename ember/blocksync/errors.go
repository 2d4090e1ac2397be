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

import "errors"

// ErrInvalid means the peer produced unparseable data, referenced a
// known-bad block, answered with a first item that did not match the
// expected hash, or returned a body/receipts count inconsistent with its
// request. The outer coordinator must drop this peer for the round.
var ErrInvalid = errors.New("blocksync: invalid response")

// ErrUseless means the response was well-formed but contributed nothing:
// empty when not expected, or it did not advance the scaffold. The outer
// coordinator should demote the peer but not drop it.
var ErrUseless = errors.New("blocksync: useless response")
