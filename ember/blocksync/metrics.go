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

// Contains the metrics collected by the block downloader.

package blocksync

import (
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	headerInMeter   = metrics.NewRegisteredMeter("ember/blocksync/headers/in", nil)
	headerDropMeter = metrics.NewRegisteredMeter("ember/blocksync/headers/drop", nil)

	bodyInMeter   = metrics.NewRegisteredMeter("ember/blocksync/bodies/in", nil)
	bodyDropMeter = metrics.NewRegisteredMeter("ember/blocksync/bodies/drop", nil)

	receiptInMeter   = metrics.NewRegisteredMeter("ember/blocksync/receipts/in", nil)
	receiptDropMeter = metrics.NewRegisteredMeter("ember/blocksync/receipts/drop", nil)

	resetMeter   = metrics.NewRegisteredMeter("ember/blocksync/resets", nil)
	uselessMeter = metrics.NewRegisteredMeter("ember/blocksync/useless", nil)
)
