// Copyright 2021 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/probeum/probe-sce/core/types"
)

// ExecutionEvent is posted for every contract transaction of a processed
// block, in block order.
type ExecutionEvent struct {
	BlockNumber uint64
	Index       int
	TxHash      common.Hash
	Result      *types.ExecutionResult
	Reexecuted  bool // The speculative run read state written earlier in the block.
}

// BlockProcessedEvent is posted once all transactions of a block are
// committed.
type BlockProcessedEvent struct {
	Number     uint64
	Root       common.Hash
	Results    []*types.ExecutionResult
	Reexecuted int
}
