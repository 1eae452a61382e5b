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
	"github.com/probeum/probe-sce/core/state"
	"github.com/probeum/probe-sce/core/types"
)

// ApplyTransaction executes tx in a fresh working set of root and flushes the
// surviving state to root. Faulted and reverted executions still flush, since
// their working set carries no writes.
func ApplyTransaction(executor Executor, root *state.Root, header *types.BlockHeader, tx *types.SignedTx) (*types.ExecutionResult, error) {
	statedb := root.Open()
	res, err := executor.Execute(NewExecutionContext(header, tx), statedb)
	if err != nil {
		return nil, err
	}
	if err := statedb.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}
