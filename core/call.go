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
	"github.com/probeum/probe-sce/core/vm"
	"github.com/probeum/probe-sce/params"
)

// CallExecutor invokes methods of deployed contracts.
type CallExecutor struct {
	executor
}

// NewCallExecutor creates an executor calling code resolved by registry.
func NewCallExecutor(cfg *params.Config, registry *vm.Registry) *CallExecutor {
	return &CallExecutor{executor: newExecutor(cfg, registry, "call")}
}

// Execute invokes the method named by the descriptor.
func (e *CallExecutor) Execute(ctx *ExecutionContext, statedb *state.StateDB) (*types.ExecutionResult, error) {
	x, res, err := e.prepare(ctx, types.OpCallContract)
	if err != nil || res != nil {
		return res, err
	}
	body := x.desc.Call
	return e.run(x, statedb, body.Address, func(scope *state.Scope) (*vm.Result, error) {
		return e.vm.Call(NewVMEnv(ctx), scope, x.meter, x.desc.Sender, body.Address, body.Method, x.desc.Amount, body.Params)
	})
}
