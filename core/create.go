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

// CreateExecutor deploys contracts. The new contract lives at the address
// derived from the hash of the creating transaction.
type CreateExecutor struct {
	executor
	validator *Validator
}

// NewCreateExecutor creates an executor deploying code resolved by registry.
func NewCreateExecutor(cfg *params.Config, registry *vm.Registry) *CreateExecutor {
	return &CreateExecutor{
		executor:  newExecutor(cfg, registry, "create"),
		validator: NewValidator(cfg, registry),
	}
}

// Execute validates the submitted code, deploys it and runs its constructor.
func (e *CreateExecutor) Execute(ctx *ExecutionContext, statedb *state.StateDB) (*types.ExecutionResult, error) {
	x, res, err := e.prepare(ctx, types.OpCreateContract)
	if err != nil || res != nil {
		return res, err
	}
	body := x.desc.Create
	if err := e.validator.Validate(body.Code); err != nil {
		return e.fault(x, err), nil
	}
	address := types.CreateAddress(ctx.TransactionHash(), 0)

	res, err = e.run(x, statedb, address, func(scope *state.Scope) (*vm.Result, error) {
		return e.vm.Create(NewVMEnv(ctx), scope, x.meter, x.desc.Sender, address, body.Code, x.desc.Amount, body.Params)
	})
	if err != nil {
		return nil, err
	}
	if res.Outcome == types.Success {
		res.NewContractAddress = &address
		e.log.Info("Contract deployed", "address", address, "tx", ctx.TransactionHash(), "gas", res.GasConsumed)
	}
	return res, nil
}
