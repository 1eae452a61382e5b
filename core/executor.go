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
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/holiman/uint256"
	"github.com/probeum/probe-sce/core/state"
	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/core/vm"
	"github.com/probeum/probe-sce/params"
)

var (
	execSuccessMeter = metrics.NewRegisteredMeter("sce/exec/success", nil)
	execRevertMeter  = metrics.NewRegisteredMeter("sce/exec/revert", nil)
	execFaultMeter   = metrics.NewRegisteredMeter("sce/exec/fault", nil)
	execGasMeter     = metrics.NewRegisteredMeter("sce/exec/gas", nil)
	execTimer        = metrics.NewRegisteredTimer("sce/exec/time", nil)
)

// Executor runs the contract transaction of ctx against statedb. Contract
// level outcomes are reported in the result; the error is reserved for
// transactions that are not contract transactions and for engine failures,
// after which statedb must be dropped.
type Executor interface {
	Execute(ctx *ExecutionContext, statedb *state.StateDB) (*types.ExecutionResult, error)
}

// executor holds what the create and call paths share. Nothing in it changes
// during an execution.
type executor struct {
	cfg       *params.Config
	vm        *vm.VM
	transfers *TransferProcessor
	log       log.Logger
}

func newExecutor(cfg *params.Config, registry *vm.Registry, module string) executor {
	return executor{
		cfg:       cfg,
		vm:        vm.New(cfg, registry),
		transfers: NewTransferProcessor(),
		log:       log.New("module", module),
	}
}

// execution is the state of one Execute call.
type execution struct {
	ctx   *ExecutionContext
	start time.Time
	price uint64
	limit uint64
	meter *vm.GasMeter
	desc  *types.CallDescriptor
}

// prepare decodes the descriptor and charges the base cost. A non-nil result
// ends the execution before any state was touched.
func (e *executor) prepare(ctx *ExecutionContext, want types.Opcode) (*execution, *types.ExecutionResult, error) {
	x := &execution{ctx: ctx, start: time.Now(), meter: vm.NewGasMeter(0)}

	_, out, ok := ctx.ContractOutput()
	if !ok {
		return nil, nil, ErrNoContractOutput
	}
	header, err := types.DecodeHeader(out.Script)
	if err != nil {
		// Without a header there is no gas limit to charge against.
		return x, e.fault(x, err), nil
	}
	if header.Opcode != want {
		return nil, nil, fmt.Errorf("%w: %v", ErrWrongOpcode, header.Opcode)
	}
	x.price, x.limit = header.GasPrice, header.GasLimit
	x.meter = vm.NewGasMeter(header.GasLimit)

	if err := x.meter.Charge(e.cfg.Gas.Base); err != nil {
		return x, e.fault(x, err), nil
	}
	if header.VMVersion != e.cfg.VMVersion {
		return x, e.fault(x, fmt.Errorf("%w: %d", ErrVMVersion, header.VMVersion)), nil
	}
	desc, err := header.DecodeBody()
	if err != nil {
		return x, e.fault(x, err), nil
	}
	x.desc = desc.Bind(ctx.Sender(), ctx.Amount())
	return x, nil, nil
}

// fault ends an execution that never opened a scope.
func (e *executor) fault(x *execution, err error) *types.ExecutionResult {
	res := e.result(x, types.Fault, err)
	res.InternalTransaction = e.transfers.ReturnFunds(x.ctx)
	e.report(x, res)
	return res
}

// run opens the top-level scope, credits the attached value to contract and
// hands the scope to fn. The scope is committed if fn completes and discarded
// otherwise.
func (e *executor) run(x *execution, statedb *state.StateDB, contract common.Address, fn func(scope *state.Scope) (*vm.Result, error)) (*types.ExecutionResult, error) {
	scope := statedb.OpenScope()
	if amount := x.desc.Amount; amount > 0 {
		scope.Credit(contract, uint256.NewInt(amount))
	}
	vres, err := fn(scope)
	if err != nil {
		scope.Discard()
		e.log.Error("Contract execution failed", "tx", x.ctx.TransactionHash(), "err", err)
		return nil, err
	}

	var (
		res        = e.result(x, vres.Status.Outcome(), vres.Err)
		transcript = scope.StateDB().Transcript()
	)
	res.ReturnValue = vres.ReturnValue
	for i := range transcript {
		res.Transcript = append(res.Transcript, &transcript[i])
	}
	if vres.Status == vm.Completed {
		res.InternalTransaction = e.transfers.Process(x.ctx, scope, contract, res.Transcript)
		if err := scope.Commit(); err != nil {
			return nil, vm.NewInternalError(err)
		}
	} else {
		scope.Discard()
		res.InternalTransaction = e.transfers.ReturnFunds(x.ctx)
	}
	if err := statedb.Error(); err != nil {
		return nil, vm.NewInternalError(err)
	}
	e.report(x, res)
	return res, nil
}

func (e *executor) result(x *execution, outcome types.Outcome, err error) *types.ExecutionResult {
	res := &types.ExecutionResult{
		Outcome:     outcome,
		GasPrice:    x.price,
		GasLimit:    x.limit,
		GasConsumed: x.meter.Consumed(),
		Err:         err,
	}
	res.Refund = ComputeRefund(x.ctx, x.meter, x.price)
	res.Fee = ComputeFee(x.ctx, res.Refund)
	return res
}

func (e *executor) report(x *execution, res *types.ExecutionResult) {
	switch res.Outcome {
	case types.Success:
		execSuccessMeter.Mark(1)
	case types.Revert:
		execRevertMeter.Mark(1)
	default:
		execFaultMeter.Mark(1)
	}
	execGasMeter.Mark(int64(res.GasConsumed))
	execTimer.UpdateSince(x.start)

	ctx := []interface{}{"tx", x.ctx.TransactionHash(), "outcome", res.Outcome, "gas", res.GasConsumed, "limit", res.GasLimit}
	if res.Err != nil {
		ctx = append(ctx, "err", res.Err)
	}
	if res.Failed() {
		e.log.Debug("Contract execution did not succeed", ctx...)
		return
	}
	e.log.Debug("Contract execution succeeded", ctx...)
}

// ContractExecutor dispatches contract transactions to the create or call
// path according to the descriptor opcode.
type ContractExecutor struct {
	create *CreateExecutor
	call   *CallExecutor
}

// NewContractExecutor creates an executor running code resolved by registry.
func NewContractExecutor(cfg *params.Config, registry *vm.Registry) *ContractExecutor {
	return &ContractExecutor{
		create: NewCreateExecutor(cfg, registry),
		call:   NewCallExecutor(cfg, registry),
	}
}

func (e *ContractExecutor) Execute(ctx *ExecutionContext, statedb *state.StateDB) (*types.ExecutionResult, error) {
	_, out, ok := ctx.ContractOutput()
	if !ok {
		return nil, ErrNoContractOutput
	}
	if op, _ := types.ScriptOpcode(out.Script); op == types.OpCreateContract {
		return e.create.Execute(ctx, statedb)
	}
	return e.call.Execute(ctx, statedb)
}
