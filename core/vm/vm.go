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

// Package vm runs contract code. A VM resolves code into modules through a
// Registry, meters every host operation and converts every way a contract can
// end into a terminal Status.
package vm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/probeum/probe-sce/core/state"
	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/params"
)

var (
	frameCompletedMeter = metrics.NewRegisteredMeter("sce/vm/frame/completed", nil)
	frameRevertedMeter  = metrics.NewRegisteredMeter("sce/vm/frame/reverted", nil)
	frameFaultedMeter   = metrics.NewRegisteredMeter("sce/vm/frame/faulted", nil)
)

// Env bundles the read-only inputs of one top-level execution.
type Env struct {
	Block BlockContext
	Tx    TxContext
}

// VM executes contracts. It keeps no per-execution state, so a single VM may
// serve concurrent executions as long as each has its own scope and meter.
type VM struct {
	cfg      *params.Config
	registry *Registry
	log      log.Logger
}

// New returns a VM running code resolved by registry.
func New(cfg *params.Config, registry *Registry) *VM {
	return &VM{
		cfg:      cfg,
		registry: registry,
		log:      log.New("module", "vm"),
	}
}

// Config returns the engine configuration.
func (vm *VM) Config() *params.Config { return vm.cfg }

// Registry returns the code registry.
func (vm *VM) Registry() *Registry { return vm.registry }

// Create deploys code at address and runs its constructor. The code is
// persisted in scope before the constructor runs; the caller discards the
// scope when the result is not Completed.
//
// The returned error is always an *InternalError.
func (vm *VM) Create(env *Env, scope *state.Scope, meter *GasMeter, caller, address common.Address, code []byte, value uint64, args []types.Param) (*Result, error) {
	f := vm.newFrame(env, scope, meter, 0, caller, address, value)

	module, err := vm.registry.Load(vm.cfg, code)
	if err != nil {
		return f.finish(Faulted, nil, err)
	}
	ctor, ok := module.Constructor()
	if !ok {
		return f.finish(Faulted, nil, fmt.Errorf("%w: no constructor", ErrInvalidCode))
	}
	if err := checkArgs(ConstructorName, ctor.Params, args); err != nil {
		return f.finish(Reverted, nil, err)
	}
	if err := scope.SetCode(address, code); err != nil {
		if err := f.dbError(); err != nil {
			return nil, err
		}
		return f.finish(Reverted, nil, err)
	}
	res, err := f.invoke(ConstructorName, ctor, args)
	if err != nil || res.Status != Completed {
		return res, err
	}
	if err := meter.Charge(uint64(len(code)) * vm.cfg.Gas.CodeDeposit); err != nil {
		return f.finish(Faulted, nil, err)
	}
	return f.finish(Completed, res.ReturnValue, nil)
}

// Call invokes method of the contract deployed at address.
//
// The returned error is always an *InternalError.
func (vm *VM) Call(env *Env, scope *state.Scope, meter *GasMeter, caller, address common.Address, method string, value uint64, args []types.Param) (*Result, error) {
	return vm.call(env, scope, meter, 0, caller, address, method, value, args)
}

func (vm *VM) call(env *Env, scope *state.Scope, meter *GasMeter, depth int, caller, address common.Address, method string, value uint64, args []types.Param) (*Result, error) {
	f := vm.newFrame(env, scope, meter, depth, caller, address, value)

	code := scope.GetCode(address)
	if err := f.dbError(); err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return f.finish(Faulted, nil, fmt.Errorf("%w: %s", ErrContractNotFound, address.Hex()))
	}
	module, err := vm.registry.Load(vm.cfg, code)
	if err != nil {
		return f.finish(Faulted, nil, err)
	}
	m, ok := module.Method(method)
	if !ok || method == ConstructorName {
		return f.finish(Reverted, nil, fmt.Errorf("%w: %q", ErrMethodNotFound, method))
	}
	if err := checkArgs(method, m.Params, args); err != nil {
		return f.finish(Reverted, nil, err)
	}
	return f.invoke(method, m, args)
}

func (vm *VM) newFrame(env *Env, scope *state.Scope, meter *GasMeter, depth int, caller, address common.Address, value uint64) *frame {
	return &frame{
		vm:      vm,
		env:     env,
		scope:   scope,
		meter:   meter,
		depth:   depth,
		caller:  caller,
		address: address,
		value:   value,
		status:  Loaded,
		log:     vm.log.New("contract", address, "depth", depth),
	}
}
