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

package vm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/probeum/probe-sce/core/state"
	"github.com/probeum/probe-sce/core/types"
)

// frame is one activation of a contract. It is the Runtime handed to the
// contract and lives until the activation reaches a terminal status.
type frame struct {
	vm    *VM
	env   *Env
	scope *state.Scope
	meter *GasMeter
	depth int

	caller  common.Address
	address common.Address
	value   uint64

	status Status
	log    log.Logger
}

// invoke charges the entry cost and runs the entry point. Arguments are
// already checked.
func (f *frame) invoke(name string, m *Method, args []types.Param) (*Result, error) {
	if err := f.meter.Charge(f.vm.cfg.Gas.InvokeCost(len(args))); err != nil {
		return f.finish(Faulted, nil, err)
	}
	f.status = Running
	f.log.Trace("Invoking contract", "method", name, "args", len(args))
	return f.run(func() ([]byte, error) { return m.Fn(f, args) })
}

// run executes fn, converting halts and panics into terminal statuses.
func (f *frame) run(fn func() ([]byte, error)) (res *Result, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		h, ok := r.(haltSignal)
		switch {
		case !ok:
			res, err = f.finish(Reverted, nil, fmt.Errorf("%w: %v", ErrContractFault, r))
		case IsInternal(h.err):
			res, err = nil, h.err
		case errors.Is(h.err, ErrOutOfGas):
			res, err = f.finish(Faulted, nil, h.err)
		default:
			res, err = f.finish(Reverted, nil, h.err)
		}
	}()
	ret, cerr := fn()
	if err := f.dbError(); err != nil {
		return nil, err
	}
	if cerr != nil {
		if IsInternal(cerr) {
			return nil, cerr
		}
		return f.finish(Reverted, nil, fmt.Errorf("%w: %w", ErrExecutionReverted, cerr))
	}
	return f.finish(Completed, ret, nil)
}

func (f *frame) finish(status Status, ret []byte, err error) (*Result, error) {
	f.status = status
	switch status {
	case Completed:
		frameCompletedMeter.Mark(1)
	case Reverted:
		frameRevertedMeter.Mark(1)
		f.log.Debug("Contract reverted", "err", err)
	case Faulted:
		frameFaultedMeter.Mark(1)
		f.log.Debug("Contract faulted", "err", err)
	}
	return &Result{
		Status:      status,
		ReturnValue: ret,
		Err:         err,
		GasUsed:     f.meter.Consumed(),
	}, nil
}

// dbError returns the memoized state error as an internal error.
func (f *frame) dbError() error {
	if err := f.scope.StateDB().Error(); err != nil {
		return NewInternalError(err)
	}
	return nil
}

// checkDB halts the frame if the state reported an internal error.
func (f *frame) checkDB() {
	if err := f.dbError(); err != nil {
		halt(err)
	}
}

func (f *frame) Address() common.Address  { return f.address }
func (f *frame) Caller() common.Address   { return f.caller }
func (f *frame) Origin() common.Address   { return f.env.Tx.Origin }
func (f *frame) Value() uint64            { return f.value }
func (f *frame) BlockNumber() uint64      { return f.env.Block.BlockNumber }
func (f *frame) Coinbase() common.Address { return f.env.Block.Coinbase }
func (f *frame) Depth() int               { return f.depth }

func (f *frame) UseGas(amount uint64) {
	if err := f.meter.Charge(amount); err != nil {
		halt(err)
	}
}

func (f *frame) GasRemaining() uint64 {
	return f.meter.Remaining()
}

func (f *frame) Balance(addr common.Address) uint64 {
	f.UseGas(f.vm.cfg.Gas.Balance)
	balance := f.scope.GetBalance(addr)
	f.checkDB()
	return balance.Uint64()
}

func (f *frame) GetStorage(key []byte) []byte {
	f.UseGas(f.vm.cfg.Gas.StorageRead)
	value := f.scope.GetStorage(f.address, key)
	f.checkDB()
	return value
}

func (f *frame) SetStorage(key, value []byte) {
	f.UseGas(f.vm.cfg.Gas.StorageWriteCost(key, value))
	f.scope.SetStorage(f.address, key, value)
	f.checkDB()
}
