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
	"github.com/holiman/uint256"
	"github.com/probeum/probe-sce/core/types"
)

// Transfer moves funds held by the running contract. Funds sent to another
// contract stay in contract custody; funds sent anywhere else leave it and are
// paid out by the transfer processor once the execution completes.
func (f *frame) Transfer(to common.Address, amount uint64) error {
	f.UseGas(f.vm.cfg.Gas.Transfer)

	value := uint256.NewInt(amount)
	var err error
	if f.scope.HasCode(to) {
		err = f.scope.TransferBalance(f.address, to, value)
	} else {
		err = f.scope.Debit(f.address, value)
	}
	f.checkDB()
	if err != nil {
		f.log.Debug("Internal transfer failed", "to", to, "amount", amount, "err", err)
		return err
	}
	f.scope.AddTransfer(types.InternalTransfer{
		Kind:   types.TransferEntry,
		From:   f.address,
		To:     to,
		Amount: amount,
		Depth:  f.depth,
	})
	return nil
}

// Call runs method of the contract at to in a child scope, handing it at most
// gas units of the remaining budget. A failed nested call only discards the
// child scope; the caller receives the result and decides how to continue.
// The caller itself halts when the callee ran out of gas and nothing is left.
func (f *frame) Call(to common.Address, method string, amount, gas uint64, args ...types.Param) *Result {
	cost := f.vm.cfg.Gas.Call
	if amount > 0 {
		cost += f.vm.cfg.Gas.Transfer
	}
	f.UseGas(cost)

	entry := types.InternalTransfer{
		Kind:   types.CallEntry,
		From:   f.address,
		To:     to,
		Amount: amount,
		Method: method,
		Depth:  f.depth + 1,
	}
	if f.depth+1 > f.vm.cfg.MaxCallDepth {
		return f.failedCall(entry, &Result{Status: Faulted, Err: ErrCallDepthExceeded})
	}
	child := f.scope.OpenScope()
	if amount > 0 {
		if !child.HasCode(to) {
			f.checkDB()
			child.Discard()
			return f.failedCall(entry, &Result{Status: Faulted, Err: fmt.Errorf("%w: %s", ErrContractNotFound, to.Hex())})
		}
		if err := child.TransferBalance(f.address, to, uint256.NewInt(amount)); err != nil {
			f.checkDB()
			child.Discard()
			return f.failedCall(entry, &Result{Status: Reverted, Err: err})
		}
	}
	child.AddTransfer(entry)

	sub := f.meter.Sub(gas)
	res, err := f.vm.call(f.env, child, sub, f.depth+1, f.address, to, method, amount, args)
	if err != nil {
		halt(err)
	}
	res.GasUsed = sub.Consumed()
	if err := f.meter.Fold(sub); err != nil {
		halt(err)
	}
	if res.Status == Completed {
		if err := child.Commit(); err != nil {
			halt(NewInternalError(err))
		}
		return res
	}
	child.Discard()
	f.checkDB()

	if errors.Is(res.Err, ErrOutOfGas) && f.meter.Remaining() == 0 {
		// Nothing left to continue with.
		f.UseGas(1)
	}
	return f.failedCall(entry, res)
}

// failedCall records a nested call that did not complete in the caller's
// scope, after the callee's own entries were dropped.
func (f *frame) failedCall(entry types.InternalTransfer, res *Result) *Result {
	entry.Failed = true
	entry.Reason = res.Err.Error()
	f.scope.AddTransfer(entry)
	f.log.Debug("Nested call failed", "to", entry.To, "method", entry.Method, "status", res.Status, "err", res.Err)
	return res
}
