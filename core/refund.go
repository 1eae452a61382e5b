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
	"github.com/holiman/uint256"
	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/core/vm"
)

// ComputeRefund returns the output paying the unspent part of the gas budget
// back to the sender, or nil when nothing is refundable. A meter that ran out
// of gas refunds nothing.
func ComputeRefund(ctx *ExecutionContext, meter *vm.GasMeter, gasPrice uint64) *types.TxOut {
	refundable := meter.Refundable()
	if refundable == 0 || gasPrice == 0 {
		return nil
	}
	// The descriptor codec bounds gasLimit*gasPrice to 64 bits.
	value := new(uint256.Int).Mul(uint256.NewInt(refundable), uint256.NewInt(gasPrice))
	return &types.TxOut{
		Value:  value.Uint64(),
		Script: types.PayToAddress(ctx.Sender()),
	}
}

// ComputeFee returns the part of the mempool fee kept by the block producer
// once the refund is paid out.
func ComputeFee(ctx *ExecutionContext, refund *types.TxOut) uint64 {
	fee := ctx.MempoolFee()
	if refund == nil {
		return fee
	}
	if refund.Value >= fee {
		return 0
	}
	return fee - refund.Value
}
