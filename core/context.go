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
	"github.com/probeum/probe-sce/core/vm"
)

// ExecutionContext is the immutable input of one top-level execution: the
// block it runs in and the transaction carrying the descriptor.
type ExecutionContext struct {
	height     uint64
	coinbase   common.Address
	mempoolFee uint64
	sender     common.Address
	tx         *types.Transaction
	txHash     common.Hash
}

// NewExecutionContext creates the context of tx executing in the block with
// the given header.
func NewExecutionContext(header *types.BlockHeader, tx *types.SignedTx) *ExecutionContext {
	return &ExecutionContext{
		height:     header.Number,
		coinbase:   header.Coinbase,
		mempoolFee: tx.MempoolFee,
		sender:     tx.Sender,
		tx:         tx.Tx,
		txHash:     tx.Tx.Hash(),
	}
}

func (c *ExecutionContext) Height() uint64               { return c.height }
func (c *ExecutionContext) Coinbase() common.Address     { return c.coinbase }
func (c *ExecutionContext) MempoolFee() uint64           { return c.mempoolFee }
func (c *ExecutionContext) Sender() common.Address       { return c.sender }
func (c *ExecutionContext) TransactionHash() common.Hash { return c.txHash }

// ContractOutput returns the index and output carrying the descriptor.
func (c *ExecutionContext) ContractOutput() (uint32, *types.TxOut, bool) {
	return c.tx.ContractOutput()
}

// Amount is the value attached to the contract output.
func (c *ExecutionContext) Amount() uint64 {
	if _, out, ok := c.ContractOutput(); ok {
		return out.Value
	}
	return 0
}

// NewVMBlockContext creates the block context handed to the VM.
func NewVMBlockContext(ctx *ExecutionContext) vm.BlockContext {
	return vm.BlockContext{
		Coinbase:    ctx.coinbase,
		BlockNumber: ctx.height,
	}
}

// NewVMTxContext creates the transaction context handed to the VM.
func NewVMTxContext(ctx *ExecutionContext) vm.TxContext {
	return vm.TxContext{
		Origin: ctx.sender,
		TxHash: ctx.txHash,
	}
}

// NewVMEnv bundles both VM contexts.
func NewVMEnv(ctx *ExecutionContext) *vm.Env {
	return &vm.Env{Block: NewVMBlockContext(ctx), Tx: NewVMTxContext(ctx)}
}
