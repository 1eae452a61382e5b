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
	"github.com/ethereum/go-ethereum/log"
	"github.com/probeum/probe-sce/core/state"
	"github.com/probeum/probe-sce/core/types"
)

// Movement is the net value moved from one address to another over a whole
// execution.
type Movement struct {
	From   common.Address
	To     common.Address
	Amount uint64
}

// CondenseTransfers nets the value movements of a transcript per pair of
// addresses. Pairs appear in the order of their first movement; failed nested
// calls and pairs that net to zero are dropped.
func CondenseTransfers(transcript []*types.InternalTransfer) []Movement {
	type pair struct{ a, b common.Address }
	var (
		order []pair
		net   = make(map[pair]int64)
	)
	for _, entry := range transcript {
		if entry.Failed || entry.Amount == 0 || entry.From == entry.To {
			continue
		}
		key, sign := pair{entry.From, entry.To}, int64(1)
		if _, ok := net[key]; !ok {
			if _, ok := net[pair{entry.To, entry.From}]; ok {
				key, sign = pair{entry.To, entry.From}, -1
			} else {
				order = append(order, key)
			}
		}
		net[key] += sign * int64(entry.Amount)
	}
	var moves []Movement
	for _, key := range order {
		switch amount := net[key]; {
		case amount > 0:
			moves = append(moves, Movement{From: key.a, To: key.b, Amount: uint64(amount)})
		case amount < 0:
			moves = append(moves, Movement{From: key.b, To: key.a, Amount: uint64(-amount)})
		}
	}
	return moves
}

// TransferProcessor turns the fund movements of an execution into the
// transaction that realizes them on chain.
type TransferProcessor struct {
	log log.Logger
}

// NewTransferProcessor creates a transfer processor.
func NewTransferProcessor() *TransferProcessor {
	return &TransferProcessor{log: log.New("module", "transfer")}
}

// Process builds the condensing transaction of a completed execution against
// contract. It spends the contract output of the triggering transaction and the
// outputs currently holding the funds of every involved contract, pays value
// that left contract custody to its recipients and re-deposits the remaining
// contract balances. The new outpoints are recorded in scope. Process returns
// nil when no funds moved.
func (p *TransferProcessor) Process(ctx *ExecutionContext, scope *state.Scope, contract common.Address, transcript []*types.InternalTransfer) *types.Transaction {
	moves := CondenseTransfers(transcript)
	if ctx.Amount() == 0 && len(moves) == 0 {
		return nil
	}
	var (
		tx        = types.NewTransaction()
		contracts = []common.Address{contract}
		seen      = map[common.Address]bool{contract: true}
		payouts   = make(map[common.Address]uint64)
		payees    []common.Address
	)
	involve := func(addr common.Address) {
		if !seen[addr] && scope.HasCode(addr) {
			seen[addr] = true
			contracts = append(contracts, addr)
		}
	}
	for _, m := range moves {
		involve(m.From)
		involve(m.To)
		if seen[m.To] {
			continue
		}
		if _, ok := payouts[m.To]; !ok {
			payees = append(payees, m.To)
		}
		payouts[m.To] += m.Amount
	}

	if amount := ctx.Amount(); amount > 0 {
		n, _, _ := ctx.ContractOutput()
		tx.AddInput(types.OutPoint{Hash: ctx.TransactionHash(), Index: n})
	}
	spent := make(map[common.Address]bool)
	for _, addr := range contracts {
		if unspent := scope.GetUnspent(addr); unspent != nil {
			tx.AddInput(unspent.OutPoint)
			spent[addr] = true
		}
	}
	for _, addr := range payees {
		tx.AddOutput(payouts[addr], types.PayToAddress(addr))
	}
	deposits := make(map[common.Address]int)
	for _, addr := range contracts {
		balance := scope.GetBalance(addr)
		if balance.IsZero() {
			continue
		}
		deposits[addr] = len(tx.Outputs)
		tx.AddOutput(balance.Uint64(), types.PayToContract(addr))
	}

	hash := tx.Hash()
	for _, addr := range contracts {
		index, ok := deposits[addr]
		if !ok {
			if spent[addr] {
				scope.SetUnspent(addr, nil)
			}
			continue
		}
		scope.SetUnspent(addr, &state.Unspent{
			OutPoint: types.OutPoint{Hash: hash, Index: uint32(index)},
			Value:    tx.Outputs[index].Value,
		})
	}
	p.log.Debug("Condensed internal transfers", "tx", hash, "inputs", len(tx.Inputs), "outputs", len(tx.Outputs))
	return tx
}

// ReturnFunds builds the transaction sending the value attached to a failed
// execution back to its sender. It returns nil when no value was attached.
func (p *TransferProcessor) ReturnFunds(ctx *ExecutionContext) *types.Transaction {
	amount := ctx.Amount()
	if amount == 0 {
		return nil
	}
	n, _, _ := ctx.ContractOutput()
	tx := types.NewTransaction()
	tx.AddInput(types.OutPoint{Hash: ctx.TransactionHash(), Index: n})
	tx.AddOutput(amount, types.PayToAddress(ctx.Sender()))
	return tx
}
