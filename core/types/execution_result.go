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

package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Outcome discriminates how a top-level execution ended.
type Outcome uint8

const (
	Success Outcome = iota // The entry point returned normally.
	Revert                 // Contract logic rejected the call.
	Fault                  // The engine terminated the call.
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Revert:
		return "revert"
	case Fault:
		return "fault"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// TranscriptKind tells value movements apart from nested call records.
type TranscriptKind uint8

const (
	TransferEntry TranscriptKind = iota
	CallEntry
)

// InternalTransfer is one entry of the internal transaction transcript.
type InternalTransfer struct {
	Kind   TranscriptKind
	From   common.Address
	To     common.Address
	Amount uint64
	Method string // Set for call entries.
	Depth  int    // Depth of the frame that initiated the entry.
	Failed bool   // Nested call that did not complete; its movements were undone.
	Reason string
}

func (t *InternalTransfer) String() string {
	kind := "transfer"
	if t.Kind == CallEntry {
		kind = "call " + t.Method
	}
	s := fmt.Sprintf("%s %x->%x %d depth=%d", kind, t.From[:4], t.To[:4], t.Amount, t.Depth)
	if t.Failed {
		s += " failed: " + t.Reason
	}
	return s
}

// ExecutionResult is the outcome of a create or call execution.
type ExecutionResult struct {
	Outcome     Outcome
	GasPrice    uint64
	GasLimit    uint64
	GasConsumed uint64
	Fee         uint64 // Part of the mempool fee kept after the refund.

	NewContractAddress *common.Address // Create only, set on success.
	ReturnValue        []byte
	Err                error // Fault or revert reason, nil on success.

	Refund              *TxOut       // Unspent gas returned to the sender.
	InternalTransaction *Transaction // Condensing or fund-return transaction.
	Transcript          []*InternalTransfer
}

// Failed reports whether the execution did not complete.
func (r *ExecutionResult) Failed() bool { return r.Outcome != Success }

// Unwrap returns the fault or revert reason.
func (r *ExecutionResult) Unwrap() error { return r.Err }

// Outputs returns the refund followed by the internal transaction outputs, in
// the order the block builder splices them into the chain.
func (r *ExecutionResult) Outputs() []*TxOut {
	var outs []*TxOut
	if r.Refund != nil {
		outs = append(outs, r.Refund)
	}
	if r.InternalTransaction != nil {
		outs = append(outs, r.InternalTransaction.Outputs...)
	}
	return outs
}

func (r *ExecutionResult) String() string {
	s := fmt.Sprintf("%v gas=%d/%d fee=%d", r.Outcome, r.GasConsumed, r.GasLimit, r.Fee)
	if r.NewContractAddress != nil {
		s += " contract=" + r.NewContractAddress.Hex()
	}
	if r.Err != nil {
		s += " err=" + r.Err.Error()
	}
	return s
}
