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
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/probeum/probe-sce/core/types"
)

// Status is the state of a frame. A frame starts Loaded, moves to Running
// once its entry point is invoked and ends in one of the terminal states.
type Status uint8

const (
	Loaded Status = iota
	Running
	Completed
	Reverted
	Faulted
)

func (s Status) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Reverted:
		return "reverted"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool { return s >= Completed }

// Outcome maps a terminal status onto the result discriminator.
func (s Status) Outcome() types.Outcome {
	switch s {
	case Completed:
		return types.Success
	case Reverted:
		return types.Revert
	}
	return types.Fault
}

// BlockContext provides the VM with block level information. Once provided it
// shouldn't be modified.
type BlockContext struct {
	Coinbase    common.Address // Provides information for COINBASE
	BlockNumber uint64         // Provides information for NUMBER
}

// TxContext provides the VM with information about a transaction.
type TxContext struct {
	Origin common.Address // Provides information for ORIGIN
	TxHash common.Hash
}

// Result is what a frame leaves behind once it reached a terminal status.
type Result struct {
	Status      Status
	ReturnValue []byte
	Err         error
	GasUsed     uint64
}

// Runtime is the capability set a running contract is handed. Metered
// operations halt the contract when the gas runs out; the halt is delivered
// to the frame without returning to contract code.
type Runtime interface {
	// Address is the contract being executed.
	Address() common.Address
	// Caller is the sender of the top-level transaction or the calling contract.
	Caller() common.Address
	// Origin is the sender of the top-level transaction.
	Origin() common.Address
	// Value is the amount attached to this frame.
	Value() uint64
	BlockNumber() uint64
	Coinbase() common.Address
	Depth() int

	Balance(addr common.Address) uint64
	GetStorage(key []byte) []byte
	SetStorage(key, value []byte)

	// Transfer sends funds held by the contract. Failures leave state
	// untouched and are handed back to the contract.
	Transfer(to common.Address, amount uint64) error
	// Call invokes a method of another contract in a child scope with at most
	// gas units. A zero gas value hands over all remaining gas.
	Call(to common.Address, method string, amount, gas uint64, args ...types.Param) *Result

	UseGas(amount uint64)
	GasRemaining() uint64
}
