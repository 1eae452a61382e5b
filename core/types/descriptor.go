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
	"github.com/ethereum/go-ethereum/common"
)

// Opcode is the marker byte that prefixes every contract script.
type Opcode byte

const (
	OpCreateContract   Opcode = 0xc0 // Script carries a create descriptor.
	OpCallContract     Opcode = 0xc1 // Script carries a call descriptor.
	OpInternalTransfer Opcode = 0xc2 // Output holds funds owned by a contract.
)

func (op Opcode) String() string {
	switch op {
	case OpCreateContract:
		return "CREATE"
	case OpCallContract:
		return "CALL"
	case OpInternalTransfer:
		return "INTERNALTRANSFER"
	}
	return "INVALID"
}

// IsContractOp reports whether op introduces a create or call descriptor.
func (op Opcode) IsContractOp() bool {
	return op == OpCreateContract || op == OpCallContract
}

// Header holds the descriptor fields shared by both variants. They are decoded
// ahead of the variant body so that base gas can be charged against the
// declared limit before the body is validated.
type Header struct {
	Opcode    Opcode
	VMVersion uint32
	GasPrice  uint64
	GasLimit  uint64
}

// CallDescriptor describes a create or call request carried in a transaction
// output. Exactly one of Create or Call is set.
//
// Sender and Amount are not part of the encoding. They are bound from the
// transaction that carries the descriptor.
type CallDescriptor struct {
	Header
	Create *CreateBody
	Call   *CallBody

	Sender common.Address
	Amount uint64
}

// CreateBody is the payload of a contract creation.
type CreateBody struct {
	Code   []byte
	Params []Param
}

// CallBody is the payload of a method invocation.
type CallBody struct {
	Address common.Address
	Method  string
	Params  []Param
}

// NewCreateDescriptor assembles a create descriptor.
func NewCreateDescriptor(vmVersion uint32, code []byte, gasPrice, gasLimit uint64, params ...Param) *CallDescriptor {
	return &CallDescriptor{
		Header: Header{Opcode: OpCreateContract, VMVersion: vmVersion, GasPrice: gasPrice, GasLimit: gasLimit},
		Create: &CreateBody{Code: common.CopyBytes(code), Params: params},
	}
}

// NewCallDescriptor assembles a call descriptor.
func NewCallDescriptor(vmVersion uint32, to common.Address, method string, gasPrice, gasLimit uint64, params ...Param) *CallDescriptor {
	return &CallDescriptor{
		Header: Header{Opcode: OpCallContract, VMVersion: vmVersion, GasPrice: gasPrice, GasLimit: gasLimit},
		Call:   &CallBody{Address: to, Method: method, Params: params},
	}
}

// IsCreate reports whether d describes a contract creation.
func (d *CallDescriptor) IsCreate() bool { return d.Opcode == OpCreateContract }

// Params returns the arguments of either variant.
func (d *CallDescriptor) Params() []Param {
	switch {
	case d.Create != nil:
		return d.Create.Params
	case d.Call != nil:
		return d.Call.Params
	}
	return nil
}

// Bind returns a copy of d with the transaction-supplied fields set.
func (d *CallDescriptor) Bind(sender common.Address, amount uint64) *CallDescriptor {
	cpy := *d
	cpy.Sender, cpy.Amount = sender, amount
	return &cpy
}
