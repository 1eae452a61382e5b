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
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// Standard script opcodes used to build pay-to-address outputs.
const (
	opDup         = 0x76
	opHash160     = 0xa9
	opEqualVerify = 0x88
	opCheckSig    = 0xac
)

// PayToAddress returns the script paying to an externally owned address.
func PayToAddress(addr common.Address) []byte {
	script := make([]byte, 0, common.AddressLength+5)
	script = append(script, opDup, opHash160, common.AddressLength)
	script = append(script, addr.Bytes()...)
	return append(script, opEqualVerify, opCheckSig)
}

// PayToContract returns the script of an output holding funds owned by the
// contract at addr.
func PayToContract(addr common.Address) []byte {
	return append([]byte{byte(OpInternalTransfer)}, addr.Bytes()...)
}

// ScriptOpcode returns the leading marker of a contract script.
func ScriptOpcode(script []byte) (Opcode, bool) {
	if len(script) == 0 {
		return 0, false
	}
	op := Opcode(script[0])
	switch op {
	case OpCreateContract, OpCallContract, OpInternalTransfer:
		return op, true
	}
	return 0, false
}

// IsContractScript reports whether script carries a create or call descriptor.
func IsContractScript(script []byte) bool {
	op, ok := ScriptOpcode(script)
	return ok && op.IsContractOp()
}

// ScriptDestination extracts the receiving address of a pay-to-address or
// pay-to-contract script.
func ScriptDestination(script []byte) (common.Address, bool) {
	if len(script) == common.AddressLength+1 && script[0] == byte(OpInternalTransfer) {
		return common.BytesToAddress(script[1:]), true
	}
	if len(script) == common.AddressLength+5 &&
		bytes.Equal(script[:3], []byte{opDup, opHash160, common.AddressLength}) &&
		script[23] == opEqualVerify && script[24] == opCheckSig {
		return common.BytesToAddress(script[3:23]), true
	}
	return common.Address{}, false
}
