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

package params

import "math"

const (
	// BaseGas is charged before any contract specific work, covering descriptor
	// validation and address resolution.
	BaseGas uint64 = 1000

	InvokeGas         uint64 = 5  // Entering a constructor or method.
	InvokeArgGas      uint64 = 1  // Per argument handed to the entry point.
	CodeDepositGas    uint64 = 1  // Per byte of code persisted on a successful create.
	StorageReadGas    uint64 = 10 // Loading a storage slot.
	StorageWriteGas   uint64 = 20 // Writing a storage slot.
	StorageByteGas    uint64 = 1  // Per byte of key and value written.
	BalanceGas        uint64 = 5  // Reading a balance.
	TransferGas       uint64 = 30 // Internal value transfer.
	CallGas           uint64 = 40 // Internal call, on top of the transfer.
	LuaInstructionGas uint64 = 1  // Per LuaHookInterval executed Lua instructions.
	LuaWordGas        uint64 = 1  // Per 32 bytes produced or scanned by a Lua library function.

	// LuaHookInterval is the instruction count between two gas charges of the
	// Lua runtime.
	LuaHookInterval = 100

	MaxCallDepth        = 64      // Nested internal calls allowed below the top-level frame.
	MaxCodeSize         = 24576   // Maximum bytecode or source size accepted on create.
	LuaLoadInstructions = 100000  // Unmetered instruction budget for evaluating a Lua chunk.
	LuaMaxString        = 1 << 20 // Longest string a Lua library function may build.
)

// GasTable holds the charge for every metered operation. The zero value is not
// usable; start from DefaultGasTable.
type GasTable struct {
	Base            uint64
	Invoke          uint64
	InvokeArg       uint64
	CodeDeposit     uint64
	StorageRead     uint64
	StorageWrite    uint64
	StorageByte     uint64
	Balance         uint64
	Transfer        uint64
	Call            uint64
	LuaInstructions uint64
	LuaWord         uint64
}

// DefaultGasTable contains the charges used on every network.
var DefaultGasTable = GasTable{
	Base:            BaseGas,
	Invoke:          InvokeGas,
	InvokeArg:       InvokeArgGas,
	CodeDeposit:     CodeDepositGas,
	StorageRead:     StorageReadGas,
	StorageWrite:    StorageWriteGas,
	StorageByte:     StorageByteGas,
	Balance:         BalanceGas,
	Transfer:        TransferGas,
	Call:            CallGas,
	LuaInstructions: LuaInstructionGas,
	LuaWord:         LuaWordGas,
}

// InvokeCost returns the fixed cost of entering an entry point with argc
// arguments.
func (g *GasTable) InvokeCost(argc int) uint64 {
	return g.Invoke + uint64(argc)*g.InvokeArg
}

// StorageWriteCost returns the cost of writing value under key.
func (g *GasTable) StorageWriteCost(key, value []byte) uint64 {
	return g.StorageWrite + uint64(len(key)+len(value))*g.StorageByte
}

// LuaWordCost returns the cost of n bytes of library work, rounded up to whole
// 32-byte words.
func (g *GasTable) LuaWordCost(n uint64) uint64 {
	words := n/32 + 1
	if n%32 == 0 {
		words--
	}
	if words > math.MaxUint64/g.LuaWord {
		return math.MaxUint64
	}
	return words * g.LuaWord
}
