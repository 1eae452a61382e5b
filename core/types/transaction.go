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
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// OutPoint references one output of a transaction.
type OutPoint struct {
	Hash  common.Hash
	Index uint32
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%x:%d", o.Hash[:8], o.Index)
}

// TxIn spends a previous output.
type TxIn struct {
	PrevOut OutPoint
}

// TxOut is a value locked by a script.
type TxOut struct {
	Value  uint64
	Script []byte
}

// Transaction is the on-chain carrier of contract descriptors and the shape of
// the internal transactions produced by execution.
type Transaction struct {
	Inputs  []*TxIn
	Outputs []*TxOut
}

// NewTransaction creates an empty transaction.
func NewTransaction() *Transaction {
	return new(Transaction)
}

// AddInput appends an input spending prev.
func (tx *Transaction) AddInput(prev OutPoint) *TxIn {
	in := &TxIn{PrevOut: prev}
	tx.Inputs = append(tx.Inputs, in)
	return in
}

// AddOutput appends an output and returns it.
func (tx *Transaction) AddOutput(value uint64, script []byte) *TxOut {
	out := &TxOut{Value: value, Script: common.CopyBytes(script)}
	tx.Outputs = append(tx.Outputs, out)
	return out
}

// Hash returns the keccak256 hash of the transaction's RLP encoding.
func (tx *Transaction) Hash() common.Hash {
	return rlpHash(tx)
}

// ContractOutput returns the first output carrying a contract descriptor.
func (tx *Transaction) ContractOutput() (uint32, *TxOut, bool) {
	for i, out := range tx.Outputs {
		if IsContractScript(out.Script) {
			return uint32(i), out, true
		}
	}
	return 0, nil, false
}

// TotalOut sums the value of all outputs.
func (tx *Transaction) TotalOut() uint64 {
	var sum uint64
	for _, out := range tx.Outputs {
		sum += out.Value
	}
	return sum
}

func rlpHash(x interface{}) common.Hash {
	enc, err := rlp.EncodeToBytes(x)
	if err != nil {
		panic(fmt.Sprintf("rlp hash of %T: %v", x, err))
	}
	return crypto.Keccak256Hash(enc)
}

// CreateAddress derives the address of a contract created by the transaction
// with the given hash. The nonce distinguishes several creations made by the
// same transaction.
func CreateAddress(txHash common.Hash, nonce uint64) common.Address {
	data, _ := rlp.EncodeToBytes([]interface{}{txHash, nonce})
	return common.BytesToAddress(crypto.Keccak256(data)[12:])
}
