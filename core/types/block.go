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

// BlockHeader carries the chain context a block supplies to contract execution.
type BlockHeader struct {
	Number   uint64
	Time     uint64
	Coinbase common.Address
}

// SignedTx is a transaction together with the data the node derived from it
// before handing it to the engine.
type SignedTx struct {
	Tx         *Transaction
	Sender     common.Address
	MempoolFee uint64
}

// Block is an ordered list of contract transactions.
type Block struct {
	Header       BlockHeader
	Transactions []*SignedTx
}

// NewBlock creates a block with the given header and transactions.
func NewBlock(header BlockHeader, txs ...*SignedTx) *Block {
	return &Block{Header: header, Transactions: txs}
}

func (b *Block) NumberU64() uint64        { return b.Header.Number }
func (b *Block) Coinbase() common.Address { return b.Header.Coinbase }
