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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/probeum/probe-sce/core/rawdb"
	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/internal/testcontracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockFixture struct {
	chain  *testChain
	c1, c2 common.Address
	vault  common.Address
	block  *types.Block
}

// newBlockFixture deploys two counters and a vault and builds a block that
// touches the first counter twice.
func newBlockFixture(t *testing.T) *blockFixture {
	c := newTestChain(t)
	f := &blockFixture{
		chain: c,
		c1:    c.deploy(t, testcontracts.Counter, types.ULongParam(0)),
		c2:    c.deploy(t, testcontracts.Counter, types.ULongParam(10)),
		vault: c.deploy(t, testcontracts.Vault),
	}
	call := func(to common.Address, method string, amount uint64) *types.SignedTx {
		return c.descriptorTx(t, types.NewCallDescriptor(c.cfg.VMVersion, to, method, 1, testLimit), amount)
	}
	f.block = types.NewBlock(types.BlockHeader{Number: 2, Coinbase: nobody},
		call(f.c1, "Increment", 0),
		call(f.c2, "Increment", 0),
		call(f.c1, "Increment", 0),
		c.signedTx(types.PayToAddress(alice), 5, 0),
		call(f.vault, "Deposit", 50),
		call(f.c2, "IncrementThenFail", 0),
	)
	return f
}

func TestBlockProcessor(t *testing.T) {
	f := newBlockFixture(t)
	p := NewBlockProcessor(f.chain.root, f.chain.exec, 4)
	defer p.Stop()

	var (
		execs  = make(chan ExecutionEvent, len(f.block.Transactions))
		blocks = make(chan BlockProcessedEvent, 1)
	)
	p.SubscribeExecutions(execs)
	p.SubscribeBlocks(blocks)

	results, err := p.Process(f.block)
	require.NoError(t, err)
	require.Len(t, results, 6)

	assert.Nil(t, results[3])
	for _, i := range []int{0, 1, 2, 4} {
		require.NotNil(t, results[i])
		assert.Equal(t, types.Success, results[i].Outcome, "tx %d: %v", i, results[i].Err)
	}
	assert.Equal(t, types.Revert, results[5].Outcome)

	assert.Equal(t, uint64(2), f.chain.counter(f.c1))
	assert.Equal(t, uint64(11), f.chain.counter(f.c2))
	assert.Equal(t, uint64(50), f.chain.balance(f.vault))

	var (
		indexes    []int
		reexecuted []int
	)
	for i := 0; i < 5; i++ {
		ev := <-execs
		indexes = append(indexes, ev.Index)
		if ev.Reexecuted {
			reexecuted = append(reexecuted, ev.Index)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 4, 5}, indexes)
	assert.Equal(t, []int{2, 5}, reexecuted)

	ev := <-blocks
	assert.Equal(t, uint64(2), ev.Number)
	assert.Equal(t, 2, ev.Reexecuted)
	root, err := f.chain.root.Hash()
	require.NoError(t, err)
	assert.Equal(t, root, ev.Root)
	assert.Equal(t, root, rawdb.ReadHeadStateRoot(f.chain.root.DiskDB()))
}

func TestBlockProcessorMatchesSequential(t *testing.T) {
	parallel, sequential := newBlockFixture(t), newBlockFixture(t)
	require.Equal(t, parallel.c1, sequential.c1)

	_, err := NewBlockProcessor(parallel.chain.root, parallel.chain.exec, 0).Process(parallel.block)
	require.NoError(t, err)

	for _, tx := range sequential.block.Transactions {
		if _, _, ok := tx.Tx.ContractOutput(); !ok {
			continue
		}
		_, err := ApplyTransaction(sequential.chain.exec, sequential.chain.root, &sequential.block.Header, tx)
		require.NoError(t, err)
	}
	have, err := parallel.chain.root.Hash()
	require.NoError(t, err)
	want, err := sequential.chain.root.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, have)
}
