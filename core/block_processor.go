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
	"fmt"
	"runtime"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/probeum/probe-sce/core/rawdb"
	"github.com/probeum/probe-sce/core/state"
	"github.com/probeum/probe-sce/core/types"
	"golang.org/x/sync/errgroup"
)

var (
	blockTxMeter     = metrics.NewRegisteredMeter("sce/block/txs", nil)
	blockReexecMeter = metrics.NewRegisteredMeter("sce/block/reexec", nil)
	blockTimer       = metrics.NewRegisteredTimer("sce/block/time", nil)
)

// BlockProcessor applies the contract transactions of a block to a root.
//
// Transactions first run in parallel, each in its own working set over the
// pre-block state. Their working sets are then flushed strictly in block
// order. A transaction that read an account written by an earlier transaction
// of the block is executed again over the updated root before it is flushed,
// so the final state equals that of a sequential run.
type BlockProcessor struct {
	root     *state.Root
	executor Executor
	workers  int

	executionFeed event.Feed
	blockFeed     event.Feed
	scope         event.SubscriptionScope
	log           log.Logger
}

// NewBlockProcessor creates a processor running at most workers executions at
// once. A non-positive workers value uses one worker per CPU.
func NewBlockProcessor(root *state.Root, executor Executor, workers int) *BlockProcessor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BlockProcessor{
		root:     root,
		executor: executor,
		workers:  workers,
		log:      log.New("module", "block"),
	}
}

// SubscribeExecutions registers a subscription of ExecutionEvent.
func (p *BlockProcessor) SubscribeExecutions(ch chan<- ExecutionEvent) event.Subscription {
	return p.scope.Track(p.executionFeed.Subscribe(ch))
}

// SubscribeBlocks registers a subscription of BlockProcessedEvent.
func (p *BlockProcessor) SubscribeBlocks(ch chan<- BlockProcessedEvent) event.Subscription {
	return p.scope.Track(p.blockFeed.Subscribe(ch))
}

// Stop closes all subscriptions.
func (p *BlockProcessor) Stop() {
	p.scope.Close()
}

type speculativeRun struct {
	statedb *state.StateDB
	result  *types.ExecutionResult
}

// Process executes block and returns one result per transaction, nil for
// transactions that carry no contract output. An error leaves the root with
// the transactions before the failing one applied.
func (p *BlockProcessor) Process(block *types.Block) ([]*types.ExecutionResult, error) {
	defer blockTimer.UpdateSince(time.Now())

	var (
		header = block.Header
		runs   = make([]*speculativeRun, len(block.Transactions))
		g      errgroup.Group
	)
	g.SetLimit(p.workers)
	for i, tx := range block.Transactions {
		if _, _, ok := tx.Tx.ContractOutput(); !ok {
			continue
		}
		i, tx := i, tx
		g.Go(func() error {
			statedb := p.root.Open()
			res, err := p.executor.Execute(NewExecutionContext(&header, tx), statedb)
			if err != nil {
				return fmt.Errorf("tx %d: %w", i, err)
			}
			runs[i] = &speculativeRun{statedb: statedb, result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		results    = make([]*types.ExecutionResult, len(block.Transactions))
		written    = mapset.NewThreadUnsafeSet()
		reexecuted int
	)
	for i, run := range runs {
		if run == nil {
			continue
		}
		tx := block.Transactions[i]
		again := conflicts(run.statedb.ReadSet(), written)
		if again {
			statedb := p.root.Open()
			res, err := p.executor.Execute(NewExecutionContext(&header, tx), statedb)
			if err != nil {
				return nil, fmt.Errorf("tx %d: %w", i, err)
			}
			run = &speculativeRun{statedb: statedb, result: res}
			reexecuted++
		}
		for _, addr := range run.statedb.WriteSet() {
			written.Add(addr)
		}
		if err := run.statedb.Commit(); err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		results[i] = run.result
		p.executionFeed.Send(ExecutionEvent{
			BlockNumber: header.Number,
			Index:       i,
			TxHash:      tx.Tx.Hash(),
			Result:      run.result,
			Reexecuted:  again,
		})
	}

	hash, err := p.root.Hash()
	if err != nil {
		return nil, err
	}
	rawdb.WriteHeadStateRoot(p.root.DiskDB(), hash)

	blockTxMeter.Mark(int64(len(block.Transactions)))
	blockReexecMeter.Mark(int64(reexecuted))
	p.log.Info("Processed block", "number", header.Number, "txs", len(block.Transactions), "reexecuted", reexecuted, "root", hash)
	p.blockFeed.Send(BlockProcessedEvent{Number: header.Number, Root: hash, Results: results, Reexecuted: reexecuted})
	return results, nil
}

func conflicts(reads []common.Address, written mapset.Set) bool {
	for _, addr := range reads {
		if written.Contains(addr) {
			return true
		}
	}
	return false
}
