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
	"github.com/google/go-cmp/cmp"
	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/core/vm"
	"github.com/stretchr/testify/assert"
)

func TestCondenseTransfers(t *testing.T) {
	var (
		a = common.Address{0x0a}
		b = common.Address{0x0b}
		c = common.Address{0x0c}
		d = common.Address{0x0d}
	)
	tests := []struct {
		transcript []*types.InternalTransfer
		want       []Movement
	}{
		{nil, nil},
		{
			[]*types.InternalTransfer{{From: a, To: b, Amount: 10}},
			[]Movement{{From: a, To: b, Amount: 10}},
		},
		// Opposite movements net out, the pair keeps its first position.
		{
			[]*types.InternalTransfer{
				{From: a, To: b, Amount: 10},
				{From: a, To: c, Amount: 5},
				{From: b, To: a, Amount: 14},
				{From: c, To: a, Amount: 5},
			},
			[]Movement{{From: b, To: a, Amount: 4}},
		},
		// Failed calls and empty movements do not count.
		{
			[]*types.InternalTransfer{
				{Kind: types.CallEntry, From: a, To: d, Amount: 7, Failed: true},
				{Kind: types.CallEntry, From: a, To: b, Amount: 0},
				{From: c, To: d, Amount: 3},
				{From: c, To: d, Amount: 2},
			},
			[]Movement{{From: c, To: d, Amount: 5}},
		},
	}
	for i, tt := range tests {
		if diff := cmp.Diff(tt.want, CondenseTransfers(tt.transcript)); diff != "" {
			t.Errorf("test %d: movements mismatch (-want +have):\n%s", i, diff)
		}
	}
}

func TestComputeRefund(t *testing.T) {
	ctx := NewExecutionContext(&types.BlockHeader{}, &types.SignedTx{
		Tx:         types.NewTransaction(),
		Sender:     sender,
		MempoolFee: 5000,
	})

	meter := vm.NewGasMeter(2000)
	assert.NoError(t, meter.Charge(1200))
	refund := ComputeRefund(ctx, meter, 3)
	if assert.NotNil(t, refund) {
		assert.Equal(t, uint64(2400), refund.Value)
		assert.Equal(t, types.PayToAddress(sender), refund.Script)
	}
	assert.Equal(t, uint64(2600), ComputeFee(ctx, refund))

	// A refund larger than the mempool fee leaves nothing to the producer.
	assert.Zero(t, ComputeFee(ctx, &types.TxOut{Value: 6000}))

	// Exhausted meters refund nothing.
	assert.Error(t, meter.Charge(1000))
	assert.Nil(t, ComputeRefund(ctx, meter, 3))
	assert.Equal(t, uint64(5000), ComputeFee(ctx, nil))

	assert.Nil(t, ComputeRefund(ctx, vm.NewGasMeter(10), 0))
}
