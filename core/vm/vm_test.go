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

package vm_test

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/probeum/probe-sce/core/rawdb"
	"github.com/probeum/probe-sce/core/state"
	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/core/vm"
	"github.com/probeum/probe-sce/internal/testcontracts"
	"github.com/probeum/probe-sce/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	contract = common.HexToAddress("0x2000000000000000000000000000000000000002")
	other    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	external = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

type vmTest struct {
	vm    *vm.VM
	env   *vm.Env
	sdb   *state.StateDB
	scope *state.Scope
}

func newVMTest(t *testing.T, cfg *params.Config) *vmTest {
	t.Helper()
	if cfg == nil {
		c := params.DefaultConfig
		cfg = &c
	}
	sdb := state.NewRoot(rawdb.NewMemoryDatabase()).Open()
	return &vmTest{
		vm: vm.New(cfg, testcontracts.NewRegistry()),
		env: &vm.Env{
			Block: vm.BlockContext{BlockNumber: 10},
			Tx:    vm.TxContext{Origin: sender},
		},
		sdb:   sdb,
		scope: sdb.OpenScope(),
	}
}

// deploy creates a contract with unlimited gas and requires success.
func (v *vmTest) deploy(t *testing.T, addr common.Address, code []byte, args ...types.Param) {
	t.Helper()
	res, err := v.vm.Create(v.env, v.scope, vm.NewGasMeter(1_000_000), sender, addr, code, 0, args)
	require.NoError(t, err)
	require.Equal(t, vm.Completed, res.Status, "deploy: %v", res.Err)
}

func (v *vmTest) call(t *testing.T, limit uint64, addr common.Address, method string, args ...types.Param) (*vm.Result, *vm.GasMeter) {
	t.Helper()
	meter := vm.NewGasMeter(limit)
	res, err := v.vm.Call(v.env, v.scope, meter, sender, addr, method, 0, args)
	require.NoError(t, err)
	require.True(t, res.Status.Terminal())
	assert.LessOrEqual(t, meter.Consumed(), limit)
	return res, meter
}

func TestConstructorFailureKeepsWork(t *testing.T) {
	v := newVMTest(t, nil)
	meter := vm.NewGasMeter(100_000)
	res, err := v.vm.Create(v.env, v.scope, meter, sender, contract, testcontracts.Code(testcontracts.ConstructorInvalid), 0, nil)
	require.NoError(t, err)

	assert.Equal(t, vm.Reverted, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrExecutionReverted)
	assert.Equal(t, params.InvokeGas+testcontracts.ConstructorWork, meter.Consumed())
	assert.Equal(t, uint64(13), meter.Consumed())
}

func TestArgumentMismatchChargesNothing(t *testing.T) {
	tests := []struct {
		name string
		args []types.Param
	}{
		{testcontracts.InvalidParameterCount, []types.Param{types.ShortParam(1), types.ShortParam(2)}},
		{testcontracts.InvalidParameterCount, nil},
		{testcontracts.ParameterTypeMismatch, []types.Param{types.ShortParam(1)}},
	}
	for i, tt := range tests {
		v := newVMTest(t, nil)
		meter := vm.NewGasMeter(100_000)
		res, err := v.vm.Create(v.env, v.scope, meter, sender, contract, testcontracts.Code(tt.name), 0, tt.args)
		if err != nil {
			t.Fatalf("test %d: unexpected error %v", i, err)
		}
		if res.Status != vm.Reverted || !errors.Is(res.Err, vm.ErrArgumentMismatch) {
			t.Errorf("test %d: have %v/%v, want reverted argument mismatch", i, res.Status, res.Err)
		}
		if meter.Consumed() != 0 {
			t.Errorf("test %d: consumed %d gas", i, meter.Consumed())
		}
		if v.sdb.HasCode(contract) {
			t.Errorf("test %d: code deployed", i)
		}
	}
}

func TestCallMissingContract(t *testing.T) {
	v := newVMTest(t, nil)
	res, meter := v.call(t, 100_000, contract, "Loop")
	assert.Equal(t, vm.Faulted, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrContractNotFound)
	assert.Zero(t, meter.Consumed())
}

func TestCallUnknownMethod(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, testcontracts.Code(testcontracts.Counter), types.ULongParam(0))

	for _, method := range []string{"Missing", vm.ConstructorName} {
		res, meter := v.call(t, 100_000, contract, method)
		assert.Equal(t, vm.Reverted, res.Status)
		assert.ErrorIs(t, res.Err, vm.ErrMethodNotFound)
		assert.Zero(t, meter.Consumed())
	}
}

func TestInfiniteLoopRunsOutOfGas(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, testcontracts.Code(testcontracts.InfiniteLoop))

	res, meter := v.call(t, 50_000, contract, "Loop")
	assert.Equal(t, vm.Faulted, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrOutOfGas)
	assert.Equal(t, uint64(50_000), meter.Consumed())
	assert.Zero(t, meter.Refundable())
}

func TestNestedInfiniteLoopConsumesLimit(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, testcontracts.Code(testcontracts.InfiniteLoop))
	v.deploy(t, other, testcontracts.Code(testcontracts.CallInfiniteLoop))

	const limit = 1_000_000
	res, meter := v.call(t, limit, other, "CallInfiniteLoop", types.AddressParam(contract))
	assert.Equal(t, vm.Faulted, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrOutOfGas)
	assert.Equal(t, uint64(limit), meter.Consumed())
	assert.True(t, meter.Exhausted())
}

func TestThrowExceptionReverts(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, testcontracts.Code(testcontracts.ThrowException))

	res, meter := v.call(t, 100_000, contract, "ThrowException")
	assert.Equal(t, vm.Reverted, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrContractFault)
	assert.Equal(t, params.InvokeGas, meter.Consumed())
}

func TestCallDepthBound(t *testing.T) {
	cfg := params.DefaultConfig
	cfg.MaxCallDepth = 8
	v := newVMTest(t, &cfg)
	v.deploy(t, contract, testcontracts.Code(testcontracts.Recursive))

	res, _ := v.call(t, 1_000_000, contract, "Recurse")
	assert.Equal(t, vm.Reverted, res.Status)
	assert.Contains(t, res.Err.Error(), vm.ErrCallDepthExceeded.Error())

	// Only the failed call made by the top-level frame survives.
	transcript := v.sdb.Transcript()
	require.Len(t, transcript, 1)
	assert.True(t, transcript[0].Failed)
	assert.Equal(t, 1, transcript[0].Depth)
}

func TestNestedFailureRevertsOnlyChild(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, testcontracts.Code(testcontracts.Vault))
	v.deploy(t, other, testcontracts.Code(testcontracts.Vault))
	v.scope.Credit(contract, uint256.NewInt(100))

	res, _ := v.call(t, 100_000, contract, "Forward", types.AddressParam(other), types.ULongParam(500))
	require.Equal(t, vm.Completed, res.Status)
	assert.Equal(t, []byte{byte(vm.Reverted)}, res.ReturnValue)
	assert.Equal(t, uint64(100), v.scope.GetBalance(contract).Uint64())
	assert.Zero(t, v.scope.GetBalance(other).Uint64())

	res, _ = v.call(t, 100_000, contract, "Forward", types.AddressParam(other), types.ULongParam(40))
	require.Equal(t, vm.Completed, res.Status)
	assert.Equal(t, []byte{byte(vm.Completed)}, res.ReturnValue)
	assert.Equal(t, uint64(60), v.scope.GetBalance(contract).Uint64())
	assert.Equal(t, uint64(40), v.scope.GetBalance(other).Uint64())

	transcript := v.sdb.Transcript()
	require.Len(t, transcript, 2)
	assert.True(t, transcript[0].Failed)
	assert.Contains(t, transcript[0].Reason, state.ErrInsufficientFunds.Error())
	assert.False(t, transcript[1].Failed)
	assert.Equal(t, types.CallEntry, transcript[1].Kind)
	assert.Equal(t, uint64(40), transcript[1].Amount)
}

func TestForwardOrFailPropagates(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, testcontracts.Code(testcontracts.Vault))
	v.scope.Credit(contract, uint256.NewInt(10))

	// The callee is not a contract; the caller chooses to fail.
	res, _ := v.call(t, 100_000, contract, "ForwardOrFail", types.AddressParam(external), types.ULongParam(5))
	assert.Equal(t, vm.Reverted, res.Status)
	assert.Contains(t, res.Err.Error(), vm.ErrContractNotFound.Error())
}

func TestTransferLeavesCustody(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, testcontracts.Code(testcontracts.Vault))
	v.deploy(t, other, testcontracts.Code(testcontracts.Vault))
	v.scope.Credit(contract, uint256.NewInt(100))

	res, _ := v.call(t, 100_000, contract, "Split", types.AddressParam(external), types.AddressParam(other), types.ULongParam(30))
	require.Equal(t, vm.Completed, res.Status, "%v", res.Err)
	assert.Equal(t, uint64(70), v.scope.GetBalance(contract).Uint64())
	assert.Equal(t, uint64(15), v.scope.GetBalance(other).Uint64())
	assert.Zero(t, v.scope.GetBalance(external).Uint64())

	res, _ = v.call(t, 100_000, contract, "Withdraw", types.AddressParam(external), types.ULongParam(71))
	assert.Equal(t, vm.Reverted, res.Status)
	assert.Contains(t, res.Err.Error(), state.ErrInsufficientFunds.Error())
}

func TestStorageWritesMetered(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, testcontracts.Code(testcontracts.Counter), types.ULongParam(41))

	res, meter := v.call(t, 100_000, contract, "Increment")
	require.Equal(t, vm.Completed, res.Status)
	assert.Equal(t, uint64(42), binary.BigEndian.Uint64(res.ReturnValue))

	gas := params.DefaultGasTable
	want := gas.InvokeCost(0) + gas.StorageRead + gas.StorageWriteCost([]byte("count"), make([]byte, 8))
	assert.Equal(t, want, meter.Consumed())

	// Running short clamps consumption to the limit.
	res, meter = v.call(t, want-1, contract, "Increment")
	assert.Equal(t, vm.Faulted, res.Status)
	assert.Equal(t, want-1, meter.Consumed())
}

func TestCreateChargesCodeDeposit(t *testing.T) {
	v := newVMTest(t, nil)
	code := testcontracts.Code(testcontracts.Counter)
	meter := vm.NewGasMeter(100_000)
	res, err := v.vm.Create(v.env, v.scope, meter, sender, contract, code, 0, []types.Param{types.ULongParam(1)})
	require.NoError(t, err)
	require.Equal(t, vm.Completed, res.Status)

	gas := params.DefaultGasTable
	want := gas.InvokeCost(1) + gas.StorageWriteCost([]byte("count"), make([]byte, 8)) + uint64(len(code))*gas.CodeDeposit
	assert.Equal(t, want, meter.Consumed())

	res, err = v.vm.Create(v.env, v.scope, vm.NewGasMeter(100_000), sender, contract, code, 0, []types.Param{types.ULongParam(1)})
	require.NoError(t, err)
	assert.Equal(t, vm.Reverted, res.Status)
	assert.ErrorIs(t, res.Err, state.ErrCodeAlreadySet)
}

func TestCreateInvalidCode(t *testing.T) {
	v := newVMTest(t, nil)
	for _, code := range [][]byte{nil, {0x01}, vm.NativeCode("Unregistered"), {0x7f, 'x'}} {
		meter := vm.NewGasMeter(100_000)
		res, err := v.vm.Create(v.env, v.scope, meter, sender, contract, code, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, vm.Faulted, res.Status)
		assert.True(t, errors.Is(res.Err, vm.ErrInvalidCode) || errors.Is(res.Err, vm.ErrUnknownRuntime), "%x: %v", code, res.Err)
		assert.Zero(t, meter.Consumed())
	}
}

func TestStatusOutcome(t *testing.T) {
	assert.Equal(t, types.Success, vm.Completed.Outcome())
	assert.Equal(t, types.Revert, vm.Reverted.Outcome())
	assert.Equal(t, types.Fault, vm.Faulted.Outcome())
	assert.False(t, vm.Running.Terminal())
	assert.True(t, strings.HasPrefix(vm.Status(9).String(), "Status("))
}
