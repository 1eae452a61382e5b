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
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/core/vm"
	"github.com/probeum/probe-sce/internal/testcontracts"
	"github.com/probeum/probe-sce/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterLua = `
local M = {}
M.abi = {
	init = {"ulong"},
	get  = {},
	add  = {"ulong"},
	spin = {},
	fail = {},
	pay  = {"address", "ulong"},
	poke = {"address"},
}

function M.init(n)
	ctx.set("n", n)
end

function M.get()
	return ctx.get("n")
end

function M.add(k)
	local n = tonumber(ctx.get("n")) + k
	ctx.set("n", n)
	return n
end

function M.spin()
	while true do end
end

function M.fail()
	error("rejected")
end

function M.pay(to, amount)
	local ok, err = ctx.transfer(to, amount)
	if not ok then
		error(err)
	end
	return ctx.balance()
end

function M.poke(target)
	local ok, ret = ctx.call(target, "Increment", 0, 0)
	return ok
end

return M
`

func TestLuaContract(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, vm.LuaCode(counterLua), types.ULongParam(2))

	res, _ := v.call(t, 100_000, contract, "add", types.ULongParam(3))
	require.Equal(t, vm.Completed, res.Status, "%v", res.Err)
	assert.Equal(t, "5", string(res.ReturnValue))

	res, _ = v.call(t, 100_000, contract, "get")
	require.Equal(t, vm.Completed, res.Status, "%v", res.Err)
	assert.Equal(t, "5", string(res.ReturnValue))
}

func TestLuaArgumentMismatch(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, vm.LuaCode(counterLua), types.ULongParam(2))

	res, meter := v.call(t, 100_000, contract, "add", types.StringParam("3"))
	assert.Equal(t, vm.Reverted, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrArgumentMismatch)
	assert.Zero(t, meter.Consumed())
}

func TestLuaInfiniteLoop(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, vm.LuaCode(counterLua), types.ULongParam(0))

	res, meter := v.call(t, 20_000, contract, "spin")
	assert.Equal(t, vm.Faulted, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrOutOfGas)
	assert.Equal(t, uint64(20_000), meter.Consumed())
}

func TestLuaErrorReverts(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, vm.LuaCode(counterLua), types.ULongParam(0))

	res, _ := v.call(t, 100_000, contract, "fail")
	assert.Equal(t, vm.Reverted, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrExecutionReverted)
	assert.Contains(t, res.Err.Error(), "rejected")
}

func TestLuaHostTransferAndCall(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, vm.LuaCode(counterLua), types.ULongParam(0))
	v.deploy(t, other, testcontracts.Code(testcontracts.Counter), types.ULongParam(9))
	v.scope.Credit(contract, uint256.NewInt(50))

	res, _ := v.call(t, 100_000, contract, "pay", types.AddressParam(external), types.ULongParam(20))
	require.Equal(t, vm.Completed, res.Status, "%v", res.Err)
	assert.Equal(t, "30", string(res.ReturnValue))

	res, _ = v.call(t, 100_000, contract, "pay", types.AddressParam(external), types.ULongParam(31))
	assert.Equal(t, vm.Reverted, res.Status)

	res, _ = v.call(t, 100_000, contract, "poke", types.AddressParam(other))
	require.Equal(t, vm.Completed, res.Status, "%v", res.Err)
	assert.Equal(t, []byte{1}, res.ReturnValue)
}

func TestLuaInvalidModules(t *testing.T) {
	cfg := params.DefaultConfig
	cfg.LuaLoadInstructions = 1000
	tests := map[string]string{
		"syntax":          `return {`,
		"no table":        `return 1`,
		"no abi":          `return {}`,
		"missing method":  `return { abi = { init = {} } }`,
		"bad type":        `local M = { abi = { init = {"float"} } } function M.init() end return M`,
		"load budget":     `while true do end`,
		"no constructor":  `local M = { abi = { get = {} } } function M.get() end return M`,
		"removed globals": `pairs({}) return {}`,
		"library budget":  `local s = string.rep("x", 1000000) return {}`,
	}
	for name, src := range tests {
		v := newVMTest(t, &cfg)
		meter := vm.NewGasMeter(100_000)
		res, err := v.vm.Create(v.env, v.scope, meter, sender, contract, vm.LuaCode(src), 0, nil)
		require.NoError(t, err, name)
		assert.Equal(t, vm.Faulted, res.Status, name)
		assert.ErrorIs(t, res.Err, vm.ErrInvalidCode, name)
		assert.Zero(t, meter.Consumed(), name)
	}
}

func TestRegistry(t *testing.T) {
	r := testcontracts.NewRegistry()
	assert.Error(t, testcontracts.Register(r), "duplicate registration")
	assert.Error(t, r.RegisterNative(&vm.NativeContract{Name: "NoCtor"}))

	names := r.Natives()
	assert.Contains(t, names, testcontracts.Vault)
	assert.IsIncreasing(t, names)

	cfg := params.DefaultConfig
	module, err := r.Load(&cfg, testcontracts.Code(testcontracts.Vault))
	require.NoError(t, err)
	assert.Equal(t, vm.NativeRuntime, module.Runtime())
	assert.Equal(t, []string{"Deposit", "Forward", "ForwardOrFail", "Split", "Withdraw"}, module.Methods())

	module, err = r.Load(&cfg, vm.LuaCode(counterLua))
	require.NoError(t, err)
	assert.Equal(t, vm.LuaRuntime, module.Runtime())
	assert.Equal(t, []string{"add", "fail", "get", "pay", "poke", "spin"}, module.Methods())
}

const libraryLua = `
local M = {}
M.abi = {
	init   = {},
	rep    = {"ulong"},
	join   = {"ulong"},
	find   = {"string", "string"},
	echo   = {"ulong"},
	format = {},
	leak   = {},
	throw  = {},
}

function M.init() end

function M.rep(n)
	return #string.rep("x", n)
end

function M.join(n)
	local t = {}
	for i = 1, n do t[i] = "ab" end
	return #table.concat(t, ",")
end

function M.find(s, p)
	return string.find(s, p)
end

function M.echo(n)
	return n
end

function M.format()
	return string.format("%s-%d-%s", "id", 7, true)
end

function M.leak()
	return string.format("%s", {})
end

function M.throw()
	error({})
end

return M
`

func TestLuaLibraryGasScales(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, vm.LuaCode(libraryLua))

	small, smallMeter := v.call(t, 100_000, contract, "rep", types.ULongParam(1000))
	require.Equal(t, vm.Completed, small.Status, "%v", small.Err)
	large, largeMeter := v.call(t, 100_000, contract, "rep", types.ULongParam(64_000))
	require.Equal(t, vm.Completed, large.Status, "%v", large.Err)
	assert.Equal(t, "64000", string(large.ReturnValue))

	gas := params.DefaultGasTable
	assert.Equal(t, gas.LuaWordCost(64_000)-gas.LuaWordCost(1000), largeMeter.Consumed()-smallMeter.Consumed())
}

func TestLuaLibraryOutOfGas(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, vm.LuaCode(libraryLua))

	res, meter := v.call(t, 100_000, contract, "rep", types.ULongParam(500_000_000))
	assert.Equal(t, vm.Faulted, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrOutOfGas)
	assert.Equal(t, uint64(100_000), meter.Consumed())
}

func TestLuaLibraryStringLimit(t *testing.T) {
	cfg := params.DefaultConfig
	cfg.LuaMaxString = 256
	v := newVMTest(t, &cfg)
	v.deploy(t, contract, vm.LuaCode(libraryLua))

	res, _ := v.call(t, 1_000_000, contract, "rep", types.ULongParam(257))
	assert.Equal(t, vm.Reverted, res.Status)
	assert.Contains(t, res.Err.Error(), "too large")

	res, _ = v.call(t, 1_000_000, contract, "join", types.ULongParam(10))
	require.Equal(t, vm.Completed, res.Status, "%v", res.Err)
	assert.Equal(t, "29", string(res.ReturnValue))

	res, _ = v.call(t, 1_000_000, contract, "join", types.ULongParam(100))
	assert.Equal(t, vm.Reverted, res.Status)
	assert.Contains(t, res.Err.Error(), "too large")
}

func TestLuaLibraryFunctions(t *testing.T) {
	v := newVMTest(t, nil)
	v.deploy(t, contract, vm.LuaCode(libraryLua))

	tests := []struct {
		method string
		args   []types.Param
		want   string
	}{
		{"find", []types.Param{types.StringParam("a.b.c"), types.StringParam(".")}, "2"},
		{"find", []types.Param{types.StringParam("abc"), types.StringParam("%a")}, ""},
		{"echo", []types.Param{types.ULongParam(7)}, "7"},
		{"echo", []types.Param{types.ULongParam(math.MaxUint64)}, "18446744073709551615"},
		{"format", nil, "id-7-true"},
	}
	for _, tt := range tests {
		res, _ := v.call(t, 100_000, contract, tt.method, tt.args...)
		require.Equal(t, vm.Completed, res.Status, "%s: %v", tt.method, res.Err)
		assert.Equal(t, tt.want, string(res.ReturnValue), tt.method)
	}
}

func TestLuaResultsRepeatable(t *testing.T) {
	for _, method := range []string{"leak", "throw"} {
		var errs []string
		for i := 0; i < 2; i++ {
			v := newVMTest(t, nil)
			v.deploy(t, contract, vm.LuaCode(libraryLua))
			res, _ := v.call(t, 100_000, contract, method)
			require.Equal(t, vm.Reverted, res.Status, method)
			assert.NotContains(t, res.Err.Error(), "0x", method)
			errs = append(errs, res.Err.Error())
		}
		assert.Equal(t, errs[0], errs[1], method)
	}
}
