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

package vm

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/Shopify/go-lua"
	"github.com/ethereum/go-ethereum/common"
	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/params"
)

const luaModuleKey = "sce.module"

// Globals removed from the sandbox. They either leak host nondeterminism or
// let a contract swallow a halt.
var luaRemovedGlobals = []string{
	"collectgarbage", "dofile", "load", "loadfile", "loadstring", "next",
	"pairs", "pcall", "print", "require", "tostring", "xpcall",
}

var errLoadBudget = errors.New("load instruction budget exceeded")

// luaModule is a Lua contract. The chunk returns a table of functions and an
// abi table declaring the parameter types of every exported entry point.
type luaModule struct {
	l       *lua.State
	cfg     *params.Config
	meter   *luaMeter
	methods map[string]*Method
}

func openLuaSandbox(l *lua.State, meter *luaMeter) {
	libs := []struct {
		name string
		open lua.Function
	}{
		{"_G", lua.BaseOpen},
		{"string", lua.StringOpen},
		{"table", lua.TableOpen},
		{"math", lua.MathOpen},
		{"bit32", lua.Bit32Open},
	}
	for _, lib := range libs {
		lua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}
	for _, name := range luaRemovedGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}
	l.Global("math")
	for _, name := range []string{"random", "randomseed"} {
		l.PushNil()
		l.SetField(-2, name)
	}
	l.Pop(1)
	meterLibrary(l, meter)
}

// loadLua evaluates the chunk under a fixed budget and resolves its abi into
// a method table. The budget covers LuaLoadInstructions instructions and the
// library work those instructions would pay for.
func loadLua(cfg *params.Config, source string) (Module, error) {
	var (
		l        = lua.NewState()
		meter    = &luaMeter{cfg: cfg}
		exceeded = false
		budget   = uint64(cfg.LuaLoadInstructions/cfg.LuaHookInterval) * cfg.Gas.LuaInstructions
	)
	openLuaSandbox(l, meter)

	if err := lua.LoadString(l, source); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCode, luaError(err))
	}
	meter.charge = func(l *lua.State, gas uint64) {
		if gas > budget {
			exceeded = true
			lua.Errorf(l, "%s", errLoadBudget.Error())
		}
		budget -= gas
	}
	lua.SetDebugHook(l, func(l *lua.State, _ lua.Debug) {
		exceeded = true
		lua.Errorf(l, "%s", errLoadBudget.Error())
	}, lua.MaskCount, cfg.LuaLoadInstructions)
	err := l.ProtectedCall(0, 1, 0)
	lua.SetDebugHook(l, nil, 0, 0)
	if exceeded {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCode, errLoadBudget)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCode, luaError(err))
	}
	if !l.IsTable(-1) {
		return nil, fmt.Errorf("%w: chunk must return a table", ErrInvalidCode)
	}
	m := &luaModule{l: l, cfg: cfg, meter: meter, methods: make(map[string]*Method)}
	if err := m.resolveABI(); err != nil {
		return nil, err
	}
	l.SetField(lua.RegistryIndex, luaModuleKey)
	return m, nil
}

// resolveABI reads the abi table of the module table on top of the stack.
func (m *luaModule) resolveABI() error {
	l := m.l
	l.Field(-1, "abi")
	if !l.IsTable(-1) {
		return fmt.Errorf("%w: missing abi table", ErrInvalidCode)
	}
	var names []string
	l.PushNil()
	for l.Next(-2) {
		if l.TypeOf(-2) != lua.TypeString || !l.IsTable(-1) {
			l.Pop(2)
			return fmt.Errorf("%w: abi entries map names to type lists", ErrInvalidCode)
		}
		name, _ := l.ToString(-2)
		sig, err := luaSignature(l)
		if err != nil {
			l.Pop(2)
			return fmt.Errorf("%w: %s: %v", ErrInvalidCode, name, err)
		}
		m.methods[name] = m.method(name, sig)
		names = append(names, name)
		l.Pop(1)
	}
	l.Pop(1)

	for _, name := range names {
		l.Field(-1, name)
		fn := l.IsFunction(-1)
		l.Pop(1)
		if !fn {
			return fmt.Errorf("%w: abi names %q but module has no such function", ErrInvalidCode, name)
		}
	}
	return nil
}

// luaSignature converts the type list on top of the stack.
func luaSignature(l *lua.State) ([]types.ParamType, error) {
	n := l.RawLength(-1)
	sig := make([]types.ParamType, 0, n)
	for i := 1; i <= n; i++ {
		l.RawGetInt(-1, i)
		name, ok := l.ToString(-1)
		l.Pop(1)
		if !ok {
			return nil, fmt.Errorf("parameter %d is not a type name", i)
		}
		t, ok := types.ParseParamType(name)
		if !ok {
			return nil, fmt.Errorf("unknown parameter type %q", name)
		}
		sig = append(sig, t)
	}
	return sig, nil
}

func (m *luaModule) Runtime() byte { return LuaRuntime }

func (m *luaModule) Constructor() (*Method, bool) {
	return m.Method(ConstructorName)
}

func (m *luaModule) Method(name string) (*Method, bool) {
	method, ok := m.methods[name]
	return method, ok
}

func (m *luaModule) Methods() []string {
	var names []string
	for name := range m.methods {
		if name != ConstructorName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *luaModule) method(name string, sig []types.ParamType) *Method {
	return &Method{
		Params: sig,
		Fn: func(rt Runtime, args []types.Param) ([]byte, error) {
			return m.invoke(rt, name, args)
		},
	}
}

// luaCall is the host side of one invocation. Halts raised by host functions
// are parked here and re-raised once control is back in Go.
type luaCall struct {
	rt   Runtime
	halt error
}

// protect runs fn, turning a halt into a Lua error that unwinds the script.
func (c *luaCall) protect(l *lua.State, fn func() int) int {
	n, err := catchHalt(fn)
	if err != nil {
		c.halt = err
		lua.Errorf(l, "%s", err.Error())
	}
	return n
}

func catchHalt(fn func() int) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, ok := r.(haltSignal)
			if !ok {
				panic(r)
			}
			err = h.err
		}
	}()
	return fn(), nil
}

func (m *luaModule) invoke(rt Runtime, name string, args []types.Param) ([]byte, error) {
	l := m.l
	call := &luaCall{rt: rt}

	top := l.Top()
	defer l.SetTop(top)

	m.installHost(call)
	m.meter.charge = func(l *lua.State, gas uint64) {
		call.protect(l, func() int {
			rt.UseGas(gas)
			return 0
		})
	}
	lua.SetDebugHook(l, func(l *lua.State, _ lua.Debug) {
		m.meter.charge(l, m.cfg.Gas.LuaInstructions)
	}, lua.MaskCount, m.cfg.LuaHookInterval)
	defer lua.SetDebugHook(l, nil, 0, 0)

	l.Field(lua.RegistryIndex, luaModuleKey)
	l.Field(-1, name)
	for _, arg := range args {
		pushParam(l, arg)
	}
	err := l.ProtectedCall(len(args), 1, 0)
	if call.halt != nil {
		halt(call.halt)
	}
	if err != nil {
		return nil, luaError(err)
	}
	return luaReturn(l)
}

func pushParam(l *lua.State, p types.Param) {
	switch p.Type {
	case types.ParamBool:
		l.PushBoolean(p.Bool())
	case types.ParamULong:
		// Values beyond the signed range have no integer representation.
		if n := p.Uint64(); n > math.MaxInt64 {
			l.PushString(strconv.FormatUint(n, 10))
		} else {
			l.PushInteger(int(n))
		}
	case types.ParamByte, types.ParamUInt, types.ParamSByte, types.ParamShort,
		types.ParamInt, types.ParamLong:
		l.PushInteger(int(p.Int64()))
	case types.ParamChar:
		l.PushString(string(p.Char()))
	case types.ParamAddress, types.ParamUInt160:
		l.PushString(p.Address().Hex())
	default:
		l.PushString(string(p.Value))
	}
}

func luaReturn(l *lua.State) ([]byte, error) {
	switch l.TypeOf(-1) {
	case lua.TypeNil, lua.TypeNone:
		return nil, nil
	case lua.TypeBoolean:
		if l.ToBoolean(-1) {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case lua.TypeNumber, lua.TypeString:
		s, _ := l.ToString(-1)
		return []byte(s), nil
	}
	return nil, fmt.Errorf("unsupported return type %s", lua.TypeNameOf(l, -1))
}

func luaAddress(l *lua.State, idx int) common.Address {
	s := lua.CheckString(l, idx)
	if !common.IsHexAddress(s) {
		lua.ArgumentError(l, idx, "address expected")
	}
	return common.HexToAddress(s)
}

func luaAmount(l *lua.State, idx int) uint64 {
	n := lua.CheckInteger(l, idx)
	if n < 0 {
		lua.ArgumentError(l, idx, "negative amount")
	}
	return uint64(n)
}

// installHost binds the ctx global to the running invocation.
func (m *luaModule) installHost(call *luaCall) {
	l, rt := m.l, call.rt
	host := func(fn func(l *lua.State) int) lua.Function {
		return func(l *lua.State) int {
			return call.protect(l, func() int { return fn(l) })
		}
	}
	funcs := []lua.RegistryFunction{
		{Name: "address", Function: host(func(l *lua.State) int {
			l.PushString(rt.Address().Hex())
			return 1
		})},
		{Name: "sender", Function: host(func(l *lua.State) int {
			l.PushString(rt.Caller().Hex())
			return 1
		})},
		{Name: "origin", Function: host(func(l *lua.State) int {
			l.PushString(rt.Origin().Hex())
			return 1
		})},
		{Name: "value", Function: host(func(l *lua.State) int {
			l.PushInteger(int(rt.Value()))
			return 1
		})},
		{Name: "height", Function: host(func(l *lua.State) int {
			l.PushInteger(int(rt.BlockNumber()))
			return 1
		})},
		{Name: "coinbase", Function: host(func(l *lua.State) int {
			l.PushString(rt.Coinbase().Hex())
			return 1
		})},
		{Name: "balance", Function: host(func(l *lua.State) int {
			addr := rt.Address()
			if l.Top() >= 1 && !l.IsNil(1) {
				addr = luaAddress(l, 1)
			}
			l.PushInteger(int(rt.Balance(addr)))
			return 1
		})},
		{Name: "get", Function: host(func(l *lua.State) int {
			value := rt.GetStorage([]byte(lua.CheckString(l, 1)))
			if value == nil {
				l.PushNil()
			} else {
				l.PushString(string(value))
			}
			return 1
		})},
		{Name: "set", Function: host(func(l *lua.State) int {
			key := lua.CheckString(l, 1)
			var value []byte
			if !l.IsNil(2) {
				value = []byte(lua.CheckString(l, 2))
			}
			rt.SetStorage([]byte(key), value)
			return 0
		})},
		{Name: "transfer", Function: host(func(l *lua.State) int {
			if err := rt.Transfer(luaAddress(l, 1), luaAmount(l, 2)); err != nil {
				l.PushBoolean(false)
				l.PushString(err.Error())
				return 2
			}
			l.PushBoolean(true)
			return 1
		})},
		{Name: "call", Function: host(func(l *lua.State) int {
			to, method := luaAddress(l, 1), lua.CheckString(l, 2)
			amount, gas := luaAmount(l, 3), luaAmount(l, 4)
			var args []types.Param
			for i := 5; i <= l.Top(); i++ {
				p, err := types.ParseParam(lua.CheckString(l, i))
				if err != nil {
					lua.ArgumentError(l, i, err.Error())
				}
				args = append(args, p)
			}
			res := rt.Call(to, method, amount, gas, args...)
			l.PushBoolean(res.Status == Completed)
			if res.Status == Completed {
				l.PushString(string(res.ReturnValue))
			} else {
				l.PushString(res.Err.Error())
			}
			return 2
		})},
		{Name: "gas", Function: host(func(l *lua.State) int {
			l.PushInteger(int(rt.GasRemaining()))
			return 1
		})},
		{Name: "usegas", Function: host(func(l *lua.State) int {
			rt.UseGas(luaAmount(l, 1))
			return 0
		})},
	}
	l.NewTable()
	lua.SetFunctions(l, funcs, 0)
	l.SetGlobal("ctx")
}
