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
	"math"
	"math/bits"
	"regexp"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/probeum/probe-sce/params"
)

// luaMeter bills the work of library functions implemented in Go, which the
// instruction hook sees as a single instruction. charge is bound to the load
// budget while the chunk is evaluated and to the invocation's gas afterwards.
type luaMeter struct {
	cfg    *params.Config
	charge func(l *lua.State, gas uint64)
}

func (m *luaMeter) words(l *lua.State, n uint64) {
	m.charge(l, m.cfg.Gas.LuaWordCost(n))
}

// elements bills n table slots visited or moved, at the price of one
// instruction each.
func (m *luaMeter) elements(l *lua.State, n uint64) {
	interval := uint64(m.cfg.LuaHookInterval)
	m.charge(l, (n+interval-1)/interval*m.cfg.Gas.LuaInstructions)
}

// limit rejects strings longer than the configured maximum.
func (m *luaMeter) limit(l *lua.State, size uint64) {
	if size > uint64(m.cfg.LuaMaxString) {
		lua.Errorf(l, "resulting string too large")
	}
}

// meterLibrary replaces the string and table functions whose cost depends on
// their arguments with metered versions.
func meterLibrary(l *lua.State, m *luaMeter) {
	l.Global("string")
	format := luaField(l, "format")
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "rep", Function: m.rep},
		{Name: "find", Function: m.find},
		{Name: "format", Function: m.format(format)},
		{Name: "byte", Function: m.scan(luaField(l, "byte"))},
		{Name: "lower", Function: m.scan(luaField(l, "lower"))},
		{Name: "upper", Function: m.scan(luaField(l, "upper"))},
		{Name: "reverse", Function: m.scan(luaField(l, "reverse"))},
	}, 0)
	l.Pop(1)

	l.Global("table")
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "concat", Function: m.concat},
		{Name: "insert", Function: m.insert(luaField(l, "insert"))},
		{Name: "remove", Function: m.remove(luaField(l, "remove"))},
		{Name: "sort", Function: m.sort(luaField(l, "sort"))},
		{Name: "unpack", Function: m.unpack(luaField(l, "unpack"))},
	}, 0)
	l.Pop(1)
}

// luaField returns the Go function stored under name in the table on top of
// the stack.
func luaField(l *lua.State, name string) lua.Function {
	l.Field(-1, name)
	fn := l.ToGoFunction(-1)
	l.Pop(1)
	if fn == nil {
		panic("lua library function " + name + " missing")
	}
	return fn
}

// scan bills a function that reads its whole first argument and produces at
// most a constant multiple of it.
func (m *luaMeter) scan(fn lua.Function) lua.Function {
	return func(l *lua.State) int {
		m.words(l, uint64(len(lua.CheckString(l, 1))))
		return fn(l)
	}
}

func (m *luaMeter) rep(l *lua.State) int {
	s, n, sep := lua.CheckString(l, 1), lua.CheckInteger(l, 2), lua.OptString(l, 3, "")
	if n <= 0 || len(s)+len(sep) == 0 {
		l.PushString("")
		return 1
	}
	size := uint64(math.MaxUint64)
	if hi, lo := bits.Mul64(uint64(n), uint64(len(s)+len(sep))); hi == 0 {
		size = lo - uint64(len(sep))
	}
	m.words(l, size)
	m.limit(l, size)

	var b strings.Builder
	b.Grow(int(size))
	b.WriteString(s)
	for ; n > 1; n-- {
		b.WriteString(sep)
		b.WriteString(s)
	}
	l.PushString(b.String())
	return 1
}

// find searches for a plain substring. Lua patterns are not available.
func (m *luaMeter) find(l *lua.State) int {
	s, p := lua.CheckString(l, 1), lua.CheckString(l, 2)
	init := lua.OptInteger(l, 3, 1)
	switch {
	case init < 0 && -init <= len(s):
		init = len(s) + init + 1
	case init < 1:
		init = 1
	case init > len(s)+1:
		l.PushNil()
		return 1
	}
	m.words(l, uint64(len(s)-init+1+len(p)))
	if start := strings.Index(s[init-1:], p); start >= 0 {
		l.PushInteger(start + init)
		l.PushInteger(start + init + len(p) - 1)
		return 2
	}
	l.PushNil()
	return 1
}

// format accepts only strings, numbers, booleans and nil as arguments, since
// every other value would be printed as its address.
func (m *luaMeter) format(fn lua.Function) lua.Function {
	return func(l *lua.State) int {
		size := uint64(len(lua.CheckString(l, 1)))
		for i := 2; i <= l.Top(); i++ {
			switch l.TypeOf(i) {
			case lua.TypeString:
				s, _ := l.ToString(i)
				size += uint64(len(s))
			case lua.TypeNumber, lua.TypeBoolean, lua.TypeNil:
			default:
				lua.ArgumentError(l, i, "cannot format a "+lua.TypeNameOf(l, i))
			}
		}
		m.words(l, size)
		n := fn(l)
		out, _ := l.ToString(-1)
		m.words(l, uint64(len(out)))
		m.limit(l, uint64(len(out)))
		return n
	}
}

func (m *luaMeter) concat(l *lua.State) int {
	lua.CheckType(l, 1, lua.TypeTable)
	sep := lua.OptString(l, 2, "")
	i := lua.OptInteger(l, 3, 1)
	last := 0
	if l.IsNoneOrNil(4) {
		last = lua.LengthEx(l, 1)
	} else {
		last = lua.CheckInteger(l, 4)
	}
	var (
		parts []string
		size  uint64
	)
	for k := i; k <= last; k++ {
		l.RawGetInt(1, k)
		s, ok := l.ToString(-1)
		if !ok {
			lua.Errorf(l, "invalid value (%s) at index %d in table for 'concat'", lua.TypeNameOf(l, -1), k)
		}
		l.Pop(1)
		if size += uint64(len(s)); k < last {
			size += uint64(len(sep))
		}
		m.limit(l, size)
		parts = append(parts, s)
	}
	m.elements(l, uint64(len(parts)))
	m.words(l, size)
	l.PushString(strings.Join(parts, sep))
	return 1
}

func (m *luaMeter) insert(fn lua.Function) lua.Function {
	return func(l *lua.State) int {
		lua.CheckType(l, 1, lua.TypeTable)
		if l.Top() == 3 {
			if e, pos := lua.LengthEx(l, 1)+1, lua.CheckInteger(l, 2); pos < e {
				m.elements(l, uint64(e-pos))
			}
		}
		return fn(l)
	}
}

func (m *luaMeter) remove(fn lua.Function) lua.Function {
	return func(l *lua.State) int {
		lua.CheckType(l, 1, lua.TypeTable)
		size := lua.LengthEx(l, 1)
		if pos := lua.OptInteger(l, 2, size); pos < size {
			m.elements(l, uint64(size-pos))
		}
		return fn(l)
	}
}

func (m *luaMeter) sort(fn lua.Function) lua.Function {
	return func(l *lua.State) int {
		lua.CheckType(l, 1, lua.TypeTable)
		if n := lua.LengthEx(l, 1); n > 1 {
			m.elements(l, uint64(n)*uint64(bits.Len(uint(n))))
		}
		return fn(l)
	}
}

func (m *luaMeter) unpack(fn lua.Function) lua.Function {
	return func(l *lua.State) int {
		lua.CheckType(l, 1, lua.TypeTable)
		i := lua.OptInteger(l, 2, 1)
		e := 0
		if l.IsNoneOrNil(3) {
			e = lua.LengthEx(l, 1)
		} else {
			e = lua.CheckInteger(l, 3)
		}
		if i <= e {
			m.elements(l, uint64(e)-uint64(i)+1)
		}
		return fn(l)
	}
}

// luaAddressPattern matches the way the interpreter prints reference values.
var luaAddressPattern = regexp.MustCompile(`\b(table|function|userdata|thread): 0x[0-9a-f]+`)

// luaError strips heap addresses from an interpreter error so that the same
// failure reads the same on every node.
func luaError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(luaAddressPattern.ReplaceAllString(err.Error(), "$1"))
}
