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
	"strings"

	mapset "github.com/deckarep/golang-set"
	"github.com/probeum/probe-sce/core/vm"
	"github.com/probeum/probe-sce/params"
)

// Identifiers a Lua contract may not mention. The sandbox removes most of them
// already; rejecting them up front reports the problem at creation instead of
// on the first call that reaches them.
var luaForbidden = []string{
	"collectgarbage", "coroutine", "debug", "dofile", "io", "load", "loadfile",
	"loadstring", "math.random", "math.randomseed", "next", "os", "package",
	"pairs", "pcall", "print", "require", "tostring", "xpcall",
}

// Validator checks code submitted for creation before it is deployed.
type Validator struct {
	cfg       *params.Config
	registry  *vm.Registry
	forbidden mapset.Set
}

// NewValidator creates a validator for code resolved by registry.
func NewValidator(cfg *params.Config, registry *vm.Registry) *Validator {
	forbidden := mapset.NewSet()
	for _, name := range luaForbidden {
		forbidden.Add(name)
	}
	return &Validator{cfg: cfg, registry: registry, forbidden: forbidden}
}

// Validate reports why code cannot be deployed, or nil.
func (v *Validator) Validate(code []byte) error {
	if len(code) > v.cfg.MaxCodeSize {
		return fmt.Errorf("%w: size %d exceeds %d", ErrCodeRejected, len(code), v.cfg.MaxCodeSize)
	}
	if len(code) > 0 && code[0] == vm.LuaRuntime {
		if err := v.validateLua(string(code[1:])); err != nil {
			return err
		}
	}
	module, err := v.registry.Load(v.cfg, code)
	if err != nil {
		return err
	}
	if _, ok := module.Constructor(); !ok {
		return fmt.Errorf("%w: no constructor", ErrCodeRejected)
	}
	return nil
}

func (v *Validator) validateLua(source string) error {
	idents, concat := luaIdentifiers(source)
	if concat {
		return fmt.Errorf("%w: concatenation operator, use table.concat", ErrCodeRejected)
	}
	for _, ident := range idents {
		if v.forbidden.Contains(ident) {
			return fmt.Errorf("%w: forbidden identifier %q", ErrCodeRejected, ident)
		}
		if i := strings.IndexByte(ident, '.'); i > 0 && v.forbidden.Contains(ident[:i]) {
			return fmt.Errorf("%w: forbidden identifier %q", ErrCodeRejected, ident[:i])
		}
	}
	return nil
}

// luaIdentifiers returns the names referenced by source, field accesses
// included as dotted paths, and whether source uses the concatenation
// operator. Comments and string literals are skipped. Fields reached through
// another field (a.b.c) are reported as a.b only.
func luaIdentifiers(source string) (idents []string, concat bool) {
	var i int
	isStart := func(c byte) bool { return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
	isPart := func(c byte) bool { return isStart(c) || c >= '0' && c <= '9' }
	word := func() string {
		start := i
		for i < len(source) && isPart(source[i]) {
			i++
		}
		return source[start:i]
	}
	for i < len(source) {
		c := source[i]
		switch {
		case strings.HasPrefix(source[i:], "--[["):
			i = skipPast(source, i+4, "]]")
		case strings.HasPrefix(source[i:], "--"):
			i = skipPast(source, i+2, "\n")
		case strings.HasPrefix(source[i:], "[["):
			i = skipPast(source, i+2, "]]")
		case c == '"' || c == '\'':
			i++
			for i < len(source) && source[i] != c {
				if source[i] == '\\' {
					i++
				}
				i++
			}
			i++
		case c >= '0' && c <= '9':
			for i < len(source) && (isPart(source[i]) || source[i] == '.') {
				i++
			}
		case strings.HasPrefix(source[i:], "..."):
			i += 3
		case strings.HasPrefix(source[i:], ".."):
			concat = true
			i += 2
		case isStart(c):
			// Names after a field access belong to the value on the left.
			if i > 0 && (source[i-1] == ':' || source[i-1] == '.' && (i < 2 || source[i-2] != '.')) {
				word()
				continue
			}
			ident := word()
			if i+1 < len(source) && source[i] == '.' && isStart(source[i+1]) {
				i++
				ident += "." + word()
			}
			idents = append(idents, ident)
		default:
			i++
		}
	}
	return idents, concat
}

func skipPast(source string, from int, end string) int {
	if from > len(source) {
		return len(source)
	}
	n := strings.Index(source[from:], end)
	if n < 0 {
		return len(source)
	}
	return from + n + len(end)
}
