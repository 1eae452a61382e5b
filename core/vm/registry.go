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
	"fmt"
	"sort"
	"sync"

	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/params"
)

// Code tags select the runtime of a contract. The tag is the first byte of
// the deployed code.
const (
	NativeRuntime byte = 0x01
	LuaRuntime    byte = 0x02
)

// ConstructorName is the method table key of the constructor.
const ConstructorName = "init"

// HandlerFunc is the body of a contract entry point.
type HandlerFunc func(rt Runtime, args []types.Param) ([]byte, error)

// Method is an invocable entry point together with its parameter signature.
type Method struct {
	Params []types.ParamType
	Fn     HandlerFunc
}

// Module is a loaded contract. Its entry points are resolved once, at load
// time, and looked up by name; unknown names fail closed.
type Module interface {
	Runtime() byte
	Constructor() (*Method, bool)
	Method(name string) (*Method, bool)
	Methods() []string
}

// checkArgs verifies that args match the declared parameter list.
func checkArgs(name string, want []types.ParamType, args []types.Param) error {
	if len(args) != len(want) {
		return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrArgumentMismatch, name, len(want), len(args))
	}
	for i, arg := range args {
		if arg.Type != want[i] {
			return fmt.Errorf("%w: %s argument %d is %v, want %v", ErrArgumentMismatch, name, i, arg.Type, want[i])
		}
		if err := arg.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrArgumentMismatch, err)
		}
	}
	return nil
}

// Registry resolves deployed code into modules. Native contracts must be
// registered before the first execution.
type Registry struct {
	lock    sync.RWMutex
	natives map[string]*NativeContract
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{natives: make(map[string]*NativeContract)}
}

// RegisterNative makes a native contract deployable under its name.
func (r *Registry) RegisterNative(c *NativeContract) error {
	if err := c.validate(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.natives[c.Name]; ok {
		return fmt.Errorf("native contract %q already registered", c.Name)
	}
	r.natives[c.Name] = c
	return nil
}

// Natives returns the registered native contract names, sorted.
func (r *Registry) Natives() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	names := make([]string, 0, len(r.natives))
	for name := range r.natives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) native(name string) (*NativeContract, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.natives[name]
	return c, ok
}

// Load resolves code into a module. Every call returns a fresh module so that
// frames never share runtime state.
func (r *Registry) Load(cfg *params.Config, code []byte) (Module, error) {
	if len(code) < 2 {
		return nil, fmt.Errorf("%w: code too short", ErrInvalidCode)
	}
	if len(code) > cfg.MaxCodeSize {
		return nil, fmt.Errorf("%w: code size %d exceeds %d", ErrInvalidCode, len(code), cfg.MaxCodeSize)
	}
	switch code[0] {
	case NativeRuntime:
		c, ok := r.native(string(code[1:]))
		if !ok {
			return nil, fmt.Errorf("%w: unregistered native contract %q", ErrInvalidCode, code[1:])
		}
		return &nativeModule{c}, nil
	case LuaRuntime:
		return loadLua(cfg, string(code[1:]))
	}
	return nil, fmt.Errorf("%w: tag %#x", ErrUnknownRuntime, code[0])
}

// NativeCode returns the deployable code of a registered native contract.
func NativeCode(name string) []byte {
	return append([]byte{NativeRuntime}, name...)
}

// LuaCode returns the deployable code of a Lua source.
func LuaCode(source string) []byte {
	return append([]byte{LuaRuntime}, source...)
}
