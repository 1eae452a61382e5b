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

// Package testcontracts contains native contracts used by tests and the
// command line tool.
package testcontracts

import (
	"encoding/binary"
	"errors"

	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/core/vm"
)

// Names under which the contracts are registered.
const (
	InfiniteLoop          = "InfiniteLoop"
	CallInfiniteLoop      = "CallInfiniteLoop"
	ThrowException        = "ThrowException"
	ConstructorInvalid    = "ConstructorInvalid"
	InvalidParameterCount = "InvalidParameterCount"
	ParameterTypeMismatch = "ParameterTypeMismatch"
	Counter               = "Counter"
	Vault                 = "Vault"
	Recursive             = "Recursive"
)

// ConstructorWork is the gas ConstructorInvalid burns before failing.
const ConstructorWork = 8

var errConstructor = errors.New("constructor rejected deployment")

func noop(vm.Runtime, []types.Param) ([]byte, error) { return nil, nil }

func method(fn vm.HandlerFunc, params ...types.ParamType) *vm.Method {
	return &vm.Method{Params: params, Fn: fn}
}

// Contracts returns fresh definitions of every test contract.
func Contracts() []*vm.NativeContract {
	return []*vm.NativeContract{
		{
			Name:        InfiniteLoop,
			Constructor: method(noop),
			Methods: map[string]*vm.Method{
				"Loop": method(func(rt vm.Runtime, _ []types.Param) ([]byte, error) {
					for {
						rt.UseGas(1)
					}
				}),
			},
		},
		{
			Name:        CallInfiniteLoop,
			Constructor: method(noop),
			Methods: map[string]*vm.Method{
				"CallInfiniteLoop": method(func(rt vm.Runtime, args []types.Param) ([]byte, error) {
					res := rt.Call(args[0].Address(), "Loop", 0, 0)
					if res.Status != vm.Completed {
						return nil, res.Err
					}
					return res.ReturnValue, nil
				}, types.ParamAddress),
			},
		},
		{
			Name:        ThrowException,
			Constructor: method(noop),
			Methods: map[string]*vm.Method{
				"ThrowException": method(func(vm.Runtime, []types.Param) ([]byte, error) {
					panic("exception thrown by contract")
				}),
			},
		},
		{
			Name: ConstructorInvalid,
			Constructor: method(func(rt vm.Runtime, _ []types.Param) ([]byte, error) {
				rt.UseGas(ConstructorWork)
				return nil, errConstructor
			}),
		},
		{
			Name:        InvalidParameterCount,
			Constructor: method(noop, types.ParamShort),
		},
		{
			Name:        ParameterTypeMismatch,
			Constructor: method(noop, types.ParamBool),
		},
		counter(),
		vault(),
		{
			Name:        Recursive,
			Constructor: method(noop),
			Methods: map[string]*vm.Method{
				"Recurse": method(func(rt vm.Runtime, _ []types.Param) ([]byte, error) {
					res := rt.Call(rt.Address(), "Recurse", 0, 0)
					if res.Status != vm.Completed {
						return nil, res.Err
					}
					return nil, nil
				}),
			},
		},
	}
}

var counterKey = []byte("count")

func counterValue(rt vm.Runtime) uint64 {
	raw := rt.GetStorage(counterKey)
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func counter() *vm.NativeContract {
	set := func(rt vm.Runtime, n uint64) []byte {
		raw := make([]byte, 8)
		binary.BigEndian.PutUint64(raw, n)
		rt.SetStorage(counterKey, raw)
		return raw
	}
	return &vm.NativeContract{
		Name: Counter,
		Constructor: method(func(rt vm.Runtime, args []types.Param) ([]byte, error) {
			set(rt, args[0].Uint64())
			return nil, nil
		}, types.ParamULong),
		Methods: map[string]*vm.Method{
			"Increment": method(func(rt vm.Runtime, _ []types.Param) ([]byte, error) {
				return set(rt, counterValue(rt)+1), nil
			}),
			"Get": method(func(rt vm.Runtime, _ []types.Param) ([]byte, error) {
				raw := make([]byte, 8)
				binary.BigEndian.PutUint64(raw, counterValue(rt))
				return raw, nil
			}),
			// IncrementThenFail writes and then reverts.
			"IncrementThenFail": method(func(rt vm.Runtime, _ []types.Param) ([]byte, error) {
				set(rt, counterValue(rt)+1)
				return nil, errors.New("increment rejected")
			}),
		},
	}
}

func vault() *vm.NativeContract {
	return &vm.NativeContract{
		Name:        Vault,
		Constructor: method(noop),
		Methods: map[string]*vm.Method{
			"Deposit": method(noop),
			"Withdraw": method(func(rt vm.Runtime, args []types.Param) ([]byte, error) {
				return nil, rt.Transfer(args[0].Address(), args[1].Uint64())
			}, types.ParamAddress, types.ParamULong),
			// Forward deposits amount into another vault and ignores the
			// outcome of the nested call.
			"Forward": method(func(rt vm.Runtime, args []types.Param) ([]byte, error) {
				res := rt.Call(args[0].Address(), "Deposit", args[1].Uint64(), 0)
				return []byte{byte(res.Status)}, nil
			}, types.ParamAddress, types.ParamULong),
			// ForwardOrFail deposits amount into another vault and reverts
			// when the nested call did.
			"ForwardOrFail": method(func(rt vm.Runtime, args []types.Param) ([]byte, error) {
				res := rt.Call(args[0].Address(), "Deposit", args[1].Uint64(), 0)
				if res.Status != vm.Completed {
					return nil, res.Err
				}
				return nil, nil
			}, types.ParamAddress, types.ParamULong),
			// Split pays two recipients.
			"Split": method(func(rt vm.Runtime, args []types.Param) ([]byte, error) {
				half := args[2].Uint64() / 2
				if err := rt.Transfer(args[0].Address(), half); err != nil {
					return nil, err
				}
				return nil, rt.Transfer(args[1].Address(), args[2].Uint64()-half)
			}, types.ParamAddress, types.ParamAddress, types.ParamULong),
		},
	}
}

// Register adds every test contract to r.
func Register(r *vm.Registry) error {
	for _, c := range Contracts() {
		if err := r.RegisterNative(c); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every test contract.
func NewRegistry() *vm.Registry {
	r := vm.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

// Code returns the deployable code of the named test contract.
func Code(name string) []byte {
	return vm.NativeCode(name)
}
