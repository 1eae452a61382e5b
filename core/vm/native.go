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
	"sort"
)

// NativeContract is a contract implemented in Go. The constructor and methods
// form its capability table.
type NativeContract struct {
	Name        string
	Constructor *Method
	Methods     map[string]*Method
}

func (c *NativeContract) validate() error {
	switch {
	case c.Name == "":
		return errors.New("native contract without name")
	case c.Constructor == nil || c.Constructor.Fn == nil:
		return fmt.Errorf("native contract %q has no constructor", c.Name)
	}
	for name, m := range c.Methods {
		if name == "" || name == ConstructorName || m == nil || m.Fn == nil {
			return fmt.Errorf("native contract %q has invalid method %q", c.Name, name)
		}
	}
	return nil
}

type nativeModule struct {
	contract *NativeContract
}

func (m *nativeModule) Runtime() byte { return NativeRuntime }

func (m *nativeModule) Constructor() (*Method, bool) {
	return m.contract.Constructor, true
}

func (m *nativeModule) Method(name string) (*Method, bool) {
	method, ok := m.contract.Methods[name]
	return method, ok
}

func (m *nativeModule) Methods() []string {
	names := make([]string, 0, len(m.contract.Methods))
	for name := range m.contract.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
