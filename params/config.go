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

package params

import (
	"errors"
	"fmt"
)

// Config is the engine configuration shared by every node validating the same
// chain. Changing any value is a consensus change.
type Config struct {
	VMVersion           uint32 `env:"VM_VERSION"`
	MaxCallDepth        int    `env:"MAX_CALL_DEPTH"`
	MaxCodeSize         int    `env:"MAX_CODE_SIZE"`
	LuaLoadInstructions int    `env:"LUA_LOAD_INSTRUCTIONS"`
	LuaHookInterval     int    `env:"LUA_HOOK_INTERVAL"`
	LuaMaxString        int    `env:"LUA_MAX_STRING"`

	Gas GasTable `toml:",omitempty"`
}

// DefaultConfig contains the default engine settings.
var DefaultConfig = Config{
	VMVersion:           1,
	MaxCallDepth:        MaxCallDepth,
	MaxCodeSize:         MaxCodeSize,
	LuaLoadInstructions: LuaLoadInstructions,
	LuaHookInterval:     LuaHookInterval,
	LuaMaxString:        LuaMaxString,
	Gas:                 DefaultGasTable,
}

var errInvalidConfig = errors.New("invalid engine config")

// Sanitize checks the config for values that would make execution undefined.
func (c *Config) Sanitize() error {
	switch {
	case c.MaxCallDepth <= 0:
		return fmt.Errorf("%w: max call depth %d", errInvalidConfig, c.MaxCallDepth)
	case c.MaxCodeSize <= 0:
		return fmt.Errorf("%w: max code size %d", errInvalidConfig, c.MaxCodeSize)
	case c.LuaLoadInstructions <= 0 || c.LuaHookInterval <= 0:
		return fmt.Errorf("%w: lua budgets %d/%d", errInvalidConfig, c.LuaLoadInstructions, c.LuaHookInterval)
	case c.LuaMaxString <= 0:
		return fmt.Errorf("%w: lua string limit %d", errInvalidConfig, c.LuaMaxString)
	case c.Gas.Base == 0 || c.Gas.LuaWord == 0:
		return fmt.Errorf("%w: zero base or lua word gas", errInvalidConfig)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("{VMVersion: %d MaxCallDepth: %d MaxCodeSize: %d BaseGas: %d}",
		c.VMVersion, c.MaxCallDepth, c.MaxCodeSize, c.Gas.Base)
}
