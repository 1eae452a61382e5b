// Copyright 2017 The go-probeum Authors
// This file is part of go-probeum.
//
// go-probeum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-probeum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-probeum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/log"
	"github.com/naoina/toml"
	"github.com/probeum/probe-sce/core/rawdb"
	"github.com/probeum/probe-sce/params"
	"gopkg.in/urfave/cli.v1"
)

var (
	dumpConfigCommand = cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "[file]",
		Description: `The dumpconfig command shows configuration values after the config file, environment and flags were applied.`,
	}

	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type storeConfig struct {
	Backend string `env:"BACKEND"`
	Path    string `toml:",omitempty" env:"PATH"`
	Cache   int    `env:"CACHE"`
	Handles int    `env:"HANDLES"`
}

type execConfig struct {
	Sender   string `env:"SENDER"`
	GasPrice uint64 `env:"GAS_PRICE"`
	GasLimit uint64 `env:"GAS_LIMIT"`
	Workers  int    `env:"WORKERS"`
}

type scexecConfig struct {
	Engine params.Config `envPrefix:"ENGINE_"`
	Store  storeConfig   `envPrefix:"STORE_"`
	Exec   execConfig    `envPrefix:"EXEC_"`
}

func defaultConfig() scexecConfig {
	return scexecConfig{
		Engine: params.DefaultConfig,
		Store: storeConfig{
			Backend: rawdb.BackendLevelDB,
			Path:    "scexec-data",
			Cache:   16,
			Handles: 16,
		},
		Exec: execConfig{
			Sender:   "0x0000000000000000000000000000000000000001",
			GasPrice: 1,
			GasLimit: 100_000,
			Workers:  0,
		},
	}
}

func loadConfig(file string, cfg *scexecConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads the configuration: defaults, then the config file, then
// SCE_ prefixed environment variables, then flags.
func makeConfig(ctx *cli.Context) scexecConfig {
	cfg := defaultConfig()

	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			Fatalf("%v", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SCE_"}); err != nil {
		Fatalf("Failed to apply environment: %v", err)
	}
	applyStoreFlags(ctx, &cfg.Store)
	applyExecFlags(ctx, &cfg.Exec)

	if err := cfg.Engine.Sanitize(); err != nil {
		Fatalf("%v", err)
	}
	log.Debug("Loaded configuration", "engine", cfg.Engine.String(), "backend", cfg.Store.Backend)
	return cfg
}

func applyStoreFlags(ctx *cli.Context, cfg *storeConfig) {
	if ctx.GlobalIsSet(backendFlag.Name) {
		cfg.Backend = ctx.GlobalString(backendFlag.Name)
	}
	if ctx.GlobalIsSet(dataDirFlag.Name) {
		cfg.Path = ctx.GlobalString(dataDirFlag.Name)
	}
}

func applyExecFlags(ctx *cli.Context, cfg *execConfig) {
	if ctx.IsSet(senderFlag.Name) {
		cfg.Sender = ctx.String(senderFlag.Name)
	}
	if ctx.IsSet(gasPriceFlag.Name) {
		cfg.GasPrice = ctx.Uint64(gasPriceFlag.Name)
	}
	if ctx.IsSet(gasLimitFlag.Name) {
		cfg.GasLimit = ctx.Uint64(gasLimitFlag.Name)
	}
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	dump.Write(out)

	return nil
}
