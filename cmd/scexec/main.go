// Copyright 2021 The go-probeum Authors
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

// scexec deploys and calls contracts against a local contract state.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/probeum/probe-sce/core"
	"github.com/probeum/probe-sce/core/rawdb"
	"github.com/probeum/probe-sce/core/state"
	"github.com/probeum/probe-sce/internal/testcontracts"
	"gopkg.in/urfave/cli.v1"
)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Directory of the contract state database",
	}
	backendFlag = cli.StringFlag{
		Name:  "db.engine",
		Usage: "Backing database implementation (leveldb, bolt or memory)",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "scexec"
	app.Usage = "smart contract execution engine"
	app.Flags = []cli.Flag{
		configFileFlag,
		dataDirFlag,
		backendFlag,
		verbosityFlag,
	}
	app.Commands = []cli.Command{
		createCommand,
		callCommand,
		decodeCommand,
		stateCommand,
		dumpConfigCommand,
	}
	app.Before = func(ctx *cli.Context) error {
		setupLogging(ctx.GlobalInt(verbosityFlag.Name))
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(verbosity int) {
	usecolor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	output := io.Writer(os.Stderr)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	handler := log.StreamHandler(output, log.TerminalFormat(usecolor))
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(verbosity), handler))
}

// Fatalf formats a message to standard error and exits the program.
// The message is also printed to standard output if standard error
// is redirected to a different file.
func Fatalf(format string, args ...interface{}) {
	w := io.MultiWriter(os.Stdout, os.Stderr)
	if runtime.GOOS == "windows" || runtime.GOOS == "openbsd" {
		// The SameFile check below doesn't work on Windows neither OpenBSD.
		// stdout is unlikely to get redirected though, so just print there.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		}
	}
	fmt.Fprintf(w, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}

// openRoot opens the contract state configured in cfg. The returned function
// closes the database.
func openRoot(cfg *scexecConfig) (*state.Root, func()) {
	db, err := rawdb.Open(cfg.Store.Backend, cfg.Store.Path, cfg.Store.Cache, cfg.Store.Handles)
	if err != nil {
		Fatalf("Failed to open database: %v", err)
	}
	return state.NewRoot(db), func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", "err", err)
		}
	}
}

// makeExecutor creates the contract executor. The native contracts known to
// the tool are the bundled test contracts.
func makeExecutor(cfg *scexecConfig) *core.ContractExecutor {
	return core.NewContractExecutor(&cfg.Engine, testcontracts.NewRegistry())
}
