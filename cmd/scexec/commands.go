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

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/probeum/probe-sce/core"
	"github.com/probeum/probe-sce/core/rawdb"
	"github.com/probeum/probe-sce/core/state"
	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/core/vm"
	"gopkg.in/urfave/cli.v1"
)

var (
	senderFlag = cli.StringFlag{
		Name:  "sender",
		Usage: "Address signing the transaction",
	}
	amountFlag = cli.Uint64Flag{
		Name:  "amount",
		Usage: "Value attached to the contract output",
	}
	gasPriceFlag = cli.Uint64Flag{
		Name:  "gasprice",
		Usage: "Price paid per unit of gas",
	}
	gasLimitFlag = cli.Uint64Flag{
		Name:  "gas",
		Usage: "Gas limit of the execution",
	}
	heightFlag = cli.Uint64Flag{
		Name:  "height",
		Usage: "Number of the block the transaction executes in",
		Value: 1,
	}
	dumpFlag = cli.BoolFlag{
		Name:  "dump",
		Usage: "Dump the decoded structure",
	}
	jsonFlag = cli.BoolFlag{
		Name:  "json",
		Usage: "Print the state as JSON lines",
	}
	txFlags = []cli.Flag{senderFlag, amountFlag, gasPriceFlag, gasLimitFlag, heightFlag}

	createCommand = cli.Command{
		Action:    create,
		Name:      "create",
		Usage:     "Deploy a contract",
		ArgsUsage: "<native:Name | file.lua> [type#value...]",
		Flags:     txFlags,
		Description: `
Deploys a bundled native contract or a Lua source file and runs its
constructor with the given arguments, e.g.

    scexec create native:Counter ulong#5`,
	}
	callCommand = cli.Command{
		Action:    call,
		Name:      "call",
		Usage:     "Call a contract method",
		ArgsUsage: "<address> <method> [type#value...]",
		Flags:     txFlags,
	}
	decodeCommand = cli.Command{
		Action:    decode,
		Name:      "decode",
		Usage:     "Decode a contract descriptor script",
		ArgsUsage: "<hex script>",
		Flags:     []cli.Flag{dumpFlag},
	}
	stateCommand = cli.Command{
		Action: dumpState,
		Name:   "state",
		Usage:  "Show the contract state",
		Flags:  []cli.Flag{jsonFlag},
	}
)

func loadCode(arg string) ([]byte, error) {
	if name := strings.TrimPrefix(arg, "native:"); name != arg {
		return vm.NativeCode(name), nil
	}
	src, err := os.ReadFile(arg)
	if err != nil {
		return nil, err
	}
	return vm.LuaCode(string(src)), nil
}

func create(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("missing contract code")
	}
	cfg := makeConfig(ctx)
	code, err := loadCode(ctx.Args().First())
	if err != nil {
		return err
	}
	args, err := types.ParseParams(ctx.Args().Tail())
	if err != nil {
		return err
	}
	desc := types.NewCreateDescriptor(cfg.Engine.VMVersion, code, cfg.Exec.GasPrice, cfg.Exec.GasLimit, args...)
	return execute(ctx, &cfg, desc)
}

func call(ctx *cli.Context) error {
	if ctx.NArg() < 2 {
		return fmt.Errorf("need contract address and method")
	}
	cfg := makeConfig(ctx)
	if !common.IsHexAddress(ctx.Args().Get(0)) {
		return fmt.Errorf("invalid contract address %q", ctx.Args().Get(0))
	}
	to := common.HexToAddress(ctx.Args().Get(0))
	args, err := types.ParseParams(ctx.Args()[2:])
	if err != nil {
		return err
	}
	desc := types.NewCallDescriptor(cfg.Engine.VMVersion, to, ctx.Args().Get(1), cfg.Exec.GasPrice, cfg.Exec.GasLimit, args...)
	return execute(ctx, &cfg, desc)
}

// execute wraps desc into a transaction, processes it as a single transaction
// block and prints the result.
func execute(ctx *cli.Context, cfg *scexecConfig, desc *types.CallDescriptor) error {
	if !common.IsHexAddress(cfg.Exec.Sender) {
		return fmt.Errorf("invalid sender %q", cfg.Exec.Sender)
	}
	script, err := types.EncodeDescriptor(desc)
	if err != nil {
		return err
	}
	root, closeDB := openRoot(cfg)
	defer closeDB()

	// Fund the transaction from an outpoint unique to the current state.
	tx := types.NewTransaction()
	tx.AddInput(types.OutPoint{Hash: rawdb.ReadHeadStateRoot(root.DiskDB())})
	tx.AddOutput(ctx.Uint64(amountFlag.Name), script)
	signed := &types.SignedTx{
		Tx:         tx,
		Sender:     common.HexToAddress(cfg.Exec.Sender),
		MempoolFee: desc.GasLimit * desc.GasPrice,
	}
	block := types.NewBlock(types.BlockHeader{Number: ctx.Uint64(heightFlag.Name)}, signed)

	processor := core.NewBlockProcessor(root, makeExecutor(cfg), cfg.Exec.Workers)
	defer processor.Stop()
	results, err := processor.Process(block)
	if err != nil {
		return err
	}
	printResult(tx.Hash(), results[0])
	return nil
}

func printResult(hash common.Hash, res *types.ExecutionResult) {
	outcome := color.New(color.FgGreen, color.Bold)
	if res.Failed() {
		outcome = color.New(color.FgRed, color.Bold)
	}
	fmt.Printf("Transaction %s: %s\n", hash.Hex(), outcome.Sprint(res.Outcome))
	fmt.Printf("Gas:         %d / %d (price %d, fee %d)\n", res.GasConsumed, res.GasLimit, res.GasPrice, res.Fee)
	if res.NewContractAddress != nil {
		fmt.Printf("Contract:    %s\n", res.NewContractAddress.Hex())
	}
	if len(res.ReturnValue) > 0 {
		fmt.Printf("Return:      %s\n", hexutil.Encode(res.ReturnValue))
	}
	if res.Err != nil {
		fmt.Printf("Error:       %s\n", color.YellowString(res.Err.Error()))
	}
	for _, entry := range res.Transcript {
		fmt.Printf("Internal:    %v\n", entry)
	}

	outputs := res.Outputs()
	if len(outputs) == 0 {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Output", "Value", "Destination"})
	for i, out := range outputs {
		dest := "unknown"
		if addr, ok := types.ScriptDestination(out.Script); ok {
			dest = addr.Hex()
			if op, ok := types.ScriptOpcode(out.Script); ok && op == types.OpInternalTransfer {
				dest += " (contract)"
			}
		}
		table.Append([]string{strconv.Itoa(i), strconv.FormatUint(out.Value, 10), dest})
	}
	table.Render()
}

func decode(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("need exactly one script")
	}
	script, err := hexutil.Decode(ctx.Args().First())
	if err != nil {
		return err
	}
	desc, err := types.DecodeDescriptor(script)
	if err != nil {
		return err
	}
	if ctx.Bool(dumpFlag.Name) {
		spew.Dump(desc)
		return nil
	}
	fmt.Printf("Opcode:    %v\n", desc.Opcode)
	fmt.Printf("VMVersion: %d\n", desc.VMVersion)
	fmt.Printf("GasPrice:  %d\n", desc.GasPrice)
	fmt.Printf("GasLimit:  %d\n", desc.GasLimit)
	if desc.Create != nil {
		fmt.Printf("Code:      %d bytes\n", len(desc.Create.Code))
	} else {
		fmt.Printf("Contract:  %s\n", desc.Call.Address.Hex())
		fmt.Printf("Method:    %s\n", desc.Call.Method)
	}
	for i, p := range desc.Params() {
		fmt.Printf("Param %d:   %v\n", i, p)
	}
	return nil
}

func dumpState(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	root, closeDB := openRoot(&cfg)
	defer closeDB()

	conf := &state.DumpConfig{SkipCode: true}
	if ctx.Bool(jsonFlag.Name) {
		return root.IterativeDump(conf, json.NewEncoder(os.Stdout))
	}
	dump, err := root.RawDump(conf)
	if err != nil {
		return err
	}
	fmt.Printf("State root: %s\n", dump.Root)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Address", "Balance", "Code hash", "Unspent", "Slots"})
	addrs := make([]common.Address, 0, len(dump.Accounts))
	for addr := range dump.Accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
	for _, addr := range addrs {
		acc := dump.Accounts[addr]
		unspent := "-"
		if acc.Unspent != nil {
			unspent = fmt.Sprintf("%x:%d", acc.Unspent.Hash[:8], acc.Unspent.Index)
		}
		table.Append([]string{addr.Hex(), acc.Balance, acc.CodeHash.String(), unspent, strconv.Itoa(len(acc.Storage))})
	}
	table.Render()
	return nil
}
