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

package state

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/probeum/probe-sce/core/rawdb"
)

// DumpConfig is a set of options to control what portions of the state will be
// iterated and collected.
type DumpConfig struct {
	SkipCode    bool
	SkipStorage bool
	Max         uint64
}

// DumpCollector interface which the state trie calls during iteration
type DumpCollector interface {
	// OnRoot is called with the state root
	OnRoot(common.Hash)
	// OnAccount is called once for each account in the state
	OnAccount(common.Address, DumpAccount)
}

// DumpUnspent is the outpoint holding the funds of a contract.
type DumpUnspent struct {
	Hash  common.Hash `json:"hash"`
	Index uint32      `json:"index"`
	Value uint64      `json:"value"`
}

// DumpAccount represents an account in the state.
type DumpAccount struct {
	Balance  string            `json:"balance"`
	CodeHash hexutil.Bytes     `json:"codeHash"`
	Code     hexutil.Bytes     `json:"code,omitempty"`
	Unspent  *DumpUnspent      `json:"unspent,omitempty"`
	Storage  map[string]string `json:"storage,omitempty"`
}

// Dump represents the full dump in a collected format, as one large map.
type Dump struct {
	Root     string                         `json:"root"`
	Accounts map[common.Address]DumpAccount `json:"accounts"`
}

// OnRoot implements DumpCollector interface
func (d *Dump) OnRoot(root common.Hash) {
	d.Root = fmt.Sprintf("%x", root)
}

// OnAccount implements DumpCollector interface
func (d *Dump) OnAccount(addr common.Address, account DumpAccount) {
	d.Accounts[addr] = account
}

// iterativeDump is a DumpCollector-implementation which dumps output line-by-line iteratively.
type iterativeDump struct {
	*json.Encoder
}

// OnAccount implements DumpCollector interface
func (d iterativeDump) OnAccount(addr common.Address, account DumpAccount) {
	dumpAccount := &struct {
		DumpAccount
		Address common.Address `json:"address"`
	}{account, addr}
	d.Encode(dumpAccount)
}

// OnRoot implements DumpCollector interface
func (d iterativeDump) OnRoot(root common.Hash) {
	d.Encode(struct {
		Root common.Hash `json:"root"`
	}{root})
}

// DumpToCollector iterates the committed state according to the given options
// and inserts the items into a collector for aggregation or serialization.
func (r *Root) DumpToCollector(c DumpCollector, conf *DumpConfig) error {
	if conf == nil {
		conf = new(DumpConfig)
	}
	root, err := r.Hash()
	if err != nil {
		return err
	}
	c.OnRoot(root)

	// Records are decoded first so that nested reads do not run under the
	// iterator.
	var accounts []*Account
	r.lock.RLock()
	err = rawdb.IterateAccounts(r.db, func(_ common.Hash, data []byte) bool {
		acc := new(Account)
		if err := rlp.DecodeBytes(data, acc); err != nil {
			log.Error("Failed to decode state object", "err", err)
			return true
		}
		accounts = append(accounts, acc)
		return conf.Max == 0 || uint64(len(accounts)) < conf.Max
	})
	r.lock.RUnlock()
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		account := DumpAccount{
			Balance:  acc.Balance.String(),
			CodeHash: acc.CodeHash,
		}
		if acc.Unspent != nil {
			account.Unspent = &DumpUnspent{
				Hash:  acc.Unspent.OutPoint.Hash,
				Index: acc.Unspent.OutPoint.Index,
				Value: acc.Unspent.Value,
			}
		}
		if !conf.SkipCode && len(acc.CodeHash) > 0 {
			code, err := r.readCode(common.BytesToHash(acc.CodeHash))
			if err != nil {
				return err
			}
			account.Code = code
		}
		if !conf.SkipStorage {
			account.Storage = make(map[string]string)
			err := r.iterateStorage(crypto.Keccak256Hash(acc.Address[:]), func(entry *rawdb.StorageEntry) bool {
				account.Storage[hexutil.Encode(entry.Key)] = hexutil.Encode(entry.Value)
				return true
			})
			if err != nil {
				return err
			}
		}
		c.OnAccount(acc.Address, account)
	}
	return nil
}

// RawDump returns the entire committed state as a single large object.
func (r *Root) RawDump(conf *DumpConfig) (Dump, error) {
	dump := &Dump{
		Accounts: make(map[common.Address]DumpAccount),
	}
	err := r.DumpToCollector(dump, conf)
	return *dump, err
}

// Dump returns a JSON string representing the entire state as a single json-object
func (r *Root) Dump(conf *DumpConfig) ([]byte, error) {
	dump, err := r.RawDump(conf)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(dump, "", "    ")
}

// IterativeDump dumps out accounts as json-objects, delimited by linebreaks on stdout
func (r *Root) IterativeDump(conf *DumpConfig, output *json.Encoder) error {
	return r.DumpToCollector(iterativeDump{output}, conf)
}
