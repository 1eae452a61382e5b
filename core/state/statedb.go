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

// Package state provides the contract state repository: a persistent root and
// per-execution working sets with nested, revocable scopes.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/probeum/probe-sce/core/rawdb"
	"github.com/probeum/probe-sce/core/types"
)

var (
	// ErrInsufficientFunds is returned when a transfer exceeds the balance of
	// the paying contract.
	ErrInsufficientFunds = errors.New("insufficient funds for transfer")

	// ErrCodeAlreadySet is returned when code is assigned to an address that
	// already carries code.
	ErrCodeAlreadySet = errors.New("contract code already set")

	// ErrScopeMisuse is recorded when a scope is used after it was closed or
	// while one of its children is still open.
	ErrScopeMisuse = errors.New("state scope misuse")

	// ErrCommitted is returned when a working set is used after Commit.
	ErrCommitted = errors.New("state already committed")
)

type revision struct {
	id           int
	journalIndex int
}

// StateDB is the working set of a single top-level execution. It caches the
// accounts it touched and journals every modification so that nested scopes
// can be discarded.
//
// A StateDB is not safe for concurrent use. Independent executions each open
// their own StateDB from the shared Root.
type StateDB struct {
	root *Root

	// This map holds 'live' objects, which will get modified while processing
	// an execution.
	stateObjects map[common.Address]*stateObject

	// DB error.
	// State objects are used by the execution engine which is unable to deal
	// with database-level errors. Any error that occurs during a database read
	// is memoized here and will eventually be returned by Commit.
	dbErr error

	// Addresses whose state was observed by this execution.
	reads mapset.Set

	// Value movements and nested call records in execution order.
	transcript []types.InternalTransfer

	// Journal of state modifications. This is the backbone of
	// Snapshot and RevertToSnapshot.
	journal        *journal
	validRevisions []revision
	nextRevisionId int

	top       *Scope
	committed bool
}

func newStateDB(root *Root) *StateDB {
	return &StateDB{
		root:         root,
		stateObjects: make(map[common.Address]*stateObject),
		reads:        mapset.NewThreadUnsafeSet(),
		journal:      newJournal(),
	}
}

// setError remembers the first non-nil error it is called with.
func (s *StateDB) setError(err error) {
	if s.dbErr == nil {
		s.dbErr = err
	}
}

// Error returns the memoized internal error, if any.
func (s *StateDB) Error() error {
	return s.dbErr
}

// Root returns the root the working set was opened from.
func (s *StateDB) Root() *Root {
	return s.root
}

// Exist reports whether the given account exists in state.
func (s *StateDB) Exist(addr common.Address) bool {
	return s.getStateObject(addr) != nil
}

// GetBalance retrieves the balance from the given address or 0 if object not
// found.
func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	if obj := s.getStateObject(addr); obj != nil {
		return new(uint256.Int).Set(obj.Balance())
	}
	return new(uint256.Int)
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.Code()
	}
	return nil
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	obj := s.getStateObject(addr)
	if obj == nil {
		return common.Hash{}
	}
	return common.BytesToHash(obj.CodeHash())
}

// HasCode reports whether code was deployed at the address.
func (s *StateDB) HasCode(addr common.Address) bool {
	obj := s.getStateObject(addr)
	return obj != nil && !bytes.Equal(obj.CodeHash(), emptyCodeHash)
}

// GetState retrieves a value from the given account's storage. Absent slots
// yield nil.
func (s *StateDB) GetState(addr common.Address, key []byte) []byte {
	if obj := s.getStateObject(addr); obj != nil {
		return common.CopyBytes(obj.GetState(key))
	}
	return nil
}

// GetUnspent returns the outpoint holding the contract's funds.
func (s *StateDB) GetUnspent(addr common.Address) *Unspent {
	if obj := s.getStateObject(addr); obj != nil && obj.Unspent() != nil {
		cpy := *obj.Unspent()
		return &cpy
	}
	return nil
}

/*
 * SETTERS
 */

// AddBalance adds amount to the account associated with addr.
func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	s.GetOrNewStateObject(addr).AddBalance(amount)
}

// SubBalance subtracts amount from the account associated with addr.
func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int) error {
	obj := s.getStateObject(addr)
	if obj == nil || obj.Balance().Lt(amount) {
		return ErrInsufficientFunds
	}
	obj.SubBalance(amount)
	return nil
}

// TransferBalance moves amount from one account to another. Nothing is
// modified when the payer cannot cover it.
func (s *StateDB) TransferBalance(from, to common.Address, amount *uint256.Int) error {
	if err := s.SubBalance(from, amount); err != nil {
		return err
	}
	s.AddBalance(to, amount)
	return nil
}

// SetCode assigns code to a fresh address. Code is immutable once set.
func (s *StateDB) SetCode(addr common.Address, code []byte) error {
	obj := s.GetOrNewStateObject(addr)
	if !bytes.Equal(obj.CodeHash(), emptyCodeHash) {
		return ErrCodeAlreadySet
	}
	obj.SetCode(crypto.Keccak256Hash(code), common.CopyBytes(code))
	return nil
}

func (s *StateDB) SetState(addr common.Address, key, value []byte) {
	s.GetOrNewStateObject(addr).SetState(key, value)
}

func (s *StateDB) SetUnspent(addr common.Address, unspent *Unspent) {
	s.GetOrNewStateObject(addr).SetUnspent(unspent)
}

// AddTransfer appends an entry to the internal transaction transcript.
func (s *StateDB) AddTransfer(entry types.InternalTransfer) {
	s.journal.append(transcriptChange{})
	s.transcript = append(s.transcript, entry)
}

// Transcript returns the entries that survived all discarded scopes, in the
// order they were recorded.
func (s *StateDB) Transcript() []types.InternalTransfer {
	out := make([]types.InternalTransfer, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// ForEachStorage iterates over the committed and dirty storage of an account.
// Committed slots are visited first, in key hash order.
func (s *StateDB) ForEachStorage(addr common.Address, cb func(key, value []byte) bool) error {
	obj := s.getStateObject(addr)
	if obj == nil {
		return nil
	}
	var committed [][]byte
	if !obj.created {
		err := s.root.iterateStorage(obj.addrHash, func(entry *rawdb.StorageEntry) bool {
			committed = append(committed, entry.Key)
			return true
		})
		if err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(committed))
	for _, key := range committed {
		seen[string(key)] = struct{}{}
		value := obj.GetState(key)
		if value == nil {
			continue
		}
		if !cb(key, value) {
			return nil
		}
	}
	keys := make([]string, 0, len(obj.dirtyStorage))
	for key, value := range obj.dirtyStorage {
		if _, ok := seen[key]; !ok && value != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !cb([]byte(key), obj.dirtyStorage[key]) {
			return nil
		}
	}
	return nil
}

// getStateObject retrieves a state object given by the address, returning nil
// if the object is not found. Every lookup lands in the read set.
func (s *StateDB) getStateObject(addr common.Address) *stateObject {
	s.reads.Add(addr)

	// Prefer live objects if any is available
	if obj := s.stateObjects[addr]; obj != nil {
		return obj
	}
	data, err := s.root.readAccount(addr)
	if err != nil {
		s.setError(fmt.Errorf("getStateObject (%x) error: %w", addr.Bytes(), err))
		return nil
	}
	if data == nil {
		return nil
	}
	obj := newObject(s, addr, data)
	s.stateObjects[addr] = obj
	return obj
}

// GetOrNewStateObject retrieves a state object or create a new state object if
// nil.
func (s *StateDB) GetOrNewStateObject(addr common.Address) *stateObject {
	obj := s.getStateObject(addr)
	if obj == nil {
		obj = newObject(s, addr, nil)
		s.journal.append(createObjectChange{account: &addr})
		s.stateObjects[addr] = obj
	}
	return obj
}

// Snapshot returns an identifier for the current revision of the state.
func (s *StateDB) Snapshot() int {
	id := s.nextRevisionId
	s.nextRevisionId++
	s.validRevisions = append(s.validRevisions, revision{id, s.journal.length()})
	return id
}

// RevertToSnapshot reverts all state changes made since the given revision.
func (s *StateDB) RevertToSnapshot(revid int) {
	// Find the snapshot in the stack of valid snapshots.
	idx := sort.Search(len(s.validRevisions), func(i int) bool {
		return s.validRevisions[i].id >= revid
	})
	if idx == len(s.validRevisions) || s.validRevisions[idx].id != revid {
		s.setError(fmt.Errorf("%w: revision id %v cannot be reverted", ErrScopeMisuse, revid))
		return
	}
	snapshot := s.validRevisions[idx].journalIndex

	// Replay the journal to undo changes and remove invalidated snapshots
	s.journal.revert(s, snapshot)
	s.validRevisions = s.validRevisions[:idx]
}

// ReadSet returns the addresses observed by the execution, sorted.
func (s *StateDB) ReadSet() []common.Address {
	return sortedAddresses(s.reads)
}

// WriteSet returns the addresses carrying surviving modifications, sorted.
func (s *StateDB) WriteSet() []common.Address {
	writes := mapset.NewThreadUnsafeSet()
	for addr := range s.journal.dirties {
		writes.Add(addr)
	}
	return sortedAddresses(writes)
}

func sortedAddresses(set mapset.Set) []common.Address {
	out := make([]common.Address, 0, set.Cardinality())
	for item := range set.Iter() {
		out = append(out, item.(common.Address))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Commit writes the surviving modifications to the root atomically. Any
// memoized internal error aborts the commit. The top-level scope, if one was
// opened, must be closed first.
func (s *StateDB) Commit() error {
	if s.committed {
		return ErrCommitted
	}
	if s.dbErr != nil {
		return fmt.Errorf("commit aborted due to earlier error: %w", s.dbErr)
	}
	if s.top != nil && !s.top.done {
		return fmt.Errorf("%w: commit with open scope", ErrScopeMisuse)
	}
	var objects []*stateObject
	for _, addr := range s.WriteSet() {
		obj := s.stateObjects[addr]
		if obj == nil || (obj.created && obj.empty()) {
			continue
		}
		objects = append(objects, obj)
	}
	if err := s.root.commit(objects); err != nil {
		return err
	}
	s.committed = true
	return nil
}
