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
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/probeum/probe-sce/core/types"
)

// Scope is a revocable view of a StateDB. The top-level scope belongs to one
// execution; every nested contract call opens a child of the scope it runs in.
//
// Writes of a child become part of its parent when the child commits, and
// vanish when it is discarded. Committing the top-level scope keeps its writes
// in the StateDB; StateDB.Commit flushes them to the Root. A scope accepts
// operations only while it is open and has no open child.
type Scope struct {
	db       *StateDB
	parent   *Scope
	child    *Scope
	revision int
	depth    int
	done     bool
}

// OpenScope opens the top-level scope of the working set. Only one top-level
// scope may be opened per StateDB.
func (s *StateDB) OpenScope() *Scope {
	scope := &Scope{db: s, revision: s.Snapshot()}
	if s.top != nil || s.committed {
		s.setError(fmt.Errorf("%w: top-level scope opened twice", ErrScopeMisuse))
		scope.done = true
		return scope
	}
	s.top = scope
	return scope
}

// OpenScope opens a child of s.
func (s *Scope) OpenScope() *Scope {
	child := &Scope{db: s.db, parent: s, revision: s.db.Snapshot(), depth: s.depth + 1}
	if !s.usable() {
		child.done = true
		return child
	}
	s.child = child
	return child
}

// Depth returns the nesting depth; the top-level scope has depth 0.
func (s *Scope) Depth() int {
	return s.depth
}

// StateDB returns the working set the scope belongs to.
func (s *Scope) StateDB() *StateDB {
	return s.db
}

func (s *Scope) usable() bool {
	if s.done || s.child != nil {
		s.db.setError(fmt.Errorf("%w: scope at depth %d used while closed or shadowed", ErrScopeMisuse, s.depth))
		return false
	}
	return true
}

// Commit closes the scope keeping its writes.
func (s *Scope) Commit() error {
	if !s.usable() {
		return s.db.Error()
	}
	s.done = true
	if s.parent != nil {
		s.parent.child = nil
	}
	return nil
}

// Discard closes the scope dropping every write made within it, including
// writes of committed children.
func (s *Scope) Discard() {
	if !s.usable() {
		return
	}
	s.done = true
	s.db.RevertToSnapshot(s.revision)
	if s.parent != nil {
		s.parent.child = nil
	}
}

func (s *Scope) GetCode(addr common.Address) []byte {
	if !s.usable() {
		return nil
	}
	return s.db.GetCode(addr)
}

// SetCode deploys code at a fresh address.
func (s *Scope) SetCode(addr common.Address, code []byte) error {
	if !s.usable() {
		return ErrScopeMisuse
	}
	return s.db.SetCode(addr, code)
}

// GetStorage returns the slot value or nil when absent.
func (s *Scope) GetStorage(addr common.Address, key []byte) []byte {
	if !s.usable() {
		return nil
	}
	return s.db.GetState(addr, key)
}

func (s *Scope) SetStorage(addr common.Address, key, value []byte) {
	if !s.usable() {
		return
	}
	s.db.SetState(addr, key, value)
}

func (s *Scope) GetBalance(addr common.Address) *uint256.Int {
	if !s.usable() {
		return new(uint256.Int)
	}
	return s.db.GetBalance(addr)
}

// TransferBalance moves amount between two accounts of the scope. It fails
// with ErrInsufficientFunds without side effects.
func (s *Scope) TransferBalance(from, to common.Address, amount *uint256.Int) error {
	if !s.usable() {
		return ErrScopeMisuse
	}
	return s.db.TransferBalance(from, to, amount)
}

// Debit removes funds that leave contract custody.
func (s *Scope) Debit(addr common.Address, amount *uint256.Int) error {
	if !s.usable() {
		return ErrScopeMisuse
	}
	return s.db.SubBalance(addr, amount)
}

// Credit adds funds entering contract custody.
func (s *Scope) Credit(addr common.Address, amount *uint256.Int) {
	if !s.usable() {
		return
	}
	s.db.AddBalance(addr, amount)
}

func (s *Scope) HasCode(addr common.Address) bool {
	if !s.usable() {
		return false
	}
	return s.db.HasCode(addr)
}

// AddTransfer records a transcript entry owned by the scope.
func (s *Scope) AddTransfer(entry types.InternalTransfer) {
	if !s.usable() {
		return
	}
	s.db.AddTransfer(entry)
}

// GetUnspent returns the outpoint holding the funds of a contract.
func (s *Scope) GetUnspent(addr common.Address) *Unspent {
	if !s.usable() {
		return nil
	}
	return s.db.GetUnspent(addr)
}

// SetUnspent re-points the funds of a contract at a new outpoint.
func (s *Scope) SetUnspent(addr common.Address, unspent *Unspent) {
	if !s.usable() {
		return
	}
	s.db.SetUnspent(addr, unspent)
}
