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
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/probeum/probe-sce/core/types"
)

var emptyCodeHash = crypto.Keccak256(nil)

// Storage is a set of slot values keyed by the raw slot key. A nil value marks
// a deleted slot.
type Storage map[string][]byte

func (s Storage) String() (str string) {
	for key, value := range s {
		str += fmt.Sprintf("%X : %X\n", key, value)
	}
	return
}

func (s Storage) Copy() Storage {
	cpy := make(Storage, len(s))
	for key, value := range s {
		cpy[key] = value
	}
	return cpy
}

// Unspent is the outpoint currently holding the funds of a contract.
type Unspent struct {
	OutPoint types.OutPoint
	Value    uint64
}

// Account is the consensus representation of a contract account. These
// records are what the root stores per address.
type Account struct {
	Address  common.Address
	Balance  *big.Int
	CodeHash []byte
	Unspent  *Unspent `rlp:"nil"`
}

// stateObject represents an account which is being modified within one
// StateDB.
//
// Reads fall through to the root and are cached in originStorage. Writes land
// in dirtyStorage and are journalled so that scopes can undo them.
type stateObject struct {
	address  common.Address
	addrHash common.Hash
	db       *StateDB

	balance  *uint256.Int
	codeHash []byte
	unspent  *Unspent

	code Code // contract code, which gets set when code is loaded

	originStorage Storage // Storage cache of entries read from the root
	dirtyStorage  Storage // Storage entries modified in this execution

	dirtyCode bool // true if the code was updated
	created   bool // true if the account did not exist in the root
}

// Code is contract code as stored in state.
type Code []byte

func (c Code) String() string {
	return fmt.Sprintf("%x", []byte(c))
}

// empty returns whether the account is considered empty.
func (s *stateObject) empty() bool {
	return s.balance.IsZero() && bytes.Equal(s.codeHash, emptyCodeHash) && s.unspent == nil
}

// newObject creates a state object from a stored account, or a fresh one when
// data is nil.
func newObject(db *StateDB, address common.Address, data *Account) *stateObject {
	obj := &stateObject{
		address:       address,
		addrHash:      crypto.Keccak256Hash(address[:]),
		db:            db,
		balance:       new(uint256.Int),
		codeHash:      emptyCodeHash,
		originStorage: make(Storage),
		dirtyStorage:  make(Storage),
	}
	if data == nil {
		obj.created = true
		return obj
	}
	if data.Balance != nil {
		obj.balance, _ = uint256.FromBig(data.Balance)
	}
	if len(data.CodeHash) > 0 {
		obj.codeHash = data.CodeHash
	}
	if data.Unspent != nil {
		cpy := *data.Unspent
		obj.unspent = &cpy
	}
	return obj
}

// account returns the stored representation of the object.
func (s *stateObject) account() *Account {
	acc := &Account{
		Address:  s.address,
		Balance:  s.balance.ToBig(),
		CodeHash: s.codeHash,
	}
	if s.unspent != nil {
		cpy := *s.unspent
		acc.Unspent = &cpy
	}
	return acc
}

func (s *stateObject) setError(err error) {
	s.db.setError(err)
}

// GetState retrieves a value from the account storage.
func (s *stateObject) GetState(key []byte) []byte {
	// If we have a dirty value for this state entry, return it
	if value, dirty := s.dirtyStorage[string(key)]; dirty {
		return value
	}
	return s.GetCommittedState(key)
}

// GetCommittedState retrieves a value as last committed to the root.
func (s *stateObject) GetCommittedState(key []byte) []byte {
	if value, cached := s.originStorage[string(key)]; cached {
		return value
	}
	if s.created {
		return nil
	}
	value, err := s.db.root.readStorage(s.addrHash, crypto.Keccak256Hash(key))
	if err != nil {
		s.setError(err)
		return nil
	}
	s.originStorage[string(key)] = value
	return value
}

// SetState updates a value in account storage. An empty value deletes the
// slot.
func (s *stateObject) SetState(key, value []byte) {
	if len(value) == 0 {
		value = nil
	}
	prev := s.GetState(key)
	if bytes.Equal(prev, value) {
		return
	}
	prevDirty, wasDirty := s.dirtyStorage[string(key)]
	s.db.journal.append(storageChange{
		account:   &s.address,
		key:       string(key),
		prevalue:  prevDirty,
		prevDirty: wasDirty,
	})
	s.setState(string(key), common.CopyBytes(value))
}

func (s *stateObject) setState(key string, value []byte) {
	s.dirtyStorage[key] = value
}

// AddBalance adds amount to s's balance.
func (s *stateObject) AddBalance(amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	s.SetBalance(new(uint256.Int).Add(s.balance, amount))
}

// SubBalance removes amount from s's balance. Callers check sufficiency.
func (s *stateObject) SubBalance(amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	s.SetBalance(new(uint256.Int).Sub(s.balance, amount))
}

func (s *stateObject) SetBalance(amount *uint256.Int) {
	s.db.journal.append(balanceChange{
		account: &s.address,
		prev:    new(uint256.Int).Set(s.balance),
	})
	s.setBalance(amount)
}

func (s *stateObject) setBalance(amount *uint256.Int) {
	s.balance = amount
}

// Address returns the address of the contract/account.
func (s *stateObject) Address() common.Address {
	return s.address
}

// Code returns the contract code associated with this object, if any.
func (s *stateObject) Code() []byte {
	if s.code != nil {
		return s.code
	}
	if bytes.Equal(s.codeHash, emptyCodeHash) {
		return nil
	}
	code, err := s.db.root.readCode(common.BytesToHash(s.codeHash))
	if err != nil {
		s.setError(fmt.Errorf("can't load code hash %x: %v", s.codeHash, err))
		return nil
	}
	if code == nil {
		s.setError(fmt.Errorf("missing code for hash %x", s.codeHash))
	}
	s.code = code
	return code
}

func (s *stateObject) SetCode(codeHash common.Hash, code []byte) {
	prevcode := s.Code()
	s.db.journal.append(codeChange{
		account:  &s.address,
		prevhash: s.codeHash,
		prevcode: prevcode,
	})
	s.setCode(codeHash, code)
}

func (s *stateObject) setCode(codeHash common.Hash, code []byte) {
	s.code = code
	s.codeHash = codeHash[:]
	s.dirtyCode = true
}

func (s *stateObject) SetUnspent(unspent *Unspent) {
	s.db.journal.append(unspentChange{
		account: &s.address,
		prev:    s.unspent,
	})
	s.setUnspent(unspent)
}

func (s *stateObject) setUnspent(unspent *Unspent) {
	s.unspent = unspent
}

func (s *stateObject) CodeHash() []byte {
	return s.codeHash
}

func (s *stateObject) Balance() *uint256.Int {
	return s.balance
}

func (s *stateObject) Unspent() *Unspent {
	return s.unspent
}
