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
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	lru "github.com/hashicorp/golang-lru"
	"github.com/probeum/probe-sce/core/rawdb"
)

const (
	// Number of decoded accounts to keep in memory.
	accountCacheSize = 4096

	// Cache size granted for caching contract code.
	codeCacheSize = 16 * 1024 * 1024
)

var (
	accountCacheHitMeter  = metrics.NewRegisteredMeter("state/root/account/hit", nil)
	accountCacheMissMeter = metrics.NewRegisteredMeter("state/root/account/miss", nil)
	commitTimer           = metrics.NewRegisteredTimer("state/root/commit", nil)
)

// Root is the persistent contract state. Every top-level execution works on a
// StateDB opened from it, and only StateDB.Commit writes back.
//
// Root is safe for concurrent use. Readers never observe a partially applied
// commit.
type Root struct {
	db   rawdb.Database
	lock sync.RWMutex

	accounts  *lru.Cache
	codeCache *fastcache.Cache
}

// NewRoot creates a root on top of the given database.
func NewRoot(db rawdb.Database) *Root {
	accounts, _ := lru.New(accountCacheSize)
	return &Root{
		db:        db,
		accounts:  accounts,
		codeCache: fastcache.New(codeCacheSize),
	}
}

// DiskDB returns the backing database.
func (r *Root) DiskDB() rawdb.Database {
	return r.db
}

// Open creates a fresh working set on top of the root.
func (r *Root) Open() *StateDB {
	return newStateDB(r)
}

func (r *Root) readAccount(addr common.Address) (*Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if cached, ok := r.accounts.Get(addr); ok {
		accountCacheHitMeter.Mark(1)
		return cached.(*Account), nil
	}
	accountCacheMissMeter.Mark(1)

	enc, err := rawdb.ReadAccountRLP(r.db, crypto.Keccak256Hash(addr[:]))
	if err != nil {
		return nil, err
	}
	if len(enc) == 0 {
		return nil, nil
	}
	acc := new(Account)
	if err := rlp.DecodeBytes(enc, acc); err != nil {
		return nil, fmt.Errorf("corrupt account %x: %v", addr, err)
	}
	r.accounts.Add(addr, acc)
	return acc, nil
}

func (r *Root) readStorage(addrHash, keyHash common.Hash) ([]byte, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return rawdb.ReadStorage(r.db, addrHash, keyHash)
}

func (r *Root) readCode(hash common.Hash) ([]byte, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if code := r.codeCache.Get(nil, hash.Bytes()); len(code) > 0 {
		return code, nil
	}
	code, err := rawdb.ReadCode(r.db, hash)
	if err != nil {
		return nil, err
	}
	if len(code) > 0 {
		r.codeCache.Set(hash.Bytes(), code)
	}
	return code, nil
}

func (r *Root) iterateStorage(addrHash common.Hash, fn func(entry *rawdb.StorageEntry) bool) error {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return rawdb.IterateStorage(r.db, addrHash, func(_ common.Hash, entry *rawdb.StorageEntry) bool {
		return fn(entry)
	})
}

// commit writes the dirty objects in a single batch.
func (r *Root) commit(objects []*stateObject) error {
	defer func(start time.Time) { commitTimer.UpdateSince(start) }(time.Now())

	r.lock.Lock()
	defer r.lock.Unlock()

	batch := r.db.NewBatch()
	for _, obj := range objects {
		if obj.dirtyCode {
			rawdb.WriteCode(batch, common.BytesToHash(obj.codeHash), obj.code)
		}
		for key, value := range obj.dirtyStorage {
			keyHash := crypto.Keccak256Hash([]byte(key))
			if value == nil {
				rawdb.DeleteStorage(batch, obj.addrHash, keyHash)
				continue
			}
			rawdb.WriteStorage(batch, obj.addrHash, keyHash, []byte(key), value)
		}
		enc, err := rlp.EncodeToBytes(obj.account())
		if err != nil {
			return fmt.Errorf("encode account %x: %v", obj.address, err)
		}
		rawdb.WriteAccountRLP(batch, obj.addrHash, enc)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	for _, obj := range objects {
		r.accounts.Add(obj.address, obj.account())
		if obj.dirtyCode {
			r.codeCache.Set(obj.codeHash, obj.code)
		}
	}
	log.Trace("Committed contract state", "accounts", len(objects))
	return nil
}

// accountLeaf is the value hashed into the state root for every account.
type accountLeaf struct {
	Account     *Account
	StorageRoot common.Hash
}

// Hash computes a deterministic digest of the entire committed state. Accounts
// and slots are folded into stack tries in key hash order.
func (r *Root) Hash() (common.Hash, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var (
		accounts = trie.NewStackTrie(nil)
		iterErr  error
	)
	err := rawdb.IterateAccounts(r.db, func(addrHash common.Hash, data []byte) bool {
		acc := new(Account)
		if iterErr = rlp.DecodeBytes(data, acc); iterErr != nil {
			return false
		}
		storage := trie.NewStackTrie(nil)
		if iterErr = rawdb.IterateStorage(r.db, addrHash, func(keyHash common.Hash, entry *rawdb.StorageEntry) bool {
			return storage.TryUpdate(keyHash[:], entry.Value) == nil
		}); iterErr != nil {
			return false
		}
		var leaf []byte
		if leaf, iterErr = rlp.EncodeToBytes(&accountLeaf{Account: acc, StorageRoot: storage.Hash()}); iterErr != nil {
			return false
		}
		iterErr = accounts.TryUpdate(addrHash[:], leaf)
		return iterErr == nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	if iterErr != nil {
		return common.Hash{}, iterErr
	}
	return accounts.Hash(), nil
}
