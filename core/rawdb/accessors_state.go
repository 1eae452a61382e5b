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

package rawdb

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
)

// StorageEntry is the stored form of one storage slot. The preimage of the key
// is kept so that state dumps can show it.
type StorageEntry struct {
	Key   []byte
	Value []byte
}

// ReadHeadStateRoot retrieves the root of the latest committed state.
func ReadHeadStateRoot(db ethdb.KeyValueReader) common.Hash {
	data, _ := db.Get(headStateRootKey)
	return common.BytesToHash(data)
}

// WriteHeadStateRoot stores the root of the latest committed state.
func WriteHeadStateRoot(db ethdb.KeyValueWriter, root common.Hash) {
	if err := db.Put(headStateRootKey, root.Bytes()); err != nil {
		log.Crit("Failed to store state root", "err", err)
	}
}

// get retrieves the value stored under key, or nil if there is none. Backend
// failures are reported, not mistaken for an absent key.
func get(db ethdb.KeyValueReader, key []byte) ([]byte, error) {
	ok, err := db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return db.Get(key)
}

// ReadAccountRLP retrieves the encoded account record of the provided address
// hash, or nil if there is none.
func ReadAccountRLP(db ethdb.KeyValueReader, addrHash common.Hash) ([]byte, error) {
	data, err := get(db, accountKey(addrHash))
	if err != nil {
		return nil, fmt.Errorf("read account %x: %w", addrHash, err)
	}
	return data, nil
}

// WriteAccountRLP stores an encoded account record.
func WriteAccountRLP(db ethdb.KeyValueWriter, addrHash common.Hash, data []byte) {
	if err := db.Put(accountKey(addrHash), data); err != nil {
		log.Crit("Failed to store account", "err", err)
	}
	accountWriteCounter.Inc(1)
}

// ReadStorage retrieves the value of a storage slot, or nil if the slot is
// empty.
func ReadStorage(db ethdb.KeyValueReader, addrHash, keyHash common.Hash) ([]byte, error) {
	data, err := get(db, storageKey(addrHash, keyHash))
	if err != nil {
		return nil, fmt.Errorf("read storage %x/%x: %w", addrHash, keyHash, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entry StorageEntry
	if err := rlp.DecodeBytes(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt storage entry %x/%x: %v", addrHash, keyHash, err)
	}
	return entry.Value, nil
}

// WriteStorage stores a storage slot.
func WriteStorage(db ethdb.KeyValueWriter, addrHash, keyHash common.Hash, key, value []byte) {
	data, err := rlp.EncodeToBytes(&StorageEntry{Key: key, Value: value})
	if err != nil {
		log.Crit("Failed to encode storage entry", "err", err)
	}
	if err := db.Put(storageKey(addrHash, keyHash), data); err != nil {
		log.Crit("Failed to store storage entry", "err", err)
	}
	storageWriteCounter.Inc(1)
}

// DeleteStorage removes a storage slot.
func DeleteStorage(db ethdb.KeyValueWriter, addrHash, keyHash common.Hash) {
	if err := db.Delete(storageKey(addrHash, keyHash)); err != nil {
		log.Crit("Failed to delete storage entry", "err", err)
	}
}

// IterateStorage calls fn for every slot of the account, ordered by key hash.
// Iteration stops early when fn returns false.
func IterateStorage(db ethdb.Iteratee, addrHash common.Hash, fn func(keyHash common.Hash, entry *StorageEntry) bool) error {
	prefix := storagePrefix(addrHash)
	it := db.NewIterator(prefix, nil)
	defer it.Release()

	for it.Next() {
		var entry StorageEntry
		if err := rlp.DecodeBytes(it.Value(), &entry); err != nil {
			return fmt.Errorf("corrupt storage entry %x: %v", it.Key(), err)
		}
		if !fn(common.BytesToHash(it.Key()[len(prefix):]), &entry) {
			break
		}
	}
	return it.Error()
}

// IterateAccounts calls fn for every stored account record, ordered by address
// hash.
func IterateAccounts(db ethdb.Iteratee, fn func(addrHash common.Hash, data []byte) bool) error {
	it := db.NewIterator(AccountPrefix, nil)
	defer it.Release()

	for it.Next() {
		key := it.Key()
		if len(key) != len(AccountPrefix)+common.HashLength {
			continue
		}
		if !fn(common.BytesToHash(key[len(AccountPrefix):]), it.Value()) {
			break
		}
	}
	return it.Error()
}

// ReadCode retrieves the contract code of the provided code hash.
func ReadCode(db ethdb.KeyValueReader, hash common.Hash) ([]byte, error) {
	data, err := get(db, codeKey(hash))
	if err != nil {
		return nil, fmt.Errorf("read code %x: %w", hash, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	code, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("corrupt code %x: %v", hash, err)
	}
	return code, nil
}

// WriteCode writes the provided contract code, compressed, to the database.
func WriteCode(db ethdb.KeyValueWriter, hash common.Hash, code []byte) {
	if err := db.Put(codeKey(hash), snappy.Encode(nil, code)); err != nil {
		log.Crit("Failed to store contract code", "err", err)
	}
	codeWriteCounter.Inc(1)
}

// HasCode checks if the contract code corresponding to the provided code hash
// is present in the db.
func HasCode(db ethdb.KeyValueReader, hash common.Hash) bool {
	ok, _ := db.Has(codeKey(hash))
	return ok
}
