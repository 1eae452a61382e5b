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
	"io"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
)

// Database is the key/value store backing the contract state.
type Database interface {
	ethdb.KeyValueReader
	ethdb.KeyValueWriter
	ethdb.Iteratee
	NewBatch() ethdb.Batch
	io.Closer
}

// NewMemoryDatabase creates an ephemeral in-memory key-value database.
func NewMemoryDatabase() Database {
	return memorydb.New()
}

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Open creates the database for the named backend.
func Open(backend, path string, cache, handles int) (Database, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryDatabase(), nil
	case BackendLevelDB:
		return NewLevelDB(path, cache, handles)
	case BackendBolt:
		return NewBoltDB(path)
	}
	return nil, errUnknownBackend{backend}
}

type errUnknownBackend struct{ name string }

func (e errUnknownBackend) Error() string { return "unknown database backend " + e.name }

// sliceIterator iterates over a snapshot of key/value pairs. A snapshot that
// could not be taken yields nothing and reports err.
type sliceIterator struct {
	keys, values [][]byte
	index        int
	err          error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil || it.index >= len(it.keys) {
		return false
	}
	it.index++
	return it.index <= len(it.keys)
}

func (it *sliceIterator) Error() error { return it.err }

func (it *sliceIterator) Key() []byte {
	if it.index == 0 || it.index > len(it.keys) {
		return nil
	}
	return it.keys[it.index-1]
}

func (it *sliceIterator) Value() []byte {
	if it.index == 0 || it.index > len(it.values) {
		return nil
	}
	return it.values[it.index-1]
}

func (it *sliceIterator) Release() {
	it.keys, it.values = nil, nil
}
