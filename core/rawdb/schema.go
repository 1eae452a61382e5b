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

// Package rawdb contains a collection of low level database accessors for the
// contract state.
package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"
)

// The fields below define the low level database schema prefixing.
var (
	// headStateRootKey tracks the root of the latest committed state.
	headStateRootKey = []byte("LastStateRoot")

	AccountPrefix = []byte("a") // AccountPrefix + address hash -> account record
	StoragePrefix = []byte("o") // StoragePrefix + address hash + key hash -> storage entry
	CodePrefix    = []byte("c") // CodePrefix + code hash -> compressed code

	accountWriteCounter = metrics.NewRegisteredCounter("rawdb/account/write", nil)
	storageWriteCounter = metrics.NewRegisteredCounter("rawdb/storage/write", nil)
	codeWriteCounter    = metrics.NewRegisteredCounter("rawdb/code/write", nil)
)

// accountKey = AccountPrefix + addrHash
func accountKey(addrHash common.Hash) []byte {
	return append(common.CopyBytes(AccountPrefix), addrHash.Bytes()...)
}

// storageKey = StoragePrefix + addrHash + keyHash
func storageKey(addrHash, keyHash common.Hash) []byte {
	buf := make([]byte, len(StoragePrefix)+2*common.HashLength)
	n := copy(buf, StoragePrefix)
	n += copy(buf[n:], addrHash.Bytes())
	copy(buf[n:], keyHash.Bytes())
	return buf
}

// storagePrefix = StoragePrefix + addrHash
func storagePrefix(addrHash common.Hash) []byte {
	return append(common.CopyBytes(StoragePrefix), addrHash.Bytes()...)
}

// codeKey = CodePrefix + hash
func codeKey(hash common.Hash) []byte {
	return append(common.CopyBytes(CodePrefix), hash.Bytes()...)
}
