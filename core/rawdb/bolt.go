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
	"bytes"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"go.etcd.io/bbolt"
)

var (
	boltBucket = []byte("state")

	errBoltNotFound = errors.New("not found")
)

// boltDB stores the state in a single bbolt bucket.
type boltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates a bbolt file at path.
func NewBoltDB(path string) (Database, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltDB{db: db}, nil
}

func (db *boltDB) Close() error {
	return db.db.Close()
}

func (db *boltDB) Has(key []byte) (bool, error) {
	var found bool
	err := db.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(boltBucket).Get(key) != nil
		return nil
	})
	return found, err
}

func (db *boltDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := db.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(boltBucket).Get(key); v != nil {
			value = common.CopyBytes(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, errBoltNotFound
	}
	return value, nil
}

func (db *boltDB) Put(key []byte, value []byte) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

func (db *boltDB) Delete(key []byte) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	})
}

func (db *boltDB) NewBatch() ethdb.Batch {
	return &boltBatch{db: db.db}
}

// NewIterator snapshots the matching range inside one read transaction, since
// bbolt values are only valid while it is open.
func (db *boltDB) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	it := new(sliceIterator)
	seek := append(common.CopyBytes(prefix), start...)
	it.err = db.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(seek); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			it.keys = append(it.keys, common.CopyBytes(k))
			it.values = append(it.values, common.CopyBytes(v))
		}
		return nil
	})
	if it.err != nil {
		it.keys, it.values = nil, nil
	}
	return it
}

type boltOp struct {
	key, value []byte
	delete     bool
}

// boltBatch buffers writes and applies them in a single update transaction.
type boltBatch struct {
	db   *bbolt.DB
	ops  []boltOp
	size int
}

func (b *boltBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, boltOp{key: common.CopyBytes(key), value: common.CopyBytes(value)})
	b.size += len(key) + len(value)
	return nil
}

func (b *boltBatch) Delete(key []byte) error {
	b.ops = append(b.ops, boltOp{key: common.CopyBytes(key), delete: true})
	b.size += len(key)
	return nil
}

func (b *boltBatch) ValueSize() int {
	return b.size
}

func (b *boltBatch) Write() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return b.Replay(&boltWriter{bucket: tx.Bucket(boltBucket)})
	})
}

func (b *boltBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

func (b *boltBatch) Replay(w ethdb.KeyValueWriter) error {
	for _, op := range b.ops {
		var err error
		if op.delete {
			err = w.Delete(op.key)
		} else {
			err = w.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type boltWriter struct {
	bucket *bbolt.Bucket
}

func (w *boltWriter) Put(key, value []byte) error { return w.bucket.Put(key, value) }
func (w *boltWriter) Delete(key []byte) error     { return w.bucket.Delete(key) }
