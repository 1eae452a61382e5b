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
	"encoding/json"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/probeum/probe-sce/core/rawdb"
	"github.com/probeum/probe-sce/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateTest struct {
	db   rawdb.Database
	root *Root
}

func newStateTest() *stateTest {
	db := rawdb.NewMemoryDatabase()
	return &stateTest{db: db, root: NewRoot(db)}
}

var (
	addrA = common.BytesToAddress([]byte{0x0a})
	addrB = common.BytesToAddress([]byte{0x0b})
	addrC = common.BytesToAddress([]byte{0x0c})
)

// seed commits a funded contract account with code and one storage slot.
func (s *stateTest) seed(t *testing.T, addr common.Address, balance uint64) {
	t.Helper()
	sdb := s.root.Open()
	scope := sdb.OpenScope()
	require.NoError(t, scope.SetCode(addr, []byte{0x01, 'x'}))
	scope.Credit(addr, uint256.NewInt(balance))
	scope.SetStorage(addr, []byte("k"), []byte("v"))
	commit(t, scope)
}

// commit closes the top-level scope and flushes the working set.
func commit(t *testing.T, scope *Scope) {
	t.Helper()
	require.NoError(t, scope.Commit())
	require.NoError(t, scope.StateDB().Commit())
}

func TestCommitPersists(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 100)

	sdb := s.root.Open()
	assert.Equal(t, uint64(100), sdb.GetBalance(addrA).Uint64())
	assert.Equal(t, []byte("v"), sdb.GetState(addrA, []byte("k")))
	assert.Equal(t, []byte{0x01, 'x'}, sdb.GetCode(addrA))
	assert.True(t, sdb.HasCode(addrA))
	assert.False(t, sdb.Exist(addrB))

	// Reopen on the raw database without the caches.
	fresh := NewRoot(s.db).Open()
	assert.Equal(t, uint64(100), fresh.GetBalance(addrA).Uint64())
	assert.Equal(t, []byte("v"), fresh.GetState(addrA, []byte("k")))
}

func TestDiscardLeavesRootUntouched(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 100)
	before, err := s.root.Hash()
	require.NoError(t, err)

	sdb := s.root.Open()
	scope := sdb.OpenScope()
	scope.SetStorage(addrA, []byte("k"), []byte("changed"))
	require.NoError(t, scope.TransferBalance(addrA, addrB, uint256.NewInt(40)))
	scope.Discard()

	after, err := s.root.Hash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []byte("v"), s.root.Open().GetState(addrA, []byte("k")))
}

func TestNestedScopeDiscard(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 100)

	sdb := s.root.Open()
	top := sdb.OpenScope()
	top.SetStorage(addrA, []byte("k"), []byte("depth0"))

	child := top.OpenScope()
	child.SetStorage(addrA, []byte("k"), []byte("depth1"))
	require.NoError(t, child.TransferBalance(addrA, addrB, uint256.NewInt(30)))

	grandchild := child.OpenScope()
	grandchild.SetStorage(addrA, []byte("k"), []byte("depth2"))
	grandchild.AddTransfer(types.InternalTransfer{Kind: types.TransferEntry, From: addrA, To: addrC, Amount: 5})
	require.NoError(t, grandchild.TransferBalance(addrA, addrC, uint256.NewInt(5)))
	grandchild.Discard()

	// The discard at depth 2 must not affect depth 1.
	assert.Equal(t, []byte("depth1"), child.GetStorage(addrA, []byte("k")))
	assert.Equal(t, uint64(70), child.GetBalance(addrA).Uint64())
	assert.Zero(t, child.GetBalance(addrC).Uint64())
	assert.Empty(t, sdb.Transcript())

	child.Discard()
	assert.Equal(t, []byte("depth0"), top.GetStorage(addrA, []byte("k")))
	assert.Equal(t, uint64(100), top.GetBalance(addrA).Uint64())
	assert.False(t, sdb.Exist(addrB))

	commit(t, top)
	assert.Equal(t, []byte("depth0"), s.root.Open().GetState(addrA, []byte("k")))
}

func TestNestedScopeCommitThenParentDiscard(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 100)

	sdb := s.root.Open()
	top := sdb.OpenScope()
	mid := top.OpenScope()
	inner := mid.OpenScope()
	inner.SetStorage(addrA, []byte("x"), []byte("1"))
	require.NoError(t, inner.Commit())
	assert.Equal(t, []byte("1"), mid.GetStorage(addrA, []byte("x")))

	mid.Discard()
	assert.Nil(t, top.GetStorage(addrA, []byte("x")))
	commit(t, top)
	assert.Nil(t, s.root.Open().GetState(addrA, []byte("x")))
}

func TestTransferInsufficientFunds(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 10)

	sdb := s.root.Open()
	scope := sdb.OpenScope()
	err := scope.TransferBalance(addrA, addrB, uint256.NewInt(11))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.Equal(t, uint64(10), scope.GetBalance(addrA).Uint64())
	assert.Zero(t, scope.GetBalance(addrB).Uint64())

	// Unknown payers have no funds at all.
	assert.ErrorIs(t, scope.TransferBalance(addrC, addrA, uint256.NewInt(1)), ErrInsufficientFunds)
	require.NoError(t, scope.TransferBalance(addrA, addrB, uint256.NewInt(10)))
	assert.Equal(t, uint64(10), scope.GetBalance(addrB).Uint64())
}

func TestSetCodeOnce(t *testing.T) {
	s := newStateTest()
	sdb := s.root.Open()
	scope := sdb.OpenScope()
	require.NoError(t, scope.SetCode(addrA, []byte("code")))
	assert.ErrorIs(t, scope.SetCode(addrA, []byte("other")), ErrCodeAlreadySet)
	assert.Equal(t, []byte("code"), scope.GetCode(addrA))
	commit(t, scope)

	sdb = s.root.Open()
	assert.ErrorIs(t, sdb.SetCode(addrA, []byte("other")), ErrCodeAlreadySet)
	assert.Equal(t, crypto.Keccak256Hash([]byte("code")), sdb.GetCodeHash(addrA))
}

func TestScopeMisuse(t *testing.T) {
	s := newStateTest()
	sdb := s.root.Open()
	top := sdb.OpenScope()
	child := top.OpenScope()

	// Writing through a shadowed parent is recorded, not applied.
	top.SetStorage(addrA, []byte("k"), []byte("v"))
	assert.ErrorIs(t, sdb.Error(), ErrScopeMisuse)
	child.Discard()
	assert.Nil(t, top.GetStorage(addrA, []byte("k")))

	// The memoized error blocks the flush.
	require.NoError(t, top.Commit())
	assert.ErrorIs(t, sdb.Commit(), ErrScopeMisuse)
}

func TestScopeClosedAfterCommit(t *testing.T) {
	s := newStateTest()
	sdb := s.root.Open()
	top := sdb.OpenScope()
	assert.ErrorIs(t, sdb.Commit(), ErrScopeMisuse)
	commit(t, top)
	assert.ErrorIs(t, top.Commit(), ErrScopeMisuse)

	second := sdb.OpenScope()
	second.Discard()
	assert.ErrorIs(t, sdb.Error(), ErrScopeMisuse)
}

func TestDeleteStorageSlot(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 1)

	scope := s.root.Open().OpenScope()
	scope.SetStorage(addrA, []byte("k"), nil)
	assert.Nil(t, scope.GetStorage(addrA, []byte("k")))
	commit(t, scope)

	sdb := s.root.Open()
	assert.Nil(t, sdb.GetState(addrA, []byte("k")))
	var keys [][]byte
	require.NoError(t, sdb.ForEachStorage(addrA, func(key, value []byte) bool {
		keys = append(keys, key)
		return true
	}))
	assert.Empty(t, keys)
}

func TestForEachStorageMergesDirty(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 1)

	sdb := s.root.Open()
	sdb.SetState(addrA, []byte("k"), []byte("new"))
	sdb.SetState(addrA, []byte("b"), []byte("2"))
	sdb.SetState(addrA, []byte("a"), []byte("1"))

	got := make(map[string]string)
	var order []string
	require.NoError(t, sdb.ForEachStorage(addrA, func(key, value []byte) bool {
		got[string(key)] = string(value)
		order = append(order, string(key))
		return true
	}))
	assert.Equal(t, map[string]string{"k": "new", "a": "1", "b": "2"}, got)
	assert.Equal(t, []string{"k", "a", "b"}, order)
}

func TestReadWriteSets(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 50)

	sdb := s.root.Open()
	scope := sdb.OpenScope()
	scope.GetStorage(addrC, []byte("k"))
	child := scope.OpenScope()
	require.NoError(t, child.TransferBalance(addrA, addrB, uint256.NewInt(1)))
	child.Discard()

	assert.Equal(t, []common.Address{addrA, addrB, addrC}, sdb.ReadSet())
	assert.Empty(t, sdb.WriteSet())

	require.NoError(t, scope.TransferBalance(addrA, addrB, uint256.NewInt(1)))
	assert.Equal(t, []common.Address{addrA, addrB}, sdb.WriteSet())
}

func TestHashDeterministic(t *testing.T) {
	build := func(order []common.Address) common.Hash {
		s := newStateTest()
		for _, addr := range order {
			sdb := s.root.Open()
			scope := sdb.OpenScope()
			require.NoError(t, scope.SetCode(addr, []byte{addr[19]}))
			commit(t, scope)
		}
		for _, addr := range []common.Address{addrA, addrB, addrC} {
			sdb := s.root.Open()
			sdb.SetState(addr, []byte("slot"), addr[:])
			sdb.AddBalance(addr, uint256.NewInt(uint64(addr[19])))
			require.NoError(t, sdb.Commit())
		}
		h, err := s.root.Hash()
		require.NoError(t, err)
		return h
	}
	h1 := build([]common.Address{addrA, addrB, addrC})
	h2 := build([]common.Address{addrC, addrA, addrB})
	assert.Equal(t, h1, h2)

	empty, err := newStateTest().root.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, empty, h1)
}

func TestUnspentTracking(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 100)

	unspent := &Unspent{OutPoint: types.OutPoint{Hash: common.HexToHash("0x01"), Index: 2}, Value: 100}
	scope := s.root.Open().OpenScope()
	child := scope.OpenScope()
	child.SetUnspent(addrA, unspent)
	child.Discard()
	assert.Nil(t, scope.GetUnspent(addrA))

	scope.SetUnspent(addrA, unspent)
	commit(t, scope)
	assert.Equal(t, unspent, s.root.Open().GetUnspent(addrA))
}

func TestCommitOnce(t *testing.T) {
	s := newStateTest()
	sdb := s.root.Open()
	sdb.AddBalance(addrA, uint256.NewInt(1))
	require.NoError(t, sdb.Commit())
	assert.ErrorIs(t, sdb.Commit(), ErrCommitted)
}

func TestDump(t *testing.T) {
	s := newStateTest()
	s.seed(t, addrA, 7)

	dump, err := s.root.RawDump(nil)
	require.NoError(t, err)
	acc, ok := dump.Accounts[addrA]
	require.True(t, ok, spew.Sdump(dump))
	assert.Equal(t, "7", acc.Balance)
	assert.Equal(t, "0x76", acc.Storage["0x6b"])
	assert.Equal(t, []byte{0x01, 'x'}, []byte(acc.Code))

	var buf bytes.Buffer
	require.NoError(t, s.root.IterativeDump(&DumpConfig{SkipCode: true, SkipStorage: true}, json.NewEncoder(&buf)))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 2)
}
