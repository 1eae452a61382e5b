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

package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParam(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tests := []struct {
		in   string
		want Param
	}{
		{"1#true", BoolParam(true)},
		{"2#255", ByteParam(255)},
		{"3#0xdead", BytesParam([]byte{0xde, 0xad})},
		{"4#x", CharParam('x')},
		{"5#-3", SByteParam(-3)},
		{"6#5", ShortParam(5)},
		{"7#hello#world", StringParam("hello#world")},
		{"8#4000000000", UIntParam(4000000000)},
		{"10#18446744073709551615", ULongParam(^uint64(0))},
		{"11#" + addr.Hex(), AddressParam(addr)},
		{"12#-9", LongParam(-9)},
		{"13#-2147483648", IntParam(-2147483648)},
	}
	for _, tt := range tests {
		have, err := ParseParam(tt.in)
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		assert.Equal(t, tt.want, have, tt.in)
		assert.NoError(t, have.Validate())
	}
}

func TestParseParamErrors(t *testing.T) {
	for _, in := range []string{"", "7", "x#1", "99#1", "6#70000", "1#maybe", "11#0x12", "4#ab", "2#-1", "3#dead", "3#0xabc", "3#0xzz"} {
		_, err := ParseParam(in)
		assert.Error(t, err, in)
	}
}

func TestParamStringRoundTrip(t *testing.T) {
	params := []Param{
		BoolParam(false), ByteParam(7), SByteParam(-7), ShortParam(-300), UIntParam(1 << 31),
		IntParam(-1), ULongParam(1 << 60), LongParam(-(1 << 60)), StringParam("contract"),
		CharParam('é'), AddressParam(common.HexToAddress("0x1234")), BytesParam([]byte{0xca, 0xfe}),
	}
	for _, p := range params {
		have, err := ParseParam(p.String())
		require.NoError(t, err, p.String())
		require.Equal(t, p, have)
	}
}

func TestParamAccessors(t *testing.T) {
	assert.True(t, BoolParam(true).Bool())
	assert.Equal(t, int64(-300), ShortParam(-300).Int64())
	assert.Equal(t, uint64(1<<60), ULongParam(1<<60).Uint64())
	assert.Equal(t, 'z', CharParam('z').Char())
	assert.Equal(t, "abc", StringParam("abc").Text())
	assert.Equal(t, ParamShort, mustParamType(t, "short"))
}

func mustParamType(t *testing.T, name string) ParamType {
	typ, ok := ParseParamType(name)
	if !ok {
		t.Fatalf("unknown type %q", name)
	}
	return typ
}

func TestScriptDestination(t *testing.T) {
	addr := common.HexToAddress("0xabcdef")
	for _, script := range [][]byte{PayToAddress(addr), PayToContract(addr)} {
		have, ok := ScriptDestination(script)
		require.True(t, ok)
		require.Equal(t, addr, have)
	}
	_, ok := ScriptDestination([]byte{byte(OpCallContract)})
	require.False(t, ok)
}

func TestCreateAddressDeterministic(t *testing.T) {
	tx := NewTransaction()
	tx.AddOutput(100, []byte{byte(OpCreateContract)})
	a := CreateAddress(tx.Hash(), 0)
	require.Equal(t, a, CreateAddress(tx.Hash(), 0))
	require.NotEqual(t, a, CreateAddress(tx.Hash(), 1))
}
