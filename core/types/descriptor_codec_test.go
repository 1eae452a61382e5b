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
	"bytes"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

// fuzzParam fills p with a random but canonical typed value.
func fuzzParam(p *Param, c fuzz.Continue) {
	switch c.Intn(13) {
	case 0:
		*p = BoolParam(c.RandBool())
	case 1:
		*p = ByteParam(byte(c.Uint32()))
	case 2:
		var b []byte
		c.Fuzz(&b)
		*p = BytesParam(b)
	case 3:
		*p = CharParam(rune(c.Intn(0xd000)))
	case 4:
		*p = SByteParam(int8(c.Uint32()))
	case 5:
		*p = ShortParam(int16(c.Uint32()))
	case 6:
		*p = StringParam(c.RandString())
	case 7:
		*p = UIntParam(c.Uint32())
	case 8:
		var a common.Address
		c.Fuzz(&a)
		*p = UInt160Param(a)
	case 9:
		*p = ULongParam(c.Uint64())
	case 10:
		var a common.Address
		c.Fuzz(&a)
		*p = AddressParam(a)
	case 11:
		*p = LongParam(c.Int63())
	default:
		*p = IntParam(int32(c.Uint32()))
	}
}

func randomDescriptor(f *fuzz.Fuzzer, create bool) *CallDescriptor {
	var (
		version uint32
		price   uint32
		limit   uint32
		code    []byte
		method  string
		to      common.Address
		params  []Param
	)
	f.Fuzz(&version)
	f.Fuzz(&price)
	f.Fuzz(&limit)
	f.Fuzz(&params)
	if create {
		f.Fuzz(&code)
		return NewCreateDescriptor(version, append(code, 0x01), uint64(price), uint64(limit), params...)
	}
	f.Fuzz(&method)
	f.Fuzz(&to)
	return NewCallDescriptor(version, to, method+"m", uint64(price), uint64(limit), params...)
}

func TestDescriptorRoundTrip(t *testing.T) {
	f := fuzz.NewWithSeed(7).NilChance(0).NumElements(0, 5).Funcs(fuzzParam)
	for i := 0; i < 1000; i++ {
		want := randomDescriptor(f, i%2 == 0)
		enc, err := EncodeDescriptor(want)
		require.NoError(t, err)

		have, err := DecodeDescriptor(enc)
		if err != nil {
			t.Fatalf("decode %d failed: %v\n%s", i, err, spew.Sdump(want))
		}
		if diff := cmp.Diff(want, have, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("descriptor %d mismatch (-want +have):\n%s", i, diff)
		}
		reenc, err := EncodeDescriptor(have)
		require.NoError(t, err)
		require.Equal(t, enc, reenc)
	}
}

func TestDescriptorTruncated(t *testing.T) {
	d := NewCallDescriptor(1, common.HexToAddress("0x01"), "ThrowException", 1, 5000,
		StringParam("hello"), ShortParam(5), AddressParam(common.HexToAddress("0x02")))
	enc, err := EncodeDescriptor(d)
	require.NoError(t, err)

	for n := 0; n < len(enc); n++ {
		if _, err := DecodeDescriptor(enc[:n]); !errors.Is(err, ErrMalformedDescriptor) {
			t.Fatalf("prefix of length %d: have err %v, want malformed descriptor", n, err)
		}
	}
}

// TestDescriptorArbitraryInput checks that decoding never panics and that
// anything accepted is the canonical encoding of what it decodes to.
func TestDescriptorArbitraryInput(t *testing.T) {
	f := fuzz.NewWithSeed(11).NilChance(0).NumElements(0, 64)
	for i := 0; i < 5000; i++ {
		var tail []byte
		f.Fuzz(&tail)
		script := append([]byte{byte(OpCreateContract) + byte(i%2)}, tail...)

		d, err := DecodeDescriptor(script)
		if err != nil {
			require.ErrorIs(t, err, ErrMalformedDescriptor)
			continue
		}
		enc, err := EncodeDescriptor(d)
		require.NoError(t, err)
		if !bytes.Equal(enc, script) {
			t.Fatalf("accepted non-canonical input %x, re-encodes to %x", script, enc)
		}
	}
}

func TestDecodeHeaderBeforeBody(t *testing.T) {
	d := NewCreateDescriptor(1, []byte{0x01, 'x'}, 2, 10000)
	enc, err := EncodeDescriptor(d)
	require.NoError(t, err)

	// Corrupt the last byte of the body; the header must still decode.
	bad := common.CopyBytes(enc)
	bad[len(bad)-1] = 0xff

	h, err := DecodeHeader(bad)
	require.NoError(t, err)
	require.Equal(t, uint64(10000), h.GasLimit)
	require.Equal(t, uint64(2), h.GasPrice)

	_, err = h.DecodeBody()
	require.ErrorIs(t, err, ErrMalformedDescriptor)
}

func TestDecodeDescriptorRejects(t *testing.T) {
	valid := func(d *CallDescriptor) []byte {
		enc, err := EncodeDescriptor(d)
		require.NoError(t, err)
		return enc
	}
	tests := []struct {
		name   string
		script []byte
	}{
		{"empty", nil},
		{"unknown opcode", []byte{0x51, 0xc0}},
		{"internal transfer marker", append([]byte{byte(OpInternalTransfer)}, valid(NewCreateDescriptor(1, []byte{1}, 1, 1))[1:]...)},
		{"empty code", valid(&CallDescriptor{Header: Header{Opcode: OpCreateContract}, Create: &CreateBody{}})},
		{"empty method", valid(&CallDescriptor{Header: Header{Opcode: OpCallContract}, Call: &CallBody{}})},
		{"bad param tag", valid(NewCreateDescriptor(1, []byte{1}, 1, 1, Param{Type: 42, Value: []byte{1}}))},
		{"short width", valid(NewCreateDescriptor(1, []byte{1}, 1, 1, Param{Type: ParamShort, Value: []byte{1}}))},
		{"bool byte", valid(NewCreateDescriptor(1, []byte{1}, 1, 1, Param{Type: ParamBool, Value: []byte{2}}))},
		{"budget overflow", valid(NewCallDescriptor(1, common.Address{}, "m", 1<<40, 1<<40))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDescriptor(tt.script)
			require.ErrorIs(t, err, ErrMalformedDescriptor)
		})
	}
}

func TestEncodeDescriptorMissingBody(t *testing.T) {
	_, err := EncodeDescriptor(&CallDescriptor{Header: Header{Opcode: OpCallContract}})
	require.ErrorIs(t, err, ErrMalformedDescriptor)
}
