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
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParamType is the explicit type tag carried by every typed argument.
type ParamType uint8

const (
	ParamBool      ParamType = 1
	ParamByte      ParamType = 2
	ParamByteArray ParamType = 3
	ParamChar      ParamType = 4
	ParamSByte     ParamType = 5
	ParamShort     ParamType = 6
	ParamString    ParamType = 7
	ParamUInt      ParamType = 8
	ParamUInt160   ParamType = 9
	ParamULong     ParamType = 10
	ParamAddress   ParamType = 11
	ParamLong      ParamType = 12
	ParamInt       ParamType = 13
)

var paramTypeNames = map[ParamType]string{
	ParamBool:      "bool",
	ParamByte:      "byte",
	ParamByteArray: "bytes",
	ParamChar:      "char",
	ParamSByte:     "sbyte",
	ParamShort:     "short",
	ParamString:    "string",
	ParamUInt:      "uint",
	ParamUInt160:   "uint160",
	ParamULong:     "ulong",
	ParamAddress:   "address",
	ParamLong:      "long",
	ParamInt:       "int",
}

// ParseParamType resolves a type name as used in Lua contract ABIs.
func ParseParamType(name string) (ParamType, bool) {
	for t, n := range paramTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

func (t ParamType) String() string {
	if name, ok := paramTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ParamType(%d)", uint8(t))
}

// Valid reports whether t is a known type tag.
func (t ParamType) Valid() bool {
	_, ok := paramTypeNames[t]
	return ok
}

// width returns the fixed encoded width of t, or -1 for variable width types.
func (t ParamType) width() int {
	switch t {
	case ParamBool, ParamByte, ParamSByte:
		return 1
	case ParamChar, ParamShort:
		return 2
	case ParamUInt, ParamInt:
		return 4
	case ParamULong, ParamLong:
		return 8
	case ParamUInt160, ParamAddress:
		return common.AddressLength
	}
	return -1
}

var errInvalidParam = errors.New("invalid typed parameter")

// Param is a typed argument. Value holds the canonical big-endian encoding of
// the typed value, so that two equal values always encode identically.
type Param struct {
	Type  ParamType
	Value []byte
}

// Validate checks that Value is the canonical encoding for Type.
func (p Param) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown type tag %d", errInvalidParam, uint8(p.Type))
	}
	if w := p.Type.width(); w >= 0 && len(p.Value) != w {
		return fmt.Errorf("%w: %v needs %d bytes, have %d", errInvalidParam, p.Type, w, len(p.Value))
	}
	switch p.Type {
	case ParamBool:
		if p.Value[0] > 1 {
			return fmt.Errorf("%w: bool byte %#x", errInvalidParam, p.Value[0])
		}
	case ParamString:
		if !utf8.Valid(p.Value) {
			return fmt.Errorf("%w: string is not utf-8", errInvalidParam)
		}
	}
	return nil
}

func BoolParam(v bool) Param {
	if v {
		return Param{Type: ParamBool, Value: []byte{1}}
	}
	return Param{Type: ParamBool, Value: []byte{0}}
}

func ByteParam(v byte) Param  { return Param{Type: ParamByte, Value: []byte{v}} }
func SByteParam(v int8) Param { return Param{Type: ParamSByte, Value: []byte{byte(v)}} }
func BytesParam(v []byte) Param {
	return Param{Type: ParamByteArray, Value: common.CopyBytes(v)}
}
func StringParam(v string) Param          { return Param{Type: ParamString, Value: []byte(v)} }
func AddressParam(v common.Address) Param { return Param{Type: ParamAddress, Value: v.Bytes()} }
func UInt160Param(v common.Address) Param { return Param{Type: ParamUInt160, Value: v.Bytes()} }

// CharParam encodes r as a single UTF-16 code unit. Runes outside the basic
// multilingual plane are replaced by U+FFFD.
func CharParam(r rune) Param {
	if r > 0xffff || utf16.IsSurrogate(r) {
		r = utf8.RuneError
	}
	v := make([]byte, 2)
	binary.BigEndian.PutUint16(v, uint16(r))
	return Param{Type: ParamChar, Value: v}
}

func ShortParam(v int16) Param {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return Param{Type: ParamShort, Value: b}
}

func UIntParam(v uint32) Param {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return Param{Type: ParamUInt, Value: b}
}

func IntParam(v int32) Param {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return Param{Type: ParamInt, Value: b}
}

func ULongParam(v uint64) Param {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return Param{Type: ParamULong, Value: b}
}

func LongParam(v int64) Param {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return Param{Type: ParamLong, Value: b}
}

// Bool returns the value of a bool parameter.
func (p Param) Bool() bool { return len(p.Value) == 1 && p.Value[0] == 1 }

// Address returns the value of an address or uint160 parameter.
func (p Param) Address() common.Address { return common.BytesToAddress(p.Value) }

// Text returns the value of a string parameter.
func (p Param) Text() string { return string(p.Value) }

// Uint64 returns any unsigned integer parameter widened to 64 bits.
func (p Param) Uint64() uint64 {
	switch len(p.Value) {
	case 1:
		return uint64(p.Value[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(p.Value))
	case 4:
		return uint64(binary.BigEndian.Uint32(p.Value))
	case 8:
		return binary.BigEndian.Uint64(p.Value)
	}
	return 0
}

// Int64 returns any signed integer parameter widened to 64 bits.
func (p Param) Int64() int64 {
	switch p.Type {
	case ParamSByte:
		return int64(int8(p.Value[0]))
	case ParamShort:
		return int64(int16(binary.BigEndian.Uint16(p.Value)))
	case ParamInt:
		return int64(int32(binary.BigEndian.Uint32(p.Value)))
	case ParamLong:
		return int64(binary.BigEndian.Uint64(p.Value))
	}
	return int64(p.Uint64())
}

// Char returns the rune of a char parameter.
func (p Param) Char() rune { return rune(binary.BigEndian.Uint16(p.Value)) }

// String renders the parameter in the "<tag>#<value>" text form accepted by
// ParseParam.
func (p Param) String() string {
	return fmt.Sprintf("%d#%s", uint8(p.Type), p.valueString())
}

func (p Param) valueString() string {
	if p.Validate() != nil {
		return common.Bytes2Hex(p.Value)
	}
	switch p.Type {
	case ParamBool:
		return strconv.FormatBool(p.Bool())
	case ParamByte, ParamUInt, ParamULong:
		return strconv.FormatUint(p.Uint64(), 10)
	case ParamSByte, ParamShort, ParamInt, ParamLong:
		return strconv.FormatInt(p.Int64(), 10)
	case ParamChar:
		return string(p.Char())
	case ParamString:
		return p.Text()
	case ParamAddress, ParamUInt160:
		return p.Address().Hex()
	}
	return hexutil.Encode(p.Value)
}

// ParseParam parses the "<tag>#<value>" text form, e.g. "6#5" for the short 5
// or "7#hello" for a string.
func ParseParam(s string) (Param, error) {
	i := strings.IndexByte(s, '#')
	if i < 0 {
		return Param{}, fmt.Errorf("%w: missing '#' in %q", errInvalidParam, s)
	}
	tag, err := strconv.ParseUint(s[:i], 10, 8)
	if err != nil {
		return Param{}, fmt.Errorf("%w: bad type tag %q", errInvalidParam, s[:i])
	}
	t, v := ParamType(tag), s[i+1:]
	switch t {
	case ParamBool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Param{}, fmt.Errorf("%w: %v", errInvalidParam, err)
		}
		return BoolParam(b), nil
	case ParamByte, ParamUInt, ParamULong:
		n, err := strconv.ParseUint(v, 10, t.width()*8)
		if err != nil {
			return Param{}, fmt.Errorf("%w: %v", errInvalidParam, err)
		}
		switch t {
		case ParamByte:
			return ByteParam(byte(n)), nil
		case ParamUInt:
			return UIntParam(uint32(n)), nil
		}
		return ULongParam(n), nil
	case ParamSByte, ParamShort, ParamInt, ParamLong:
		n, err := strconv.ParseInt(v, 10, t.width()*8)
		if err != nil {
			return Param{}, fmt.Errorf("%w: %v", errInvalidParam, err)
		}
		switch t {
		case ParamSByte:
			return SByteParam(int8(n)), nil
		case ParamShort:
			return ShortParam(int16(n)), nil
		case ParamInt:
			return IntParam(int32(n)), nil
		}
		return LongParam(n), nil
	case ParamChar:
		if utf8.RuneCountInString(v) != 1 {
			return Param{}, fmt.Errorf("%w: char needs exactly one rune", errInvalidParam)
		}
		r, _ := utf8.DecodeRuneInString(v)
		return CharParam(r), nil
	case ParamString:
		return StringParam(v), nil
	case ParamByteArray:
		b, err := hexutil.Decode(v)
		if err != nil {
			return Param{}, fmt.Errorf("%w: %v", errInvalidParam, err)
		}
		return BytesParam(b), nil
	case ParamAddress, ParamUInt160:
		if !common.IsHexAddress(v) {
			return Param{}, fmt.Errorf("%w: bad address %q", errInvalidParam, v)
		}
		return Param{Type: t, Value: common.HexToAddress(v).Bytes()}, nil
	}
	return Param{}, fmt.Errorf("%w: unknown type tag %d", errInvalidParam, tag)
}

// ParseParams parses a list of text form parameters.
func ParseParams(args []string) ([]Param, error) {
	params := make([]Param, 0, len(args))
	for _, arg := range args {
		p, err := ParseParam(arg)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}
