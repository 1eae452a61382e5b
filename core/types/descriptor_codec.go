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
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// ErrMalformedDescriptor is returned for any input that is not the canonical
// encoding of a descriptor.
var ErrMalformedDescriptor = errors.New("malformed call descriptor")

// headerRLP is the wire form of the header. Body is the raw RLP of the
// variant payload.
type headerRLP struct {
	VMVersion uint32
	GasPrice  uint64
	GasLimit  uint64
	Body      rlp.RawValue
}

type createRLP struct {
	Code   []byte
	Params []Param
}

type callRLP struct {
	Address common.Address
	Method  string
	Params  []Param
}

// EncodedHeader is a decoded header plus the still encoded body.
type EncodedHeader struct {
	Header
	body rlp.RawValue
}

// EncodeDescriptor returns the script bytes for d: the opcode marker followed by
// the RLP encoding of the header and body.
func EncodeDescriptor(d *CallDescriptor) ([]byte, error) {
	var (
		body []byte
		err  error
	)
	switch d.Opcode {
	case OpCreateContract:
		if d.Create == nil {
			return nil, fmt.Errorf("%w: create without body", ErrMalformedDescriptor)
		}
		body, err = rlp.EncodeToBytes(&createRLP{Code: d.Create.Code, Params: d.Create.Params})
	case OpCallContract:
		if d.Call == nil {
			return nil, fmt.Errorf("%w: call without body", ErrMalformedDescriptor)
		}
		body, err = rlp.EncodeToBytes(&callRLP{Address: d.Call.Address, Method: d.Call.Method, Params: d.Call.Params})
	default:
		return nil, fmt.Errorf("%w: opcode %#x", ErrMalformedDescriptor, byte(d.Opcode))
	}
	if err != nil {
		return nil, err
	}
	enc, err := rlp.EncodeToBytes(&headerRLP{
		VMVersion: d.VMVersion,
		GasPrice:  d.GasPrice,
		GasLimit:  d.GasLimit,
		Body:      body,
	})
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(d.Opcode)}, enc...), nil
}

// DecodeHeader decodes the opcode and header fields of a descriptor script
// without interpreting the body.
func DecodeHeader(script []byte) (*EncodedHeader, error) {
	if len(script) == 0 {
		return nil, fmt.Errorf("%w: empty script", ErrMalformedDescriptor)
	}
	op := Opcode(script[0])
	if !op.IsContractOp() {
		return nil, fmt.Errorf("%w: opcode %#x", ErrMalformedDescriptor, script[0])
	}
	var dec headerRLP
	if err := rlp.DecodeBytes(script[1:], &dec); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedDescriptor, err)
	}
	if err := checkGasBudget(dec.GasPrice, dec.GasLimit); err != nil {
		return nil, err
	}
	return &EncodedHeader{
		Header: Header{Opcode: op, VMVersion: dec.VMVersion, GasPrice: dec.GasPrice, GasLimit: dec.GasLimit},
		body:   dec.Body,
	}, nil
}

// DecodeBody decodes and validates the variant payload.
func (h *EncodedHeader) DecodeBody() (*CallDescriptor, error) {
	d := &CallDescriptor{Header: h.Header}
	switch h.Opcode {
	case OpCreateContract:
		var body createRLP
		if err := rlp.DecodeBytes(h.body, &body); err != nil {
			return nil, fmt.Errorf("%w: create body: %v", ErrMalformedDescriptor, err)
		}
		if len(body.Code) == 0 {
			return nil, fmt.Errorf("%w: empty code", ErrMalformedDescriptor)
		}
		d.Create = &CreateBody{Code: body.Code, Params: body.Params}
	case OpCallContract:
		var body callRLP
		if err := rlp.DecodeBytes(h.body, &body); err != nil {
			return nil, fmt.Errorf("%w: call body: %v", ErrMalformedDescriptor, err)
		}
		if body.Method == "" {
			return nil, fmt.Errorf("%w: empty method name", ErrMalformedDescriptor)
		}
		d.Call = &CallBody{Address: body.Address, Method: body.Method, Params: body.Params}
	}
	for i, p := range d.Params() {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: param %d: %v", ErrMalformedDescriptor, i, err)
		}
	}
	return d, nil
}

// DecodeDescriptor decodes a complete descriptor script.
func DecodeDescriptor(script []byte) (*CallDescriptor, error) {
	h, err := DecodeHeader(script)
	if err != nil {
		return nil, err
	}
	return h.DecodeBody()
}

// checkGasBudget rejects descriptors whose total gas cost does not fit in the
// amount type.
func checkGasBudget(price, limit uint64) error {
	budget := new(uint256.Int).Mul(uint256.NewInt(price), uint256.NewInt(limit))
	if !budget.IsUint64() {
		return fmt.Errorf("%w: gas budget %v exceeds 64 bits", ErrMalformedDescriptor, budget.ToBig())
	}
	return nil
}
