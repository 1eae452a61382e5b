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

package vm

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
)

// List of contract execution errors
var (
	ErrOutOfGas          = errors.New("out of gas")
	ErrContractNotFound  = errors.New("contract does not exist")
	ErrMethodNotFound    = errors.New("method does not exist")
	ErrArgumentMismatch  = errors.New("argument mismatch")
	ErrExecutionReverted = errors.New("execution reverted")
	ErrContractFault     = errors.New("unhandled contract fault")
	ErrCallDepthExceeded = errors.New("max call depth exceeded")
	ErrInvalidCode       = errors.New("invalid contract code")
	ErrUnknownRuntime    = errors.New("unknown contract runtime")
)

// InternalError is an engine failure that no contract can cause, such as a
// corrupt state database. It is the only error class that aborts processing.
type InternalError struct {
	Err   error
	Stack stack.CallStack
}

// NewInternalError wraps err, capturing the calling stack.
func NewInternalError(err error) *InternalError {
	return &InternalError{Err: err, Stack: stack.Trace().TrimBelow(stack.Caller(1)).TrimRuntime()}
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// IsInternal reports whether err carries an InternalError.
func IsInternal(err error) bool {
	var internal *InternalError
	return errors.As(err, &internal)
}

// haltSignal unwinds a running frame. It is raised by host operations and
// recovered by the frame that owns the operation.
type haltSignal struct {
	err error
}

func halt(err error) {
	panic(haltSignal{err: err})
}
