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

package core

import (
	"errors"
	"fmt"

	"github.com/probeum/probe-sce/core/types"
	"github.com/probeum/probe-sce/core/vm"
)

var (
	// ErrNoContractOutput is returned if the transaction handed to an
	// executor carries no contract descriptor output.
	ErrNoContractOutput = errors.New("transaction has no contract output")

	// ErrWrongOpcode is returned by an executor handed a descriptor of the
	// other kind.
	ErrWrongOpcode = errors.New("descriptor opcode not handled by executor")

	// ErrVMVersion is reported when the descriptor targets a VM version the
	// engine does not run.
	ErrVMVersion = fmt.Errorf("%w: unsupported vm version", types.ErrMalformedDescriptor)

	// ErrCodeRejected is reported when code submitted for creation fails
	// validation.
	ErrCodeRejected = fmt.Errorf("%w: rejected by validator", vm.ErrInvalidCode)
)
