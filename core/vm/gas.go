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

// GasMeter tracks gas consumption against a fixed limit. Consumption never
// exceeds the limit: a charge that would overflow it clamps consumption to the
// limit and exhausts the meter.
type GasMeter struct {
	limit     uint64
	consumed  uint64
	exhausted bool
}

// NewGasMeter returns a meter with the given limit and nothing consumed.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Charge consumes cost gas. It returns ErrOutOfGas once the limit would be
// exceeded, after which every further charge fails as well.
func (m *GasMeter) Charge(cost uint64) error {
	if m.exhausted {
		return ErrOutOfGas
	}
	if cost > m.limit-m.consumed {
		m.consumed = m.limit
		m.exhausted = true
		return ErrOutOfGas
	}
	m.consumed += cost
	return nil
}

// Limit returns the ceiling set at construction.
func (m *GasMeter) Limit() uint64 { return m.limit }

// Consumed returns the gas charged so far.
func (m *GasMeter) Consumed() uint64 { return m.consumed }

// Remaining returns the gas still available.
func (m *GasMeter) Remaining() uint64 { return m.limit - m.consumed }

// Refundable returns the unspent gas that may be refunded, which is zero once
// the meter ran out.
func (m *GasMeter) Refundable() uint64 {
	if m.exhausted {
		return 0
	}
	return m.limit - m.consumed
}

// Exhausted reports whether a charge has failed.
func (m *GasMeter) Exhausted() bool { return m.exhausted }

// Sub returns a meter for a nested frame whose limit is budget, capped at the
// gas remaining here. A zero budget hands over everything that remains.
func (m *GasMeter) Sub(budget uint64) *GasMeter {
	if budget == 0 || budget > m.Remaining() {
		budget = m.Remaining()
	}
	return NewGasMeter(budget)
}

// Fold charges the consumption of a nested meter created by Sub.
func (m *GasMeter) Fold(sub *GasMeter) error {
	return m.Charge(sub.Consumed())
}
