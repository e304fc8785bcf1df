/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package insflow

import (
	"errors"
	"fmt"
)

// ErrSequence is matched by errors.Is for every call made in an order
// the integrator does not allow.
var ErrSequence = errors.New("insflow: illegal call sequence")

// ConfigError reports an invalid or inconsistent configuration. It is
// returned at construction or initialization and is not recoverable.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("insflow: configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// SequenceError reports a call made in the wrong state or with
// out-of-order cycle numbers.
type SequenceError struct {
	Op     string
	State  State
	Detail string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("insflow: %s called in state %s: %s", e.Op, e.State, e.Detail)
}

// Is reports whether target is ErrSequence.
func (e *SequenceError) Is(target error) bool { return target == ErrSequence }

// SolverError reports a failed linear solve. The step is not retried.
type SolverError struct {
	Subsystem        string
	Coarsest, Finest int
	Err              error
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("insflow: %s solve on levels [%d, %d] failed: %v", e.Subsystem, e.Coarsest, e.Finest, e.Err)
}

func (e *SolverError) Unwrap() error { return e.Err }
