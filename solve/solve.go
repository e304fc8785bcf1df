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

// Package solve holds the linear solvers used for the implicit parts of
// a time step. Each solver inverts C·x + D·∇²x on a range of hierarchy
// levels, one level at a time from coarse to fine, using the solution on
// the coarser level as coarse-fine boundary data.
package solve

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/spatialmodel/insflow/amr"
)

// Specifications holds the coefficients of the operator C·x + D·∇²x.
type Specifications struct {
	C, D float64
}

func (s Specifications) validate() error {
	if s.C < 0 || s.D > 0 {
		return fmt.Errorf("operator C=%g, D=%g is not positive semi-definite (need C>=0, D<=0)", s.C, s.D)
	}
	if s.C == 0 && s.D == 0 {
		return fmt.Errorf("operator has C=D=0")
	}
	return nil
}

// Type is a solver implementation.
type Type int

const (
	// CG is a matrix-free conjugate gradient solver.
	CG Type = iota
	// Direct assembles and LU-factors each level's operator.
	Direct
)

func (t Type) String() string {
	switch t {
	case CG:
		return "CG"
	case Direct:
		return "DIRECT"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType converts a configuration string into a solver Type.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "CG", "":
		return CG, nil
	case "DIRECT", "LU":
		return Direct, nil
	default:
		return -1, fmt.Errorf("solve: invalid solver type %q", s)
	}
}

// Reason classifies a solver failure.
type Reason int

const (
	// NonConvergence means the iteration limit was reached.
	NonConvergence Reason = iota
	// SingularSystem means the operator could not be inverted.
	SingularSystem
	// InvalidInput means the operator or data were unusable.
	InvalidInput
)

func (r Reason) String() string {
	switch r {
	case NonConvergence:
		return "non-convergence"
	case SingularSystem:
		return "singular system"
	case InvalidInput:
		return "invalid input"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Error is returned when a solve fails.
type Error struct {
	Solver     string
	Reason     Reason
	Level      int
	Iterations int
	Residual   float64
	Err        error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("solve: %s: %s on level %d after %d iterations (residual %g)",
		e.Solver, e.Reason, e.Level, e.Iterations, e.Residual)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures a solver.
type Options struct {
	Type          Type
	RelTol        float64
	AbsTol        float64
	MaxIterations int
	// MaxDirectUnknowns bounds the size of a level the direct solver
	// will factor.
	MaxDirectUnknowns int

	// Fill describes the boundary conditions of the unknown.
	Fill amr.FillSpec
}

// DefaultOptions returns the default solver options.
func DefaultOptions() Options {
	return Options{
		Type:              CG,
		RelTol:            1e-10,
		AbsTol:            1e-12,
		MaxIterations:     1000,
		MaxDirectUnknowns: 4096,
	}
}

// Solver inverts C·x + D·∇²x on the levels of a hierarchy.
type Solver interface {
	Name() string
	SetSpecifications(Specifications)
	Specifications() Specifications

	// InitializeSolverState prepares the solver for levels coarsest
	// through finest of h.
	InitializeSolverState(h *amr.Hierarchy, coarsest, finest int) error
	DeallocateSolverState()
	IsInitialized() bool

	// Solve overwrites x, whose contents are the initial guess, with the
	// solution of A x = b.
	Solve(x, b amr.DataIndex) error

	// Iterations and ResidualNorm describe the most recent solve.
	Iterations() int
	ResidualNorm() float64
}

// New returns a solver of the type in o.
func New(name string, o Options) (Solver, error) {
	if o.MaxIterations <= 0 {
		return nil, fmt.Errorf("solve: %s: max iterations=%d but should be >0", name, o.MaxIterations)
	}
	if o.RelTol < 0 || o.AbsTol < 0 {
		return nil, fmt.Errorf("solve: %s: tolerances must be >=0", name)
	}
	b := base{name: name, opts: o}
	switch o.Type {
	case CG:
		c := &cgSolver{base: b}
		c.levelSolver = c.solveLevel
		return c, nil
	case Direct:
		d := &directSolver{base: b}
		d.levelSolver = d.solveLevel
		return d, nil
	default:
		return nil, fmt.Errorf("solve: %s: invalid solver type %v", name, o.Type)
	}
}

// base holds the hierarchy bookkeeping shared by the solvers.
type base struct {
	name string
	opts Options
	spec Specifications

	h                *amr.Hierarchy
	coarsest, finest int
	scratch          amr.DataIndex
	scratchH         *amr.Hierarchy
	initialized      bool

	iterations int
	residual   float64

	levelSolver func(ln int, r []float64, tol float64) ([]float64, error)
}

func (s *base) Name() string                        { return s.name }
func (s *base) Specifications() Specifications      { return s.spec }
func (s *base) SetSpecifications(sp Specifications) { s.spec = sp }
func (s *base) IsInitialized() bool                 { return s.initialized }
func (s *base) Iterations() int                     { return s.iterations }
func (s *base) ResidualNorm() float64               { return s.residual }

func (s *base) initialize(h *amr.Hierarchy, coarsest, finest int) error {
	if coarsest < 0 || finest > h.FinestLevelNumber() || coarsest > finest {
		return &Error{Solver: s.name, Reason: InvalidInput, Level: coarsest,
			Err: fmt.Errorf("invalid level range [%d, %d] for hierarchy with %d levels", coarsest, finest, h.NumberOfLevels())}
	}
	if s.scratchH != h {
		s.scratch = h.RegisterIndex(amr.Variable{Name: s.name + "::scratch", Centering: amr.CellCentered, Depth: 1, Ghosts: 1})
		s.scratchH = h
	}
	s.h, s.coarsest, s.finest = h, coarsest, finest
	h.Allocate(s.scratch, coarsest, finest)
	s.initialized = true
	return nil
}

func (s *base) deallocate() {
	if s.initialized && s.h != nil {
		s.h.Deallocate(s.scratch, s.coarsest, min(s.finest, s.h.FinestLevelNumber()))
	}
	s.initialized = false
}

// singular returns whether the operator on level ln has a constant null
// space.
func (s *base) singular(ln int) bool {
	if s.spec.C != 0 || !s.h.Level(ln).CoversDomain() {
		return false
	}
	if s.opts.Fill.Role == amr.Neumann {
		return true
	}
	g := s.h.Geometry
	return g.Periodic(0) && g.Periodic(1)
}

// gather copies component d of the interior of idx on level ln into a slice.
func (s *base) gather(idx amr.DataIndex, ln, d int) []float64 {
	l := s.h.Level(ln)
	o := make([]float64, 0, l.NumCells())
	for _, p := range l.Patches {
		c := p.Cell(idx)
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				o = append(o, c.At(d, i, j))
			}
		}
	}
	return o
}

// scatter writes v into component d of the interior of idx, adding to
// the existing values if add is set.
func (s *base) scatter(idx amr.DataIndex, ln, d int, v []float64, add bool) {
	k := 0
	for _, p := range s.h.Level(ln).Patches {
		c := p.Cell(idx)
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				if add {
					c.Add(d, i, j, v[k])
				} else {
					c.Set(d, i, j, v[k])
				}
				k++
			}
		}
	}
}

// applyData returns C·x + D·∇²x for component d of idx on level ln,
// using whatever ghost values idx holds.
func (s *base) applyData(idx amr.DataIndex, ln, d int) []float64 {
	l := s.h.Level(ln)
	rdx2 := 1 / (l.Dx[0] * l.Dx[0])
	rdy2 := 1 / (l.Dx[1] * l.Dx[1])
	o := make([]float64, 0, l.NumCells())
	for _, p := range l.Patches {
		x := p.Cell(idx)
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				c := x.At(d, i, j)
				lap := (x.At(d, i-1, j)-2*c+x.At(d, i+1, j))*rdx2 +
					(x.At(d, i, j-1)-2*c+x.At(d, i, j+1))*rdy2
				o = append(o, s.spec.C*c+s.spec.D*lap)
			}
		}
	}
	return o
}

// apply returns A v on level ln with homogeneous boundary data.
func (s *base) apply(ln int, v []float64) []float64 {
	s.scatter(s.scratch, ln, 0, v, false)
	fill := s.opts.Fill
	fill.HomogeneousCF = true
	s.h.FillGhosts(s.scratch, fill, ln, ln)
	return s.applyData(s.scratch, ln, 0)
}

func removeMean(v []float64) {
	if len(v) == 0 {
		return
	}
	floats.AddConst(-floats.Sum(v)/float64(len(v)), v)
}

// Solve implements Solver.
func (s *base) Solve(x, b amr.DataIndex) error {
	if !s.initialized {
		return &Error{Solver: s.name, Reason: InvalidInput, Err: fmt.Errorf("solver state is not initialized")}
	}
	if err := s.spec.validate(); err != nil {
		return &Error{Solver: s.name, Reason: InvalidInput, Level: s.coarsest, Err: err}
	}
	depth := s.h.Variable(x).Depth
	s.iterations, s.residual = 0, 0
	for ln := s.coarsest; ln <= s.finest; ln++ {
		s.h.FillGhosts(x, s.opts.Fill, ln, ln)
		for d := 0; d < depth; d++ {
			bv := s.gather(b, ln, d)
			r := s.applyData(x, ln, d)
			floats.SubTo(r, bv, r)
			tol := max(s.opts.AbsTol, s.opts.RelTol*floats.Norm(bv, 2))
			e, err := s.levelSolver(ln, r, tol)
			if err != nil {
				return err
			}
			s.scatter(x, ln, d, e, true)
		}
	}
	s.h.FillGhosts(x, s.opts.Fill, s.coarsest, s.finest)
	return nil
}
