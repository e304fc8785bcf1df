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

package solve

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/insflow/amr"
)

// condLimit is the largest condition number accepted for a factored level.
const condLimit = 1e14

type directSolver struct {
	base

	lu map[int]*mat.LU
	a  map[int]*mat.Dense
	// factored holds the coefficients the cached factorizations were built with.
	factored Specifications
}

func (s *directSolver) InitializeSolverState(h *amr.Hierarchy, coarsest, finest int) error {
	s.lu = make(map[int]*mat.LU)
	s.a = make(map[int]*mat.Dense)
	return s.initialize(h, coarsest, finest)
}

func (s *directSolver) DeallocateSolverState() {
	s.lu, s.a = nil, nil
	s.deallocate()
}

// factor assembles the operator on level ln column by column and
// factors it. A singular operator with a constant null space is
// augmented with the all-ones matrix, which selects the mean-zero
// solution.
func (s *directSolver) factor(ln int) (*mat.LU, *mat.Dense, error) {
	if s.factored != s.spec {
		s.lu = make(map[int]*mat.LU)
		s.a = make(map[int]*mat.Dense)
		s.factored = s.spec
	}
	if lu, ok := s.lu[ln]; ok {
		return lu, s.a[ln], nil
	}
	n := s.h.Level(ln).NumCells()
	if n > s.opts.MaxDirectUnknowns {
		return nil, nil, &Error{Solver: s.name, Reason: InvalidInput, Level: ln,
			Err: fmt.Errorf("%d unknowns exceeds the direct solver limit of %d", n, s.opts.MaxDirectUnknowns)}
	}
	a := mat.NewDense(n, n, nil)
	unit := make([]float64, n)
	for k := 0; k < n; k++ {
		unit[k] = 1
		col := s.apply(ln, unit)
		unit[k] = 0
		for i, v := range col {
			a.Set(i, k, v)
		}
	}
	aug := a
	if s.singular(ln) {
		aug = mat.DenseCopyOf(a)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				aug.Set(i, j, aug.At(i, j)+1)
			}
		}
	}
	lu := new(mat.LU)
	lu.Factorize(aug)
	if c := lu.Cond(); c > condLimit {
		return nil, nil, &Error{Solver: s.name, Reason: SingularSystem, Level: ln,
			Err: fmt.Errorf("condition number %g", c)}
	}
	s.lu[ln], s.a[ln] = lu, a
	return lu, a, nil
}

func (s *directSolver) solveLevel(ln int, r []float64, tol float64) ([]float64, error) {
	lu, a, err := s.factor(ln)
	if err != nil {
		return nil, err
	}
	rhs := append([]float64(nil), r...)
	if s.singular(ln) {
		removeMean(rhs)
	}
	x := mat.NewVecDense(len(rhs), nil)
	if err := lu.SolveVecTo(x, false, mat.NewVecDense(len(rhs), rhs)); err != nil {
		return nil, &Error{Solver: s.name, Reason: SingularSystem, Level: ln, Err: err}
	}
	var ax mat.VecDense
	ax.MulVec(a, x)
	e := x.RawVector().Data
	res := make([]float64, len(rhs))
	floats.SubTo(res, rhs, ax.RawVector().Data)
	s.iterations++
	s.residual = floats.Norm(res, 2)
	if s.residual > tol {
		return nil, &Error{Solver: s.name, Reason: NonConvergence, Level: ln, Iterations: 1, Residual: s.residual}
	}
	return e, nil
}
