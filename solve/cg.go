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
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/spatialmodel/insflow/amr"
)

type cgSolver struct {
	base
}

func (s *cgSolver) InitializeSolverState(h *amr.Hierarchy, coarsest, finest int) error {
	return s.initialize(h, coarsest, finest)
}

func (s *cgSolver) DeallocateSolverState() { s.deallocate() }

// solveLevel solves A e = r on level ln with homogeneous boundary data
// using unpreconditioned conjugate gradients.
func (s *cgSolver) solveLevel(ln int, r []float64, tol float64) ([]float64, error) {
	singular := s.singular(ln)
	res := append([]float64(nil), r...)
	if singular {
		removeMean(res)
	}
	e := make([]float64, len(res))
	rr := floats.Dot(res, res)
	if math.Sqrt(rr) <= tol {
		s.residual = math.Sqrt(rr)
		return e, nil
	}
	p := append([]float64(nil), res...)
	for k := 1; k <= s.opts.MaxIterations; k++ {
		ap := s.apply(ln, p)
		if singular {
			removeMean(ap)
		}
		pap := floats.Dot(p, ap)
		if pap <= 0 || math.IsNaN(pap) {
			return nil, &Error{Solver: s.name, Reason: SingularSystem, Level: ln, Iterations: k,
				Residual: math.Sqrt(rr), Err: fmt.Errorf("search direction has p·Ap=%g", pap)}
		}
		alpha := rr / pap
		floats.AddScaled(e, alpha, p)
		floats.AddScaled(res, -alpha, ap)
		rrNew := floats.Dot(res, res)
		s.iterations++
		s.residual = math.Sqrt(rrNew)
		if s.residual <= tol {
			if singular {
				removeMean(e)
			}
			return e, nil
		}
		floats.AddScaledTo(p, res, rrNew/rr, p)
		rr = rrNew
	}
	return nil, &Error{Solver: s.name, Reason: NonConvergence, Level: ln,
		Iterations: s.opts.MaxIterations, Residual: s.residual}
}
