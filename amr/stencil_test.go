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

package amr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLaplacianPeriodic(t *testing.T) {
	const n = 16
	h := testHierarchy(t, n, 8, Periodic, 1)
	s, dst := cellIndex(h, 1), cellIndex(h, 1)
	f := func(_ int, x, y float64) float64 { return math.Sin(2*math.Pi*x) * math.Cos(2*math.Pi*y) }
	setCells(h, s, 0, f)
	h.FillGhosts(s, FillSpec{Role: Neumann}, 0, 0)
	Laplacian(h, dst, s, 1, 2, 0, 0)

	dx := 1.0 / n
	// Eigenvalue of the five-point stencil for this mode.
	lambda := 2 * (2*math.Cos(2*math.Pi*dx) - 2) / (dx * dx)
	l := h.Level(0)
	for _, p := range l.Patches {
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				x, y := l.CellCenter(i, j)
				want := f(0, x, y) * (1 + 2*lambda)
				require.InDelta(t, want, p.Cell(dst).At(0, i, j), 1e-9)
			}
		}
	}
}

func TestDivergenceOfGradient(t *testing.T) {
	h := testHierarchy(t, 8, 4, Periodic, 1)
	s, lap, div := cellIndex(h, 1), cellIndex(h, 1), cellIndex(h, 1)
	grad := h.RegisterIndex(Variable{Centering: FaceCentered, Depth: 1})
	h.Allocate(grad, 0, 0)
	setCells(h, s, 0, func(_ int, x, y float64) float64 { return math.Sin(2*math.Pi*x) + math.Cos(4*math.Pi*y) })
	h.FillGhosts(s, FillSpec{Role: Neumann}, 0, 0)

	GradientFace(h, grad, s, 1, 0, 0)
	DivergenceFace(h, div, grad, 1, 0, 0)
	Laplacian(h, lap, s, 0, 1, 0, 0)
	o := NewCellDataOps(h)
	o.Axpy(div, -1, lap, div)
	require.Less(t, o.MaxNorm(div), 1e-9)
}

func TestInterpolateAndDivergence(t *testing.T) {
	h := testHierarchy(t, 8, 4, Periodic, 1)
	u, div, divCC := cellIndex(h, 2), cellIndex(h, 1), cellIndex(h, 1)
	a := h.RegisterIndex(Variable{Centering: FaceCentered, Depth: 1})
	h.Allocate(a, 0, 0)
	// A uniform flow is divergence free.
	setCells(h, u, 0, func(d int, _, _ float64) float64 { return float64(d + 1) })
	h.FillGhosts(u, FillSpec{Role: NoSlip}, 0, 0)
	InterpolateToFaces(h, a, u, 0, 0)
	f := h.Level(0).Patches[0].Face(a)
	require.Equal(t, 1.0, f.At(0, 0, 0, 0))
	require.Equal(t, 2.0, f.At(1, 0, 3, 4))
	DivergenceFace(h, div, a, 1, 0, 0)
	DivergenceCell(h, divCC, u, 1, 0, 0)
	o := NewCellDataOps(h)
	require.Less(t, o.MaxNorm(div), 1e-12)
	require.Less(t, o.MaxNorm(divCC), 1e-12)
}

func TestGradientCellAndCurl(t *testing.T) {
	h := testHierarchy(t, 8, 0, Wall, 1)
	s, g, u, w := cellIndex(h, 1), cellIndex(h, 2), cellIndex(h, 2), cellIndex(h, 1)
	setCells(h, s, 0, func(_ int, x, y float64) float64 { return 3*x - y })
	// Solid body rotation has vorticity 2.
	setCells(h, u, 0, func(d int, x, y float64) float64 {
		if d == 0 {
			return -(y - 0.5)
		}
		return x - 0.5
	})
	h.FillGhosts(s, FillSpec{Role: Neumann}, 0, 0)
	h.FillGhosts(u, FillSpec{Role: Neumann}, 0, 0)
	GradientCell(h, g, s, 2, 0, 0)
	Curl(h, w, u, 0, 0)

	p := h.Level(0).Patches[0]
	for j := 1; j < 7; j++ {
		for i := 1; i < 7; i++ {
			require.InDelta(t, 6.0, p.Cell(g).At(0, i, j), 1e-12)
			require.InDelta(t, -2.0, p.Cell(g).At(1, i, j), 1e-12)
			require.InDelta(t, 2.0, p.Cell(w).At(0, i, j), 1e-12)
		}
	}
}
