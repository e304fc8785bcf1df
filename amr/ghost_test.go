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
	"testing"

	"github.com/stretchr/testify/require"
)

// setIndexed sets every interior value of idx on level ln to i+100*j.
func setIndexed(h *Hierarchy, idx DataIndex, ln int) {
	for _, p := range h.Level(ln).Patches {
		cd := p.Cell(idx)
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				cd.Set(0, i, j, float64(i+100*j))
			}
		}
	}
}

func TestFillGhostsPeriodic(t *testing.T) {
	h := testHierarchy(t, 8, 4, Periodic, 1)
	idx := cellIndex(h, 1)
	setIndexed(h, idx, 0)
	h.FillGhosts(idx, FillSpec{Role: NoSlip}, 0, 0)

	l := h.Level(0)
	ll := l.PatchAt(0, 0).Cell(idx)
	require.Equal(t, float64(7+100*3), ll.At(0, -1, 3), "periodic image in x")
	require.Equal(t, float64(2+100*7), ll.At(0, 2, -1), "periodic image in y")
	require.Equal(t, float64(7+100*7), ll.At(0, -1, -1), "periodic corner")
	require.Equal(t, float64(4+100*2), ll.At(0, 4, 2), "neighboring patch")
	ur := l.PatchAt(7, 7).Cell(idx)
	require.Equal(t, float64(0+100*5), ur.At(0, 8, 5))
}

func TestFillGhostsWall(t *testing.T) {
	for _, test := range []struct {
		role BCRole
		sign float64
	}{
		{NoSlip, -1},
		{Dirichlet, -1},
		{Neumann, 1},
	} {
		h := testHierarchy(t, 4, 0, Wall, 1)
		idx := cellIndex(h, 1)
		setIndexed(h, idx, 0)
		h.FillGhosts(idx, FillSpec{Role: test.role}, 0, 0)
		cd := h.Level(0).Patches[0].Cell(idx)
		require.Equal(t, test.sign*cd.At(0, 0, 2), cd.At(0, -1, 2))
		require.Equal(t, test.sign*cd.At(0, 3, 1), cd.At(0, 4, 1))
		require.Equal(t, test.sign*cd.At(0, 2, 3), cd.At(0, 2, 4))
		require.Equal(t, cd.At(0, 0, 0), cd.At(0, -1, -1), "the corner is reflected twice")
	}
}

// twoLevels returns a hierarchy with a 8x8 wall-bounded level 0 and a
// level 1 patch covering coarse cells 2 through 5.
func twoLevels(t *testing.T) *Hierarchy {
	t.Helper()
	h := testHierarchy(t, 8, 0, Wall, 2)
	_, _, err := h.MakeLevel(1, []Box{NewBox(4, 4, 11, 11)})
	require.NoError(t, err)
	return h
}

func TestRefineCell(t *testing.T) {
	h := twoLevels(t)
	idx := cellIndex(h, 1)
	linear := func(_ int, x, y float64) float64 { return 2*x - 3*y }
	setCells(h, idx, 0, linear)

	h.RefineCell(idx, Neumann, ConservativeLinearRefine, 1)
	l := h.Level(1)
	p := l.Patches[0]
	for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
		for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
			x, y := l.CellCenter(i, j)
			require.InDelta(t, linear(0, x, y), p.Cell(idx).At(0, i, j), 1e-12)
		}
	}

	h.RefineCell(idx, Neumann, ConstantRefine, 1)
	c := h.Level(0).PatchAt(2, 3).Cell(idx)
	require.Equal(t, c.At(0, 2, 3), p.Cell(idx).At(0, 5, 7))
}

func TestFillGhostsCoarseFine(t *testing.T) {
	h := twoLevels(t)
	idx := cellIndex(h, 1)
	linear := func(_ int, x, y float64) float64 { return x + y }
	setCells(h, idx, 0, linear)
	setCells(h, idx, 1, linear)
	h.FillGhosts(idx, FillSpec{Role: Neumann, Refine: ConservativeLinearRefine}, 0, 1)

	l := h.Level(1)
	cd := l.Patches[0].Cell(idx)
	x, y := l.CellCenter(3, 6)
	require.InDelta(t, linear(0, x, y), cd.At(0, 3, 6), 1e-12)
	x, y = l.CellCenter(7, 12)
	require.InDelta(t, linear(0, x, y), cd.At(0, 7, 12), 1e-12)

	h.FillGhosts(idx, FillSpec{Role: Neumann, HomogeneousCF: true}, 1, 1)
	require.Equal(t, 0.0, cd.At(0, 3, 6))
}

func TestCoarsenCell(t *testing.T) {
	h := twoLevels(t)
	idx := cellIndex(h, 1)
	setCells(h, idx, 0, func(int, float64, float64) float64 { return 1 })
	fine := h.Level(1).Patches[0].Cell(idx)
	fine.Fill(3)
	fine.Set(0, 4, 4, 7)

	h.CoarsenCell(idx, ConservativeCoarsen, 1)
	c := h.Level(0).Patches[0].Cell(idx)
	require.Equal(t, 4.0, c.At(0, 2, 2))
	require.Equal(t, 3.0, c.At(0, 5, 5))
	require.Equal(t, 1.0, c.At(0, 1, 1), "uncovered cells are unchanged")
	require.Equal(t, 1.0, c.At(0, 6, 2))

	h.CoarsenCell(idx, ConstantCoarsen, 1)
	require.Equal(t, 7.0, c.At(0, 2, 2))
}

func TestFaceTransfer(t *testing.T) {
	h := twoLevels(t)
	idx := h.RegisterIndex(Variable{Centering: FaceCentered, Depth: 1})
	h.Allocate(idx, 0, 1)
	cf := h.Level(0).Patches[0].Face(idx)
	for axis := 0; axis < 2; axis++ {
		fb := cf.FaceBox(axis)
		for j := fb.Lo[1]; j <= fb.Hi[1]; j++ {
			for i := fb.Lo[0]; i <= fb.Hi[0]; i++ {
				cf.Set(axis, 0, i, j, float64(i+10*j))
			}
		}
	}

	h.RefineFace(idx, 1)
	ff := h.Level(1).Patches[0].Face(idx)
	require.Equal(t, cf.At(0, 0, 2, 3), ff.At(0, 0, 4, 6), "fine face on a coarse face")
	require.Equal(t, cf.At(0, 0, 2, 3), ff.At(0, 0, 4, 7))
	require.InDelta(t, 0.5*(cf.At(0, 0, 2, 3)+cf.At(0, 0, 3, 3)), ff.At(0, 0, 5, 6), 1e-12)
	require.InDelta(t, 0.5*(cf.At(1, 0, 3, 2)+cf.At(1, 0, 3, 3)), ff.At(1, 0, 6, 5), 1e-12)

	ff.Fill(2)
	h.CoarsenFace(idx, ConservativeCoarsen, 1)
	require.Equal(t, 2.0, cf.At(0, 0, 3, 3))
	require.Equal(t, 2.0, cf.At(1, 0, 4, 5))
	require.Equal(t, float64(2+10*2), cf.At(0, 0, 2, 2), "coarse faces on the coarse-fine interface keep their values")
	require.Equal(t, float64(6+10*3), cf.At(0, 0, 6, 3))
	require.Equal(t, float64(3+10*2), cf.At(1, 0, 3, 2))
	require.Equal(t, float64(1+10*3), cf.At(0, 0, 1, 3), "uncovered faces are unchanged")
}

func TestCopyFromLevel(t *testing.T) {
	h := twoLevels(t)
	idx := cellIndex(h, 1)
	h.Allocate(idx, 1, 1)
	h.Level(1).Patches[0].Cell(idx).Fill(5)
	_, old, err := h.MakeLevel(1, []Box{NewBox(8, 8, 13, 13)})
	require.NoError(t, err)
	h.CopyFromLevel(idx, h.Level(1), old)
	cd := h.Level(1).Patches[0].Cell(idx)
	require.Equal(t, 5.0, cd.At(0, 11, 11))
	require.Equal(t, 0.0, cd.At(0, 12, 12))
}

func TestParseTransfer(t *testing.T) {
	r, err := ParseRefineType("constant_refine")
	require.NoError(t, err)
	require.Equal(t, ConstantRefine, r)
	_, err = ParseRefineType("QUADRATIC_REFINE")
	require.Error(t, err)
	c, err := ParseCoarsenType("CONSTANT_COARSEN")
	require.NoError(t, err)
	require.Equal(t, ConstantCoarsen, c)
	_, err = ParseCoarsenType("bogus")
	require.Error(t, err)
	b, err := ParseBoundaryType("Periodic")
	require.NoError(t, err)
	require.Equal(t, Periodic, b)
}
