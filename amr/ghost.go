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
	"fmt"
	"math"
	"strings"
)

// BCRole selects how ghost cells outside a wall boundary are filled.
// Periodic boundaries always wrap regardless of role.
type BCRole int

const (
	// NoSlip fills velocity ghosts so the wall value is zero.
	NoSlip BCRole = iota
	// Neumann fills scalar ghosts so the normal derivative is zero.
	Neumann
	// Dirichlet fills scalar ghosts so the wall value is zero.
	Dirichlet
)

func (r BCRole) reflect() float64 {
	if r == Neumann {
		return 1
	}
	return -1
}

// RefineType is the interpolation used to fill fine data from coarse data.
type RefineType int

const (
	// ConstantRefine copies the coarse value to each fine child.
	ConstantRefine RefineType = iota
	// ConservativeLinearRefine adds minmod limited slopes to the coarse value.
	ConservativeLinearRefine
)

func (r RefineType) String() string {
	switch r {
	case ConstantRefine:
		return "CONSTANT_REFINE"
	case ConservativeLinearRefine:
		return "CONSERVATIVE_LINEAR_REFINE"
	default:
		return fmt.Sprintf("RefineType(%d)", int(r))
	}
}

// ParseRefineType converts a configuration string into a RefineType.
func ParseRefineType(s string) (RefineType, error) {
	switch strings.ToUpper(s) {
	case "CONSTANT_REFINE":
		return ConstantRefine, nil
	case "CONSERVATIVE_LINEAR_REFINE", "":
		return ConservativeLinearRefine, nil
	default:
		return -1, fmt.Errorf("amr: invalid refine operator type %q", s)
	}
}

// CoarsenType is the restriction used to fill coarse data from fine data.
type CoarsenType int

const (
	// ConservativeCoarsen averages the fine children.
	ConservativeCoarsen CoarsenType = iota
	// ConstantCoarsen injects the lower-left fine child.
	ConstantCoarsen
)

func (c CoarsenType) String() string {
	switch c {
	case ConservativeCoarsen:
		return "CONSERVATIVE_COARSEN"
	case ConstantCoarsen:
		return "CONSTANT_COARSEN"
	default:
		return fmt.Sprintf("CoarsenType(%d)", int(c))
	}
}

// ParseCoarsenType converts a configuration string into a CoarsenType.
func ParseCoarsenType(s string) (CoarsenType, error) {
	switch strings.ToUpper(s) {
	case "CONSERVATIVE_COARSEN", "":
		return ConservativeCoarsen, nil
	case "CONSTANT_COARSEN":
		return ConstantCoarsen, nil
	default:
		return -1, fmt.Errorf("amr: invalid coarsen operator type %q", s)
	}
}

// FillSpec describes how ghost cells of one quantity are filled.
type FillSpec struct {
	Role   BCRole
	Refine RefineType
	// HomogeneousCF sets ghost cells at coarse-fine interfaces to zero
	// instead of interpolating coarse data.
	HomogeneousCF bool
}

// FillGhosts fills the ghost cells of cell data idx on levels coarsest
// through finest. Ghosts are taken, in order of preference, from the
// periodic image, the wall reflection, a neighboring patch on the same
// level, or interpolation from the next coarser level.
func (h *Hierarchy) FillGhosts(idx DataIndex, s FillSpec, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		h.levels[ln].ForEachPatch(func(p *Patch) {
			cd := p.Cell(idx)
			gb := cd.GhostBox()
			for j := gb.Lo[1]; j <= gb.Hi[1]; j++ {
				for i := gb.Lo[0]; i <= gb.Hi[0]; i++ {
					if p.Box.Contains(i, j) {
						continue
					}
					for d := 0; d < cd.depth; d++ {
						cd.Set(d, i, j, h.cellValue(idx, s, ln, d, i, j))
					}
				}
			}
		})
	}
}

// cellValue returns the value of component d of idx at cell (i, j) of
// level ln, which may lie outside the patches or the domain.
func (h *Hierarchy) cellValue(idx DataIndex, s FillSpec, ln, d, i, j int) float64 {
	l := h.levels[ln]
	sign := 1.0
	c := [2]int{i, j}
	for axis := 0; axis < 2; axis++ {
		n := l.Domain.Hi[axis] + 1
		if c[axis] >= 0 && c[axis] < n {
			continue
		}
		if h.Geometry.Periodic(axis) {
			c[axis] = floorMod(c[axis], n)
			continue
		}
		if c[axis] < 0 {
			c[axis] = -1 - c[axis]
		} else {
			c[axis] = 2*n - 1 - c[axis]
		}
		sign *= s.Role.reflect()
	}
	if p := l.PatchAt(c[0], c[1]); p != nil {
		return sign * p.Cell(idx).At(d, c[0], c[1])
	}
	if ln == 0 {
		panic(fmt.Errorf("amr: cell (%d,%d) is not covered by level 0", c[0], c[1]))
	}
	if s.HomogeneousCF {
		return 0
	}
	return sign * h.interpolate(idx, s.Role, s.Refine, ln, d, c[0], c[1])
}

// interpolate returns the value at fine cell (i, j) of level ln
// interpolated from level ln-1.
func (h *Hierarchy) interpolate(idx DataIndex, role BCRole, refine RefineType, ln, d, i, j int) float64 {
	r := h.RefineRatio
	cs := FillSpec{Role: role, Refine: refine}
	ic, jc := floorDiv(i, r), floorDiv(j, r)
	vc := h.cellValue(idx, cs, ln-1, d, ic, jc)
	if refine == ConstantRefine {
		return vc
	}
	xi := (float64(i-ic*r)+0.5)/float64(r) - 0.5
	eta := (float64(j-jc*r)+0.5)/float64(r) - 0.5
	sx := minmod(h.cellValue(idx, cs, ln-1, d, ic+1, jc)-vc, vc-h.cellValue(idx, cs, ln-1, d, ic-1, jc))
	sy := minmod(h.cellValue(idx, cs, ln-1, d, ic, jc+1)-vc, vc-h.cellValue(idx, cs, ln-1, d, ic, jc-1))
	return vc + sx*xi + sy*eta
}

func minmod(a, b float64) float64 {
	if a*b <= 0 {
		return 0
	}
	if math.Abs(a) < math.Abs(b) {
		return a
	}
	return b
}

// CopyFromLevel copies data idx from the interiors of src onto the
// overlapping region of dst. Both levels must have the same index space.
func (h *Hierarchy) CopyFromLevel(idx DataIndex, dst, src *Level) {
	dst.ForEachPatch(func(p *Patch) {
		for _, sp := range src.Overlapping(p.Box) {
			if !sp.Has(idx) {
				continue
			}
			switch h.Variable(idx).Centering {
			case CellCentered:
				cd := p.Cell(idx)
				scd := sp.Cell(idx)
				overlap, _ := p.Box.Intersect(sp.Box)
				for d := 0; d < cd.depth; d++ {
					for j := overlap.Lo[1]; j <= overlap.Hi[1]; j++ {
						for i := overlap.Lo[0]; i <= overlap.Hi[0]; i++ {
							cd.Set(d, i, j, scd.At(d, i, j))
						}
					}
				}
			case FaceCentered:
				p.Face(idx).CopyFrom(sp.Face(idx))
			}
		}
	})
}

// RefineCell fills the interior of cell data idx on level ln by
// interpolating from level ln-1.
func (h *Hierarchy) RefineCell(idx DataIndex, role BCRole, refine RefineType, ln int) {
	h.levels[ln].ForEachPatch(func(p *Patch) {
		cd := p.Cell(idx)
		for d := 0; d < cd.depth; d++ {
			for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
				for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
					cd.Set(d, i, j, h.interpolate(idx, role, refine, ln, d, i, j))
				}
			}
		}
	})
}

// faceOn returns the value on face (i, j) normal to axis held by some
// patch of l, wrapping periodic indices.
func (h *Hierarchy) faceOn(l *Level, idx DataIndex, axis, d, i, j int) (float64, bool) {
	c := [2]int{i, j}
	n := l.Domain.Hi[axis] + 1
	other := (axis + 1) % 2
	if h.Geometry.Periodic(other) {
		c[other] = floorMod(c[other], l.Domain.Hi[other]+1)
	}
	// The face is the lower face of cell c and the upper face of cell c-1.
	for k := 0; k < 2; k++ {
		cc := c
		cc[axis] -= k
		if h.Geometry.Periodic(axis) {
			cc[axis] = floorMod(cc[axis], n)
		}
		p := l.PatchAt(cc[0], cc[1])
		if p == nil {
			continue
		}
		fi := cc
		fi[axis] += k
		return p.Face(idx).At(axis, d, fi[0], fi[1]), true
	}
	return 0, false
}

// faceValue returns the value on face (i, j) normal to axis of level ln,
// interpolating from coarser levels where ln has no data.
func (h *Hierarchy) faceValue(idx DataIndex, ln, axis, d, i, j int) float64 {
	if v, ok := h.faceOn(h.levels[ln], idx, axis, d, i, j); ok {
		return v
	}
	if ln == 0 {
		panic(fmt.Errorf("amr: face (%d; %d,%d) is not covered by level 0", axis, i, j))
	}
	return h.refineFaceValue(idx, ln, axis, d, i, j)
}

// refineFaceValue interpolates face (i, j) of level ln from level ln-1.
// Fine faces lying on a coarse face take its value; the others are
// linear in the normal direction between the two bracketing coarse faces.
func (h *Hierarchy) refineFaceValue(idx DataIndex, ln, axis, d, i, j int) float64 {
	r := h.RefineRatio
	c := [2]int{i, j}
	cc := [2]int{floorDiv(i, r), floorDiv(j, r)}
	lo := h.faceValue(idx, ln-1, axis, d, cc[0], cc[1])
	rem := c[axis] - cc[axis]*r
	if rem == 0 {
		return lo
	}
	up := cc
	up[axis]++
	w := float64(rem) / float64(r)
	return (1-w)*lo + w*h.faceValue(idx, ln-1, axis, d, up[0], up[1])
}

// RefineFace fills face data idx on level ln by interpolating the
// normal component linearly between coarse faces.
func (h *Hierarchy) RefineFace(idx DataIndex, ln int) {
	h.levels[ln].ForEachPatch(func(p *Patch) {
		fd := p.Face(idx)
		for axis := 0; axis < 2; axis++ {
			fb := fd.FaceBox(axis)
			for d := 0; d < fd.depth; d++ {
				for j := fb.Lo[1]; j <= fb.Hi[1]; j++ {
					for i := fb.Lo[0]; i <= fb.Hi[0]; i++ {
						fd.Set(axis, d, i, j, h.refineFaceValue(idx, ln, axis, d, i, j))
					}
				}
			}
		}
	})
}
