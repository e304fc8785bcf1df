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

// CoarsenCell replaces cell data idx on level fineLn-1 wherever it is
// covered by level fineLn with the restriction of the fine data.
func (h *Hierarchy) CoarsenCell(idx DataIndex, op CoarsenType, fineLn int) {
	fine := h.levels[fineLn]
	coarse := h.levels[fineLn-1]
	r := h.RefineRatio
	coarse.ForEachPatch(func(cp *Patch) {
		cd := cp.Cell(idx)
		for _, fp := range fine.Overlapping(cp.Box.Refine(r)) {
			overlap, ok := cp.Box.Intersect(fp.Box.Coarsen(r))
			if !ok {
				continue
			}
			for j := overlap.Lo[1]; j <= overlap.Hi[1]; j++ {
				for i := overlap.Lo[0]; i <= overlap.Hi[0]; i++ {
					// The patch holding the lower-left child owns the coarse cell.
					if !fp.Box.Contains(i*r, j*r) {
						continue
					}
					for d := 0; d < cd.depth; d++ {
						v, ok := h.restrictCell(fine, idx, op, d, i, j)
						if ok {
							cd.Set(d, i, j, v)
						}
					}
				}
			}
		}
	})
}

func (h *Hierarchy) restrictCell(fine *Level, idx DataIndex, op CoarsenType, d, ic, jc int) (float64, bool) {
	r := h.RefineRatio
	if op == ConstantCoarsen {
		p := fine.PatchAt(ic*r, jc*r)
		return p.Cell(idx).At(d, ic*r, jc*r), true
	}
	sum := 0.0
	for jj := jc * r; jj < (jc+1)*r; jj++ {
		for ii := ic * r; ii < (ic+1)*r; ii++ {
			p := fine.PatchAt(ii, jj)
			if p == nil {
				return 0, false
			}
			sum += p.Cell(idx).At(d, ii, jj)
		}
	}
	return sum / float64(r*r), true
}

// CoarsenFace replaces face data idx on level fineLn-1 on faces whose
// two neighbouring coarse cells are both covered by level fineLn, using
// the average of the fine faces (or the first fine face for
// ConstantCoarsen). Faces on the coarse-fine interface keep their coarse
// values so that uncovered coarse cells keep the fluxes of their own
// level.
func (h *Hierarchy) CoarsenFace(idx DataIndex, op CoarsenType, fineLn int) {
	fine := h.levels[fineLn]
	coarse := h.levels[fineLn-1]
	r := h.RefineRatio
	coarse.ForEachPatch(func(cp *Patch) {
		fd := cp.Face(idx)
		if len(fine.Overlapping(cp.Box.Refine(r).Grow(1))) == 0 {
			return
		}
		for axis := 0; axis < 2; axis++ {
			other := (axis + 1) % 2
			fb := fd.FaceBox(axis)
			for d := 0; d < fd.depth; d++ {
				for j := fb.Lo[1]; j <= fb.Hi[1]; j++ {
				faces:
					for i := fb.Lo[0]; i <= fb.Hi[0]; i++ {
						lower := [2]int{i, j}
						lower[axis]--
						if !h.covered(fine, coarse, lower) || !h.covered(fine, coarse, [2]int{i, j}) {
							continue
						}
						n := r
						if op == ConstantCoarsen {
							n = 1
						}
						sum := 0.0
						for k := 0; k < n; k++ {
							f := [2]int{i * r, j * r}
							f[other] += k
							v, ok := h.faceOn(fine, idx, axis, d, f[0], f[1])
							if !ok {
								continue faces
							}
							sum += v
						}
						fd.Set(axis, d, i, j, sum/float64(n))
					}
				}
			}
		}
	})
}

// covered returns whether every child of coarse cell c is on level fine.
// Cells outside a non-periodic domain are not covered.
func (h *Hierarchy) covered(fine, coarse *Level, c [2]int) bool {
	for axis := 0; axis < 2; axis++ {
		n := coarse.Domain.Hi[axis] + 1
		if h.Geometry.Periodic(axis) {
			c[axis] = floorMod(c[axis], n)
		} else if c[axis] < 0 || c[axis] >= n {
			return false
		}
	}
	r := h.RefineRatio
	for jj := c[1] * r; jj < (c[1]+1)*r; jj++ {
		for ii := c[0] * r; ii < (c[0]+1)*r; ii++ {
			if fine.PatchAt(ii, jj) == nil {
				return false
			}
		}
	}
	return true
}
