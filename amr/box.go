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

// Package amr holds a two-dimensional block-structured adaptive mesh
// refinement hierarchy: levels of rectangular patches, cell- and
// face-centered patch data, ghost filling, inter-level transfer
// operators and the discrete stencils used by the flow solver.
package amr

import (
	"fmt"

	"github.com/ctessum/geom"
)

// Box is an inclusive rectangle of cell indices on one level.
type Box struct {
	Lo, Hi [2]int
}

// NewBox returns the box spanning cells [ilo, ihi] x [jlo, jhi].
func NewBox(ilo, jlo, ihi, jhi int) Box {
	return Box{Lo: [2]int{ilo, jlo}, Hi: [2]int{ihi, jhi}}
}

// Empty returns whether the box contains no cells.
func (b Box) Empty() bool {
	return b.Hi[0] < b.Lo[0] || b.Hi[1] < b.Lo[1]
}

// Size returns the number of cells along axis.
func (b Box) Size(axis int) int {
	if b.Empty() {
		return 0
	}
	return b.Hi[axis] - b.Lo[axis] + 1
}

// NumCells returns the number of cells in the box.
func (b Box) NumCells() int {
	return b.Size(0) * b.Size(1)
}

// Contains returns whether cell (i, j) is in the box.
func (b Box) Contains(i, j int) bool {
	return i >= b.Lo[0] && i <= b.Hi[0] && j >= b.Lo[1] && j <= b.Hi[1]
}

// ContainsBox returns whether o lies entirely within b.
func (b Box) ContainsBox(o Box) bool {
	return o.Empty() || (b.Contains(o.Lo[0], o.Lo[1]) && b.Contains(o.Hi[0], o.Hi[1]))
}

// Intersect returns the overlap of two boxes and whether it is nonempty.
func (b Box) Intersect(o Box) (Box, bool) {
	r := Box{
		Lo: [2]int{max(b.Lo[0], o.Lo[0]), max(b.Lo[1], o.Lo[1])},
		Hi: [2]int{min(b.Hi[0], o.Hi[0]), min(b.Hi[1], o.Hi[1])},
	}
	return r, !r.Empty()
}

// Grow returns the box extended by n cells on every side.
func (b Box) Grow(n int) Box {
	return Box{
		Lo: [2]int{b.Lo[0] - n, b.Lo[1] - n},
		Hi: [2]int{b.Hi[0] + n, b.Hi[1] + n},
	}
}

// Refine returns the box covering the same region on a level r times finer.
func (b Box) Refine(r int) Box {
	return Box{
		Lo: [2]int{b.Lo[0] * r, b.Lo[1] * r},
		Hi: [2]int{(b.Hi[0]+1)*r - 1, (b.Hi[1]+1)*r - 1},
	}
}

// Coarsen returns the smallest box on a level r times coarser that covers b.
func (b Box) Coarsen(r int) Box {
	return Box{
		Lo: [2]int{floorDiv(b.Lo[0], r), floorDiv(b.Lo[1], r)},
		Hi: [2]int{floorDiv(b.Hi[0], r), floorDiv(b.Hi[1], r)},
	}
}

// Bounds returns the box's extent in index space, with cell (i, j)
// occupying [i, i+1] x [j, j+1].
func (b Box) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: float64(b.Lo[0]), Y: float64(b.Lo[1])},
		Max: geom.Point{X: float64(b.Hi[0] + 1), Y: float64(b.Hi[1] + 1)},
	}
}

// Polygon returns the outline of the box in index space.
func (b Box) Polygon() geom.Polygon {
	lo := geom.Point{X: float64(b.Lo[0]), Y: float64(b.Lo[1])}
	hi := geom.Point{X: float64(b.Hi[0] + 1), Y: float64(b.Hi[1] + 1)}
	return geom.Polygon{{lo, {X: hi.X, Y: lo.Y}, hi, {X: lo.X, Y: hi.Y}}}
}

func (b Box) String() string {
	return fmt.Sprintf("[(%d,%d),(%d,%d)]", b.Lo[0], b.Lo[1], b.Hi[0], b.Hi[1])
}

// Chop splits b into boxes no larger than maxSize cells along each axis.
func (b Box) Chop(maxSize int) []Box {
	if maxSize <= 0 || b.Empty() {
		return []Box{b}
	}
	var o []Box
	for j := b.Lo[1]; j <= b.Hi[1]; j += maxSize {
		for i := b.Lo[0]; i <= b.Hi[0]; i += maxSize {
			o = append(o, NewBox(i, j, min(i+maxSize-1, b.Hi[0]), min(j+maxSize-1, b.Hi[1])))
		}
	}
	return o
}

// cellBounds returns a query rectangle strictly inside cell (i, j).
func cellBounds(i, j int) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: float64(i) + 0.25, Y: float64(j) + 0.25},
		Max: geom.Point{X: float64(i) + 0.75, Y: float64(j) + 0.75},
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
