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

// Package gridding chooses patch layouts for the levels of an
// adaptive hierarchy from cells tagged for refinement.
package gridding

import (
	"fmt"

	"github.com/spatialmodel/insflow/amr"
)

// BoxTagger covers tagged cells with boxes. Each tagged cell, grown by
// TagBuffer cells, is refined unless it is within one cell of the edge
// of its level, so finer levels stay properly nested.
type BoxTagger struct {
	// TagBuffer is the number of cells added around each tagged cell.
	TagBuffer int
	// LargestPatchSize is the largest number of cells along each axis of
	// a patch. Zero means no limit.
	LargestPatchSize int
}

// CoarsestBoxes covers the whole domain.
func (b *BoxTagger) CoarsestBoxes(h *amr.Hierarchy) []amr.Box {
	g := h.Geometry
	return amr.NewBox(0, 0, g.N[0]-1, g.N[1]-1).Chop(b.LargestPatchSize)
}

// FineBoxes returns the boxes of level ln+1 covering the cells tagged
// with a value above 0.5 in tagIdx on level ln. It returns no boxes if
// no cells are tagged.
func (b *BoxTagger) FineBoxes(h *amr.Hierarchy, ln int, tagIdx amr.DataIndex) ([]amr.Box, error) {
	if ln < 0 || ln > h.FinestLevelNumber() {
		return nil, fmt.Errorf("gridding: level %d is not in the hierarchy", ln)
	}
	if b.TagBuffer < 0 {
		return nil, fmt.Errorf("gridding: TagBuffer=%d but should be >=0", b.TagBuffer)
	}
	if !h.IsAllocated(tagIdx, ln) {
		return nil, fmt.Errorf("gridding: tag data is not allocated on level %d", ln)
	}
	l := h.Level(ln)
	var o []amr.Box
	for _, p := range l.Patches {
		accepted := b.accepted(h, l, p, tagIdx)
		if len(accepted) == 0 {
			continue
		}
		bbox := accepted[0]
		for _, c := range accepted[1:] {
			bbox = union(bbox, c)
		}
		for _, c := range b.cover(h, l, bbox) {
			o = append(o, c.Refine(h.RefineRatio).Chop(b.LargestPatchSize)...)
		}
	}
	return o, nil
}

// accepted returns the single-cell boxes of patch p that lie within
// TagBuffer cells of a tagged cell on the same patch and may be refined.
func (b *BoxTagger) accepted(h *amr.Hierarchy, l *amr.Level, p *amr.Patch, tagIdx amr.DataIndex) []amr.Box {
	tag := p.Cell(tagIdx)
	var o []amr.Box
	seen := make(map[[2]int]bool)
	for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
		for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
			if tag.At(0, i, j) <= 0.5 {
				continue
			}
			grown, ok := amr.NewBox(i, j, i, j).Grow(b.TagBuffer).Intersect(p.Box)
			if !ok {
				continue
			}
			for jj := grown.Lo[1]; jj <= grown.Hi[1]; jj++ {
				for ii := grown.Lo[0]; ii <= grown.Hi[0]; ii++ {
					k := [2]int{ii, jj}
					if seen[k] || !interior(h, l, ii, jj) {
						continue
					}
					seen[k] = true
					o = append(o, amr.NewBox(ii, jj, ii, jj))
				}
			}
		}
	}
	return o
}

// cover returns boxes made only of interior cells that together cover
// every interior cell of bbox.
func (b *BoxTagger) cover(h *amr.Hierarchy, l *amr.Level, bbox amr.Box) []amr.Box {
	whole := true
	for j := bbox.Lo[1]; j <= bbox.Hi[1] && whole; j++ {
		for i := bbox.Lo[0]; i <= bbox.Hi[0]; i++ {
			if !interior(h, l, i, j) {
				whole = false
				break
			}
		}
	}
	if whole {
		return []amr.Box{bbox}
	}
	// Fall back to runs of interior cells along each row.
	var o []amr.Box
	for j := bbox.Lo[1]; j <= bbox.Hi[1]; j++ {
		start := -1
		for i := bbox.Lo[0]; i <= bbox.Hi[0]+1; i++ {
			in := i <= bbox.Hi[0] && interior(h, l, i, j)
			switch {
			case in && start < 0:
				start = i
			case !in && start >= 0:
				o = append(o, amr.NewBox(start, j, i-1, j))
				start = -1
			}
		}
	}
	return o
}

// interior returns whether cell (i, j) of level l and all of its
// neighbors are covered by l. Neighbors outside the domain count as
// covered across walls and are wrapped across periodic boundaries.
func interior(h *amr.Hierarchy, l *amr.Level, i, j int) bool {
	if l.Number == 0 {
		return true
	}
	for dj := -1; dj <= 1; dj++ {
		for di := -1; di <= 1; di++ {
			ii, jj, inside := wrap(h, l, i+di, j+dj)
			if !inside {
				continue
			}
			if l.PatchAt(ii, jj) == nil {
				return false
			}
		}
	}
	return true
}

// wrap maps (i, j) into the domain of l across periodic boundaries. It
// returns false if the cell is outside the domain across a wall.
func wrap(h *amr.Hierarchy, l *amr.Level, i, j int) (int, int, bool) {
	idx := [2]int{i, j}
	for axis := 0; axis < 2; axis++ {
		n := l.Domain.Size(axis)
		if idx[axis] >= 0 && idx[axis] < n {
			continue
		}
		if !h.Geometry.Periodic(axis) {
			return 0, 0, false
		}
		idx[axis] = ((idx[axis] % n) + n) % n
	}
	return idx[0], idx[1], true
}

func union(a, b amr.Box) amr.Box {
	return amr.NewBox(min(a.Lo[0], b.Lo[0]), min(a.Lo[1], b.Lo[1]), max(a.Hi[0], b.Hi[0]), max(a.Hi[1], b.Hi[1]))
}
