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
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// DataIndex identifies one allocated quantity on every patch of the
// hierarchy. Indices are handed out by Hierarchy.RegisterIndex and are
// never reused.
type DataIndex int

// BoundaryType is the kind of physical boundary on one side of the domain.
type BoundaryType int

const (
	// Periodic boundaries wrap to the opposite side.
	Periodic BoundaryType = iota
	// Wall is a no-slip, impermeable wall.
	Wall
)

func (b BoundaryType) String() string {
	switch b {
	case Periodic:
		return "periodic"
	case Wall:
		return "wall"
	default:
		return fmt.Sprintf("BoundaryType(%d)", int(b))
	}
}

// ParseBoundaryType converts a configuration string into a BoundaryType.
func ParseBoundaryType(s string) (BoundaryType, error) {
	switch strings.ToLower(s) {
	case "periodic":
		return Periodic, nil
	case "wall", "no_slip", "noslip":
		return Wall, nil
	default:
		return -1, fmt.Errorf("amr: invalid boundary type %q", s)
	}
}

// Geometry describes the physical domain and the coarsest index space.
type Geometry struct {
	XLo, XUp [2]float64
	// N is the number of cells along each axis on level 0.
	N [2]int
	// Boundary holds the boundary type for [axis][lower, upper].
	Boundary [2][2]BoundaryType
}

// Validate checks that the geometry is usable.
func (g Geometry) Validate() error {
	for axis := 0; axis < 2; axis++ {
		if g.N[axis] <= 0 {
			return fmt.Errorf("amr: geometry: N[%d]=%d but should be >0", axis, g.N[axis])
		}
		if g.XUp[axis] <= g.XLo[axis] {
			return fmt.Errorf("amr: geometry: XUp[%d]=%g should be greater than XLo[%d]=%g",
				axis, g.XUp[axis], axis, g.XLo[axis])
		}
		lo, hi := g.Boundary[axis][0], g.Boundary[axis][1]
		if (lo == Periodic) != (hi == Periodic) {
			return fmt.Errorf("amr: geometry: axis %d has boundaries %s and %s; periodic sides must be paired", axis, lo, hi)
		}
	}
	return nil
}

// Periodic returns whether axis wraps around.
func (g Geometry) Periodic(axis int) bool {
	return g.Boundary[axis][0] == Periodic
}

// Patch is a rectangular block of cells on one level, together with the
// data allocated on it. The embedded polygon is the box outline in index
// space, used by the level's spatial index.
type Patch struct {
	geom.Polygon

	Box    Box
	Level  int
	Number int

	cell map[DataIndex]*CellData
	face map[DataIndex]*FaceData
}

// Cell returns the cell data stored at idx.
func (p *Patch) Cell(idx DataIndex) *CellData {
	c, ok := p.cell[idx]
	if !ok {
		panic(fmt.Errorf("amr: patch %d on level %d has no cell data at index %d", p.Number, p.Level, idx))
	}
	return c
}

// Face returns the face data stored at idx.
func (p *Patch) Face(idx DataIndex) *FaceData {
	f, ok := p.face[idx]
	if !ok {
		panic(fmt.Errorf("amr: patch %d on level %d has no face data at index %d", p.Number, p.Level, idx))
	}
	return f
}

// Has returns whether data is allocated at idx.
func (p *Patch) Has(idx DataIndex) bool {
	_, c := p.cell[idx]
	_, f := p.face[idx]
	return c || f
}

// Level is one refinement level of the hierarchy.
type Level struct {
	Number int
	// Ratio is the refinement ratio relative to level 0.
	Ratio int
	// Domain is the physical domain in this level's index space.
	Domain Box
	Dx     [2]float64
	XLo    [2]float64

	Patches []*Patch

	index     *rtree.Rtree
	allocated map[DataIndex]bool
}

func newLevel(g Geometry, ln, ratio int, boxes []Box) *Level {
	l := &Level{
		Number:    ln,
		Ratio:     ratio,
		Domain:    NewBox(0, 0, g.N[0]*ratio-1, g.N[1]*ratio-1),
		XLo:       g.XLo,
		index:     rtree.NewTree(25, 50),
		allocated: make(map[DataIndex]bool),
	}
	for axis := 0; axis < 2; axis++ {
		l.Dx[axis] = (g.XUp[axis] - g.XLo[axis]) / float64(g.N[axis]*ratio)
	}
	for i, b := range boxes {
		p := &Patch{
			Polygon: b.Polygon(),
			Box:     b,
			Level:   ln,
			Number:  i,
			cell:    make(map[DataIndex]*CellData),
			face:    make(map[DataIndex]*FaceData),
		}
		l.Patches = append(l.Patches, p)
		l.index.Insert(p)
	}
	return l
}

// PatchAt returns the patch containing cell (i, j), or nil.
func (l *Level) PatchAt(i, j int) *Patch {
	for _, pI := range l.index.SearchIntersect(cellBounds(i, j)) {
		p := pI.(*Patch)
		if p.Box.Contains(i, j) {
			return p
		}
	}
	return nil
}

// Overlapping returns the patches that share at least one cell with b,
// in patch order.
func (l *Level) Overlapping(b Box) []*Patch {
	if b.Empty() {
		return nil
	}
	q := b.Bounds()
	q.Min.X += 0.25
	q.Min.Y += 0.25
	q.Max.X -= 0.25
	q.Max.Y -= 0.25
	var o []*Patch
	for _, pI := range l.index.SearchIntersect(q) {
		p := pI.(*Patch)
		if _, ok := p.Box.Intersect(b); ok {
			o = append(o, p)
		}
	}
	sort.Slice(o, func(i, j int) bool { return o[i].Number < o[j].Number })
	return o
}

// Boxes returns the boxes of all patches on the level.
func (l *Level) Boxes() []Box {
	o := make([]Box, len(l.Patches))
	for i, p := range l.Patches {
		o[i] = p.Box
	}
	return o
}

// NumCells returns the number of cells on the level.
func (l *Level) NumCells() int {
	n := 0
	for _, p := range l.Patches {
		n += p.Box.NumCells()
	}
	return n
}

// CoversDomain returns whether the level's patches cover the whole domain.
func (l *Level) CoversDomain() bool {
	return l.NumCells() == l.Domain.NumCells()
}

// CellCenter returns the physical location of the center of cell (i, j).
func (l *Level) CellCenter(i, j int) (x, y float64) {
	return l.XLo[0] + (float64(i)+0.5)*l.Dx[0], l.XLo[1] + (float64(j)+0.5)*l.Dx[1]
}

// ForEachPatch calls f on every patch, spreading patches over
// GOMAXPROCS goroutines. f must only write to data owned by its patch.
func (l *Level) ForEachPatch(f func(p *Patch)) {
	nprocs := min(runtime.GOMAXPROCS(0), len(l.Patches))
	if nprocs <= 1 {
		for _, p := range l.Patches {
			f(p)
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for ii := pp; ii < len(l.Patches); ii += nprocs {
				f(l.Patches[ii])
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
}

// Hierarchy is a stack of successively refined levels over a fixed domain.
type Hierarchy struct {
	Geometry Geometry
	// RefineRatio is the ratio between consecutive levels.
	RefineRatio int
	MaxLevels   int

	levels     []*Level
	vars       []Variable
	generation int
}

// NewHierarchy returns a hierarchy with no levels.
func NewHierarchy(g Geometry, maxLevels int) (*Hierarchy, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if maxLevels < 1 {
		return nil, fmt.Errorf("amr: max levels=%d but should be >=1", maxLevels)
	}
	return &Hierarchy{Geometry: g, RefineRatio: 2, MaxLevels: maxLevels}, nil
}

// RegisterIndex returns a new, never before used data index for v.
func (h *Hierarchy) RegisterIndex(v Variable) DataIndex {
	if v.Depth < 1 {
		v.Depth = 1
	}
	h.vars = append(h.vars, v)
	return DataIndex(len(h.vars) - 1)
}

// Variable returns the variable registered at idx.
func (h *Hierarchy) Variable(idx DataIndex) Variable {
	if int(idx) < 0 || int(idx) >= len(h.vars) {
		panic(fmt.Errorf("amr: unknown data index %d", idx))
	}
	return h.vars[idx]
}

// NumberOfLevels returns the number of levels.
func (h *Hierarchy) NumberOfLevels() int { return len(h.levels) }

// FinestLevelNumber returns the number of the finest level, or -1.
func (h *Hierarchy) FinestLevelNumber() int { return len(h.levels) - 1 }

// Level returns level ln.
func (h *Hierarchy) Level(ln int) *Level { return h.levels[ln] }

// Generation is incremented every time the level structure changes.
func (h *Hierarchy) Generation() int { return h.generation }

func (h *Hierarchy) ratio(ln int) int {
	r := 1
	for i := 0; i < ln; i++ {
		r *= h.RefineRatio
	}
	return r
}

// MakeLevel creates or replaces level ln with patches over boxes and
// returns the level it replaced, if any. Data indices allocated on the
// replaced level are allocated on the new one.
func (h *Hierarchy) MakeLevel(ln int, boxes []Box) (level, oldLevel *Level, err error) {
	if ln < 0 || ln > len(h.levels) || ln >= h.MaxLevels {
		return nil, nil, fmt.Errorf("amr: cannot make level %d in a hierarchy with %d levels (max %d)", ln, len(h.levels), h.MaxLevels)
	}
	if len(boxes) == 0 {
		return nil, nil, fmt.Errorf("amr: level %d needs at least one box", ln)
	}
	l := newLevel(h.Geometry, ln, h.ratio(ln), boxes)
	for i, b := range boxes {
		if b.Empty() || !l.Domain.ContainsBox(b) {
			return nil, nil, fmt.Errorf("amr: box %v is outside level %d domain %v", b, ln, l.Domain)
		}
		for _, o := range boxes[i+1:] {
			if _, overlap := b.Intersect(o); overlap {
				return nil, nil, fmt.Errorf("amr: boxes %v and %v on level %d overlap", b, o, ln)
			}
		}
	}
	if ln == 0 && !l.CoversDomain() {
		return nil, nil, fmt.Errorf("amr: level 0 boxes do not cover the domain %v", l.Domain)
	}
	if ln < len(h.levels) {
		oldLevel = h.levels[ln]
		for idx := range oldLevel.allocated {
			h.allocateOn(l, idx)
		}
		h.levels[ln] = l
	} else {
		h.levels = append(h.levels, l)
	}
	h.generation++
	return l, oldLevel, nil
}

// RemoveFinerLevels removes all levels finer than ln.
func (h *Hierarchy) RemoveFinerLevels(ln int) {
	if ln+1 < len(h.levels) {
		h.levels = h.levels[:ln+1]
		h.generation++
	}
}

func (h *Hierarchy) allocateOn(l *Level, idx DataIndex) {
	v := h.Variable(idx)
	for _, p := range l.Patches {
		switch v.Centering {
		case CellCentered:
			p.cell[idx] = NewCellData(p.Box, v.Depth, v.Ghosts)
		case FaceCentered:
			p.face[idx] = NewFaceData(p.Box, v.Depth)
		}
	}
	l.allocated[idx] = true
}

// Allocate allocates zeroed storage for idx on levels coarsest through
// finest. Levels where idx is already allocated are left alone.
func (h *Hierarchy) Allocate(idx DataIndex, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		l := h.levels[ln]
		if !l.allocated[idx] {
			h.allocateOn(l, idx)
		}
	}
}

// Deallocate frees storage for idx on levels coarsest through finest.
func (h *Hierarchy) Deallocate(idx DataIndex, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		l := h.levels[ln]
		for _, p := range l.Patches {
			delete(p.cell, idx)
			delete(p.face, idx)
		}
		delete(l.allocated, idx)
	}
}

// IsAllocated returns whether idx has storage on level ln.
func (h *Hierarchy) IsAllocated(idx DataIndex, ln int) bool {
	return ln >= 0 && ln < len(h.levels) && h.levels[ln].allocated[idx]
}

// Allocated returns the indices allocated on level ln, sorted.
func (h *Hierarchy) Allocated(ln int) []DataIndex {
	var o []DataIndex
	for idx := range h.levels[ln].allocated {
		o = append(o, idx)
	}
	sort.Slice(o, func(i, j int) bool { return o[i] < o[j] })
	return o
}
