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

	"gonum.org/v1/gonum/floats"
)

// levelRange holds the levels an arithmetic adapter acts on. A negative
// finest level means "the finest level currently in the hierarchy".
type levelRange struct {
	h                *Hierarchy
	coarsest, finest int
}

// ResetLevels restricts subsequent operations to levels coarsest
// through finest. ResetLevels(0, -1) tracks the whole hierarchy.
func (r *levelRange) ResetLevels(coarsest, finest int) {
	r.coarsest, r.finest = coarsest, finest
}

func (r *levelRange) levels() (int, int) {
	if r.finest < 0 {
		return r.coarsest, r.h.FinestLevelNumber()
	}
	return r.coarsest, r.finest
}

func (r *levelRange) forEach(f func(p *Patch)) {
	c, fn := r.levels()
	for ln := c; ln <= fn; ln++ {
		r.h.levels[ln].ForEachPatch(f)
	}
}

// covered returns whether cell (i, j) on level ln lies under level ln+1.
func (r *levelRange) covered(ln, fn, i, j int) bool {
	if ln >= fn {
		return false
	}
	rr := r.h.RefineRatio
	return r.h.levels[ln+1].PatchAt(i*rr, j*rr) != nil
}

// CellDataOps applies arithmetic to cell-centered data on every patch of
// a range of levels.
type CellDataOps struct {
	levelRange
}

// NewCellDataOps returns arithmetic over all levels of h.
func NewCellDataOps(h *Hierarchy) *CellDataOps {
	return &CellDataOps{levelRange{h: h, finest: -1}}
}

func sameLayout(a, b *CellData) {
	if len(a.Data.Elements) != len(b.Data.Elements) {
		panic(fmt.Errorf("amr: mismatched cell data layouts %v/%d and %v/%d", a.box, a.depth, b.box, b.depth))
	}
}

// LinearSum sets dst = a*x + b*y, ghosts included.
func (o *CellDataOps) LinearSum(dst DataIndex, a float64, x DataIndex, b float64, y DataIndex) {
	o.forEach(func(p *Patch) {
		d, xd, yd := p.Cell(dst), p.Cell(x), p.Cell(y)
		sameLayout(d, xd)
		sameLayout(d, yd)
		switch {
		case x == y:
			floats.ScaleTo(d.Data.Elements, a+b, xd.Data.Elements)
			return
		case dst == y:
			floats.Scale(b, d.Data.Elements)
			floats.AddScaled(d.Data.Elements, a, xd.Data.Elements)
			return
		}
		floats.ScaleTo(d.Data.Elements, a, xd.Data.Elements)
		floats.AddScaled(d.Data.Elements, b, yd.Data.Elements)
	})
}

// Axpy sets dst = a*x + y.
func (o *CellDataOps) Axpy(dst DataIndex, a float64, x, y DataIndex) {
	o.LinearSum(dst, a, x, 1, y)
}

// Scale sets dst = a*src.
func (o *CellDataOps) Scale(dst DataIndex, a float64, src DataIndex) {
	o.forEach(func(p *Patch) {
		d, s := p.Cell(dst), p.Cell(src)
		sameLayout(d, s)
		floats.ScaleTo(d.Data.Elements, a, s.Data.Elements)
	})
}

// Copy sets dst = src.
func (o *CellDataOps) Copy(dst, src DataIndex) {
	o.forEach(func(p *Patch) {
		d, s := p.Cell(dst), p.Cell(src)
		sameLayout(d, s)
		copy(d.Data.Elements, s.Data.Elements)
	})
}

// SetToScalar sets every value of dst, ghosts included, to v.
func (o *CellDataOps) SetToScalar(dst DataIndex, v float64) {
	o.forEach(func(p *Patch) { p.Cell(dst).Fill(v) })
}

// reduce calls f with the interior value and cell volume of every cell
// not covered by a finer level, in a fixed order.
func (o *CellDataOps) reduce(idx DataIndex, d int, f func(v, vol float64)) {
	c, fn := o.levels()
	for ln := c; ln <= fn; ln++ {
		l := o.h.levels[ln]
		vol := l.Dx[0] * l.Dx[1]
		for _, p := range l.Patches {
			cd := p.Cell(idx)
			for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
				for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
					if o.covered(ln, fn, i, j) {
						continue
					}
					if d >= 0 {
						f(cd.At(d, i, j), vol)
						continue
					}
					for dd := 0; dd < cd.depth; dd++ {
						f(cd.At(dd, i, j), vol)
					}
				}
			}
		}
	}
}

// MaxNorm returns the largest absolute interior value of idx over all
// components.
func (o *CellDataOps) MaxNorm(idx DataIndex) float64 {
	m := 0.0
	o.reduce(idx, -1, func(v, _ float64) { m = math.Max(m, math.Abs(v)) })
	return m
}

// L1Norm returns the volume-weighted L1 norm of idx on the composite grid.
func (o *CellDataOps) L1Norm(idx DataIndex) float64 {
	s := 0.0
	o.reduce(idx, -1, func(v, vol float64) { s += math.Abs(v) * vol })
	return s
}

// L2Norm returns the volume-weighted L2 norm of idx on the composite grid.
func (o *CellDataOps) L2Norm(idx DataIndex) float64 {
	s := 0.0
	o.reduce(idx, -1, func(v, vol float64) { s += v * v * vol })
	return math.Sqrt(s)
}

// Integral returns the integral of component d of idx over the composite grid.
func (o *CellDataOps) Integral(idx DataIndex, d int) float64 {
	s := 0.0
	o.reduce(idx, d, func(v, vol float64) { s += v * vol })
	return s
}

// Dot returns the volume-weighted inner product of x and y on the
// composite grid.
func (o *CellDataOps) Dot(x, y DataIndex) float64 {
	var xs, ws []float64
	o.reduce(x, -1, func(v, vol float64) {
		xs = append(xs, v)
		ws = append(ws, vol)
	})
	var ys []float64
	o.reduce(y, -1, func(v, _ float64) { ys = append(ys, v) })
	floats.Mul(xs, ws)
	return floats.Dot(xs, ys)
}

// FaceDataOps applies arithmetic to face-centered data on every patch of
// a range of levels.
type FaceDataOps struct {
	levelRange
}

// NewFaceDataOps returns arithmetic over all levels of h.
func NewFaceDataOps(h *Hierarchy) *FaceDataOps {
	return &FaceDataOps{levelRange{h: h, finest: -1}}
}

// LinearSum sets dst = a*x + b*y.
func (o *FaceDataOps) LinearSum(dst DataIndex, a float64, x DataIndex, b float64, y DataIndex) {
	o.forEach(func(p *Patch) {
		d, xd, yd := p.Face(dst), p.Face(x), p.Face(y)
		for axis := 0; axis < 2; axis++ {
			switch {
			case x == y:
				floats.ScaleTo(d.Data[axis].Elements, a+b, xd.Data[axis].Elements)
				continue
			case dst == y:
				floats.Scale(b, d.Data[axis].Elements)
				floats.AddScaled(d.Data[axis].Elements, a, xd.Data[axis].Elements)
				continue
			}
			floats.ScaleTo(d.Data[axis].Elements, a, xd.Data[axis].Elements)
			floats.AddScaled(d.Data[axis].Elements, b, yd.Data[axis].Elements)
		}
	})
}

// Axpy sets dst = a*x + y.
func (o *FaceDataOps) Axpy(dst DataIndex, a float64, x, y DataIndex) {
	o.LinearSum(dst, a, x, 1, y)
}

// Copy sets dst = src.
func (o *FaceDataOps) Copy(dst, src DataIndex) {
	o.forEach(func(p *Patch) {
		d, s := p.Face(dst), p.Face(src)
		for axis := 0; axis < 2; axis++ {
			copy(d.Data[axis].Elements, s.Data[axis].Elements)
		}
	})
}

// SetToScalar sets every face value of dst to v.
func (o *FaceDataOps) SetToScalar(dst DataIndex, v float64) {
	o.forEach(func(p *Patch) { p.Face(dst).Fill(v) })
}

// MaxNorm returns the largest absolute face value of idx.
func (o *FaceDataOps) MaxNorm(idx DataIndex) float64 {
	m := 0.0
	c, fn := o.levels()
	for ln := c; ln <= fn; ln++ {
		for _, p := range o.h.levels[ln].Patches {
			f := p.Face(idx)
			for axis := 0; axis < 2; axis++ {
				if len(f.Data[axis].Elements) == 0 {
					continue
				}
				m = math.Max(m, math.Max(floats.Max(f.Data[axis].Elements), -floats.Min(f.Data[axis].Elements)))
			}
		}
	}
	return m
}

// AxisMax returns the largest absolute value on faces normal to axis of
// one patch.
func AxisMax(f *FaceData, axis int) float64 {
	e := f.Data[axis].Elements
	if len(e) == 0 {
		return 0
	}
	return math.Max(floats.Max(e), -floats.Min(e))
}
