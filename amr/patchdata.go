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

	"github.com/ctessum/sparse"
)

// Centering is the location of data within a cell.
type Centering int

const (
	// CellCentered data has one value per cell.
	CellCentered Centering = iota
	// FaceCentered data has one value per face, holding the
	// component normal to that face.
	FaceCentered
)

func (c Centering) String() string {
	switch c {
	case CellCentered:
		return "cell"
	case FaceCentered:
		return "face"
	default:
		return fmt.Sprintf("Centering(%d)", int(c))
	}
}

// Variable describes the layout of a quantity stored on the hierarchy.
type Variable struct {
	Name      string
	Centering Centering
	// Depth is the number of components per location.
	Depth int
	// Ghosts is the ghost cell width of cell-centered data.
	Ghosts int
}

// CellData holds cell-centered values for one patch, including a ghost
// region. Indices are level (global) cell indices.
type CellData struct {
	box    Box
	ghosts int
	depth  int
	nx, ny int

	// Data is laid out as [depth][j][i] over the ghost box.
	Data *sparse.DenseArray
}

// NewCellData allocates zeroed cell data over box plus ghosts.
func NewCellData(box Box, depth, ghosts int) *CellData {
	nx := box.Size(0) + 2*ghosts
	ny := box.Size(1) + 2*ghosts
	return &CellData{
		box:    box,
		ghosts: ghosts,
		depth:  depth,
		nx:     nx,
		ny:     ny,
		Data:   sparse.ZerosDense(depth, ny, nx),
	}
}

// Box returns the interior box.
func (c *CellData) Box() Box { return c.box }

// GhostBox returns the interior box grown by the ghost width.
func (c *CellData) GhostBox() Box { return c.box.Grow(c.ghosts) }

// Depth returns the number of components.
func (c *CellData) Depth() int { return c.depth }

// Ghosts returns the ghost width.
func (c *CellData) Ghosts() int { return c.ghosts }

func (c *CellData) offset(d, i, j int) int {
	ii := i - c.box.Lo[0] + c.ghosts
	jj := j - c.box.Lo[1] + c.ghosts
	if d < 0 || d >= c.depth || ii < 0 || ii >= c.nx || jj < 0 || jj >= c.ny {
		panic(fmt.Errorf("amr: cell index (%d; %d,%d) out of range for %v with %d ghosts", d, i, j, c.box, c.ghosts))
	}
	return (d*c.ny+jj)*c.nx + ii
}

// At returns component d at cell (i, j).
func (c *CellData) At(d, i, j int) float64 { return c.Data.Elements[c.offset(d, i, j)] }

// Set sets component d at cell (i, j).
func (c *CellData) Set(d, i, j int, v float64) { c.Data.Elements[c.offset(d, i, j)] = v }

// Add adds v to component d at cell (i, j).
func (c *CellData) Add(d, i, j int, v float64) { c.Data.Elements[c.offset(d, i, j)] += v }

// Fill sets every value, ghosts included, to v.
func (c *CellData) Fill(v float64) {
	for i := range c.Data.Elements {
		c.Data.Elements[i] = v
	}
}

// CopyFrom copies the overlap of src's interior into c's ghost box.
func (c *CellData) CopyFrom(src *CellData) {
	overlap, ok := c.GhostBox().Intersect(src.box)
	if !ok {
		return
	}
	for d := 0; d < min(c.depth, src.depth); d++ {
		for j := overlap.Lo[1]; j <= overlap.Hi[1]; j++ {
			for i := overlap.Lo[0]; i <= overlap.Hi[0]; i++ {
				c.Set(d, i, j, src.At(d, i, j))
			}
		}
	}
}

// FaceData holds face-normal values for one patch. Data[axis] holds the
// faces normal to axis; face i along axis 0 is the left face of cell i.
type FaceData struct {
	box   Box
	depth int
	n     [2][2]int

	Data [2]*sparse.DenseArray
}

// NewFaceData allocates zeroed face data over the faces of box.
func NewFaceData(box Box, depth int) *FaceData {
	f := &FaceData{box: box, depth: depth}
	for axis := 0; axis < 2; axis++ {
		nx, ny := box.Size(0), box.Size(1)
		if axis == 0 {
			nx++
		} else {
			ny++
		}
		f.n[axis] = [2]int{nx, ny}
		f.Data[axis] = sparse.ZerosDense(depth, ny, nx)
	}
	return f
}

// Box returns the cell box whose faces are stored.
func (f *FaceData) Box() Box { return f.box }

// Depth returns the number of components.
func (f *FaceData) Depth() int { return f.depth }

// FaceBox returns the index range of faces normal to axis.
func (f *FaceData) FaceBox(axis int) Box {
	b := f.box
	b.Hi[axis]++
	return b
}

func (f *FaceData) offset(axis, d, i, j int) int {
	ii := i - f.box.Lo[0]
	jj := j - f.box.Lo[1]
	nx, ny := f.n[axis][0], f.n[axis][1]
	if d < 0 || d >= f.depth || ii < 0 || ii >= nx || jj < 0 || jj >= ny {
		panic(fmt.Errorf("amr: face index (%d; %d; %d,%d) out of range for %v", axis, d, i, j, f.box))
	}
	return (d*ny+jj)*nx + ii
}

// At returns component d on face (i, j) normal to axis.
func (f *FaceData) At(axis, d, i, j int) float64 {
	return f.Data[axis].Elements[f.offset(axis, d, i, j)]
}

// Set sets component d on face (i, j) normal to axis.
func (f *FaceData) Set(axis, d, i, j int, v float64) {
	f.Data[axis].Elements[f.offset(axis, d, i, j)] = v
}

// Fill sets every value to v.
func (f *FaceData) Fill(v float64) {
	for axis := 0; axis < 2; axis++ {
		for i := range f.Data[axis].Elements {
			f.Data[axis].Elements[i] = v
		}
	}
}

// CopyFrom copies overlapping faces from src.
func (f *FaceData) CopyFrom(src *FaceData) {
	for axis := 0; axis < 2; axis++ {
		overlap, ok := f.FaceBox(axis).Intersect(src.FaceBox(axis))
		if !ok {
			continue
		}
		for d := 0; d < min(f.depth, src.depth); d++ {
			for j := overlap.Lo[1]; j <= overlap.Hi[1]; j++ {
				for i := overlap.Lo[0]; i <= overlap.Hi[0]; i++ {
					f.Set(axis, d, i, j, src.At(axis, d, i, j))
				}
			}
		}
	}
}
