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

// The stencils below act on the interiors of levels coarsest through
// finest. Cell-centered inputs must have their ghost cells filled first.

// Laplacian sets dst = alpha*src + beta*∇²src componentwise using the
// five-point stencil.
func Laplacian(h *Hierarchy, dst, src DataIndex, alpha, beta float64, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		l := h.levels[ln]
		rdx2 := 1 / (l.Dx[0] * l.Dx[0])
		rdy2 := 1 / (l.Dx[1] * l.Dx[1])
		l.ForEachPatch(func(p *Patch) {
			o, s := p.Cell(dst), p.Cell(src)
			for d := 0; d < o.depth; d++ {
				for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
					for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
						c := s.At(d, i, j)
						lap := (s.At(d, i-1, j)-2*c+s.At(d, i+1, j))*rdx2 +
							(s.At(d, i, j-1)-2*c+s.At(d, i, j+1))*rdy2
						o.Set(d, i, j, alpha*c+beta*lap)
					}
				}
			}
		})
	}
}

// DivergenceFace sets dst = alpha*∇·u for face-centered u (the MAC
// divergence).
func DivergenceFace(h *Hierarchy, dst, u DataIndex, alpha float64, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		l := h.levels[ln]
		l.ForEachPatch(func(p *Patch) {
			o, f := p.Cell(dst), p.Face(u)
			for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
				for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
					div := (f.At(0, 0, i+1, j)-f.At(0, 0, i, j))/l.Dx[0] +
						(f.At(1, 0, i, j+1)-f.At(1, 0, i, j))/l.Dx[1]
					o.Set(0, i, j, alpha*div)
				}
			}
		})
	}
}

// DivergenceCell sets dst = alpha*∇·U for cell-centered vector U using
// centered differences.
func DivergenceCell(h *Hierarchy, dst, u DataIndex, alpha float64, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		l := h.levels[ln]
		l.ForEachPatch(func(p *Patch) {
			o, c := p.Cell(dst), p.Cell(u)
			for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
				for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
					div := (c.At(0, i+1, j)-c.At(0, i-1, j))/(2*l.Dx[0]) +
						(c.At(1, i, j+1)-c.At(1, i, j-1))/(2*l.Dx[1])
					o.Set(0, i, j, alpha*div)
				}
			}
		})
	}
}

// GradientFace sets the face-centered dst = alpha*∇s for cell-centered
// scalar s.
func GradientFace(h *Hierarchy, dst, s DataIndex, alpha float64, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		l := h.levels[ln]
		l.ForEachPatch(func(p *Patch) {
			o, c := p.Face(dst), p.Cell(s)
			for axis := 0; axis < 2; axis++ {
				fb := o.FaceBox(axis)
				for j := fb.Lo[1]; j <= fb.Hi[1]; j++ {
					for i := fb.Lo[0]; i <= fb.Hi[0]; i++ {
						im, jm := i, j
						if axis == 0 {
							im--
						} else {
							jm--
						}
						o.Set(axis, 0, i, j, alpha*(c.At(0, i, j)-c.At(0, im, jm))/l.Dx[axis])
					}
				}
			}
		})
	}
}

// GradientCell sets the two-component cell-centered dst = alpha*∇s using
// centered differences.
func GradientCell(h *Hierarchy, dst, s DataIndex, alpha float64, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		l := h.levels[ln]
		l.ForEachPatch(func(p *Patch) {
			o, c := p.Cell(dst), p.Cell(s)
			for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
				for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
					o.Set(0, i, j, alpha*(c.At(0, i+1, j)-c.At(0, i-1, j))/(2*l.Dx[0]))
					o.Set(1, i, j, alpha*(c.At(0, i, j+1)-c.At(0, i, j-1))/(2*l.Dx[1]))
				}
			}
		})
	}
}

// InterpolateToFaces sets the face-normal components of dst to the
// average of the adjacent cell values of the cell-centered vector u.
func InterpolateToFaces(h *Hierarchy, dst, u DataIndex, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		h.levels[ln].ForEachPatch(func(p *Patch) {
			o, c := p.Face(dst), p.Cell(u)
			for axis := 0; axis < 2; axis++ {
				fb := o.FaceBox(axis)
				for j := fb.Lo[1]; j <= fb.Hi[1]; j++ {
					for i := fb.Lo[0]; i <= fb.Hi[0]; i++ {
						im, jm := i, j
						if axis == 0 {
							im--
						} else {
							jm--
						}
						o.Set(axis, 0, i, j, 0.5*(c.At(axis, i, j)+c.At(axis, im, jm)))
					}
				}
			}
		})
	}
}

// Curl sets the scalar dst to the out-of-plane vorticity
// ∂u_y/∂x - ∂u_x/∂y of the cell-centered vector u.
func Curl(h *Hierarchy, dst, u DataIndex, coarsest, finest int) {
	for ln := coarsest; ln <= finest; ln++ {
		l := h.levels[ln]
		l.ForEachPatch(func(p *Patch) {
			o, c := p.Cell(dst), p.Cell(u)
			for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
				for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
					o.Set(0, i, j, (c.At(1, i+1, j)-c.At(1, i-1, j))/(2*l.Dx[0])-
						(c.At(0, i, j+1)-c.At(0, i, j-1))/(2*l.Dx[1]))
				}
			}
		})
	}
}
