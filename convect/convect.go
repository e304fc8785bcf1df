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

// Package convect computes the convective term of the momentum equation
// for a cell-centered velocity advected by a face-centered velocity.
package convect

import (
	"fmt"
	"strings"

	"github.com/ctessum/atmos/advect"

	"github.com/spatialmodel/insflow/amr"
)

// Type is the spatial discretization of the face fluxes.
type Type int

const (
	// Centered uses the average of the two adjacent cells.
	Centered Type = iota
	// Upwind uses the cell on the upstream side of each face.
	Upwind
)

func (t Type) String() string {
	switch t {
	case Centered:
		return "CENTERED"
	case Upwind:
		return "UPWIND"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType converts a configuration string into a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "CENTERED", "":
		return Centered, nil
	case "UPWIND":
		return Upwind, nil
	default:
		return -1, fmt.Errorf("convect: invalid convective operator type %q", s)
	}
}

// Form is the differencing form of the convective term.
type Form int

const (
	// Advective computes (u·∇)U.
	Advective Form = iota
	// Conservative computes ∇·(uU).
	Conservative
)

func (f Form) String() string {
	switch f {
	case Advective:
		return "ADVECTIVE"
	case Conservative:
		return "CONSERVATIVE"
	default:
		return fmt.Sprintf("Form(%d)", int(f))
	}
}

// ParseForm converts a configuration string into a Form.
func ParseForm(s string) (Form, error) {
	switch strings.ToUpper(s) {
	case "ADVECTIVE", "":
		return Advective, nil
	case "CONSERVATIVE", "DIVERGENCE":
		return Conservative, nil
	default:
		return -1, fmt.Errorf("convect: invalid convective differencing form %q", s)
	}
}

// Operator evaluates the convective term on a hierarchy.
type Operator interface {
	Type() Type
	Form() Form

	InitializeOperatorState(h *amr.Hierarchy, coarsest, finest int) error
	DeallocateOperatorState()
	IsInitialized() bool

	// ApplyConvectiveOperator sets n to the convective term of the
	// cell-centered vector u advected by the face-centered uADV. The
	// ghost cells of u are filled as a side effect.
	ApplyConvectiveOperator(u, uADV, n amr.DataIndex) error
}

// New returns a convective operator. fill describes the boundary
// conditions of the advected velocity.
func New(name string, t Type, f Form, fill amr.FillSpec) (Operator, error) {
	o := &operator{name: name, typ: t, form: f, fill: fill}
	switch t {
	case Centered:
		o.flux = centeredFlux
	case Upwind:
		o.flux = advect.UpwindFlux
	default:
		return nil, fmt.Errorf("convect: %s: invalid type %v", name, t)
	}
	if f != Advective && f != Conservative {
		return nil, fmt.Errorf("convect: %s: invalid form %v", name, f)
	}
	return o, nil
}

// centeredFlux returns the flux through a face divided by Δx.
func centeredFlux(u, cm1, c, Δx float64) float64 {
	return u * 0.5 * (cm1 + c) / Δx
}

type operator struct {
	name string
	typ  Type
	form Form
	fill amr.FillSpec
	flux func(u, cm1, c, Δx float64) float64

	h                *amr.Hierarchy
	coarsest, finest int
	initialized      bool
}

func (o *operator) Type() Type          { return o.typ }
func (o *operator) Form() Form          { return o.form }
func (o *operator) IsInitialized() bool { return o.initialized }

func (o *operator) InitializeOperatorState(h *amr.Hierarchy, coarsest, finest int) error {
	if coarsest < 0 || finest > h.FinestLevelNumber() || coarsest > finest {
		return fmt.Errorf("convect: %s: invalid level range [%d, %d]", o.name, coarsest, finest)
	}
	o.h, o.coarsest, o.finest = h, coarsest, finest
	o.initialized = true
	return nil
}

func (o *operator) DeallocateOperatorState() {
	o.h = nil
	o.initialized = false
}

func (o *operator) ApplyConvectiveOperator(u, uADV, n amr.DataIndex) error {
	if !o.initialized {
		return fmt.Errorf("convect: %s: operator state is not initialized", o.name)
	}
	o.h.FillGhosts(u, o.fill, o.coarsest, o.finest)
	for ln := o.coarsest; ln <= o.finest; ln++ {
		l := o.h.Level(ln)
		l.ForEachPatch(func(p *amr.Patch) {
			uc, uf, nc := p.Cell(u), p.Face(uADV), p.Cell(n)
			for d := 0; d < nc.Depth(); d++ {
				for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
					for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
						c := uc.At(d, i, j)
						ul, ur := uf.At(0, 0, i, j), uf.At(0, 0, i+1, j)
						vb, vt := uf.At(1, 0, i, j), uf.At(1, 0, i, j+1)
						v := o.flux(ur, c, uc.At(d, i+1, j), l.Dx[0]) - o.flux(ul, uc.At(d, i-1, j), c, l.Dx[0]) +
							o.flux(vt, c, uc.At(d, i, j+1), l.Dx[1]) - o.flux(vb, uc.At(d, i, j-1), c, l.Dx[1])
						if o.form == Advective {
							// u·∇U = ∇·(uU) - U∇·u
							v -= c * ((ur-ul)/l.Dx[0] + (vt-vb)/l.Dx[1])
						}
						nc.Set(d, i, j, v)
					}
				}
			}
		})
	}
	return nil
}
