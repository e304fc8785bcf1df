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

package insflow

import (
	"fmt"

	"github.com/spatialmodel/insflow/amr"
	"github.com/spatialmodel/insflow/convect"
)

// ComputeDivSourceTerm adds to the body force F the momentum
// contributions of a nonzero velocity divergence Q: the compressible
// part of the viscous stress (μ/3)∇Q and, for the advective form of
// the convective term, the momentum removed by the injected fluid, -ρQU.
// It does nothing when no fluid source is registered. f, q and u must be
// allocated on every level of an initialized hierarchy.
func (d *Integrator) ComputeDivSourceTerm(f, q, u amr.DataIndex) error {
	if !d.hierarchyReady() || d.state < HierarchyInitialized {
		return d.sequenceError("ComputeDivSourceTerm", "the hierarchy must be initialized")
	}
	if d.qFcn == nil {
		return nil
	}
	h := d.h
	finest := h.FinestLevelNumber()
	for _, idx := range []amr.DataIndex{f, q, u} {
		for ln := 0; ln <= finest; ln++ {
			if !h.IsAllocated(idx, ln) {
				return fmt.Errorf("insflow: ComputeDivSourceTerm: data index %d is not allocated on level %d", idx, ln)
			}
		}
	}
	grad := d.reg.idx(FieldGradPhiCC, Scratch)
	if !h.IsAllocated(grad, 0) {
		h.Allocate(grad, 0, finest)
		defer h.Deallocate(grad, 0, finest)
	}
	h.FillGhosts(q, d.fill(FieldQ), 0, finest)
	amr.GradientCell(h, grad, q, d.s.mu/3, 0, finest)
	d.cellOps.Axpy(f, 1, grad, f)
	if d.s.creeping || d.s.convForm != convect.Advective {
		return nil
	}
	rho := d.s.rho
	for ln := 0; ln <= finest; ln++ {
		h.Level(ln).ForEachPatch(func(p *amr.Patch) {
			fd, qd, ud := p.Cell(f), p.Cell(q), p.Cell(u)
			for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
				for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
					qv := qd.At(0, i, j)
					for c := 0; c < fd.Depth(); c++ {
						fd.Add(c, i, j, -rho*qv*ud.At(c, i, j))
					}
				}
			}
		})
	}
	return nil
}
