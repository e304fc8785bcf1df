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
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/insflow/amr"
)

// projectionScratch lists the scratch fields a projection needs.
var projectionScratch = []FieldID{FieldPhi, FieldPhiRHS, FieldGradPhiCC, FieldGradPhiFC}

// RegridProjection projects the Current velocity onto the space of
// discretely divergence-free fields. The face velocity is rebuilt from
// the cell velocity first. If the projection fails the integrator
// refuses further steps until a projection succeeds.
func (d *Integrator) RegridProjection() error {
	if d.state != HierarchyInitialized && d.state != Postprocessed {
		return d.sequenceError("RegridProjection", "the hierarchy must be initialized and no step may be in progress")
	}
	return d.regridProjection()
}

func (d *Integrator) regridProjection() error {
	h, r := d.h, d.reg
	finest := h.FinestLevelNumber()
	var allocated []amr.DataIndex
	for _, f := range projectionScratch {
		idx := r.idx(f, Scratch)
		if !h.IsAllocated(idx, 0) {
			h.Allocate(idx, 0, finest)
			allocated = append(allocated, idx)
		}
	}
	defer func() {
		for _, idx := range allocated {
			h.Deallocate(idx, 0, finest)
		}
	}()

	u, a := r.idx(FieldU, Current), r.idx(FieldUADV, Current)
	phi, phiRHS := r.idx(FieldPhi, Scratch), r.idx(FieldPhiRHS, Scratch)
	h.FillGhosts(u, d.fill(FieldU), 0, finest)
	amr.InterpolateToFaces(h, a, u, 0, finest)
	amr.DivergenceFace(h, phiRHS, a, -1, 0, finest)
	d.cellOps.SetToScalar(phi, 0)
	ps, err := d.PressureSubdomainSolver()
	if err != nil {
		d.inconsistent = err
		return err
	}
	if err := d.solve(ps, "regrid projection", phi, phiRHS); err != nil {
		d.inconsistent = err
		return err
	}
	d.correct(phi, 1, u, a)
	d.inconsistent = nil
	d.Log.WithFields(logrus.Fields{
		"levels":     h.NumberOfLevels(),
		"iterations": ps.Iterations(),
	}).Debug("regrid projection")
	return nil
}
