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
	"math"

	"github.com/spatialmodel/insflow/amr"
)

// threshold returns the entry of thresh for level ln, reusing the last
// entry for finer levels.
func threshold(thresh []float64, ln int) (float64, bool) {
	if len(thresh) == 0 {
		return 0, false
	}
	if ln < len(thresh) {
		return thresh[ln], true
	}
	return thresh[len(thresh)-1], true
}

// ApplyGradientDetector sets tagIdx to 1 on the cells of level ln whose
// vorticity magnitude exceeds the absolute threshold for the level, or
// the relative threshold times the largest vorticity magnitude on the
// hierarchy. Other cells are left unchanged. Richardson extrapolation
// is not supported, so richardsonToo has no effect.
func (d *Integrator) ApplyGradientDetector(h *amr.Hierarchy, ln int, t float64, tagIdx amr.DataIndex, initialTime, richardsonToo bool) error {
	if d.state == Uninitialized {
		return d.sequenceError("ApplyGradientDetector", "the integrator is not initialized")
	}
	if h != d.h {
		return configErrorf("ApplyGradientDetector", "hierarchy differs from the one the integrator was initialized with")
	}
	if ln < 0 || ln > h.FinestLevelNumber() {
		return fmt.Errorf("insflow: level %d is not in the hierarchy", ln)
	}
	if !h.IsAllocated(tagIdx, ln) {
		return fmt.Errorf("insflow: tag data %d is not allocated on level %d", tagIdx, ln)
	}
	abs, haveAbs := threshold(d.s.absThresh, ln)
	rel, haveRel := threshold(d.s.relThresh, ln)
	if !haveAbs && !haveRel {
		return nil
	}
	finest := h.FinestLevelNumber()
	u, omega := d.reg.idx(FieldU, Current), d.reg.idx(FieldOmega, Current)
	h.FillGhosts(u, d.fill(FieldU), 0, finest)
	amr.Curl(h, omega, u, 0, finest)
	relCut := math.Inf(1)
	if haveRel {
		relCut = rel * d.cellOps.MaxNorm(omega)
	}
	absCut := math.Inf(1)
	if haveAbs {
		absCut = abs
	}
	h.Level(ln).ForEachPatch(func(p *amr.Patch) {
		w, tag := p.Cell(omega), p.Cell(tagIdx)
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				m := math.Abs(w.At(0, i, j))
				if m > absCut || m > relCut {
					tag.Set(0, i, j, 1)
				}
			}
		}
	})
	return nil
}
