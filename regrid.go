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

	"github.com/sirupsen/logrus"
)

// RegridHierarchy retags the hierarchy, rebuilds every level finer than
// level 0, transfers the Current data onto the new levels and projects
// the velocity.
func (d *Integrator) RegridHierarchy() error {
	if d.state != HierarchyInitialized && d.state != Postprocessed {
		return d.sequenceError("RegridHierarchy", "the hierarchy must be initialized and no step may be in progress")
	}
	h := d.h
	tag := d.reg.idx(FieldTag, Current)
	oldFinest := h.FinestLevelNumber()
	for ln := 0; ln < h.MaxLevels-1 && ln <= h.FinestLevelNumber(); ln++ {
		d.cellOps.ResetLevels(ln, ln)
		d.cellOps.SetToScalar(tag, 0)
		d.cellOps.ResetLevels(0, -1)
		if err := d.ApplyGradientDetector(h, ln, d.time, tag, false, false); err != nil {
			return err
		}
		boxes, err := d.gridding.FineBoxes(h, ln, tag)
		if err != nil {
			return fmt.Errorf("insflow: regridding level %d: %w", ln+1, err)
		}
		if len(boxes) == 0 {
			h.RemoveFinerLevels(ln)
			break
		}
		_, old, err := h.MakeLevel(ln+1, boxes)
		if err != nil {
			return fmt.Errorf("insflow: regridding level %d: %w", ln+1, err)
		}
		if err := d.initializeLevelData(ln+1, false, old); err != nil {
			return err
		}
	}
	d.resetHierarchyConfiguration(1, h.FinestLevelNumber())
	d.synchronize(false)
	if err := d.regridProjection(); err != nil {
		return err
	}
	d.SetupPlotData()
	if d.Metrics != nil {
		d.Metrics.Regrids.Inc()
	}
	d.Log.WithFields(logrus.Fields{
		"old_finest": oldFinest,
		"new_finest": h.FinestLevelNumber(),
		"time":       d.time,
	}).Info("regridded hierarchy")
	d.state = HierarchyInitialized
	return nil
}
