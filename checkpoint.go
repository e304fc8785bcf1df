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

	"github.com/spatialmodel/insflow/amr"
	"github.com/spatialmodel/insflow/restart"
)

// restartVersion is the layout version written by PutToRestart.
const restartVersion = 1

// restartKey returns the database key of name for this integrator.
func (d *Integrator) restartKey(name string) string {
	return d.s.objectName + "/" + name
}

// restartFields returns the Current fields written to restart files.
func (d *Integrator) restartFields() []FieldID {
	f := []FieldID{FieldU, FieldP, FieldUADV}
	if d.haveNOld {
		f = append(f, FieldNOld)
	}
	return f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// PutToRestart writes the integrator state and the Current data on
// every level to db.
func (d *Integrator) PutToRestart(db restart.Database) error {
	if d.state != HierarchyInitialized && d.state != Postprocessed {
		return d.sequenceError("PutToRestart", "the hierarchy must be initialized and no step may be in progress")
	}
	key := d.restartKey
	db.PutInts(key("version"), []int{restartVersion})
	db.PutString(key("projection_method_type"), d.s.projection.String())
	db.PutFloat64s(key("time"), []float64{d.time, d.dt, d.dtPrevious})
	db.PutInts(key("step"), []int{d.step, boolInt(d.haveNOld)})
	h := d.h
	db.PutInts(key("levels"), []int{h.NumberOfLevels()})
	for ln := 0; ln < h.NumberOfLevels(); ln++ {
		l := h.Level(ln)
		boxes := make([]int, 0, 4*len(l.Patches))
		for _, b := range l.Boxes() {
			boxes = append(boxes, b.Lo[0], b.Lo[1], b.Hi[0], b.Hi[1])
		}
		db.PutInts(key(fmt.Sprintf("level_%d/boxes", ln)), boxes)
		for _, f := range d.restartFields() {
			idx := d.reg.idx(f, Current)
			for _, p := range l.Patches {
				prefix := fmt.Sprintf("level_%d/patch_%d/%s", ln, p.Number, f)
				switch h.Variable(idx).Centering {
				case amr.CellCentered:
					db.PutFloat64s(key(prefix), p.Cell(idx).Data.Elements)
				case amr.FaceCentered:
					fd := p.Face(idx)
					for axis := 0; axis < 2; axis++ {
						db.PutFloat64s(key(fmt.Sprintf("%s/axis_%d", prefix, axis)), fd.Data[axis].Elements)
					}
				}
			}
		}
	}
	d.Log.WithFields(logrus.Fields{
		"time":   d.time,
		"step":   d.step,
		"levels": h.NumberOfLevels(),
	}).Info("wrote restart data")
	return nil
}

// restoreElements copies the values stored at key into dst.
func restoreElements(db restart.Database, key string, dst []float64) error {
	v, err := db.GetFloat64s(key)
	if err != nil {
		return err
	}
	if len(v) != len(dst) {
		return fmt.Errorf("insflow: restart value %s has %d entries but the patch needs %d", key, len(v), len(dst))
	}
	copy(dst, v)
	return nil
}

// getFromRestart rebuilds the hierarchy and restores the integrator
// state from db.
func (d *Integrator) getFromRestart(db restart.Database) error {
	key := d.restartKey
	v, err := db.GetInts(key("version"))
	if err != nil {
		return err
	}
	if len(v) != 1 || v[0] != restartVersion {
		return fmt.Errorf("insflow: restart version %v is not supported; want %d", v, restartVersion)
	}
	pm, err := db.GetString(key("projection_method_type"))
	if err != nil {
		return err
	}
	if pm != d.s.projection.String() {
		return configErrorf("projection_method_type", "restart data uses %s but the integrator uses %s", pm, d.s.projection)
	}
	times, err := db.GetFloat64s(key("time"))
	if err != nil {
		return err
	}
	if len(times) != 3 {
		return fmt.Errorf("insflow: restart value %s has %d entries; want 3", key("time"), len(times))
	}
	steps, err := db.GetInts(key("step"))
	if err != nil {
		return err
	}
	if len(steps) != 2 {
		return fmt.Errorf("insflow: restart value %s has %d entries; want 2", key("step"), len(steps))
	}
	levels, err := db.GetInts(key("levels"))
	if err != nil {
		return err
	}
	h := d.h
	if h.NumberOfLevels() != 0 {
		return configErrorf("InitializePatchHierarchy", "hierarchy already has %d levels", h.NumberOfLevels())
	}
	if len(levels) != 1 || levels[0] < 1 || levels[0] > h.MaxLevels {
		return fmt.Errorf("insflow: restart data has %v levels but the hierarchy allows %d", levels, h.MaxLevels)
	}
	d.time, d.dt, d.dtPrevious = times[0], times[1], times[2]
	d.step, d.haveNOld = steps[0], steps[1] != 0
	if d.haveNOld && d.s.creeping {
		return configErrorf("creeping_flow", "restart data holds a convective term but the flow is creeping")
	}

	for ln := 0; ln < levels[0]; ln++ {
		flat, err := db.GetInts(key(fmt.Sprintf("level_%d/boxes", ln)))
		if err != nil {
			return err
		}
		if len(flat)%4 != 0 {
			return fmt.Errorf("insflow: level %d boxes have %d entries", ln, len(flat))
		}
		boxes := make([]amr.Box, 0, len(flat)/4)
		for i := 0; i < len(flat); i += 4 {
			boxes = append(boxes, amr.NewBox(flat[i], flat[i+1], flat[i+2], flat[i+3]))
		}
		l, _, err := h.MakeLevel(ln, boxes)
		if err != nil {
			return fmt.Errorf("insflow: restoring level %d: %w", ln, err)
		}
		d.allocate(Current, ln, ln)
		for _, f := range d.restartFields() {
			idx := d.reg.idx(f, Current)
			for _, p := range l.Patches {
				prefix := key(fmt.Sprintf("level_%d/patch_%d/%s", ln, p.Number, f))
				switch h.Variable(idx).Centering {
				case amr.CellCentered:
					if err := restoreElements(db, prefix, p.Cell(idx).Data.Elements); err != nil {
						return err
					}
				case amr.FaceCentered:
					fd := p.Face(idx)
					for axis := 0; axis < 2; axis++ {
						if err := restoreElements(db, fmt.Sprintf("%s/axis_%d", prefix, axis), fd.Data[axis].Elements); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	d.resetHierarchyConfiguration(0, h.FinestLevelNumber())
	d.SetupPlotData()
	d.Log.WithFields(logrus.Fields{
		"time":   d.time,
		"step":   d.step,
		"levels": h.NumberOfLevels(),
	}).Info("restored from restart data")
	return nil
}
