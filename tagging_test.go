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
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spatialmodel/insflow/amr"
	"github.com/spatialmodel/insflow/gridding"
)

func countTags(h *amr.Hierarchy, tag amr.DataIndex, ln int) int {
	n := 0
	for _, p := range h.Level(ln).Patches {
		c := p.Cell(tag)
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				if c.At(0, i, j) > 0.5 {
					n++
				}
			}
		}
	}
	return n
}

func TestThreshold(t *testing.T) {
	if _, ok := threshold(nil, 0); ok {
		t.Error("empty thresholds should be unset")
	}
	for ln, want := range []float64{1, 2, 2, 2} {
		if v, ok := threshold([]float64{1, 2}, ln); !ok || v != want {
			t.Errorf("level %d: got %g, want %g", ln, v, want)
		}
	}
}

func TestApplyGradientDetector(t *testing.T) {
	tests := []struct {
		name     string
		abs, rel []float64
		min, max int
	}{
		{name: "unset", min: 0, max: 0},
		{name: "abs zero", abs: []float64{0}, min: 256, max: 256},
		{name: "abs large", abs: []float64{100}, min: 0, max: 0},
		{name: "rel above one", rel: []float64{2}, min: 0, max: 0},
		{name: "rel", rel: []float64{0.9}, min: 1, max: 255},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Integrator.VorticityAbsThresh = test.abs
			cfg.Integrator.VorticityRelThresh = test.rel
			cfg.InitialConditions.U = []string{"sin(2*pi*y)", "0"}
			d := newTestIntegrator(t, cfg)
			h := d.Hierarchy()
			tag := index(t, d, FieldTag, Current)
			if err := d.ApplyGradientDetector(h, 0, d.Time(), tag, false, false); err != nil {
				t.Fatal(err)
			}
			if n := countTags(h, tag, 0); n < test.min || n > test.max {
				t.Errorf("%d cells tagged, want [%d, %d]", n, test.min, test.max)
			}
		})
	}
}

func TestApplyGradientDetectorErrors(t *testing.T) {
	cfg := testConfig()
	h, err := cfg.Grid.NewHierarchy()
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewIntegrator(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ApplyGradientDetector(h, 0, 0, 0, true, false); !errors.Is(err, ErrSequence) {
		t.Errorf("got %v, want a sequence error", err)
	}
	if err := d.InitializePatchHierarchy(h, &gridding.BoxTagger{}); err != nil {
		t.Fatal(err)
	}
	tag := index(t, d, FieldTag, Current)
	other, err := cfg.Grid.NewHierarchy()
	if err != nil {
		t.Fatal(err)
	}
	var cerr *ConfigError
	if err := d.ApplyGradientDetector(other, 0, 0, tag, true, false); !errors.As(err, &cerr) {
		t.Errorf("got %v, want a configuration error", err)
	}
	if err := d.ApplyGradientDetector(h, 1, 0, tag, true, false); err == nil {
		t.Error("a missing level should fail")
	}
	if err := d.ApplyGradientDetector(h, 0, 0, index(t, d, FieldPhi, Scratch), true, false); err == nil {
		t.Error("unallocated tag data should fail")
	}
}

// refinedConfig returns a configuration that refines around the
// strongest vorticity of a jet along y.
func refinedConfig() *Config {
	cfg := testConfig()
	cfg.Grid.MaxLevels = 2
	cfg.Integrator.VorticityRelThresh = []float64{0.8}
	cfg.InitialConditions.U = []string{"0", "exp(-50*(x-0.5)*(x-0.5))"}
	return cfg
}

// counterValue returns the value of the counter called name in reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("no metric %s", name)
	return 0
}

func TestInitialRefinement(t *testing.T) {
	d := newTestIntegrator(t, refinedConfig())
	h := d.Hierarchy()
	if h.NumberOfLevels() != 2 {
		t.Fatalf("hierarchy has %d levels", h.NumberOfLevels())
	}
	if h.Level(1).NumCells() == 0 || h.Level(1).CoversDomain() {
		t.Errorf("level 1 has %d cells", h.Level(1).NumCells())
	}
	if m := maxAbs(h, index(t, d, FieldDivUADV, Current)); m > 1.e-6 {
		t.Errorf("max |div u_ADV| = %g", m)
	}
	for _, f := range []FieldID{FieldU, FieldP, FieldUADV, FieldOmega} {
		if !h.IsAllocated(index(t, d, f, Current), 1) {
			t.Errorf("%s is not allocated on level 1", f)
		}
	}
}

func TestRegridHierarchy(t *testing.T) {
	cfg := refinedConfig()
	cfg.Integrator.RegridInterval = 2
	d := newTestIntegrator(t, cfg)
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	d.Metrics = m
	for i := 0; i < 4; i++ {
		if err := d.AdvanceHierarchy(0.01); err != nil {
			t.Fatal(err)
		}
	}
	if d.State() != HierarchyInitialized {
		t.Errorf("state %s", d.State())
	}
	h := d.Hierarchy()
	if h.NumberOfLevels() != 2 {
		t.Fatalf("hierarchy has %d levels", h.NumberOfLevels())
	}
	if m := maxAbs(h, index(t, d, FieldDivUADV, Current)); m > 1.e-6 {
		t.Errorf("max |div u_ADV| = %g", m)
	}
	if v := counterValue(t, reg, "insflow_regrids_total"); v != 2 {
		t.Errorf("%g regrids", v)
	}
	if v := counterValue(t, reg, "insflow_steps_total"); v != 4 {
		t.Errorf("%g steps", v)
	}

	// Removing the thresholds removes the finer level.
	d.s.relThresh = nil
	if err := d.RegridHierarchy(); err != nil {
		t.Fatal(err)
	}
	if h.NumberOfLevels() != 1 {
		t.Errorf("hierarchy has %d levels", h.NumberOfLevels())
	}
	if err := d.AdvanceHierarchy(0.01); err != nil {
		t.Fatal(err)
	}
}

func TestRegridWithinStep(t *testing.T) {
	d := newTestIntegrator(t, refinedConfig())
	if err := d.PreprocessIntegrateHierarchy(0, 0.01, 1); err != nil {
		t.Fatal(err)
	}
	if err := d.RegridHierarchy(); !errors.Is(err, ErrSequence) {
		t.Errorf("got %v, want a sequence error", err)
	}
	if err := d.RegridProjection(); !errors.Is(err, ErrSequence) {
		t.Errorf("got %v, want a sequence error", err)
	}
}
