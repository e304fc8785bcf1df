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
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/spatialmodel/insflow/amr"
)

func TestExpressionFunction(t *testing.T) {
	f, err := NewExpressionFunction("x + 2*y", "sin(pi*x)*exp(y)")
	if err != nil {
		t.Fatal(err)
	}
	if f.IsTimeDependent() {
		t.Error("expressions without t are not time dependent")
	}
	v, err := f.Eval(0, 0.25, 0.5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if absDifferent(v, 1.25) {
		t.Errorf("component 0 = %g", v)
	}
	v, err = f.Eval(1, 0.5, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if absDifferent(v, math.E) {
		t.Errorf("component 1 = %g", v)
	}

	g, err := NewExpressionFunction("cos(t)*x")
	if err != nil {
		t.Fatal(err)
	}
	if !g.IsTimeDependent() {
		t.Error("expression with t should be time dependent")
	}

	for _, bad := range []string{"x + z", "sin(x", "frobnicate(x)"} {
		if _, err := NewExpressionFunction(bad); err == nil {
			t.Errorf("%q should fail", bad)
		}
	}
}

func TestExpressionFunctionOnHierarchy(t *testing.T) {
	h, err := amr.NewHierarchy(amr.Geometry{
		XLo:      [2]float64{-1, 0},
		XUp:      [2]float64{1, 2},
		N:        [2]int{4, 4},
		Boundary: [2][2]amr.BoundaryType{{amr.Wall, amr.Wall}, {amr.Wall, amr.Wall}},
	}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := h.MakeLevel(0, []amr.Box{amr.NewBox(0, 0, 3, 3)}); err != nil {
		t.Fatal(err)
	}
	idx := h.RegisterIndex(amr.Variable{Name: "v", Centering: amr.CellCentered, Depth: 2})
	h.Allocate(idx, 0, 0)
	f, err := NewExpressionFunction("x*t", "y")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetDataOnPatchHierarchy(idx, h, 2, 0, 0); err != nil {
		t.Fatal(err)
	}
	c := h.Level(0).Patches[0].Cell(idx)
	// Cell (0, 3) is centered at (-0.75, 1.75).
	if absDifferent(c.At(0, 0, 3), -1.5) || absDifferent(c.At(1, 0, 3), 1.75) {
		t.Errorf("got (%g, %g)", c.At(0, 0, 3), c.At(1, 0, 3))
	}

	one, err := NewExpressionFunction("x")
	if err != nil {
		t.Fatal(err)
	}
	if err := one.SetDataOnPatchHierarchy(idx, h, 0, 0, 0); err == nil {
		t.Error("a component count mismatch should fail")
	}
}

func TestConfigExpressions(t *testing.T) {
	cfg := testConfig()
	cfg.InitialConditions.U = []string{"x"}
	var cerr *ConfigError
	if _, err := NewIntegrator(cfg, testLogger()); !errors.As(err, &cerr) {
		t.Errorf("got %v, want a configuration error", err)
	}
	cfg.InitialConditions.U = []string{"x", "y +"}
	if _, err := NewIntegrator(cfg, testLogger()); !errors.As(err, &cerr) {
		t.Errorf("got %v, want a configuration error", err)
	}
	cfg.InitialConditions.U = []string{"", ""}
	d, err := NewIntegrator(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if d.uInit != nil {
		t.Error("empty expressions should leave the initial velocity unset")
	}
	cfg.InitialConditions.U = []string{"", "x"}
	if d, err = NewIntegrator(cfg, testLogger()); err != nil {
		t.Fatal(err)
	}
	if d.uInit == nil {
		t.Error("initial velocity is unset")
	}
}

func TestReadConfig(t *testing.T) {
	in := `
[Integrator]
object_name = "cavity"
projection_method_type = "PRESSURE_INCREMENT"
num_cycles = 2
rho = 1.5
omega_rel_thresh = [0.5, 0.25]

[Grid]
n = [8, 16]
boundary = ["wall", "wall", "periodic", "periodic"]
max_levels = 3

[PressureSolver]
solver_type = "DIRECT"

[InitialConditions]
U = ["y", "0"]
`
	cfg, err := ReadConfig(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Integrator.ObjectName != "cavity" || cfg.Integrator.NumCycles != 2 || cfg.Integrator.Rho != 1.5 {
		t.Errorf("integrator options %+v", cfg.Integrator)
	}
	if cfg.Integrator.Mu != DefaultConfig().Integrator.Mu {
		t.Error("unset options should keep their defaults")
	}
	if cfg.PressureSolver.Type != "DIRECT" || cfg.VelocitySolver.Type != "CG" {
		t.Errorf("solver types %q and %q", cfg.PressureSolver.Type, cfg.VelocitySolver.Type)
	}
	s, err := cfg.settings()
	if err != nil {
		t.Fatal(err)
	}
	if s.projection != PressureIncrement || len(s.relThresh) != 2 {
		t.Errorf("settings %+v", s)
	}
	geo, err := cfg.Grid.Geometry()
	if err != nil {
		t.Fatal(err)
	}
	if geo.N != [2]int{8, 16} || geo.Periodic(0) || !geo.Periodic(1) {
		t.Errorf("geometry %+v", geo)
	}

	var buf bytes.Buffer
	if err := cfg.Write(&buf); err != nil {
		t.Fatal(err)
	}
	again, err := ReadConfig(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if again.Integrator.ObjectName != "cavity" || again.Grid.N[1] != 16 || again.InitialConditions.U[0] != "y" {
		t.Errorf("rewritten configuration %+v", again)
	}

	if _, err := ReadConfig(strings.NewReader("[Integrator\n")); err == nil {
		t.Error("malformed input should fail")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		field string
		set   func(c *Config)
	}{
		{"num_cycles", func(c *Config) { c.Integrator.NumCycles = 0 }},
		{"projection_method_type", func(c *Config) { c.Integrator.ProjectionMethodType = "EXACT" }},
		{"convective_op_type", func(c *Config) { c.Integrator.ConvectiveOpType = "PPM" }},
		{"convective_difference_form", func(c *Config) { c.Integrator.ConvectiveDifferenceForm = "SKEW" }},
		{"cfl", func(c *Config) { c.Integrator.CFL = 2 }},
		{"dt_max", func(c *Config) { c.Integrator.DtMax = 0 }},
		{"dt_growth_factor", func(c *Config) { c.Integrator.DtGrowthFactor = 0.5 }},
		{"regrid_interval", func(c *Config) { c.Integrator.RegridInterval = -1 }},
		{"rho", func(c *Config) { c.Integrator.Rho = 0 }},
		{"mu", func(c *Config) { c.Integrator.Mu = -1 }},
		{"object_name", func(c *Config) { c.Integrator.ObjectName = "" }},
		{"U_refine_type", func(c *Config) { c.Integrator.URefineType = "CUBIC" }},
		{"P_coarsen_type", func(c *Config) { c.Integrator.PCoarsenType = "MEDIAN" }},
		{"VelocitySolver.solver_type", func(c *Config) { c.VelocitySolver.Type = "GMRES" }},
		{"PressureSolver.max_iterations", func(c *Config) { c.PressureSolver.MaxIterations = 0 }},
		{"PressureSolver", func(c *Config) { c.PressureSolver.RelTol, c.PressureSolver.AbsTol = 0, 0 }},
	}
	for _, test := range tests {
		cfg := DefaultConfig()
		test.set(cfg)
		_, err := NewIntegrator(cfg, testLogger())
		var cerr *ConfigError
		if !errors.As(err, &cerr) {
			t.Errorf("%s: got %v, want a configuration error", test.field, err)
			continue
		}
		if cerr.Field != test.field {
			t.Errorf("got field %q, want %q", cerr.Field, test.field)
		}
	}

	grids := []func(g *GridConfig){
		func(g *GridConfig) { g.N = []int{8} },
		func(g *GridConfig) { g.Boundary = []string{"wall"} },
		func(g *GridConfig) { g.Boundary[0] = "open" },
		func(g *GridConfig) { g.XUp[0] = g.XLo[0] },
		func(g *GridConfig) { g.MaxLevels = 0 },
	}
	for i, set := range grids {
		cfg := DefaultConfig()
		set(&cfg.Grid)
		if _, err := cfg.Grid.NewHierarchy(); err == nil {
			t.Errorf("grid %d: invalid grid accepted", i)
		}
	}
}
