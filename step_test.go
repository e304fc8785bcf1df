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
	"math"
	"reflect"
	"testing"

	"github.com/spatialmodel/insflow/amr"
	"github.com/spatialmodel/insflow/solve"
)

func TestZeroStateStaysZero(t *testing.T) {
	for _, pm := range []string{"PRESSURE_UPDATE", "PRESSURE_INCREMENT"} {
		cfg := testConfig()
		cfg.Integrator.ProjectionMethodType = pm
		d := newTestIntegrator(t, cfg)
		for i := 0; i < 3; i++ {
			if err := d.AdvanceHierarchy(0.1); err != nil {
				t.Fatal(err)
			}
		}
		h := d.Hierarchy()
		for _, f := range []FieldID{FieldU, FieldP, FieldDivUADV, FieldOmega} {
			if m := maxAbs(h, index(t, d, f, Current)); m != 0 {
				t.Errorf("%s: max |%s| = %g", pm, f, m)
			}
		}
		if d.Step() != 3 || absDifferent(d.Time(), 0.3) {
			t.Errorf("%s: step %d time %g", pm, d.Step(), d.Time())
		}
	}
}

func TestUniformBodyForce(t *testing.T) {
	const dt = 0.1
	cfg := testConfig()
	cfg.Integrator.Rho = 2
	cfg.InitialConditions.F = []string{"1", "2"}
	d := newTestIntegrator(t, cfg)
	if err := d.AdvanceHierarchy(dt); err != nil {
		t.Fatal(err)
	}
	u := index(t, d, FieldU, Current)
	for _, p := range d.Hierarchy().Level(0).Patches {
		c := p.Cell(u)
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				if absDifferent(c.At(0, i, j), 1*dt/2) || absDifferent(c.At(1, i, j), 2*dt/2) {
					t.Fatalf("U(%d,%d) = (%g, %g)", i, j, c.At(0, i, j), c.At(1, i, j))
				}
			}
		}
	}
	if m := maxAbs(d.Hierarchy(), index(t, d, FieldP, Current)); m > testTolerance {
		t.Errorf("max |P| = %g", m)
	}
}

func TestProjectionDivergenceFree(t *testing.T) {
	for _, b := range []string{"periodic", "wall"} {
		t.Run(b, func(t *testing.T) {
			cfg := testConfig()
			cfg.Grid.Boundary = []string{b, b, b, b}
			cfg.InitialConditions.U = []string{"sin(2*pi*x) + sin(2*pi*y)", "cos(2*pi*x)*sin(4*pi*y)"}
			d := newTestIntegrator(t, cfg)
			h := d.Hierarchy()
			div := index(t, d, FieldDivUADV, Current)
			if m := maxAbs(h, div); m > 1.e-6 {
				t.Errorf("after initialization: max |div u_ADV| = %g", m)
			}
			if m := maxAbs(h, index(t, d, FieldU, Current)); m == 0 {
				t.Fatal("the projected velocity is zero")
			}
			for i := 0; i < 2; i++ {
				if err := d.AdvanceHierarchy(d.MaximumTimestep()); err != nil {
					t.Fatal(err)
				}
				if m := maxAbs(h, div); m > 1.e-6 {
					t.Errorf("after step %d: max |div u_ADV| = %g", d.Step(), m)
				}
			}
		})
	}
}

// uncoveredMaxAbs returns the largest absolute interior value of idx on
// level ln, skipping cells covered by level ln+1.
func uncoveredMaxAbs(h *amr.Hierarchy, idx amr.DataIndex, ln int) float64 {
	var m float64
	for _, p := range h.Level(ln).Patches {
		c := p.Cell(idx)
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				if ln < h.FinestLevelNumber() && h.Level(ln+1).PatchAt(i*h.RefineRatio, j*h.RefineRatio) != nil {
					continue
				}
				m = math.Max(m, math.Abs(c.At(0, i, j)))
			}
		}
	}
	return m
}

func TestProjectionDivergenceFreeTwoLevels(t *testing.T) {
	cfg := refinedConfig()
	cfg.InitialConditions.U = []string{"exp(-50*((x-0.5)*(x-0.5)+(y-0.5)*(y-0.5)))", "0"}
	d := newTestIntegrator(t, cfg)
	h := d.Hierarchy()
	if h.NumberOfLevels() != 2 || h.Level(1).CoversDomain() {
		t.Fatalf("want a partially refined hierarchy; have %d levels", h.NumberOfLevels())
	}
	div := index(t, d, FieldDivUADV, Current)
	for i := 0; i < 3; i++ {
		if err := d.AdvanceHierarchy(d.MaximumTimestep()); err != nil {
			t.Fatal(err)
		}
		for ln := 0; ln < 2; ln++ {
			if m := uncoveredMaxAbs(h, div, ln); m > 1.e-6 {
				t.Errorf("after step %d: level %d max |div u_ADV| = %g", d.Step(), ln, m)
			}
		}
	}
}

func TestMultipleCycles(t *testing.T) {
	cfg := testConfig()
	cfg.Integrator.NumCycles = 2
	cfg.Integrator.ConvectiveOpType = "UPWIND"
	cfg.InitialConditions.U = taylorGreen
	d := newTestIntegrator(t, cfg)
	if d.NumCycles() != 2 {
		t.Fatalf("num_cycles = %d", d.NumCycles())
	}
	ke0 := d.cellOps.L2Norm(index(t, d, FieldU, Current))
	for i := 0; i < 3; i++ {
		if err := d.AdvanceHierarchy(0.01); err != nil {
			t.Fatal(err)
		}
	}
	ke := d.cellOps.L2Norm(index(t, d, FieldU, Current))
	if ke >= ke0 || ke < 0.5*ke0 {
		t.Errorf("velocity norm went from %g to %g", ke0, ke)
	}
	if m := maxAbs(d.Hierarchy(), index(t, d, FieldDivUADV, Current)); m > 1.e-6 {
		t.Errorf("max |div u_ADV| = %g", m)
	}
}

func TestCycleSequence(t *testing.T) {
	cfg := testConfig()
	cfg.InitialConditions.U = taylorGreen
	d := newTestIntegrator(t, cfg)

	if err := d.IntegrateHierarchy(0, 0.1, 0); !errors.Is(err, ErrSequence) {
		t.Errorf("integrate before preprocess: got %v", err)
	}
	if err := d.PostprocessIntegrateHierarchy(0, 0.1, false, 0); !errors.Is(err, ErrSequence) {
		t.Errorf("postprocess before preprocess: got %v", err)
	}
	if err := d.PreprocessIntegrateHierarchy(0, 0.1, 0); !errors.Is(err, ErrSequence) {
		t.Errorf("zero cycles: got %v", err)
	}
	if err := d.PreprocessIntegrateHierarchy(0.1, 0.1, 1); !errors.Is(err, ErrSequence) {
		t.Errorf("empty interval: got %v", err)
	}
	if err := d.PreprocessIntegrateHierarchy(0, 0.1, 2); err != nil {
		t.Fatal(err)
	}
	if err := d.PreprocessIntegrateHierarchy(0, 0.1, 2); !errors.Is(err, ErrSequence) {
		t.Errorf("preprocess twice: got %v", err)
	}
	if err := d.IntegrateHierarchy(0, 0.1, 1); !errors.Is(err, ErrSequence) {
		t.Errorf("cycle out of order: got %v", err)
	}
	if err := d.IntegrateHierarchy(0, 0.2, 0); !errors.Is(err, ErrSequence) {
		t.Errorf("wrong interval: got %v", err)
	}
	if err := d.IntegrateHierarchy(0, 0.1, 0); err != nil {
		t.Fatal(err)
	}
	if err := d.IntegrateHierarchy(0, 0.1, 0); !errors.Is(err, ErrSequence) {
		t.Errorf("repeated cycle: got %v", err)
	}
	if err := d.PostprocessIntegrateHierarchy(0, 0.1, false, 2); !errors.Is(err, ErrSequence) {
		t.Errorf("postprocess with missing cycle: got %v", err)
	}
	if err := d.IntegrateHierarchy(0, 0.1, 1); err != nil {
		t.Fatal(err)
	}
	if err := d.IntegrateHierarchy(0, 0.1, 2); !errors.Is(err, ErrSequence) {
		t.Errorf("extra cycle: got %v", err)
	}
	if err := d.PostprocessIntegrateHierarchy(0, 0.1, false, 2); err != nil {
		t.Fatal(err)
	}
	if d.State() != Postprocessed {
		t.Errorf("state %s", d.State())
	}
}

func TestZeroCyclesLeavesStateUnchanged(t *testing.T) {
	cfg := testConfig()
	cfg.InitialConditions.U = taylorGreen
	cfg.InitialConditions.P = "x*y"
	d := newTestIntegrator(t, cfg)
	h := d.Hierarchy()
	u0 := cells(h, index(t, d, FieldU, Current))
	p0 := cells(h, index(t, d, FieldP, Current))

	if err := d.PreprocessIntegrateHierarchy(0, 0.1, 1); err != nil {
		t.Fatal(err)
	}
	if err := d.PostprocessIntegrateHierarchy(0, 0.1, true, 0); err != nil {
		t.Fatal(err)
	}
	u1 := cells(h, index(t, d, FieldU, Current))
	p1 := cells(h, index(t, d, FieldP, Current))
	for i := range u0 {
		if u0[i] != u1[i] {
			t.Fatalf("U[%d] changed from %g to %g", i, u0[i], u1[i])
		}
	}
	for i := range p0 {
		if p0[i] != p1[i] {
			t.Fatalf("P[%d] changed from %g to %g", i, p0[i], p1[i])
		}
	}
	for _, idx := range d.Registry().Indices(Scratch) {
		if h.IsAllocated(idx, 0) {
			t.Errorf("scratch index %d is still allocated", idx)
		}
	}
	if d.Time() != 0 || d.Step() != 0 {
		t.Errorf("time %g step %d", d.Time(), d.Step())
	}
}

func TestReinitializeOnlyOnChange(t *testing.T) {
	cfg := testConfig()
	cfg.InitialConditions.U = taylorGreen
	d := newTestIntegrator(t, cfg)
	step := func(t0, t1 float64) {
		t.Helper()
		if err := d.PreprocessIntegrateHierarchy(t0, t1, 1); err != nil {
			t.Fatal(err)
		}
		if err := d.PostprocessIntegrateHierarchy(t0, t1, false, 0); err != nil {
			t.Fatal(err)
		}
	}
	step(0, 0.125)
	if d.reinitCount != 1 {
		t.Fatalf("reinitialized %d times", d.reinitCount)
	}
	step(0, 0.125)
	step(0.5, 0.625)
	if d.reinitCount != 1 {
		t.Errorf("reinitialized %d times with unchanged inputs", d.reinitCount)
	}
	step(0, 0.0625)
	if d.reinitCount != 2 {
		t.Errorf("reinitialized %d times after a step size change", d.reinitCount)
	}
	if err := d.SetPhysicalCoefficients(1, 0.5); err != nil {
		t.Fatal(err)
	}
	step(0, 0.0625)
	if d.reinitCount != 3 {
		t.Errorf("reinitialized %d times after a viscosity change", d.reinitCount)
	}
}

func TestDivSourceTerm(t *testing.T) {
	tests := []struct {
		name     string
		creeping bool
		form     string
		want     [2]float64
	}{
		{name: "advective", form: "ADVECTIVE", want: [2]float64{-2 * 1.5, -2 * -0.5}},
		{name: "conservative", form: "CONSERVATIVE"},
		{name: "creeping", creeping: true, form: "ADVECTIVE"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Integrator.CreepingFlow = test.creeping
			cfg.Integrator.ConvectiveDifferenceForm = test.form
			cfg.InitialConditions.U = []string{"1.5", "-0.5"}
			cfg.InitialConditions.Q = "2"
			d := newTestIntegrator(t, cfg)
			if err := d.PreprocessIntegrateHierarchy(0, 0.1, 1); err != nil {
				t.Fatal(err)
			}
			f, q, u := index(t, d, FieldF, Scratch), index(t, d, FieldQ, Scratch), index(t, d, FieldU, Scratch)
			h := d.Hierarchy()
			d.cellOps.Copy(u, index(t, d, FieldU, Current))
			d.cellOps.SetToScalar(f, 0)
			if err := d.qFcn.SetDataOnPatchHierarchy(q, h, 0.05, 0, 0); err != nil {
				t.Fatal(err)
			}
			if err := d.ComputeDivSourceTerm(f, q, u); err != nil {
				t.Fatal(err)
			}
			for _, p := range h.Level(0).Patches {
				c := p.Cell(f)
				for comp := 0; comp < 2; comp++ {
					if v := c.At(comp, p.Box.Lo[0], p.Box.Lo[1]); absDifferent(v, test.want[comp]) {
						t.Errorf("F[%d] = %g, want %g", comp, v, test.want[comp])
					}
				}
			}
		})
	}
}

func TestDivSourceTermWithoutSource(t *testing.T) {
	cfg := testConfig()
	cfg.InitialConditions.U = []string{"1", "1"}
	d := newTestIntegrator(t, cfg)
	if err := d.PreprocessIntegrateHierarchy(0, 0.1, 1); err != nil {
		t.Fatal(err)
	}
	f, u := index(t, d, FieldF, Scratch), index(t, d, FieldU, Scratch)
	d.cellOps.SetToScalar(f, 3)
	if err := d.ComputeDivSourceTerm(f, index(t, d, FieldScratch, Scratch), u); err != nil {
		t.Fatal(err)
	}
	if m := maxAbs(d.Hierarchy(), f); m != 3 {
		t.Errorf("F changed to %g", m)
	}
}

func TestDivSourceTermOutsideStep(t *testing.T) {
	cfg := testConfig()
	cfg.InitialConditions.U = []string{"1", "1"}
	cfg.InitialConditions.Q = "1"
	d, err := NewIntegrator(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ComputeDivSourceTerm(0, 0, 0); !errors.Is(err, ErrSequence) {
		t.Errorf("before initialization: got %v, want a sequence error", err)
	}
	d = newTestIntegrator(t, cfg)
	h := d.Hierarchy()
	u, p := index(t, d, FieldU, Current), index(t, d, FieldP, Current)
	if err := d.ComputeDivSourceTerm(index(t, d, FieldF, Scratch), p, u); err == nil {
		t.Error("unallocated force data should fail")
	}
	d.cellOps.SetToScalar(p, 0)
	before := cells(h, u)
	if err := d.ComputeDivSourceTerm(u, p, u); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, cells(h, u)) {
		t.Error("a zero source changed the force")
	}
	if h.IsAllocated(index(t, d, FieldGradPhiCC, Scratch), 0) {
		t.Error("gradient scratch data was left allocated")
	}
}

func TestFluidSourceDivergence(t *testing.T) {
	cfg := testConfig()
	cfg.InitialConditions.Q = "sin(2*pi*x)*sin(2*pi*y)"
	d := newTestIntegrator(t, cfg)
	if err := d.AdvanceHierarchy(0.05); err != nil {
		t.Fatal(err)
	}
	// The face divergence of the advection velocity equals the source.
	h := d.Hierarchy()
	div := index(t, d, FieldDivUADV, Current)
	for _, p := range h.Level(0).Patches {
		c := p.Cell(div)
		for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
			for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
				x, y := h.Level(0).CellCenter(i, j)
				want, err := d.qFcn.(*ExpressionFunction).Eval(0, x, y, 0.025)
				if err != nil {
					t.Fatal(err)
				}
				if got := c.At(0, i, j); absDifferent(got, want) && different(got, want, 1.e-6) {
					t.Fatalf("div u_ADV(%d,%d) = %g, want %g", i, j, got, want)
				}
			}
		}
	}
}

func TestStableTimestep(t *testing.T) {
	cfg := testConfig()
	cfg.Integrator.CFL = 0.5
	cfg.Integrator.DtMax = 10
	cfg.InitialConditions.U = []string{"2", "1"}
	d := newTestIntegrator(t, cfg)
	// dx = 1/16 and the largest face velocity is 2.
	if dt := d.MaximumTimestep(); different(dt, 0.5*(1.0/16)/2, 1e-12) {
		t.Errorf("dt = %g", dt)
	}
	cfg = testConfig()
	d = newTestIntegrator(t, cfg)
	if dt := d.MaximumTimestep(); dt != cfg.Integrator.DtMax {
		t.Errorf("zero velocity: dt = %g", dt)
	}
	if err := d.AdvanceHierarchy(0.01); err != nil {
		t.Fatal(err)
	}
	if dt := d.MaximumTimestep(); different(dt, 0.02, 1e-12) {
		t.Errorf("growth limited dt = %g", dt)
	}
}

func TestRegridProjectionFailure(t *testing.T) {
	cfg := testConfig()
	cfg.PressureSolver.MaxIterations = 1
	cfg.InitialConditions.U = []string{"0", "0"}
	d := newTestIntegrator(t, cfg)
	u := index(t, d, FieldU, Current)
	setField(d.Hierarchy(), u, func(comp int, x, y float64) float64 {
		if comp == 0 {
			return x*x + y
		}
		return y * y * x
	})
	var serr *SolverError
	if err := d.RegridProjection(); !errors.As(err, &serr) {
		t.Fatalf("got %v, want a solver error", err)
	}
	if serr.Subsystem != "regrid projection" {
		t.Errorf("subsystem %q", serr.Subsystem)
	}
	if err := d.AdvanceHierarchy(0.1); err == nil {
		t.Error("stepping an inconsistent hierarchy should fail")
	}
}

// failingSolver fails the next failures solves and then behaves like
// the solver it wraps.
type failingSolver struct {
	solve.Solver
	failures int
}

func (s *failingSolver) Solve(x, b amr.DataIndex) error {
	if s.failures > 0 {
		s.failures--
		return &solve.Error{Solver: "failing", Reason: solve.NonConvergence, Err: errors.New("iteration limit")}
	}
	return s.Solver.Solve(x, b)
}

func TestRetryAfterSolverFailure(t *testing.T) {
	cfg := testConfig()
	cfg.InitialConditions.U = taylorGreen
	d := newTestIntegrator(t, cfg)
	h := d.Hierarchy()
	vs, err := d.VelocitySubdomainSolver()
	if err != nil {
		t.Fatal(err)
	}
	d.velSolver = &failingSolver{Solver: vs, failures: 1}
	u := index(t, d, FieldU, Current)
	before := cells(h, u)

	var serr *SolverError
	if err := d.AdvanceHierarchy(0.01); !errors.As(err, &serr) {
		t.Fatalf("got %v, want a solver error", err)
	}
	if serr.Subsystem != "velocity" {
		t.Errorf("subsystem %q", serr.Subsystem)
	}
	if d.State() != HierarchyInitialized || d.Step() != 0 || d.Time() != 0 {
		t.Errorf("after the failed step: state %s, step %d, time %g", d.State(), d.Step(), d.Time())
	}
	for _, c := range []ContextID{New, Scratch} {
		for _, idx := range d.Registry().Indices(c) {
			if h.IsAllocated(idx, 0) {
				t.Errorf("%s data index %d is still allocated", c, idx)
			}
		}
	}
	if !reflect.DeepEqual(before, cells(h, u)) {
		t.Error("the failed step changed the current velocity")
	}

	if err := d.AdvanceHierarchy(0.005); err != nil {
		t.Fatal(err)
	}
	if d.State() != Postprocessed || d.Step() != 1 || absDifferent(d.Time(), 0.005) {
		t.Errorf("after the retried step: state %s, step %d, time %g", d.State(), d.Step(), d.Time())
	}
}

func TestResetIntegratorToPreadvanceState(t *testing.T) {
	d := newTestIntegrator(t, testConfig())
	if err := d.ResetIntegratorToPreadvanceState(); !errors.Is(err, ErrSequence) {
		t.Errorf("without a step: got %v, want a sequence error", err)
	}
	if err := d.AdvanceHierarchy(0.01); err != nil {
		t.Fatal(err)
	}
	if err := d.PreprocessIntegrateHierarchy(0.01, 0.02, 2); err != nil {
		t.Fatal(err)
	}
	if err := d.IntegrateHierarchy(0.01, 0.02, 0); err != nil {
		t.Fatal(err)
	}
	if err := d.ResetIntegratorToPreadvanceState(); err != nil {
		t.Fatal(err)
	}
	if d.State() != Postprocessed {
		t.Errorf("state %s, want %s", d.State(), Postprocessed)
	}
	if h := d.Hierarchy(); h.IsAllocated(index(t, d, FieldU, New), 0) {
		t.Error("new velocity is still allocated")
	}
	if err := d.PreprocessIntegrateHierarchy(0.01, 0.02, 1); err != nil {
		t.Errorf("a new step after the reset: %v", err)
	}
}

// setField sets the interior of idx on every level to f.
func setField(h *amr.Hierarchy, idx amr.DataIndex, f func(comp int, x, y float64) float64) {
	for ln := 0; ln <= h.FinestLevelNumber(); ln++ {
		l := h.Level(ln)
		for _, p := range l.Patches {
			c := p.Cell(idx)
			for comp := 0; comp < c.Depth(); comp++ {
				for j := p.Box.Lo[1]; j <= p.Box.Hi[1]; j++ {
					for i := p.Box.Lo[0]; i <= p.Box.Hi[0]; i++ {
						x, y := l.CellCenter(i, j)
						c.Set(comp, i, j, f(comp, x, y))
					}
				}
			}
		}
	}
}

func TestSetupPlotData(t *testing.T) {
	d := newTestIntegrator(t, testConfig())
	h := d.Hierarchy()
	setField(h, index(t, d, FieldU, Current), func(comp int, x, y float64) float64 {
		if comp == 0 {
			return math.Sin(2 * math.Pi * y)
		}
		return 0
	})
	d.SetupPlotData()
	want := 16 * math.Sin(math.Pi/8) * math.Cos(math.Pi/16)
	if got := maxAbs(h, index(t, d, FieldOmega, Current)); different(got, want, 1e-10) {
		t.Errorf("max |Omega| = %g, want %g", got, want)
	}
	if got := maxAbs(h, index(t, d, FieldDivU, Current)); got > 1e-12 {
		t.Errorf("max |div U| = %g", got)
	}
}
