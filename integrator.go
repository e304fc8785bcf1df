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

// Package insflow advances the incompressible Navier-Stokes equations on
// an adaptively refined patch hierarchy using a collocated projection
// method: cell-centered velocity and pressure, plus a face-centered
// advection velocity that is kept discretely divergence free.
package insflow

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/insflow/amr"
	"github.com/spatialmodel/insflow/convect"
	"github.com/spatialmodel/insflow/internal/hash"
	"github.com/spatialmodel/insflow/restart"
	"github.com/spatialmodel/insflow/solve"
)

// Version gives the version number.
const Version = "0.1.0"

// State is the position of an integrator in its call sequence.
type State int

// Integrator states.
const (
	Uninitialized State = iota
	IntegratorInitialized
	HierarchyInitialized
	Preprocessed
	Integrated
	Postprocessed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case IntegratorInitialized:
		return "HierarchyIntegratorInitialized"
	case HierarchyInitialized:
		return "PatchHierarchyInitialized"
	case Preprocessed:
		return "Preprocessed"
	case Integrated:
		return "Integrated"
	case Postprocessed:
		return "Postprocessed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// GriddingAlgorithm chooses the patch layout of each level.
type GriddingAlgorithm interface {
	// CoarsestBoxes returns the boxes of level 0.
	CoarsestBoxes(h *amr.Hierarchy) []amr.Box
	// FineBoxes returns the boxes, in the index space of level ln+1,
	// of a new level covering the cells tagged in tagIdx on level ln.
	FineBoxes(h *amr.Hierarchy, ln int, tagIdx amr.DataIndex) ([]amr.Box, error)
}

// HierarchyIntegrator is the set of operations shared by time
// integrators on a patch hierarchy.
type HierarchyIntegrator interface {
	InitializeHierarchyIntegrator(h *amr.Hierarchy, g GriddingAlgorithm) error
	InitializePatchHierarchy(h *amr.Hierarchy, g GriddingAlgorithm) error
	PreprocessIntegrateHierarchy(t, tNew float64, numCycles int) error
	IntegrateHierarchy(t, tNew float64, cycle int) error
	PostprocessIntegrateHierarchy(t, tNew float64, skipSync bool, numCycles int) error
	AdvanceHierarchy(dt float64) error
	ResetIntegratorToPreadvanceState() error
	RegridHierarchy() error
	MaximumTimestep() float64
	Time() float64
	PutToRestart(db restart.Database) error
}

var _ HierarchyIntegrator = (*Integrator)(nil)

// noCopy makes go vet report copies of the structs that embed it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Integrator is the collocated projection integrator. It must not be
// copied after creation.
type Integrator struct {
	noCopy noCopy

	Log     logrus.FieldLogger
	Metrics *Metrics

	s     *settings
	state State

	h        *amr.Hierarchy
	gridding GriddingAlgorithm
	reg      *Registry
	cellOps  *amr.CellDataOps
	faceOps  *amr.FaceDataOps

	uInit, pInit, fFcn, qFcn CartGridFunction
	restartDB                restart.Database

	convOp                     convect.Operator
	convOpNeedsInit            bool
	velSolver, presSolver      solve.Solver
	velKey, presKey            string
	reinitKey                  string
	reinitCount                int
	coarsestReset, finestReset int

	time           float64
	step           int
	dt, dtPrevious float64

	numCycles, cyclesDone int
	haveNOld, nOldNew     bool
	// preStepState is the state before the step in progress.
	preStepState State

	// inconsistent holds the error of a failed regrid projection until a
	// later projection succeeds.
	inconsistent error
}

// NewIntegrator returns an integrator configured by cfg.
func NewIntegrator(cfg *Config, log logrus.FieldLogger) (*Integrator, error) {
	s, err := cfg.settings()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Integrator{
		Log:           log.WithField("integrator", s.objectName),
		s:             s,
		time:          cfg.Integrator.StartTime,
		dt:            s.dtMax,
		coarsestReset: -1,
		finestReset:   -1,
	}
	ic := cfg.InitialConditions
	for _, f := range []struct {
		name  string
		exprs []string
		depth int
		dst   *CartGridFunction
	}{
		{"U", ic.U, 2, &d.uInit},
		{"P", []string{ic.P}, 1, &d.pInit},
		{"F", ic.F, 2, &d.fFcn},
		{"Q", []string{ic.Q}, 1, &d.qFcn},
	} {
		if len(f.exprs) == 0 {
			continue
		}
		if len(f.exprs) != f.depth {
			return nil, configErrorf("InitialConditions."+f.name, "needs %d expressions but has %d", f.depth, len(f.exprs))
		}
		if *f.dst, err = expressionFunction(f.name, f.exprs...); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ObjectName returns the name used for logging and restart keys.
func (d *Integrator) ObjectName() string { return d.s.objectName }

// State returns the current position in the call sequence.
func (d *Integrator) State() State { return d.state }

// Time returns the current simulation time.
func (d *Integrator) Time() float64 { return d.time }

// Step returns the number of completed time steps.
func (d *Integrator) Step() int { return d.step }

// Hierarchy returns the patch hierarchy, or nil before initialization.
func (d *Integrator) Hierarchy() *amr.Hierarchy { return d.h }

// Registry returns the field registry, or nil before initialization.
func (d *Integrator) Registry() *Registry { return d.reg }

// ProjectionMethod returns the configured projection method.
func (d *Integrator) ProjectionMethod() ProjectionMethod { return d.s.projection }

// CreepingFlow returns whether the convective term is omitted.
func (d *Integrator) CreepingFlow() bool { return d.s.creeping }

// NumCycles returns the configured number of cycles per time step.
func (d *Integrator) NumCycles() int { return d.s.numCycles }

func (d *Integrator) sequenceError(op, format string, args ...interface{}) error {
	return &SequenceError{Op: op, State: d.state, Detail: fmt.Sprintf(format, args...)}
}

func (d *Integrator) registerFunction(op string, dst *CartGridFunction, f CartGridFunction) error {
	if d.state != Uninitialized {
		return d.sequenceError(op, "functions must be registered before initialization")
	}
	*dst = f
	return nil
}

// RegisterVelocityInitialConditions sets the initial velocity.
func (d *Integrator) RegisterVelocityInitialConditions(f CartGridFunction) error {
	return d.registerFunction("RegisterVelocityInitialConditions", &d.uInit, f)
}

// RegisterPressureInitialConditions sets the initial pressure.
func (d *Integrator) RegisterPressureInitialConditions(f CartGridFunction) error {
	return d.registerFunction("RegisterPressureInitialConditions", &d.pInit, f)
}

// RegisterBodyForceFunction sets the body force F.
func (d *Integrator) RegisterBodyForceFunction(f CartGridFunction) error {
	return d.registerFunction("RegisterBodyForceFunction", &d.fFcn, f)
}

// RegisterFluidSourceFunction sets the fluid source Q, which enables the
// source term in the momentum and continuity equations.
func (d *Integrator) RegisterFluidSourceFunction(f CartGridFunction) error {
	return d.registerFunction("RegisterFluidSourceFunction", &d.qFcn, f)
}

// SetRestartDatabase sets the database the hierarchy is restored from
// when it holds data for this integrator.
func (d *Integrator) SetRestartDatabase(db restart.Database) error {
	if d.state > IntegratorInitialized {
		return d.sequenceError("SetRestartDatabase", "the patch hierarchy is already initialized")
	}
	d.restartDB = db
	return nil
}

// SetPhysicalCoefficients changes the density and viscosity. Cached
// solvers are rebuilt on their next use.
func (d *Integrator) SetPhysicalCoefficients(rho, mu float64) error {
	if rho <= 0 {
		return configErrorf("rho", "%g but should be >0", rho)
	}
	if mu < 0 {
		return configErrorf("mu", "%g but should be >=0", mu)
	}
	if d.state == Preprocessed || d.state == Integrated {
		return d.sequenceError("SetPhysicalCoefficients", "coefficients cannot change within a time step")
	}
	d.s.rho, d.s.mu = rho, mu
	return nil
}

// SetConvectiveOperatorType changes the convective discretization. The
// cached operator is discarded.
func (d *Integrator) SetConvectiveOperatorType(t convect.Type, f convect.Form) error {
	if d.state == Preprocessed || d.state == Integrated {
		return d.sequenceError("SetConvectiveOperatorType", "the operator cannot change within a time step")
	}
	if _, err := convect.New(d.s.objectName+"::convective_operator", t, f, amr.FillSpec{}); err != nil {
		return &ConfigError{Field: "convective_op_type", Err: err}
	}
	d.s.convType, d.s.convForm = t, f
	if d.convOp != nil {
		d.convOp.DeallocateOperatorState()
	}
	d.convOp = nil
	return nil
}

// fill returns the ghost filling used for field f.
func (d *Integrator) fill(f FieldID) amr.FillSpec {
	switch f {
	case FieldU, FieldURHS:
		return amr.FillSpec{Role: amr.NoSlip, Refine: d.s.u.refine}
	case FieldP, FieldGradP:
		return amr.FillSpec{Role: amr.Neumann, Refine: d.s.p.refine}
	case FieldPhi:
		return amr.FillSpec{Role: amr.Neumann, Refine: d.s.p.refine}
	case FieldF:
		return amr.FillSpec{Role: amr.Neumann, Refine: d.s.f.refine}
	case FieldQ:
		return amr.FillSpec{Role: amr.Neumann, Refine: d.s.q.refine}
	case FieldN, FieldNOld:
		return amr.FillSpec{Role: amr.Neumann, Refine: d.s.nOld.refine}
	default:
		return amr.FillSpec{Role: amr.Neumann, Refine: amr.ConstantRefine}
	}
}

// InitializeHierarchyIntegrator registers every (field, context) pair
// the integrator uses with h. It may be called only once.
func (d *Integrator) InitializeHierarchyIntegrator(h *amr.Hierarchy, g GriddingAlgorithm) error {
	if d.state != Uninitialized {
		return configErrorf("InitializeHierarchyIntegrator", "integrator %s is already initialized", d.s.objectName)
	}
	if h == nil || g == nil {
		return configErrorf("InitializeHierarchyIntegrator", "hierarchy and gridding algorithm must not be nil")
	}
	d.h, d.gridding = h, g
	d.reg = NewRegistry(h)

	cell := func(depth int) amr.Variable {
		return amr.Variable{Centering: amr.CellCentered, Depth: depth, Ghosts: 1}
	}
	face := amr.Variable{Centering: amr.FaceCentered, Depth: 1}
	type field struct {
		f        FieldID
		v        amr.Variable
		contexts []ContextID
	}
	fields := []field{
		{FieldU, cell(2), []ContextID{Current, New, Scratch}},
		{FieldUADV, face, []ContextID{Current, New, Scratch}},
		{FieldP, cell(1), []ContextID{Current, New, Scratch}},
		{FieldF, cell(2), []ContextID{Scratch}},
		{FieldURHS, cell(2), []ContextID{Scratch}},
		{FieldOmega, cell(1), []ContextID{Current}},
		{FieldDivU, cell(1), []ContextID{Current}},
		{FieldDivUADV, cell(1), []ContextID{Current}},
		{FieldPhi, cell(1), []ContextID{Scratch}},
		{FieldPhiRHS, cell(1), []ContextID{Scratch}},
		{FieldGradPhiCC, cell(2), []ContextID{Scratch}},
		{FieldGradPhiFC, face, []ContextID{Scratch}},
		{FieldScratch, cell(1), []ContextID{Scratch}},
		{FieldTag, cell(1), []ContextID{Current}},
	}
	if d.qFcn != nil {
		fields = append(fields, field{FieldQ, cell(1), []ContextID{Scratch}})
	}
	if !d.s.creeping {
		fields = append(fields,
			field{FieldN, cell(2), []ContextID{Scratch}},
			field{FieldNOld, cell(2), []ContextID{Current, New}},
		)
	}
	if d.s.projection == PressureIncrement {
		fields = append(fields, field{FieldGradP, cell(2), []ContextID{Scratch}})
	}
	for _, f := range fields {
		if err := d.reg.Register(f.f, f.v, f.contexts...); err != nil {
			return &ConfigError{Field: f.f.String(), Err: err}
		}
	}
	d.cellOps = amr.NewCellDataOps(h)
	d.faceOps = amr.NewFaceDataOps(h)
	d.state = IntegratorInitialized
	d.Log.WithFields(logrus.Fields{
		"projection":    d.s.projection,
		"creeping_flow": d.s.creeping,
		"num_cycles":    d.s.numCycles,
	}).Debug("registered fields")
	return nil
}

// allocate allocates storage for every field in context c on levels
// coarsest through finest.
func (d *Integrator) allocate(c ContextID, coarsest, finest int) {
	for _, idx := range d.reg.Indices(c) {
		d.h.Allocate(idx, coarsest, finest)
	}
}

func (d *Integrator) deallocate(c ContextID, coarsest, finest int) {
	for _, idx := range d.reg.Indices(c) {
		d.h.Deallocate(idx, coarsest, finest)
	}
}

// InitializePatchHierarchy builds the initial hierarchy, or restores it
// from the restart database, and sets the initial data.
func (d *Integrator) InitializePatchHierarchy(h *amr.Hierarchy, g GriddingAlgorithm) error {
	if d.state == Uninitialized {
		if err := d.InitializeHierarchyIntegrator(h, g); err != nil {
			return err
		}
	}
	if d.state != IntegratorInitialized {
		return d.sequenceError("InitializePatchHierarchy", "the patch hierarchy is already initialized")
	}
	if h != d.h {
		return configErrorf("InitializePatchHierarchy", "hierarchy differs from the one the integrator was initialized with")
	}
	if d.restartDB != nil && d.restartDB.IsDefined(d.restartKey("version")) {
		if err := d.getFromRestart(d.restartDB); err != nil {
			return err
		}
	} else {
		if err := d.buildInitialHierarchy(); err != nil {
			return err
		}
	}
	d.state = HierarchyInitialized
	d.dt = d.MaximumTimestep()
	d.Log.WithFields(logrus.Fields{
		"levels": h.NumberOfLevels(),
		"time":   d.time,
	}).Info("initialized patch hierarchy")
	return nil
}

func (d *Integrator) buildInitialHierarchy() error {
	h := d.h
	if h.NumberOfLevels() != 0 {
		return configErrorf("InitializePatchHierarchy", "hierarchy already has %d levels", h.NumberOfLevels())
	}
	if _, _, err := h.MakeLevel(0, d.gridding.CoarsestBoxes(h)); err != nil {
		return &ConfigError{Field: "Grid", Err: err}
	}
	d.allocate(Current, 0, 0)
	if err := d.initializeLevelData(0, true, nil); err != nil {
		return err
	}
	tag := d.reg.idx(FieldTag, Current)
	for ln := 0; ln < h.MaxLevels-1; ln++ {
		if err := d.ApplyGradientDetector(h, ln, d.time, tag, true, false); err != nil {
			return err
		}
		boxes, err := d.gridding.FineBoxes(h, ln, tag)
		if err != nil {
			return fmt.Errorf("insflow: generating level %d: %w", ln+1, err)
		}
		if len(boxes) == 0 {
			break
		}
		if _, _, err := h.MakeLevel(ln+1, boxes); err != nil {
			return fmt.Errorf("insflow: making level %d: %w", ln+1, err)
		}
		d.allocate(Current, ln+1, ln+1)
		if err := d.initializeLevelData(ln+1, true, nil); err != nil {
			return err
		}
	}
	d.resetHierarchyConfiguration(0, h.FinestLevelNumber())
	return d.initializeCompositeHierarchyData()
}

// initializeLevelData sets the Current data on level ln. Data is copied
// from oldLevel where it overlaps, refined from level ln-1 elsewhere,
// and taken from the initial condition functions at the initial time.
func (d *Integrator) initializeLevelData(ln int, initialTime bool, oldLevel *amr.Level) error {
	h := d.h
	d.allocate(Current, ln, ln)
	for _, f := range d.reg.Fields(Current) {
		idx := d.reg.idx(f, Current)
		switch f {
		case FieldU, FieldP, FieldNOld:
			if ln > 0 {
				fs := d.fill(f)
				h.RefineCell(idx, fs.Role, fs.Refine, ln)
			}
		case FieldUADV:
			if ln > 0 {
				h.RefineFace(idx, ln)
			}
		}
		if oldLevel != nil {
			h.CopyFromLevel(idx, h.Level(ln), oldLevel)
		}
	}
	if !initialTime {
		return nil
	}
	for _, ic := range []struct {
		f   FieldID
		fcn CartGridFunction
	}{{FieldU, d.uInit}, {FieldP, d.pInit}} {
		if ic.fcn == nil {
			continue
		}
		if err := ic.fcn.SetDataOnPatchHierarchy(d.reg.idx(ic.f, Current), h, d.time, ln, ln); err != nil {
			return fmt.Errorf("insflow: setting initial %s: %w", ic.f, err)
		}
	}
	return nil
}

// resetHierarchyConfiguration records that levels coarsest through
// finest changed, so operators and solvers are rebuilt before next use.
func (d *Integrator) resetHierarchyConfiguration(coarsest, finest int) {
	d.coarsestReset, d.finestReset = coarsest, finest
	d.convOpNeedsInit = true
	d.velKey, d.presKey, d.reinitKey = "", "", ""
}

// initializeCompositeHierarchyData synchronizes the initial data,
// projects the initial velocity, and computes the diagnostics.
func (d *Integrator) initializeCompositeHierarchyData() error {
	d.synchronize(false)
	if err := d.regridProjection(); err != nil {
		return err
	}
	d.SetupPlotData()
	return nil
}

// synchronize replaces coarse Current data covered by finer levels with
// the restriction of the fine data.
func (d *Integrator) synchronize(withFaces bool) {
	h := d.h
	for ln := h.FinestLevelNumber(); ln > 0; ln-- {
		h.CoarsenCell(d.reg.idx(FieldU, Current), d.s.u.coarsen, ln)
		h.CoarsenCell(d.reg.idx(FieldP, Current), d.s.p.coarsen, ln)
		if withFaces {
			h.CoarsenFace(d.reg.idx(FieldUADV, Current), d.s.uADV.coarsen, ln)
			if d.haveNOld {
				h.CoarsenCell(d.reg.idx(FieldNOld, Current), d.s.nOld.coarsen, ln)
			}
		}
	}
}

// SetupPlotData recomputes the vorticity and divergence diagnostics from
// the Current velocity.
func (d *Integrator) SetupPlotData() {
	h := d.h
	finest := h.FinestLevelNumber()
	u := d.reg.idx(FieldU, Current)
	h.FillGhosts(u, d.fill(FieldU), 0, finest)
	amr.Curl(h, d.reg.idx(FieldOmega, Current), u, 0, finest)
	amr.DivergenceCell(h, d.reg.idx(FieldDivU, Current), u, 1, 0, finest)
	amr.DivergenceFace(h, d.reg.idx(FieldDivUADV, Current), d.reg.idx(FieldUADV, Current), 1, 0, finest)
}

// ConvectiveOperator returns the convective operator, creating it on
// first use. It returns nil for creeping flow.
func (d *Integrator) ConvectiveOperator() convect.Operator {
	if d.s.creeping {
		return nil
	}
	if d.convOp == nil {
		op, err := convect.New(d.s.objectName+"::convective_operator", d.s.convType, d.s.convForm, d.fill(FieldU))
		if err != nil {
			panic(err) // the type and form were validated in New
		}
		d.convOp = op
		d.convOpNeedsInit = true
	}
	if d.convOpNeedsInit && d.h != nil && d.h.NumberOfLevels() > 0 {
		if err := d.convOp.InitializeOperatorState(d.h, 0, d.h.FinestLevelNumber()); err != nil {
			panic(err) // the level range comes from the hierarchy itself
		}
		d.convOpNeedsInit = false
	}
	return d.convOp
}

func (d *Integrator) hierarchyReady() bool {
	return d.h != nil && d.h.NumberOfLevels() > 0
}

// VelocitySubdomainSolver returns the solver for the implicit viscous
// update, creating it on first use and reconfiguring it whenever the
// density, viscosity, time step size or hierarchy have changed.
func (d *Integrator) VelocitySubdomainSolver() (solve.Solver, error) {
	if d.velSolver == nil {
		s, err := solve.New(d.s.objectName+"::velocity_solver", d.s.velocity)
		if err != nil {
			return nil, &ConfigError{Field: "VelocitySolver", Err: err}
		}
		d.velSolver = s
	}
	gen := -1
	if d.h != nil {
		gen = d.h.Generation()
	}
	key := hash.Fingerprint(d.s.rho, d.s.mu, d.dt, gen)
	if key != d.velKey {
		d.velSolver.SetSpecifications(solve.Specifications{C: d.s.rho / d.dt, D: -d.s.mu / 2})
		if d.hierarchyReady() {
			if err := d.velSolver.InitializeSolverState(d.h, 0, d.h.FinestLevelNumber()); err != nil {
				return nil, err
			}
		}
		d.velKey = key
	}
	return d.velSolver, nil
}

// PressureSubdomainSolver returns the solver for the projection
// Poisson problem, creating it on first use.
func (d *Integrator) PressureSubdomainSolver() (solve.Solver, error) {
	if d.presSolver == nil {
		s, err := solve.New(d.s.objectName+"::pressure_solver", d.s.pressure)
		if err != nil {
			return nil, &ConfigError{Field: "PressureSolver", Err: err}
		}
		d.presSolver = s
	}
	gen := -1
	if d.h != nil {
		gen = d.h.Generation()
	}
	key := hash.Fingerprint(gen)
	if key != d.presKey {
		d.presSolver.SetSpecifications(solve.Specifications{C: 0, D: -1})
		if d.hierarchyReady() {
			if err := d.presSolver.InitializeSolverState(d.h, 0, d.h.FinestLevelNumber()); err != nil {
				return nil, err
			}
		}
		d.presKey = key
	}
	return d.presSolver, nil
}

// reinitializeOperatorsAndSolvers brings the convective operator and the
// subdomain solvers up to date for a step from t to tNew. It does
// nothing if nothing they depend on has changed since the last call.
func (d *Integrator) reinitializeOperatorsAndSolvers(t, tNew float64) error {
	key := hash.Fingerprint(d.s.rho, d.s.mu, tNew-t, d.h.Generation(), d.s.convType, d.s.convForm)
	if key == d.reinitKey {
		return nil
	}
	d.dt = tNew - t
	if _, err := d.VelocitySubdomainSolver(); err != nil {
		return err
	}
	if _, err := d.PressureSubdomainSolver(); err != nil {
		return err
	}
	d.ConvectiveOperator()
	d.Log.WithFields(logrus.Fields{
		"dt":             d.dt,
		"coarsest_reset": d.coarsestReset,
		"finest_reset":   d.finestReset,
	}).Debug("reinitialized operators and solvers")
	d.reinitKey = key
	d.reinitCount++
	d.coarsestReset, d.finestReset = -1, -1
	return nil
}
