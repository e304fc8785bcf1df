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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/insflow/amr"
	"github.com/spatialmodel/insflow/solve"
)

// PreprocessIntegrateHierarchy prepares a step from t to tNew made of
// numCycles calls to IntegrateHierarchy.
func (d *Integrator) PreprocessIntegrateHierarchy(t, tNew float64, numCycles int) error {
	const op = "PreprocessIntegrateHierarchy"
	if d.state != HierarchyInitialized && d.state != Postprocessed {
		return d.sequenceError(op, "the hierarchy must be initialized and no step may be in progress")
	}
	if d.inconsistent != nil {
		return fmt.Errorf("insflow: hierarchy state is inconsistent after a failed regrid projection: %w", d.inconsistent)
	}
	if numCycles < 1 {
		return d.sequenceError(op, "num_cycles=%d but should be >=1", numCycles)
	}
	if !(tNew > t) {
		return d.sequenceError(op, "new time %g is not after current time %g", tNew, t)
	}
	finest := d.h.FinestLevelNumber()
	d.allocate(New, 0, finest)
	d.allocate(Scratch, 0, finest)
	d.cellOps.Copy(d.reg.idx(FieldU, New), d.reg.idx(FieldU, Current))
	d.cellOps.Copy(d.reg.idx(FieldP, New), d.reg.idx(FieldP, Current))
	d.faceOps.Copy(d.reg.idx(FieldUADV, New), d.reg.idx(FieldUADV, Current))
	if err := d.reinitializeOperatorsAndSolvers(t, tNew); err != nil {
		d.deallocate(New, 0, finest)
		d.deallocate(Scratch, 0, finest)
		return err
	}
	d.dt = tNew - t
	d.numCycles, d.cyclesDone = numCycles, 0
	d.nOldNew = false
	d.preStepState = d.state
	d.state = Preprocessed
	return nil
}

// ResetIntegratorToPreadvanceState abandons the step in progress. The New
// and Scratch data are freed and the Current data, which a step only
// changes in PostprocessIntegrateHierarchy, is kept, so the step can be
// retried, for example with a smaller step size.
func (d *Integrator) ResetIntegratorToPreadvanceState() error {
	if d.state != Preprocessed && d.state != Integrated {
		return d.sequenceError("ResetIntegratorToPreadvanceState", "no step is in progress")
	}
	finest := d.h.FinestLevelNumber()
	d.deallocate(New, 0, finest)
	d.deallocate(Scratch, 0, finest)
	d.numCycles, d.cyclesDone = 0, 0
	d.nOldNew = false
	d.state = d.preStepState
	d.Log.WithField("time", d.time).Warn("step abandoned")
	return nil
}

// IntegrateHierarchy performs cycle number cycle of the current step.
// Cycles must be performed in order, starting from zero.
func (d *Integrator) IntegrateHierarchy(t, tNew float64, cycle int) error {
	const op = "IntegrateHierarchy"
	if d.state != Preprocessed && d.state != Integrated {
		return d.sequenceError(op, "PreprocessIntegrateHierarchy must be called first")
	}
	if cycle >= d.numCycles {
		return d.sequenceError(op, "cycle %d requested but the step has %d cycles", cycle, d.numCycles)
	}
	if cycle != d.cyclesDone {
		return d.sequenceError(op, "cycle %d requested but %d cycles are done", cycle, d.cyclesDone)
	}
	if math.Abs((tNew-t)-d.dt) > 1e-12*math.Max(1, math.Abs(d.dt)) {
		return d.sequenceError(op, "time interval [%g, %g] differs from the preprocessed step size %g", t, tNew, d.dt)
	}
	if err := d.integrate(t, tNew, cycle); err != nil {
		return err
	}
	d.cyclesDone++
	d.state = Integrated
	return nil
}

// integrate advances the New data by one cycle.
func (d *Integrator) integrate(t, tNew float64, cycle int) error {
	h, r, cc, fc := d.h, d.reg, d.cellOps, d.faceOps
	finest := h.FinestLevelNumber()
	dt := tNew - t
	tHalf := t + dt/2
	rho, mu := d.s.rho, d.s.mu

	uCur, uNew, uScr := r.idx(FieldU, Current), r.idx(FieldU, New), r.idx(FieldU, Scratch)
	aCur, aNew, aScr := r.idx(FieldUADV, Current), r.idx(FieldUADV, New), r.idx(FieldUADV, Scratch)
	pCur, pNew := r.idx(FieldP, Current), r.idx(FieldP, New)
	fScr, rhs := r.idx(FieldF, Scratch), r.idx(FieldURHS, Scratch)

	// Nonlinear term.
	var nScr amr.DataIndex
	if !d.s.creeping {
		nScr = r.idx(FieldN, Scratch)
		nOldCur, nOldNew := r.idx(FieldNOld, Current), r.idx(FieldNOld, New)
		conv := d.ConvectiveOperator()
		if cycle == 0 {
			cc.Copy(uScr, uCur)
			fc.Copy(aScr, aCur)
			if err := conv.ApplyConvectiveOperator(uScr, aScr, nOldNew); err != nil {
				return err
			}
			d.nOldNew = true
			if d.haveNOld && d.dtPrevious > 0 {
				w := dt / (2 * d.dtPrevious)
				cc.LinearSum(nScr, 1+w, nOldNew, -w, nOldCur)
			} else {
				cc.Copy(nScr, nOldNew)
			}
		} else {
			cc.LinearSum(uScr, 0.5, uCur, 0.5, uNew)
			fc.LinearSum(aScr, 0.5, aCur, 0.5, aNew)
			if err := conv.ApplyConvectiveOperator(uScr, aScr, nScr); err != nil {
				return err
			}
		}
	} else {
		cc.Copy(uScr, uCur)
	}

	// Body force and fluid source.
	if d.fFcn != nil {
		if err := d.fFcn.SetDataOnPatchHierarchy(fScr, h, tHalf, 0, finest); err != nil {
			return fmt.Errorf("insflow: evaluating body force: %w", err)
		}
	} else {
		cc.SetToScalar(fScr, 0)
	}
	var qScr amr.DataIndex
	if d.qFcn != nil {
		qScr = r.idx(FieldQ, Scratch)
		if err := d.qFcn.SetDataOnPatchHierarchy(qScr, h, tHalf, 0, finest); err != nil {
			return fmt.Errorf("insflow: evaluating fluid source: %w", err)
		}
		if err := d.ComputeDivSourceTerm(fScr, qScr, uScr); err != nil {
			return err
		}
	}

	// Momentum: (ρ/Δt - μ/2 ∇²) U* = (ρ/Δt + μ/2 ∇²) Uⁿ - ρN + F [- ∇P].
	h.FillGhosts(uCur, d.fill(FieldU), 0, finest)
	amr.Laplacian(h, rhs, uCur, rho/dt, mu/2, 0, finest)
	if !d.s.creeping {
		cc.Axpy(rhs, -rho, nScr, rhs)
	}
	cc.Axpy(rhs, 1, fScr, rhs)
	if d.s.projection == PressureIncrement {
		gradP := r.idx(FieldGradP, Scratch)
		h.FillGhosts(pCur, d.fill(FieldP), 0, finest)
		amr.GradientCell(h, gradP, pCur, 1, 0, finest)
		cc.Axpy(rhs, -1, gradP, rhs)
	}
	vs, err := d.VelocitySubdomainSolver()
	if err != nil {
		return err
	}
	if err := d.solve(vs, "velocity", uNew, rhs); err != nil {
		return err
	}

	// Projection.
	phi, phiRHS := r.idx(FieldPhi, Scratch), r.idx(FieldPhiRHS, Scratch)
	h.FillGhosts(uNew, d.fill(FieldU), 0, finest)
	amr.InterpolateToFaces(h, aNew, uNew, 0, finest)
	amr.DivergenceFace(h, phiRHS, aNew, -rho/dt, 0, finest)
	if d.qFcn != nil {
		cc.Axpy(phiRHS, rho/dt, qScr, phiRHS)
	}
	cc.SetToScalar(phi, 0)
	ps, err := d.PressureSubdomainSolver()
	if err != nil {
		return err
	}
	if err := d.solve(ps, "pressure", phi, phiRHS); err != nil {
		return err
	}
	d.correct(phi, dt/rho, uNew, aNew)

	// Pressure.
	if d.s.projection == PressureIncrement {
		cc.LinearSum(pNew, 1, pCur, 1, phi)
	} else {
		cc.Copy(pNew, phi)
	}
	if d.s.secondOrder {
		lap := r.idx(FieldScratch, Scratch)
		amr.Laplacian(h, lap, phi, 0, 1, 0, finest)
		cc.Axpy(pNew, -mu*dt/(2*rho), lap, pNew)
	}
	h.FillGhosts(pNew, d.fill(FieldP), 0, finest)
	return nil
}

// correct subtracts scale·∇φ from the cell and face velocities.
func (d *Integrator) correct(phi amr.DataIndex, scale float64, u, uADV amr.DataIndex) {
	h, r := d.h, d.reg
	finest := h.FinestLevelNumber()
	gradCC, gradFC := r.idx(FieldGradPhiCC, Scratch), r.idx(FieldGradPhiFC, Scratch)
	// Phi boundary fill.
	h.FillGhosts(phi, d.fill(FieldPhi), 0, finest)
	amr.GradientFace(h, gradFC, phi, scale, 0, finest)
	d.faceOps.Axpy(uADV, -1, gradFC, uADV)
	amr.GradientCell(h, gradCC, phi, scale, 0, finest)
	d.cellOps.Axpy(u, -1, gradCC, u)
	h.FillGhosts(u, d.fill(FieldU), 0, finest)
}

// solve runs s and records its diagnostics.
func (d *Integrator) solve(s solve.Solver, subsystem string, x, b amr.DataIndex) error {
	start := time.Now()
	err := s.Solve(x, b)
	log := d.Log.WithFields(logrus.Fields{
		"subsystem":  subsystem,
		"iterations": s.Iterations(),
		"residual":   s.ResidualNorm(),
		"walltime":   time.Since(start),
	})
	if d.Metrics != nil {
		d.Metrics.SolverIterations.WithLabelValues(subsystem).Observe(float64(s.Iterations()))
	}
	if err != nil {
		if d.Metrics != nil {
			d.Metrics.SolverFailures.WithLabelValues(subsystem).Inc()
		}
		log.WithError(err).Error("solve failed")
		return &SolverError{Subsystem: subsystem, Coarsest: 0, Finest: d.h.FinestLevelNumber(), Err: err}
	}
	log.Debug("solve converged")
	return nil
}

// PostprocessIntegrateHierarchy finishes the step. numCycles must equal
// the number of cycles performed; with zero cycles the Current data is
// left unchanged.
func (d *Integrator) PostprocessIntegrateHierarchy(t, tNew float64, skipSync bool, numCycles int) error {
	const op = "PostprocessIntegrateHierarchy"
	if d.state != Preprocessed && d.state != Integrated {
		return d.sequenceError(op, "PreprocessIntegrateHierarchy must be called first")
	}
	if numCycles != d.cyclesDone {
		return d.sequenceError(op, "num_cycles=%d but %d cycles were performed", numCycles, d.cyclesDone)
	}
	h, r := d.h, d.reg
	finest := h.FinestLevelNumber()
	if d.cyclesDone > 0 {
		d.cellOps.Copy(r.idx(FieldU, Current), r.idx(FieldU, New))
		d.cellOps.Copy(r.idx(FieldP, Current), r.idx(FieldP, New))
		d.faceOps.Copy(r.idx(FieldUADV, Current), r.idx(FieldUADV, New))
		if d.nOldNew {
			d.cellOps.Copy(r.idx(FieldNOld, Current), r.idx(FieldNOld, New))
			d.haveNOld = true
		}
		d.dtPrevious = tNew - t
	}
	if !skipSync {
		d.synchronize(true)
	}
	d.deallocate(New, 0, finest)
	d.deallocate(Scratch, 0, finest)
	d.SetupPlotData()
	d.state = Postprocessed
	return nil
}

// AdvanceHierarchy advances the solution by dt using the configured
// number of cycles, and regrids when the regrid interval is reached. If a
// cycle fails the step is abandoned and the integrator is left ready to
// retry it.
func (d *Integrator) AdvanceHierarchy(dt float64) error {
	t, tNew := d.time, d.time+dt
	if err := d.PreprocessIntegrateHierarchy(t, tNew, d.s.numCycles); err != nil {
		return err
	}
	for cycle := 0; cycle < d.s.numCycles; cycle++ {
		if err := d.IntegrateHierarchy(t, tNew, cycle); err != nil {
			if rerr := d.ResetIntegratorToPreadvanceState(); rerr != nil {
				return fmt.Errorf("insflow: %v; resetting the step: %v", err, rerr)
			}
			return err
		}
	}
	if err := d.PostprocessIntegrateHierarchy(t, tNew, false, d.s.numCycles); err != nil {
		return err
	}
	d.time = tNew
	d.step++
	if d.Metrics != nil {
		d.Metrics.Steps.Inc()
		d.Metrics.Timestep.Set(dt)
	}
	if d.s.regridInterval > 0 && d.h.MaxLevels > 1 && d.step%d.s.regridInterval == 0 {
		return d.RegridHierarchy()
	}
	return nil
}

// StableTimestep returns the largest step on patch p of level ln that
// satisfies the advective CFL condition, or +Inf if the advection
// velocity is zero.
func (d *Integrator) StableTimestep(ln int, p *amr.Patch) float64 {
	l := d.h.Level(ln)
	f := p.Face(d.reg.idx(FieldUADV, Current))
	dt := math.Inf(1)
	for axis := 0; axis < 2; axis++ {
		if m := amr.AxisMax(f, axis); m > 0 {
			dt = math.Min(dt, l.Dx[axis]/m)
		}
	}
	return d.s.cfl * dt
}

// MaximumTimestep returns the largest step allowed by the CFL condition
// on every patch, the maximum step size and the growth limit.
func (d *Integrator) MaximumTimestep() float64 {
	dt := d.s.dtMax
	if d.dtPrevious > 0 {
		dt = math.Min(dt, d.s.dtGrowth*d.dtPrevious)
	}
	if !d.hierarchyReady() || d.state < HierarchyInitialized {
		return dt
	}
	for ln := 0; ln <= d.h.FinestLevelNumber(); ln++ {
		for _, p := range d.h.Level(ln).Patches {
			dt = math.Min(dt, d.StableTimestep(ln, p))
		}
	}
	return dt
}
