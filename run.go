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
	"github.com/spatialmodel/insflow/restart"
)

// DomainManipulator is a function that operates on a simulation.
type DomainManipulator func(s *Simulation) error

// Simulation drives an integrator through a run.
type Simulation struct {
	Integrator *Integrator
	Hierarchy  *amr.Hierarchy
	Gridding   GriddingAlgorithm

	// InitFuncs are run once by Init.
	InitFuncs []DomainManipulator
	// RunFuncs are run in order, repeatedly, by Run until Done is set.
	RunFuncs []DomainManipulator
	// CleanupFuncs are run once after the last step.
	CleanupFuncs []DomainManipulator

	// Dt is the step size of the next step.
	Dt float64
	// EndTime and MaxSteps limit the run.
	EndTime  float64
	MaxSteps int

	// Done is set when the run should stop.
	Done bool

	Log logrus.FieldLogger
}

// NewSimulation returns a simulation configured by cfg that uses g to
// lay out patches. The default pipeline sets the CFL step size,
// advances, regrids at the configured interval, logs and checks the end
// time.
func NewSimulation(cfg *Config, g GriddingAlgorithm, log logrus.FieldLogger) (*Simulation, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h, err := cfg.Grid.NewHierarchy()
	if err != nil {
		return nil, err
	}
	d, err := NewIntegrator(cfg, log)
	if err != nil {
		return nil, err
	}
	s := &Simulation{
		Integrator: d,
		Hierarchy:  h,
		Gridding:   g,
		EndTime:    cfg.Integrator.EndTime,
		MaxSteps:   cfg.Integrator.MaxSteps,
		Log:        log,
	}
	s.InitFuncs = []DomainManipulator{InitializeHierarchy()}
	s.RunFuncs = []DomainManipulator{
		SetTimestepCFL(),
		AdvanceTimestep(),
		Log(),
		EndTimeCheck(),
	}
	return s, nil
}

// Init runs the InitFuncs.
func (s *Simulation) Init() error {
	for _, f := range s.InitFuncs {
		if err := f(s); err != nil {
			return err
		}
	}
	return nil
}

// Run runs the RunFuncs until Done is set, then the CleanupFuncs.
func (s *Simulation) Run() error {
	for !s.Done {
		for _, f := range s.RunFuncs {
			if err := f(s); err != nil {
				return err
			}
		}
	}
	for _, f := range s.CleanupFuncs {
		if err := f(s); err != nil {
			return err
		}
	}
	return nil
}

// InitializeHierarchy builds the patch hierarchy and sets the initial
// data. A run restored at or past its end is marked Done.
func InitializeHierarchy() DomainManipulator {
	return func(s *Simulation) error {
		if err := s.Integrator.InitializePatchHierarchy(s.Hierarchy, s.Gridding); err != nil {
			return fmt.Errorf("insflow: initializing hierarchy: %w", err)
		}
		s.Dt = s.Integrator.MaximumTimestep()
		return EndTimeCheck()(s)
	}
}

// SetTimestepCFL sets the step size to the largest stable value, cut
// short so the run ends exactly at EndTime.
func SetTimestepCFL() DomainManipulator {
	return func(s *Simulation) error {
		dt := s.Integrator.MaximumTimestep()
		if remaining := s.EndTime - s.Integrator.Time(); s.EndTime > 0 && remaining < dt {
			dt = remaining
		}
		if !(dt > 0) || math.IsInf(dt, 0) {
			return fmt.Errorf("insflow: invalid time step size %g at time %g", dt, s.Integrator.Time())
		}
		s.Dt = dt
		return nil
	}
}

// AdvanceTimestep advances the solution by Dt.
func AdvanceTimestep() DomainManipulator {
	return func(s *Simulation) error {
		return s.Integrator.AdvanceHierarchy(s.Dt)
	}
}

// RunPeriodically runs f every interval steps.
func RunPeriodically(interval int, f DomainManipulator) DomainManipulator {
	return func(s *Simulation) error {
		if interval > 0 && s.Integrator.Step()%interval == 0 {
			return f(s)
		}
		return nil
	}
}

// RegridEvery regrids the hierarchy every interval steps.
func RegridEvery(interval int) DomainManipulator {
	return RunPeriodically(interval, func(s *Simulation) error {
		return s.Integrator.RegridHierarchy()
	})
}

// Checkpoint writes the integrator state to db and, if flush is not
// nil, persists it.
func Checkpoint(db restart.Database, flush func() error) DomainManipulator {
	return func(s *Simulation) error {
		if err := s.Integrator.PutToRestart(db); err != nil {
			return err
		}
		if flush != nil {
			return flush()
		}
		return nil
	}
}

// EndTimeCheck sets Done once EndTime or MaxSteps is reached.
func EndTimeCheck() DomainManipulator {
	const tol = 1e-12
	return func(s *Simulation) error {
		d := s.Integrator
		if d.Time() >= s.EndTime-tol*math.Max(1, math.Abs(s.EndTime)) {
			s.Done = true
		}
		if s.MaxSteps > 0 && d.Step() >= s.MaxSteps {
			s.Done = true
		}
		return nil
	}
}

// Log writes a status message after each step.
func Log() DomainManipulator {
	startTime := time.Now()
	stepTime := time.Now()
	return func(s *Simulation) error {
		d := s.Integrator
		s.Log.WithFields(logrus.Fields{
			"step":      d.Step(),
			"time":      d.Time(),
			"dt":        s.Dt,
			"walltime":  time.Since(startTime).Round(time.Millisecond),
			"Δwalltime": time.Since(stepTime).Round(time.Millisecond),
			"max|U|":    d.cellOps.MaxNorm(d.reg.idx(FieldU, Current)),
			"max|divU|": d.cellOps.MaxNorm(d.reg.idx(FieldDivUADV, Current)),
		}).Info("advanced hierarchy")
		stepTime = time.Now()
		return nil
	}
}
