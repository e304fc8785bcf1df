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
	"io"
	"math"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/spatialmodel/insflow/amr"
	"github.com/spatialmodel/insflow/convect"
	"github.com/spatialmodel/insflow/solve"
)

// Config is the input database for a simulation.
type Config struct {
	Integrator        IntegratorConfig  `toml:"Integrator"`
	Grid              GridConfig        `toml:"Grid"`
	VelocitySolver    SolverConfig      `toml:"VelocitySolver"`
	PressureSolver    SolverConfig      `toml:"PressureSolver"`
	InitialConditions InitialConditions `toml:"InitialConditions"`
}

// IntegratorConfig holds the options of the time integrator.
type IntegratorConfig struct {
	ObjectName string `toml:"object_name"`

	// ProjectionMethodType is PRESSURE_INCREMENT or PRESSURE_UPDATE.
	ProjectionMethodType      string `toml:"projection_method_type"`
	Use2ndOrderPressureUpdate bool   `toml:"use_2nd_order_pressure_update"`

	// CreepingFlow drops the convective term (Stokes flow).
	CreepingFlow bool `toml:"creeping_flow"`
	// ConvectiveOpType is CENTERED or UPWIND.
	ConvectiveOpType string `toml:"convective_op_type"`
	// ConvectiveDifferenceForm is ADVECTIVE or CONSERVATIVE.
	ConvectiveDifferenceForm string `toml:"convective_difference_form"`

	NumCycles      int     `toml:"num_cycles"`
	CFL            float64 `toml:"cfl"`
	DtMax          float64 `toml:"dt_max"`
	DtGrowthFactor float64 `toml:"dt_growth_factor"`

	Rho float64 `toml:"rho"`
	Mu  float64 `toml:"mu"`

	URefineType     string `toml:"U_refine_type"`
	UCoarsenType    string `toml:"U_coarsen_type"`
	PRefineType     string `toml:"P_refine_type"`
	PCoarsenType    string `toml:"P_coarsen_type"`
	FRefineType     string `toml:"F_refine_type"`
	QRefineType     string `toml:"Q_refine_type"`
	UADVRefineType  string `toml:"u_ADV_refine_type"`
	UADVCoarsenType string `toml:"u_ADV_coarsen_type"`
	NOldRefineType  string `toml:"N_old_refine_type"`
	NOldCoarsenType string `toml:"N_old_coarsen_type"`

	// Vorticity thresholds for tagging, one entry per level; the last
	// entry applies to finer levels.
	VorticityAbsThresh []float64 `toml:"omega_abs_thresh"`
	VorticityRelThresh []float64 `toml:"omega_rel_thresh"`

	StartTime      float64 `toml:"start_time"`
	EndTime        float64 `toml:"end_time"`
	MaxSteps       int     `toml:"max_integrator_steps"`
	RegridInterval int     `toml:"regrid_interval"`
}

// GridConfig holds the domain and refinement options.
type GridConfig struct {
	XLo []float64 `toml:"x_lo"`
	XUp []float64 `toml:"x_up"`
	N   []int     `toml:"n"`
	// Boundary holds the boundary types for x_lo, x_up, y_lo, y_up.
	Boundary         []string `toml:"boundary"`
	MaxLevels        int      `toml:"max_levels"`
	LargestPatchSize int      `toml:"largest_patch_size"`
	TagBuffer        int      `toml:"tag_buffer"`
}

// SolverConfig holds the options of one subdomain solver.
type SolverConfig struct {
	Type              string  `toml:"solver_type"`
	RelTol            float64 `toml:"rel_residual_tol"`
	AbsTol            float64 `toml:"abs_residual_tol"`
	MaxIterations     int     `toml:"max_iterations"`
	MaxDirectUnknowns int     `toml:"max_direct_unknowns"`
}

// InitialConditions holds expressions in x, y and t for the initial
// and forcing fields. Empty expressions mean zero or unused.
type InitialConditions struct {
	U []string `toml:"U"`
	P string   `toml:"P"`
	F []string `toml:"F"`
	Q string   `toml:"Q"`
}

// DefaultConfig returns a configuration with every option set to its
// default value.
func DefaultConfig() *Config {
	so := solve.DefaultOptions()
	sc := SolverConfig{
		Type:              "CG",
		RelTol:            so.RelTol,
		AbsTol:            so.AbsTol,
		MaxIterations:     so.MaxIterations,
		MaxDirectUnknowns: so.MaxDirectUnknowns,
	}
	return &Config{
		Integrator: IntegratorConfig{
			ObjectName:               "INSCollocatedHierarchyIntegrator",
			ProjectionMethodType:     PressureUpdate.String(),
			ConvectiveOpType:         convect.Centered.String(),
			ConvectiveDifferenceForm: convect.Advective.String(),
			NumCycles:                1,
			CFL:                      0.5,
			DtMax:                    1,
			DtGrowthFactor:           2,
			Rho:                      1,
			Mu:                       0.01,
			URefineType:              amr.ConservativeLinearRefine.String(),
			UCoarsenType:             amr.ConservativeCoarsen.String(),
			PRefineType:              amr.ConservativeLinearRefine.String(),
			PCoarsenType:             amr.ConservativeCoarsen.String(),
			FRefineType:              amr.ConservativeLinearRefine.String(),
			QRefineType:              amr.ConservativeLinearRefine.String(),
			UADVRefineType:           amr.ConservativeLinearRefine.String(),
			UADVCoarsenType:          amr.ConservativeCoarsen.String(),
			NOldRefineType:           amr.ConservativeLinearRefine.String(),
			NOldCoarsenType:          amr.ConservativeCoarsen.String(),
			EndTime:                  1,
			MaxSteps:                 math.MaxInt32,
		},
		Grid: GridConfig{
			XLo:              []float64{0, 0},
			XUp:              []float64{1, 1},
			N:                []int{32, 32},
			Boundary:         []string{"periodic", "periodic", "periodic", "periodic"},
			MaxLevels:        1,
			LargestPatchSize: 0,
			TagBuffer:        1,
		},
		VelocitySolver: sc,
		PressureSolver: sc,
	}
}

// ReadConfig reads a TOML input database from r on top of the defaults.
func ReadConfig(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	if _, err := toml.DecodeReader(r, c); err != nil {
		return nil, &ConfigError{Field: "input database", Err: err}
	}
	return c, nil
}

// Write writes the configuration to w in TOML format.
func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// ProjectionMethod selects how the projection updates the pressure.
type ProjectionMethod int

const (
	// PressureUpdate sets the pressure to the projection potential.
	PressureUpdate ProjectionMethod = iota
	// PressureIncrement adds the projection potential to the previous
	// pressure and includes the previous pressure gradient in the
	// momentum equation.
	PressureIncrement
)

func (p ProjectionMethod) String() string {
	switch p {
	case PressureUpdate:
		return "PRESSURE_UPDATE"
	case PressureIncrement:
		return "PRESSURE_INCREMENT"
	default:
		return fmt.Sprintf("ProjectionMethod(%d)", int(p))
	}
}

// ParseProjectionMethod converts a configuration string into a
// ProjectionMethod.
func ParseProjectionMethod(s string) (ProjectionMethod, error) {
	switch strings.ToUpper(s) {
	case "PRESSURE_UPDATE":
		return PressureUpdate, nil
	case "PRESSURE_INCREMENT":
		return PressureIncrement, nil
	default:
		return -1, fmt.Errorf("invalid projection method type %q", s)
	}
}

// transfer holds the refine and coarsen operators of one quantity.
type transfer struct {
	refine  amr.RefineType
	coarsen amr.CoarsenType
}

// settings is the validated form of a Config.
type settings struct {
	objectName  string
	projection  ProjectionMethod
	secondOrder bool
	creeping    bool
	convType    convect.Type
	convForm    convect.Form
	numCycles   int
	cfl         float64
	dtMax       float64
	dtGrowth    float64
	rho, mu     float64

	u, p, f, q, uADV, nOld transfer

	absThresh, relThresh []float64
	regridInterval       int

	velocity, pressure solve.Options
}

func parseTransfer(field, refine, coarsen string) (transfer, error) {
	var t transfer
	var err error
	if t.refine, err = amr.ParseRefineType(refine); err != nil {
		return t, &ConfigError{Field: field + "_refine_type", Err: err}
	}
	if t.coarsen, err = amr.ParseCoarsenType(coarsen); err != nil {
		return t, &ConfigError{Field: field + "_coarsen_type", Err: err}
	}
	return t, nil
}

func parseSolver(field string, c SolverConfig, fill amr.FillSpec) (solve.Options, error) {
	o := solve.DefaultOptions()
	var err error
	if o.Type, err = solve.ParseType(c.Type); err != nil {
		return o, &ConfigError{Field: field + ".solver_type", Err: err}
	}
	if c.MaxIterations <= 0 {
		return o, configErrorf(field+".max_iterations", "%d but should be >0", c.MaxIterations)
	}
	if c.RelTol < 0 || c.AbsTol < 0 || (c.RelTol == 0 && c.AbsTol == 0) {
		return o, configErrorf(field, "tolerances rel=%g abs=%g should be >=0 and not both zero", c.RelTol, c.AbsTol)
	}
	o.RelTol, o.AbsTol, o.MaxIterations = c.RelTol, c.AbsTol, c.MaxIterations
	if c.MaxDirectUnknowns > 0 {
		o.MaxDirectUnknowns = c.MaxDirectUnknowns
	}
	o.Fill = fill
	return o, nil
}

func (c *Config) settings() (*settings, error) {
	ic := c.Integrator
	s := &settings{
		objectName:  ic.ObjectName,
		secondOrder: ic.Use2ndOrderPressureUpdate,
		creeping:    ic.CreepingFlow,
		numCycles:   ic.NumCycles,
		cfl:         ic.CFL,
		dtMax:       ic.DtMax,
		dtGrowth:    ic.DtGrowthFactor,
		rho:         ic.Rho,
		mu:          ic.Mu,
		absThresh:   ic.VorticityAbsThresh,
		relThresh:   ic.VorticityRelThresh,

		regridInterval: ic.RegridInterval,
	}
	var err error
	if s.objectName == "" {
		return nil, configErrorf("object_name", "must not be empty")
	}
	if s.projection, err = ParseProjectionMethod(ic.ProjectionMethodType); err != nil {
		return nil, &ConfigError{Field: "projection_method_type", Err: err}
	}
	if s.convType, err = convect.ParseType(ic.ConvectiveOpType); err != nil {
		return nil, &ConfigError{Field: "convective_op_type", Err: err}
	}
	if s.convForm, err = convect.ParseForm(ic.ConvectiveDifferenceForm); err != nil {
		return nil, &ConfigError{Field: "convective_difference_form", Err: err}
	}
	if s.numCycles < 1 {
		return nil, configErrorf("num_cycles", "%d but should be >=1", s.numCycles)
	}
	if s.cfl <= 0 || s.cfl > 1 {
		return nil, configErrorf("cfl", "%g but should be in (0, 1]", s.cfl)
	}
	if s.dtMax <= 0 {
		return nil, configErrorf("dt_max", "%g but should be >0", s.dtMax)
	}
	if s.dtGrowth < 1 {
		return nil, configErrorf("dt_growth_factor", "%g but should be >=1", s.dtGrowth)
	}
	if s.regridInterval < 0 {
		return nil, configErrorf("regrid_interval", "%d but should be >=0", s.regridInterval)
	}
	if s.rho <= 0 {
		return nil, configErrorf("rho", "%g but should be >0", s.rho)
	}
	if s.mu < 0 {
		return nil, configErrorf("mu", "%g but should be >=0", s.mu)
	}
	for _, t := range []struct {
		name            string
		refine, coarsen string
		dst             *transfer
	}{
		{"U", ic.URefineType, ic.UCoarsenType, &s.u},
		{"P", ic.PRefineType, ic.PCoarsenType, &s.p},
		{"F", ic.FRefineType, "", &s.f},
		{"Q", ic.QRefineType, "", &s.q},
		{"u_ADV", ic.UADVRefineType, ic.UADVCoarsenType, &s.uADV},
		{"N_old", ic.NOldRefineType, ic.NOldCoarsenType, &s.nOld},
	} {
		if *t.dst, err = parseTransfer(t.name, t.refine, t.coarsen); err != nil {
			return nil, err
		}
	}
	if s.velocity, err = parseSolver("VelocitySolver", c.VelocitySolver,
		amr.FillSpec{Role: amr.NoSlip, Refine: s.u.refine}); err != nil {
		return nil, err
	}
	if s.pressure, err = parseSolver("PressureSolver", c.PressureSolver,
		amr.FillSpec{Role: amr.Neumann, Refine: s.p.refine}); err != nil {
		return nil, err
	}
	return s, nil
}

// Geometry returns the validated domain described by the grid options.
func (g GridConfig) Geometry() (amr.Geometry, error) {
	var geo amr.Geometry
	if len(g.XLo) != 2 || len(g.XUp) != 2 || len(g.N) != 2 {
		return geo, configErrorf("Grid", "x_lo, x_up and n need 2 entries each but have %d, %d and %d",
			len(g.XLo), len(g.XUp), len(g.N))
	}
	if len(g.Boundary) != 4 {
		return geo, configErrorf("Grid.boundary", "needs 4 entries (x_lo, x_up, y_lo, y_up) but has %d", len(g.Boundary))
	}
	for axis := 0; axis < 2; axis++ {
		geo.XLo[axis], geo.XUp[axis], geo.N[axis] = g.XLo[axis], g.XUp[axis], g.N[axis]
		for side := 0; side < 2; side++ {
			b, err := amr.ParseBoundaryType(g.Boundary[2*axis+side])
			if err != nil {
				return geo, &ConfigError{Field: "Grid.boundary", Err: err}
			}
			geo.Boundary[axis][side] = b
		}
	}
	if err := geo.Validate(); err != nil {
		return geo, &ConfigError{Field: "Grid", Err: err}
	}
	if g.MaxLevels < 1 {
		return geo, configErrorf("Grid.max_levels", "%d but should be >=1", g.MaxLevels)
	}
	return geo, nil
}

// NewHierarchy returns an empty hierarchy for the grid options.
func (g GridConfig) NewHierarchy() (*amr.Hierarchy, error) {
	geo, err := g.Geometry()
	if err != nil {
		return nil, err
	}
	return amr.NewHierarchy(geo, g.MaxLevels)
}
