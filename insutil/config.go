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

package insutil

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/insflow"
	"github.com/spf13/cast"
)

// IntegratorConfig assembles the input database of a simulation from cfg.
func IntegratorConfig(cfg *viper.Viper) (*insflow.Config, error) {
	c := insflow.DefaultConfig()
	ic := &c.Integrator
	ic.ObjectName = os.ExpandEnv(cfg.GetString("Integrator.object_name"))
	ic.ProjectionMethodType = cfg.GetString("Integrator.projection_method_type")
	ic.Use2ndOrderPressureUpdate = cfg.GetBool("Integrator.use_2nd_order_pressure_update")
	ic.CreepingFlow = cfg.GetBool("Integrator.creeping_flow")
	ic.ConvectiveOpType = cfg.GetString("Integrator.convective_op_type")
	ic.ConvectiveDifferenceForm = cfg.GetString("Integrator.convective_difference_form")
	ic.NumCycles = cfg.GetInt("Integrator.num_cycles")
	ic.CFL = cfg.GetFloat64("Integrator.cfl")
	ic.DtMax = cfg.GetFloat64("Integrator.dt_max")
	ic.DtGrowthFactor = cfg.GetFloat64("Integrator.dt_growth_factor")
	ic.Rho = cfg.GetFloat64("Integrator.rho")
	ic.Mu = cfg.GetFloat64("Integrator.mu")
	ic.StartTime = cfg.GetFloat64("Integrator.start_time")
	ic.EndTime = cfg.GetFloat64("Integrator.end_time")
	ic.MaxSteps = cfg.GetInt("Integrator.max_integrator_steps")
	ic.RegridInterval = cfg.GetInt("Integrator.regrid_interval")

	var err error
	for _, v := range []struct {
		name string
		dst  *[]float64
	}{
		{"Integrator.omega_abs_thresh", &ic.VorticityAbsThresh},
		{"Integrator.omega_rel_thresh", &ic.VorticityRelThresh},
		{"Grid.x_lo", &c.Grid.XLo},
		{"Grid.x_up", &c.Grid.XUp},
	} {
		if *v.dst, err = toFloat64SliceE(cfg.Get(v.name)); err != nil {
			return nil, fmt.Errorf("%s: %v", v.name, err)
		}
	}
	if c.Grid.N, err = toIntSliceE(cfg.Get("Grid.n")); err != nil {
		return nil, fmt.Errorf("Grid.n: %v", err)
	}
	if c.Grid.Boundary, err = toStringSliceE(cfg.Get("Grid.boundary")); err != nil {
		return nil, fmt.Errorf("Grid.boundary: %v", err)
	}
	c.Grid.MaxLevels = cfg.GetInt("Grid.max_levels")
	c.Grid.LargestPatchSize = cfg.GetInt("Grid.largest_patch_size")
	c.Grid.TagBuffer = cfg.GetInt("Grid.tag_buffer")

	for _, s := range []struct {
		name string
		dst  *insflow.SolverConfig
	}{{"VelocitySolver", &c.VelocitySolver}, {"PressureSolver", &c.PressureSolver}} {
		s.dst.Type = cfg.GetString(s.name + ".solver_type")
		s.dst.RelTol = cfg.GetFloat64(s.name + ".rel_residual_tol")
		s.dst.AbsTol = cfg.GetFloat64(s.name + ".abs_residual_tol")
		s.dst.MaxIterations = cfg.GetInt(s.name + ".max_iterations")
		s.dst.MaxDirectUnknowns = cfg.GetInt(s.name + ".max_direct_unknowns")
	}

	ics := &c.InitialConditions
	if ics.U, err = toStringSliceE(cfg.Get("InitialConditions.U")); err != nil {
		return nil, fmt.Errorf("InitialConditions.U: %v", err)
	}
	if ics.F, err = toStringSliceE(cfg.Get("InitialConditions.F")); err != nil {
		return nil, fmt.Errorf("InitialConditions.F: %v", err)
	}
	ics.P = cfg.GetString("InitialConditions.P")
	ics.Q = cfg.GetString("InitialConditions.Q")

	if _, err := c.Grid.Geometry(); err != nil {
		return nil, fmt.Errorf("parsing grid configuration: %v", err)
	}
	return c, nil
}

// toIntSliceE converts a configuration value into a slice of ints. The
// value may come from a configuration file, from the environment, or
// from a command-line flag, in which case it is a JSON array.
func toIntSliceE(s interface{}) ([]int, error) {
	switch v := s.(type) {
	case []int:
		return v, nil
	case []interface{}:
		return cast.ToIntSliceE(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var o []int
		if err := json.Unmarshal([]byte(v), &o); err == nil {
			return o, nil
		}
		return cast.ToIntSliceE(strings.Split(v, ","))
	default:
		return cast.ToIntSliceE(s)
	}
}

// toFloat64SliceE converts a configuration value into a slice of float64s.
func toFloat64SliceE(s interface{}) ([]float64, error) {
	var elems []interface{}
	switch v := s.(type) {
	case nil:
		return nil, nil
	case []float64:
		return v, nil
	case []interface{}:
		elems = v
	case []string:
		for _, e := range v {
			elems = append(elems, e)
		}
	case string:
		v = strings.Trim(strings.TrimSpace(v), "[]")
		if v == "" {
			return nil, nil
		}
		for _, e := range strings.Split(v, ",") {
			elems = append(elems, strings.TrimSpace(e))
		}
	default:
		return nil, fmt.Errorf("invalid type %T for a list of numbers", s)
	}
	o := make([]float64, len(elems))
	for i, e := range elems {
		f, err := cast.ToFloat64E(e)
		if err != nil {
			return nil, err
		}
		o[i] = f
	}
	return o, nil
}

// toStringSliceE converts a configuration value into a slice of strings,
// expanding any environment variables.
func toStringSliceE(s interface{}) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	o, err := cast.ToStringSliceE(s)
	if err != nil {
		return nil, err
	}
	if len(o) == 1 && strings.TrimSpace(o[0]) == "" {
		return nil, nil
	}
	for i := range o {
		o[i] = os.ExpandEnv(o[i])
	}
	return o, nil
}

// floatStrings formats v for use as the default of a string slice flag.
func floatStrings(v []float64) []string {
	o := make([]string, len(v))
	for i, f := range v {
		o[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return o
}
