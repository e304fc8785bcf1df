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

// Package insutil contains the command-line interface for the insflow
// incompressible flow solver.
package insutil

import (
	"fmt"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/insflow"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	def := insflow.DefaultConfig()
	ic, gc := def.Integrator, def.Grid
	simFlags := []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()}

	// Options are the configuration options available to insflow.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It defaults
              to insflow.log in the current directory.`,
			defaultVal: "insflow.log",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "RestartFile",
			usage: `
              RestartFile is the path to a restart file. If the file exists the
              simulation resumes from it, and checkpoints are written to it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CheckpointInterval",
			usage: `
              CheckpointInterval is the number of time steps between checkpoints.
              Zero means a checkpoint is only written at the end of the run.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "MetricsAddress",
			usage: `
              MetricsAddress is the address at which Prometheus metrics are
              served, for example localhost:9090. Metrics are not served if
              it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Integrator.object_name",
			usage: `
              Integrator.object_name is the name that prefixes log messages and
              restart keys.`,
			defaultVal: ic.ObjectName,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.projection_method_type",
			usage: `
              Integrator.projection_method_type is PRESSURE_UPDATE or
              PRESSURE_INCREMENT.`,
			defaultVal: ic.ProjectionMethodType,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.use_2nd_order_pressure_update",
			usage: `
              Integrator.use_2nd_order_pressure_update adds the viscous
              correction to the pressure update.`,
			defaultVal: ic.Use2ndOrderPressureUpdate,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.creeping_flow",
			usage: `
              Integrator.creeping_flow drops the convective term.`,
			defaultVal: ic.CreepingFlow,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.convective_op_type",
			usage: `
              Integrator.convective_op_type is CENTERED or UPWIND.`,
			defaultVal: ic.ConvectiveOpType,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.convective_difference_form",
			usage: `
              Integrator.convective_difference_form is ADVECTIVE or CONSERVATIVE.`,
			defaultVal: ic.ConvectiveDifferenceForm,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.num_cycles",
			usage: `
              Integrator.num_cycles is the number of cycles in each time step.`,
			defaultVal: ic.NumCycles,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.cfl",
			usage: `
              Integrator.cfl is the advective CFL number used to choose the
              time step size.`,
			defaultVal: ic.CFL,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.dt_max",
			usage: `
              Integrator.dt_max is the largest allowed time step size.`,
			defaultVal: ic.DtMax,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.dt_growth_factor",
			usage: `
              Integrator.dt_growth_factor limits how fast the time step size
              may grow from one step to the next.`,
			defaultVal: ic.DtGrowthFactor,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.rho",
			usage: `
              Integrator.rho is the fluid density.`,
			defaultVal: ic.Rho,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.mu",
			usage: `
              Integrator.mu is the dynamic viscosity.`,
			defaultVal: ic.Mu,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.omega_abs_thresh",
			usage: `
              Integrator.omega_abs_thresh holds, for each level, the vorticity
              magnitude above which cells are refined. The last value applies
              to finer levels.`,
			defaultVal: []string{},
			flagsets:   simFlags,
		},
		{
			name: "Integrator.omega_rel_thresh",
			usage: `
              Integrator.omega_rel_thresh holds, for each level, the fraction of
              the largest vorticity magnitude above which cells are refined.`,
			defaultVal: []string{},
			flagsets:   simFlags,
		},
		{
			name: "Integrator.start_time",
			usage: `
              Integrator.start_time is the simulation time at the start of the run.`,
			defaultVal: ic.StartTime,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.end_time",
			usage: `
              Integrator.end_time is the simulation time at which the run stops.`,
			defaultVal: ic.EndTime,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.max_integrator_steps",
			usage: `
              Integrator.max_integrator_steps is the largest number of time steps
              to take.`,
			defaultVal: ic.MaxSteps,
			flagsets:   simFlags,
		},
		{
			name: "Integrator.regrid_interval",
			usage: `
              Integrator.regrid_interval is the number of time steps between
              regrids. Zero disables regridding.`,
			defaultVal: ic.RegridInterval,
			flagsets:   simFlags,
		},
		{
			name: "Grid.x_lo",
			usage: `
              Grid.x_lo is the lower corner of the domain.`,
			defaultVal: floatStrings(gc.XLo),
			flagsets:   simFlags,
		},
		{
			name: "Grid.x_up",
			usage: `
              Grid.x_up is the upper corner of the domain.`,
			defaultVal: floatStrings(gc.XUp),
			flagsets:   simFlags,
		},
		{
			name: "Grid.n",
			usage: `
              Grid.n is the number of cells along each axis of the coarsest level.`,
			defaultVal: gc.N,
			flagsets:   simFlags,
		},
		{
			name: "Grid.boundary",
			usage: `
              Grid.boundary holds the boundary types (periodic or wall) of the
              x_lo, x_up, y_lo and y_up sides.`,
			defaultVal: gc.Boundary,
			flagsets:   simFlags,
		},
		{
			name: "Grid.max_levels",
			usage: `
              Grid.max_levels is the largest number of refinement levels.`,
			defaultVal: gc.MaxLevels,
			flagsets:   simFlags,
		},
		{
			name: "Grid.largest_patch_size",
			usage: `
              Grid.largest_patch_size is the largest number of cells along each
              axis of a patch. Zero means no limit.`,
			defaultVal: gc.LargestPatchSize,
			flagsets:   simFlags,
		},
		{
			name: "Grid.tag_buffer",
			usage: `
              Grid.tag_buffer is the number of cells refined around each
              tagged cell.`,
			defaultVal: gc.TagBuffer,
			flagsets:   simFlags,
		},
		{
			name: "InitialConditions.U",
			usage: `
              InitialConditions.U holds expressions in x, y and t for the two
              components of the initial velocity.`,
			defaultVal: []string{},
			flagsets:   simFlags,
		},
		{
			name: "InitialConditions.P",
			usage: `
              InitialConditions.P is an expression for the initial pressure.`,
			defaultVal: "",
			flagsets:   simFlags,
		},
		{
			name: "InitialConditions.F",
			usage: `
              InitialConditions.F holds expressions for the two components of
              the body force.`,
			defaultVal: []string{},
			flagsets:   simFlags,
		},
		{
			name: "InitialConditions.Q",
			usage: `
              InitialConditions.Q is an expression for the fluid source strength.`,
			defaultVal: "",
			flagsets:   simFlags,
		},
	}
	for _, s := range []struct {
		name string
		c    insflow.SolverConfig
	}{{"VelocitySolver", def.VelocitySolver}, {"PressureSolver", def.PressureSolver}} {
		options = append(options, []struct {
			name, usage, shorthand string
			defaultVal             interface{}
			flagsets               []*pflag.FlagSet
		}{
			{
				name: s.name + ".solver_type",
				usage: fmt.Sprintf(`
              %s.solver_type is CG or DIRECT.`, s.name),
				defaultVal: s.c.Type,
				flagsets:   simFlags,
			},
			{
				name: s.name + ".rel_residual_tol",
				usage: fmt.Sprintf(`
              %s.rel_residual_tol is the relative residual tolerance.`, s.name),
				defaultVal: s.c.RelTol,
				flagsets:   simFlags,
			},
			{
				name: s.name + ".abs_residual_tol",
				usage: fmt.Sprintf(`
              %s.abs_residual_tol is the absolute residual tolerance.`, s.name),
				defaultVal: s.c.AbsTol,
				flagsets:   simFlags,
			},
			{
				name: s.name + ".max_iterations",
				usage: fmt.Sprintf(`
              %s.max_iterations is the iteration limit of the CG solver.`, s.name),
				defaultVal: s.c.MaxIterations,
				flagsets:   simFlags,
			},
			{
				name: s.name + ".max_direct_unknowns",
				usage: fmt.Sprintf(`
              %s.max_direct_unknowns is the largest level the DIRECT solver
              factors.`, s.name),
				defaultVal: s.c.MaxDirectUnknowns,
				flagsets:   simFlags,
			},
		}...)
	}

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case []int:
				set.IntSliceP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
		}
	}
	Cfg = newConfig()
}

// newConfig returns a configuration bound to the command-line flags.
func newConfig() *viper.Viper {
	cfg := viper.New()

	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("INSFLOW")

	for _, option := range options {
		cfg.BindPFlag(option.name, option.flagsets[0].Lookup(option.name))
	}
	return cfg
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(configCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("insflow: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "insflow",
	Short: "An adaptive incompressible Navier-Stokes solver.",
	Long: `insflow solves the incompressible Navier-Stokes equations on a
locally refined Cartesian grid with a collocated projection method.
Use the subcommands specified below to access the model functionality.

Configuration can be changed by using a TOML configuration file (and providing
the path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'INSFLOW_var' where 'var' is
the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of insflow.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("insflow v%s\n", insflow.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd runs a simulation.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation.",
	Long: `run builds the patch hierarchy, projects the initial velocity and
advances the solution to Integrator.end_time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := IntegratorConfig(Cfg)
		if err != nil {
			return err
		}
		return Run(cmd, cfg, Cfg.GetString("LogFile"), Cfg.GetString("RestartFile"),
			Cfg.GetInt("CheckpointInterval"), Cfg.GetString("MetricsAddress"))
	},
	DisableAutoGenTag: true,
}

// configCmd prints the configuration that a simulation would use.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration.",
	Long: `config prints, in TOML format, the input database assembled from the
defaults, the configuration file, the environment and the command line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := IntegratorConfig(Cfg)
		if err != nil {
			return err
		}
		return cfg.Write(cmd.OutOrStdout())
	},
	DisableAutoGenTag: true,
}
