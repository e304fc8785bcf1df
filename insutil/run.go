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
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/insflow"
	"github.com/spatialmodel/insflow/gridding"
	"github.com/spatialmodel/insflow/restart"
	"github.com/spf13/cobra"
)

// Run runs a simulation configured by cfg, writing log messages to the
// command output and to logFile. If restartFile is not empty, the
// simulation resumes from it when it exists, and a checkpoint is written
// to it every checkpointInterval steps and at the end of the run. If
// metricsAddress is not empty, Prometheus metrics are served there.
func Run(cmd *cobra.Command, cfg *insflow.Config, logFile, restartFile string, checkpointInterval int, metricsAddress string) error {
	startTime := time.Now()

	logfile, err := os.Create(logFile)
	if err != nil {
		return fmt.Errorf("insflow: problem creating log file: %v", err)
	}
	defer logfile.Close()
	log := logrus.New()
	log.Out = io.MultiWriter(cmd.OutOrStdout(), logfile)
	log.Formatter = &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}

	g := &gridding.BoxTagger{
		TagBuffer:        cfg.Grid.TagBuffer,
		LargestPatchSize: cfg.Grid.LargestPatchSize,
	}
	sim, err := insflow.NewSimulation(cfg, g, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if sim.Integrator.Metrics, err = insflow.NewMetrics(reg); err != nil {
		return err
	}
	if metricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddress, mux); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	if restartFile != "" {
		db, err := openRestart(restartFile)
		if err != nil {
			return err
		}
		db.Log = log
		if len(db.Keys(cfg.Integrator.ObjectName+"/")) > 0 {
			log.WithField("path", restartFile).Info("resuming from restart file")
			if err := sim.Integrator.SetRestartDatabase(db); err != nil {
				return err
			}
		}
		checkpoint := insflow.Checkpoint(db, db.Flush)
		if checkpointInterval > 0 {
			sim.RunFuncs = append(sim.RunFuncs, insflow.RunPeriodically(checkpointInterval, checkpoint))
		}
		sim.CleanupFuncs = append(sim.CleanupFuncs, checkpoint)
	}

	if err := sim.Init(); err != nil {
		return err
	}
	if err := sim.Run(); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"steps":    sim.Integrator.Step(),
		"time":     sim.Integrator.Time(),
		"walltime": time.Since(startTime).Round(time.Millisecond),
	}).Info("simulation complete")
	return nil
}

// openRestart reads the restart file at path, or returns an empty one if
// it does not exist yet.
func openRestart(path string) (*restart.File, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return restart.NewFile(path), nil
	}
	return restart.OpenFile(path)
}
