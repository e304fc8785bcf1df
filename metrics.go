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
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by an Integrator.
type Metrics struct {
	Steps            prometheus.Counter
	Regrids          prometheus.Counter
	Timestep         prometheus.Gauge
	SolverIterations *prometheus.HistogramVec
	SolverFailures   *prometheus.CounterVec
}

// NewMetrics creates the integrator collectors and registers them with
// reg, if reg is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "insflow",
			Name:      "steps_total",
			Help:      "Number of completed time steps.",
		}),
		Regrids: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "insflow",
			Name:      "regrids_total",
			Help:      "Number of hierarchy regrid operations.",
		}),
		Timestep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "insflow",
			Name:      "timestep",
			Help:      "Size of the most recent time step in simulation time units.",
		}),
		SolverIterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "insflow",
			Name:      "solver_iterations",
			Help:      "Iterations used by each subdomain solve.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"subsystem"}),
		SolverFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insflow",
			Name:      "solver_failures_total",
			Help:      "Number of failed subdomain solves.",
		}, []string{"subsystem"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Steps, m.Regrids, m.Timestep, m.SolverIterations, m.SolverFailures} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
