// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics counts the outcomes of end-to-end runs and publishes them
// to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"tfjob-e2e/pkg/logging"
	"tfjob-e2e/pkg/runconfig"
)

const (
	ResultMatch    = "match"
	ResultMismatch = "mismatch"
	ResultError    = "error"

	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

// Recorder holds the metrics of one process on a private registry.
type Recorder struct {
	registry *prometheus.Registry
	checks   *prometheus.CounterVec
	jobs     *prometheus.CounterVec
	phases   *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tfjob_e2e_runconfig_checks_total",
			Help: "Counts the number of replica runconfig checks by replica type and result",
		}, []string{"replica_type", "result"}),
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tfjob_e2e_jobs_total",
			Help: "Counts the number of end-to-end TFJobs by namespace and final result",
		}, []string{"namespace", "result"}),
		phases: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tfjob_e2e_phase_duration_seconds",
			Help: "Duration of the last run of each end-to-end phase",
		}, []string{"phase"}),
	}
}

// Registry exposes the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveCheck counts one replica check. It has the signature of a
// runconfig.CheckObserver.
func (r *Recorder) ObserveCheck(replica runconfig.ReplicaType, index int, err error) {
	result := ResultMatch
	var mismatch *runconfig.MismatchError
	switch {
	case errors.As(err, &mismatch):
		result = ResultMismatch
	case err != nil:
		result = ResultError
	}
	logging.Debug("runconfig check %s-%d: %s", replica, index, result)
	r.checks.WithLabelValues(string(replica), result).Inc()
}

// ObserveJob counts a job that reached a terminal status.
func (r *Recorder) ObserveJob(namespace string, succeeded bool) {
	result := ResultFailed
	if succeeded {
		result = ResultSucceeded
	}
	r.jobs.WithLabelValues(namespace, result).Inc()
}

// ObservePhase records how long a phase of the procedure took.
func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	r.phases.WithLabelValues(phase).Set(d.Seconds())
}

// Push replaces the metrics of job on the Pushgateway at url.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	logging.Info("Pushing metrics to %s (job %s)", url, job)
	return push.New(url, job).Gatherer(r.registry).PushContext(ctx)
}
