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

// Package testserver is the HTTP endpoint every replica of an end-to-end
// TFJob runs. It reports the replica's view of the cluster and can make the
// replica exit on request.
package testserver

import (
	"encoding/json"
	"fmt"

	"tfjob-e2e/pkg/runconfig"
)

// EnvTFConfig is the environment variable the training operator injects.
const EnvTFConfig = "TF_CONFIG"

// TFConfig is the content of TF_CONFIG.
type TFConfig struct {
	Cluster     map[string][]string `json:"cluster"`
	Task        Task                `json:"task"`
	Environment string              `json:"environment,omitempty"`
}

// Task identifies the replica within the cluster.
type Task struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// ParseTFConfig decodes a TF_CONFIG value.
func ParseTFConfig(raw string) (*TFConfig, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", EnvTFConfig)
	}
	cfg := &TFConfig{}
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", EnvTFConfig, err)
	}
	if cfg.Task.Type == "" {
		return nil, fmt.Errorf("%s has no task type", EnvTFConfig)
	}
	return cfg, nil
}

// RunConfig derives the run configuration a TensorFlow estimator would build
// from this TF_CONFIG.
func (c *TFConfig) RunConfig() (runconfig.RunConfig, error) {
	spec := runconfig.ClusterSpec{}
	for _, role := range runconfig.ReplicaTypes {
		spec[string(role)] = []string{}
	}
	for role, hosts := range c.Cluster {
		spec[role] = append([]string{}, hosts...)
	}

	hosts := spec[c.Task.Type]
	if c.Task.Index < 0 || c.Task.Index >= len(hosts) {
		return runconfig.RunConfig{}, fmt.Errorf("task %s:%d is not part of the cluster", c.Task.Type, c.Task.Index)
	}

	chiefs := len(spec[string(runconfig.Chief)])
	isChief := c.Task.Type == string(runconfig.Chief) ||
		(chiefs == 0 && c.Task.Type == string(runconfig.Worker) && c.Task.Index == 0)

	return runconfig.RunConfig{
		TaskType:          c.Task.Type,
		TaskID:            c.Task.Index,
		ClusterSpec:       spec,
		IsChief:           isChief,
		Master:            "grpc://" + hosts[c.Task.Index],
		NumWorkerReplicas: chiefs + len(spec[string(runconfig.Worker)]),
		NumPSReplicas:     len(spec[string(runconfig.PS)]),
	}, nil
}
