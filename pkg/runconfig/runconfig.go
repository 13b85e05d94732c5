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

// Package runconfig builds the RunConfig every replica of a TFJob is expected
// to report and checks it against what the replicas actually report.
package runconfig

import (
	"fmt"
	"strings"
)

// DefaultPort is the port every replica's gRPC server and test server listen on.
const DefaultPort = 2222

// ReplicaType is the lower-case role name of a TFJob replica as it appears
// in the cluster spec and in service names.
type ReplicaType string

const (
	Chief  ReplicaType = "chief"
	PS     ReplicaType = "ps"
	Worker ReplicaType = "worker"
)

// ReplicaTypes lists the roles in the order the lifecycle verifies them.
var ReplicaTypes = []ReplicaType{Chief, Worker, PS}

// ParseReplicaType accepts a role name in any case.
func ParseReplicaType(s string) (ReplicaType, error) {
	switch r := ReplicaType(strings.ToLower(s)); r {
	case Chief, PS, Worker:
		return r, nil
	default:
		return "", fmt.Errorf("unknown replica type %q, expected one of chief, ps, worker", s)
	}
}

// ClusterSpec maps a role to the ordered "host:port" endpoints of its replicas.
type ClusterSpec map[string][]string

// RunConfig is a replica's view of the cluster and of its own place in it.
type RunConfig struct {
	TaskType          string      `json:"task_type"`
	TaskID            int         `json:"task_id"`
	ClusterSpec       ClusterSpec `json:"cluster_spec"`
	IsChief           bool        `json:"is_chief"`
	Master            string      `json:"master"`
	NumWorkerReplicas int         `json:"num_worker_replicas"`
	NumPSReplicas     int         `json:"num_ps_replicas"`
}

// ReplicaName is the name of the pod and service of one replica.
func ReplicaName(jobName string, replica ReplicaType, index int) string {
	return fmt.Sprintf("%s-%s-%d", jobName, strings.ToLower(string(replica)), index)
}

// Endpoint is the "host:port" address of one replica.
func Endpoint(jobName string, replica ReplicaType, index int) string {
	return fmt.Sprintf("%s:%d", ReplicaName(jobName, replica, index), DefaultPort)
}

// ExpectedClusterSpec is the cluster spec of a job with one chief, numPS
// parameter servers and numWorkers workers. Every role is present, empty
// roles map to an empty list.
func ExpectedClusterSpec(jobName string, numPS, numWorkers int) ClusterSpec {
	endpoints := func(replica ReplicaType, n int) []string {
		list := make([]string, 0, n)
		for i := 0; i < n; i++ {
			list = append(list, Endpoint(jobName, replica, i))
		}
		return list
	}
	return ClusterSpec{
		string(Chief):  endpoints(Chief, 1),
		string(PS):     endpoints(PS, numPS),
		string(Worker): endpoints(Worker, numWorkers),
	}
}

// ExpectedRunConfig is the RunConfig replica index of the given role must report.
// The chief counts as a worker.
func ExpectedRunConfig(jobName string, replica ReplicaType, index, numPS, numWorkers int) RunConfig {
	return RunConfig{
		TaskType:          string(replica),
		TaskID:            index,
		ClusterSpec:       ExpectedClusterSpec(jobName, numPS, numWorkers),
		IsChief:           replica == Chief,
		Master:            "grpc://" + Endpoint(jobName, replica, index),
		NumWorkerReplicas: numWorkers + 1,
		NumPSReplicas:     numPS,
	}
}

// NumReplicas is how many replicas of the role a job with the given counts has.
func NumReplicas(replica ReplicaType, numPS, numWorkers int) int {
	switch replica {
	case PS:
		return numPS
	case Worker:
		return numWorkers
	default:
		return 1
	}
}
