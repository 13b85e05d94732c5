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

package runconfig

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExpectedClusterSpecCardinality(t *testing.T) {
	for numPS := 0; numPS <= 3; numPS++ {
		for numWorkers := 0; numWorkers <= 3; numWorkers++ {
			t.Run(fmt.Sprintf("ps=%d,worker=%d", numPS, numWorkers), func(t *testing.T) {
				spec := ExpectedClusterSpec("job", numPS, numWorkers)
				if got := len(spec["chief"]); got != 1 {
					t.Errorf("len(chief) = %d, want 1", got)
				}
				if got := len(spec["ps"]); got != numPS {
					t.Errorf("len(ps) = %d, want %d", got, numPS)
				}
				if got := len(spec["worker"]); got != numWorkers {
					t.Errorf("len(worker) = %d, want %d", got, numWorkers)
				}
				for role, endpoints := range spec {
					for i, ep := range endpoints {
						if want := fmt.Sprintf("job-%s-%d:2222", role, i); ep != want {
							t.Errorf("%s[%d] = %q, want %q", role, i, ep, want)
						}
					}
				}
			})
		}
	}
}

func TestExpectedRunConfigWorkerCount(t *testing.T) {
	for _, replica := range ReplicaTypes {
		for numWorkers := 0; numWorkers <= 4; numWorkers++ {
			rc := ExpectedRunConfig("job", replica, 0, 2, numWorkers)
			if rc.NumWorkerReplicas != numWorkers+1 {
				t.Errorf("%s with %d workers: NumWorkerReplicas = %d, want %d", replica, numWorkers, rc.NumWorkerReplicas, numWorkers+1)
			}
			if rc.NumPSReplicas != 2 {
				t.Errorf("%s: NumPSReplicas = %d, want 2", replica, rc.NumPSReplicas)
			}
		}
	}
}

func TestExpectedRunConfigMnist(t *testing.T) {
	wantSpec := ClusterSpec{
		"chief":  {"mnist-chief-0:2222"},
		"ps":     {"mnist-ps-0:2222"},
		"worker": {"mnist-worker-0:2222", "mnist-worker-1:2222"},
	}
	if diff := cmp.Diff(wantSpec, ExpectedClusterSpec("mnist", 1, 2)); diff != "" {
		t.Errorf("ExpectedClusterSpec mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		replica ReplicaType
		index   int
		want    RunConfig
	}{
		{
			replica: Chief,
			index:   0,
			want: RunConfig{
				TaskType:          "chief",
				TaskID:            0,
				ClusterSpec:       wantSpec,
				IsChief:           true,
				Master:            "grpc://mnist-chief-0:2222",
				NumWorkerReplicas: 3,
				NumPSReplicas:     1,
			},
		},
		{
			replica: Worker,
			index:   1,
			want: RunConfig{
				TaskType:          "worker",
				TaskID:            1,
				ClusterSpec:       wantSpec,
				IsChief:           false,
				Master:            "grpc://mnist-worker-1:2222",
				NumWorkerReplicas: 3,
				NumPSReplicas:     1,
			},
		},
		{
			replica: PS,
			index:   0,
			want: RunConfig{
				TaskType:          "ps",
				TaskID:            0,
				ClusterSpec:       wantSpec,
				IsChief:           false,
				Master:            "grpc://mnist-ps-0:2222",
				NumWorkerReplicas: 3,
				NumPSReplicas:     1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s-%d", tt.replica, tt.index), func(t *testing.T) {
			got := ExpectedRunConfig("mnist", tt.replica, tt.index, 1, 2)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ExpectedRunConfig mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseReplicaType(t *testing.T) {
	tests := []struct {
		in      string
		want    ReplicaType
		wantErr bool
	}{
		{in: "chief", want: Chief},
		{in: "Chief", want: Chief},
		{in: "PS", want: PS},
		{in: "worker", want: Worker},
		{in: "evaluator", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseReplicaType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseReplicaType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseReplicaType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNumReplicas(t *testing.T) {
	if got := NumReplicas(Chief, 5, 7); got != 1 {
		t.Errorf("NumReplicas(chief) = %d, want 1", got)
	}
	if got := NumReplicas(PS, 5, 7); got != 5 {
		t.Errorf("NumReplicas(ps) = %d, want 5", got)
	}
	if got := NumReplicas(Worker, 5, 7); got != 7 {
		t.Errorf("NumReplicas(worker) = %d, want 7", got)
	}
}
