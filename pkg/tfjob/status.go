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

package tfjob

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	kftraining "github.com/kubeflow/training-operator/pkg/apis/kubeflow.org/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"

	"tfjob-e2e/pkg/logging"
)

// HasCondition reports whether any of the given condition types is true on the job.
func HasCondition(job *kftraining.TFJob, types ...kftraining.JobConditionType) bool {
	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		for _, t := range types {
			if c.Type == t {
				return true
			}
		}
	}
	return false
}

// IsFinished reports whether the job reached a terminal state.
func IsFinished(job *kftraining.TFJob) bool {
	return job.Status.CompletionTime != nil || HasCondition(job, kftraining.JobSucceeded, kftraining.JobFailed)
}

// JobSucceeded reports whether the latest condition of the job is Succeeded.
func JobSucceeded(job *kftraining.TFJob) bool {
	conditions := job.Status.Conditions
	if len(conditions) == 0 {
		return false
	}
	return conditions[len(conditions)-1].Type == kftraining.JobSucceeded
}

// ReplicaCounts returns the PS and Worker replica counts of the job spec.
// A missing replica spec or count is zero.
func ReplicaCounts(job *kftraining.TFJob) (numPS, numWorkers int) {
	count := func(rt kftraining.ReplicaType) int {
		spec, ok := job.Spec.TFReplicaSpecs[rt]
		if !ok || spec == nil || spec.Replicas == nil {
			return 0
		}
		return int(*spec.Replicas)
	}
	return count(kftraining.TFJobReplicaTypePS), count(kftraining.TFJobReplicaTypeWorker)
}

// ConditionTypes lists the condition types of the job in order.
func ConditionTypes(job *kftraining.TFJob) []string {
	types := make([]string, 0, len(job.Status.Conditions))
	for _, c := range job.Status.Conditions {
		types = append(types, string(c.Type))
	}
	return types
}

// LogStatus is a StatusCallback that logs the job identity and its conditions.
func LogStatus(job *kftraining.TFJob) {
	logging.Info("Job %s in namespace %s; uid=%s; conditions=%s",
		job.Name, job.Namespace, job.UID, colorConditions(ConditionTypes(job)))
}

func colorConditions(types []string) string {
	colored := make([]string, len(types))
	for i, t := range types {
		switch kftraining.JobConditionType(t) {
		case kftraining.JobSucceeded:
			colored[i] = color.GreenString(t)
		case kftraining.JobFailed:
			colored[i] = color.RedString(t)
		case kftraining.JobRunning:
			colored[i] = color.CyanString(t)
		default:
			colored[i] = t
		}
	}
	return "[" + strings.Join(colored, " ") + "]"
}

// FormatStatus renders the job status on one line.
func FormatStatus(job *kftraining.TFJob) string {
	b, err := json.Marshal(job.Status)
	if err != nil {
		return fmt.Sprintf("%+v", job.Status)
	}
	return string(b)
}

// Dump renders the whole job as YAML for logs.
func Dump(job *kftraining.TFJob) string {
	b, err := yaml.Marshal(job)
	if err != nil {
		return fmt.Sprintf("%+v", job)
	}
	return string(b)
}
