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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	kftraining "github.com/kubeflow/training-operator/pkg/apis/kubeflow.org/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/utils/ptr"

	"tfjob-e2e/pkg/runconfig"
)

func makeTFJob(name, ns string, numPS, numWorkers int32) *kftraining.TFJob {
	return &kftraining.TFJob{
		TypeMeta: metav1.TypeMeta{
			APIVersion: kftraining.SchemeGroupVersion.String(),
			Kind:       kftraining.TFJobKind,
		},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, UID: "0a1b"},
		Spec: kftraining.TFJobSpec{
			TFReplicaSpecs: map[kftraining.ReplicaType]*kftraining.ReplicaSpec{
				kftraining.TFJobReplicaTypeChief:  {Replicas: ptr.To[int32](1)},
				kftraining.TFJobReplicaTypePS:     {Replicas: ptr.To(numPS)},
				kftraining.TFJobReplicaTypeWorker: {Replicas: ptr.To(numWorkers)},
			},
		},
	}
}

func withCondition(job *kftraining.TFJob, t kftraining.JobConditionType) *kftraining.TFJob {
	job.Status.Conditions = append(job.Status.Conditions, kftraining.JobCondition{
		Type:   t,
		Status: corev1.ConditionTrue,
		Reason: "Test",
	})
	return job
}

func toUnstructured(t *testing.T, job *kftraining.TFJob) *unstructured.Unstructured {
	t.Helper()
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(job)
	if err != nil {
		t.Fatalf("failed to convert job: %v", err)
	}
	return &unstructured.Unstructured{Object: content}
}

func newFakeDynamic(t *testing.T, jobs ...*kftraining.TFJob) *dynamicfake.FakeDynamicClient {
	t.Helper()
	objs := make([]runtime.Object, 0, len(jobs))
	for _, j := range jobs {
		objs = append(objs, toUnstructured(t, j))
	}
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{GroupVersionResource("v1"): "TFJobList"}, objs...)
}

func newTestClient(t *testing.T, dc *dynamicfake.FakeDynamicClient) *Client {
	return NewClient(dc, "v1",
		WithPollInterval(5*time.Millisecond),
		WithTimeout(2*time.Second),
		WithDeleteTimeout(2*time.Second))
}

func TestGroupVersionResource(t *testing.T) {
	want := schema.GroupVersionResource{Group: "kubeflow.org", Version: "v1beta2", Resource: "tfjobs"}
	if got := GroupVersionResource("v1beta2"); got != want {
		t.Errorf("GroupVersionResource = %v, want %v", got, want)
	}
}

func TestGet(t *testing.T) {
	dc := newFakeDynamic(t, makeTFJob("mnist", "kubeflow", 1, 2))
	c := newTestClient(t, dc)

	job, err := c.Get(context.Background(), "kubeflow", "mnist")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	numPS, numWorkers := ReplicaCounts(job)
	if numPS != 1 || numWorkers != 2 {
		t.Errorf("ReplicaCounts = (%d, %d), want (1, 2)", numPS, numWorkers)
	}

	_, err = c.Get(context.Background(), "kubeflow", "absent")
	if !apierrors.IsNotFound(err) {
		t.Errorf("Get(absent) error = %v, want NotFound", err)
	}
}

func TestWaitForCondition(t *testing.T) {
	dc := newFakeDynamic(t, withCondition(makeTFJob("mnist", "kubeflow", 0, 0), kftraining.JobCreated))
	c := newTestClient(t, dc)
	gvr := GroupVersionResource("v1")

	polls := 0
	job, err := c.WaitForCondition(context.Background(), "kubeflow", "mnist",
		[]kftraining.JobConditionType{kftraining.JobRunning, kftraining.JobSucceeded, kftraining.JobFailed},
		func(job *kftraining.TFJob) {
			polls++
			if polls == 2 {
				updated := withCondition(job.DeepCopy(), kftraining.JobRunning)
				updated.APIVersion = kftraining.SchemeGroupVersion.String()
				updated.Kind = kftraining.TFJobKind
				if _, err := dc.Resource(gvr).Namespace("kubeflow").Update(context.Background(), toUnstructured(t, updated), metav1.UpdateOptions{}); err != nil {
					t.Errorf("failed to update job: %v", err)
				}
			}
		})
	if err != nil {
		t.Fatalf("WaitForCondition failed: %v", err)
	}
	if polls < 3 {
		t.Errorf("callback invoked %d times, want at least 3", polls)
	}
	if !HasCondition(job, kftraining.JobRunning) {
		t.Errorf("returned job lacks Running condition: %v", ConditionTypes(job))
	}
}

func TestWaitForConditionTimeout(t *testing.T) {
	dc := newFakeDynamic(t, makeTFJob("mnist", "kubeflow", 0, 0))
	c := NewClient(dc, "v1", WithPollInterval(5*time.Millisecond), WithTimeout(30*time.Millisecond))

	_, err := c.WaitForCondition(context.Background(), "kubeflow", "mnist",
		[]kftraining.JobConditionType{kftraining.JobRunning}, nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !strings.Contains(err.Error(), "waiting for job kubeflow/mnist") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWaitForConditionPropagatesAPIErrors(t *testing.T) {
	c := newTestClient(t, newFakeDynamic(t))
	_, err := c.WaitForCondition(context.Background(), "kubeflow", "absent",
		[]kftraining.JobConditionType{kftraining.JobRunning}, nil)
	if !apierrors.IsNotFound(errors.Unwrap(err)) && !apierrors.IsNotFound(err) {
		t.Errorf("WaitForCondition error = %v, want NotFound", err)
	}
}

func TestWaitForJob(t *testing.T) {
	tests := []struct {
		name string
		job  *kftraining.TFJob
	}{
		{name: "succeeded", job: withCondition(withCondition(makeTFJob("a", "ns", 0, 0), kftraining.JobRunning), kftraining.JobSucceeded)},
		{name: "failed", job: withCondition(makeTFJob("a", "ns", 0, 0), kftraining.JobFailed)},
		{name: "completion time", job: func() *kftraining.TFJob {
			j := makeTFJob("a", "ns", 0, 0)
			j.Status.CompletionTime = &metav1.Time{Time: time.Unix(1700000000, 0)}
			return j
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, newFakeDynamic(t, tt.job))
			job, err := c.WaitForJob(context.Background(), "ns", "a", nil)
			if err != nil {
				t.Fatalf("WaitForJob failed: %v", err)
			}
			if !IsFinished(job) {
				t.Errorf("returned job is not finished")
			}
		})
	}
}

func TestDeleteAndWaitForDelete(t *testing.T) {
	dc := newFakeDynamic(t, makeTFJob("mnist", "kubeflow", 0, 0))
	c := newTestClient(t, dc)
	ctx := context.Background()

	if err := c.Delete(ctx, "kubeflow", "mnist"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.WaitForDelete(ctx, "kubeflow", "mnist", LogStatus); err != nil {
		t.Fatalf("WaitForDelete failed: %v", err)
	}
	if err := c.Delete(ctx, "kubeflow", "mnist"); err == nil {
		t.Errorf("deleting a deleted job should fail")
	}
}

func TestWaitForDeleteWaitsForRemoval(t *testing.T) {
	dc := newFakeDynamic(t, makeTFJob("mnist", "kubeflow", 0, 0))
	c := newTestClient(t, dc)
	gvr := GroupVersionResource("v1")

	seen := 0
	err := c.WaitForDelete(context.Background(), "kubeflow", "mnist", func(job *kftraining.TFJob) {
		seen++
		if seen == 2 {
			if err := dc.Resource(gvr).Namespace("kubeflow").Delete(context.Background(), "mnist", metav1.DeleteOptions{}); err != nil {
				t.Errorf("failed to delete job: %v", err)
			}
		}
	})
	if err != nil {
		t.Fatalf("WaitForDelete failed: %v", err)
	}
	if seen != 2 {
		t.Errorf("callback saw the job %d times, want 2", seen)
	}
}

func TestJobSucceeded(t *testing.T) {
	tests := []struct {
		name string
		job  *kftraining.TFJob
		want bool
	}{
		{name: "no conditions", job: makeTFJob("a", "ns", 0, 0), want: false},
		{name: "last succeeded", job: withCondition(withCondition(makeTFJob("a", "ns", 0, 0), kftraining.JobRunning), kftraining.JobSucceeded), want: true},
		{name: "last failed", job: withCondition(withCondition(makeTFJob("a", "ns", 0, 0), kftraining.JobSucceeded), kftraining.JobFailed), want: false},
		{name: "still running", job: withCondition(makeTFJob("a", "ns", 0, 0), kftraining.JobRunning), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JobSucceeded(tt.job); got != tt.want {
				t.Errorf("JobSucceeded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReplicaCountsMissingSpecs(t *testing.T) {
	job := makeTFJob("a", "ns", 0, 0)
	delete(job.Spec.TFReplicaSpecs, kftraining.TFJobReplicaTypePS)
	job.Spec.TFReplicaSpecs[kftraining.TFJobReplicaTypeWorker].Replicas = nil
	numPS, numWorkers := ReplicaCounts(job)
	if numPS != 0 || numWorkers != 0 {
		t.Errorf("ReplicaCounts = (%d, %d), want (0, 0)", numPS, numWorkers)
	}
}

type recordingSender struct {
	targets []string
	params  []map[string]string
	failAt  string
}

func (s *recordingSender) SendRequest(_ context.Context, _, target, action string, params map[string]string) ([]byte, error) {
	if action != ExitAction {
		return nil, errors.New("unexpected action " + action)
	}
	s.targets = append(s.targets, target)
	s.params = append(s.params, params)
	if target == s.failAt {
		return nil, errors.New("connection reset")
	}
	return nil, nil
}

func TestTerminateReplicas(t *testing.T) {
	s := &recordingSender{}
	if err := TerminateReplicas(context.Background(), s, "kubeflow", "mnist", runconfig.Worker, 2, 1); err != nil {
		t.Fatalf("TerminateReplicas failed: %v", err)
	}
	if diff := cmp.Diff([]string{"mnist-worker-0", "mnist-worker-1"}, s.targets); diff != "" {
		t.Errorf("terminated targets mismatch (-want +got):\n%s", diff)
	}
	if s.params[0]["exitCode"] != "1" {
		t.Errorf("exitCode param = %q, want 1", s.params[0]["exitCode"])
	}

	failing := &recordingSender{failAt: "mnist-chief-0"}
	if err := TerminateReplicas(context.Background(), failing, "kubeflow", "mnist", runconfig.Chief, 1, 0); err == nil {
		t.Errorf("expected an error when the exit request fails")
	}
}

func TestFormatStatus(t *testing.T) {
	job := withCondition(makeTFJob("a", "ns", 0, 0), kftraining.JobFailed)
	got := FormatStatus(job)
	if !strings.Contains(got, `"type":"Failed"`) {
		t.Errorf("FormatStatus() = %s, want the Failed condition", got)
	}
	if !strings.Contains(Dump(job), "name: a") {
		t.Errorf("Dump() lacks the job name:\n%s", Dump(job))
	}
}
