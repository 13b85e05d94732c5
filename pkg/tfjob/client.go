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

// Package tfjob is a small client for TFJob resources: it reads, waits on,
// terminates and deletes jobs through the dynamic client so that any served
// version of the kubeflow.org TFJob API can be used.
package tfjob

import (
	"context"
	"strconv"
	"time"

	kftraining "github.com/kubeflow/training-operator/pkg/apis/kubeflow.org/v1"
	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/utils/ptr"

	"tfjob-e2e/pkg/logging"
	"tfjob-e2e/pkg/runconfig"
)

const (
	// Resource is the plural resource name of TFJobs.
	Resource = "tfjobs"
	// ExitAction is the test-server action that makes a replica exit.
	ExitAction = "exit"

	DefaultPollInterval  = 10 * time.Second
	DefaultTimeout       = 10 * time.Minute
	DefaultDeleteTimeout = 5 * time.Minute
)

// StatusCallback is invoked with the latest job on every poll.
type StatusCallback func(job *kftraining.TFJob)

// GroupVersionResource returns the TFJob resource of the given API version.
func GroupVersionResource(version string) schema.GroupVersionResource {
	return schema.GroupVersionResource{
		Group:    kftraining.SchemeGroupVersion.Group,
		Version:  version,
		Resource: Resource,
	}
}

// Client reads and manipulates TFJobs of one API version.
type Client struct {
	dynamic       dynamic.Interface
	gvr           schema.GroupVersionResource
	pollInterval  time.Duration
	timeout       time.Duration
	deleteTimeout time.Duration
}

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithTimeout bounds WaitForCondition and WaitForJob.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithDeleteTimeout(d time.Duration) Option {
	return func(c *Client) { c.deleteTimeout = d }
}

func NewClient(dc dynamic.Interface, version string, opts ...Option) *Client {
	c := &Client{
		dynamic:       dc,
		gvr:           GroupVersionResource(version),
		pollInterval:  DefaultPollInterval,
		timeout:       DefaultTimeout,
		deleteTimeout: DefaultDeleteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func NewForConfig(cfg *rest.Config, version string, opts ...Option) (*Client, error) {
	dc, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create dynamic client")
	}
	return NewClient(dc, version, opts...), nil
}

// Version is the TFJob API version the client talks to.
func (c *Client) Version() string {
	return c.gvr.Version
}

func (c *Client) resource(namespace string) dynamic.ResourceInterface {
	return c.dynamic.Resource(c.gvr).Namespace(namespace)
}

// Get returns the current state of a job.
func (c *Client) Get(ctx context.Context, namespace, name string) (*kftraining.TFJob, error) {
	u, err := c.resource(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return FromUnstructured(u)
}

// FromUnstructured converts a TFJob of any served version into the typed form.
func FromUnstructured(u *unstructured.Unstructured) (*kftraining.TFJob, error) {
	job := &kftraining.TFJob{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.UnstructuredContent(), job); err != nil {
		return nil, errors.Wrapf(err, "failed to convert %s %s/%s", u.GetKind(), u.GetNamespace(), u.GetName())
	}
	return job, nil
}

// WaitForCondition polls the job until one of the given conditions is true
// and returns the job as last seen.
func (c *Client) WaitForCondition(ctx context.Context, namespace, name string, conditions []kftraining.JobConditionType, cb StatusCallback) (*kftraining.TFJob, error) {
	job, err := c.poll(ctx, namespace, name, c.timeout, cb, func(job *kftraining.TFJob) bool {
		return HasCondition(job, conditions...)
	})
	if err != nil {
		return job, errors.Wrapf(err, "waiting for job %s/%s to reach one of %v", namespace, name, conditions)
	}
	return job, nil
}

// WaitForJob polls the job until it has finished, either because a
// completion time was recorded or because it succeeded or failed.
func (c *Client) WaitForJob(ctx context.Context, namespace, name string, cb StatusCallback) (*kftraining.TFJob, error) {
	job, err := c.poll(ctx, namespace, name, c.timeout, cb, IsFinished)
	if err != nil {
		return job, errors.Wrapf(err, "waiting for job %s/%s to finish", namespace, name)
	}
	return job, nil
}

func (c *Client) poll(ctx context.Context, namespace, name string, timeout time.Duration, cb StatusCallback, done func(*kftraining.TFJob) bool) (*kftraining.TFJob, error) {
	var last *kftraining.TFJob
	err := wait.PollUntilContextTimeout(ctx, c.pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		job, err := c.Get(ctx, namespace, name)
		if err != nil {
			return false, err
		}
		last = job
		if cb != nil {
			cb(job)
		}
		return done(job), nil
	})
	return last, err
}

// Delete removes the job, letting the garbage collector remove its pods first.
func (c *Client) Delete(ctx context.Context, namespace, name string) error {
	logging.Info("Deleting job %s/%s (%s)", namespace, name, c.gvr.GroupVersion())
	err := c.resource(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: ptr.To(metav1.DeletePropagationForeground),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete job %s/%s", namespace, name)
	}
	return nil
}

// WaitForDelete polls until the job no longer exists.
func (c *Client) WaitForDelete(ctx context.Context, namespace, name string, cb StatusCallback) error {
	err := wait.PollUntilContextTimeout(ctx, c.pollInterval, c.deleteTimeout, true, func(ctx context.Context) (bool, error) {
		job, err := c.Get(ctx, namespace, name)
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if cb != nil {
			cb(job)
		}
		return false, nil
	})
	if err != nil {
		return errors.Wrapf(err, "waiting for job %s/%s to be deleted", namespace, name)
	}
	return nil
}

// TerminateReplicas asks the first count replicas of the role to exit with exitCode.
func TerminateReplicas(ctx context.Context, sender runconfig.Sender, namespace, name string, replica runconfig.ReplicaType, count, exitCode int) error {
	for i := 0; i < count; i++ {
		target := runconfig.ReplicaName(name, replica, i)
		logging.Info("Terminating replica %s/%s with exit code %d", namespace, target, exitCode)
		params := map[string]string{"exitCode": strconv.Itoa(exitCode)}
		if _, err := sender.SendRequest(ctx, namespace, target, ExitAction, params); err != nil {
			return errors.Wrapf(err, "failed to terminate replica %s", target)
		}
	}
	return nil
}
