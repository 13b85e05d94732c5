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
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"tfjob-e2e/pkg/logging"
)

// Action is the test-server action that returns a replica's RunConfig.
const Action = "runconfig"

// Sender issues an action against the service of one replica and returns the
// raw response body.
type Sender interface {
	SendRequest(ctx context.Context, namespace, target, action string, params map[string]string) ([]byte, error)
}

// Fetcher returns the RunConfig a replica currently reports.
type Fetcher interface {
	FetchRunConfig(ctx context.Context, namespace, target string) (*RunConfig, error)
}

// RemoteFetcher asks the replica's test server for its RunConfig.
type RemoteFetcher struct {
	sender Sender
}

func NewRemoteFetcher(sender Sender) *RemoteFetcher {
	return &RemoteFetcher{sender: sender}
}

func (f *RemoteFetcher) FetchRunConfig(ctx context.Context, namespace, target string) (*RunConfig, error) {
	body, err := f.sender.SendRequest(ctx, namespace, target, Action, map[string]string{})
	if err != nil {
		return nil, err
	}
	return Decode(body)
}

// requiredKeys are the RunConfig keys a replica must report with a non-null value.
var requiredKeys = []string{
	"task_type", "task_id", "cluster_spec", "is_chief",
	"master", "num_worker_replicas", "num_ps_replicas",
}

// Decode parses a RunConfig document in YAML or JSON. Every RunConfig key
// must be present and non-null; keys outside the RunConfig schema are rejected.
func Decode(data []byte) (*RunConfig, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode runconfig")
	}
	for _, key := range requiredKeys {
		if v, ok := raw[key]; !ok || v == nil {
			return nil, errors.Errorf("failed to decode runconfig: no value for %q", key)
		}
	}

	var rc RunConfig
	if err := yaml.UnmarshalStrict(data, &rc); err != nil {
		return nil, errors.Wrap(err, "failed to decode runconfig")
	}
	return &rc, nil
}

// Equal reports whether two RunConfigs are structurally equal. Nil and
// empty endpoint lists are equal.
func Equal(expected, actual RunConfig) bool {
	return cmp.Equal(expected, actual, cmpopts.EquateEmpty())
}

// MismatchError is returned for the first replica whose RunConfig differs
// from the expected one.
type MismatchError struct {
	Target   string
	Expected RunConfig
	Actual   RunConfig
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Actual runconfig differs from expected. Expected: %+v Actual: %+v", e.Expected, e.Actual)
}

// Diff is a human readable difference, "-" for expected and "+" for actual.
func (e *MismatchError) Diff() string {
	return cmp.Diff(e.Expected, e.Actual, cmpopts.EquateEmpty())
}

// CheckObserver is told the outcome of every replica check, a nil err
// meaning the replica matched.
type CheckObserver func(replica ReplicaType, index int, err error)

// Verifier checks the RunConfig of every replica of one role.
type Verifier struct {
	fetcher  Fetcher
	observer CheckObserver
}

type Option func(*Verifier)

// WithObserver registers an observer of the individual replica checks.
func WithObserver(o CheckObserver) Option {
	return func(v *Verifier) {
		v.observer = o
	}
}

func NewVerifier(fetcher Fetcher, opts ...Option) *Verifier {
	v := &Verifier{fetcher: fetcher}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify fetches the RunConfig of each replica of the role in index order
// and stops at the first one that cannot be fetched or does not match.
// A role with zero replicas is trivially verified.
func (v *Verifier) Verify(ctx context.Context, namespace, jobName string, replica ReplicaType, numPS, numWorkers int) error {
	n := NumReplicas(replica, numPS, numWorkers)
	logging.Info("Verifying runconfig of %d %s replica(s) of job %s in namespace %s", n, replica, jobName, namespace)

	for i := 0; i < n; i++ {
		target := ReplicaName(jobName, replica, i)
		actual, err := v.fetcher.FetchRunConfig(ctx, namespace, target)
		if err != nil {
			err = errors.Wrapf(err, "failed to get runconfig of replica %s", target)
			v.observe(replica, i, err)
			return err
		}

		expected := ExpectedRunConfig(jobName, replica, i, numPS, numWorkers)
		if !Equal(expected, *actual) {
			mismatch := &MismatchError{Target: target, Expected: expected, Actual: *actual}
			logging.Error("%s\n%s", mismatch.Error(), mismatch.Diff())
			v.observe(replica, i, mismatch)
			return mismatch
		}
		logging.Debug("Replica %s reported the expected runconfig", target)
		v.observe(replica, i, nil)
	}
	return nil
}

func (v *Verifier) observe(replica ReplicaType, index int, err error) {
	if v.observer != nil {
		v.observer(replica, index, err)
	}
}
