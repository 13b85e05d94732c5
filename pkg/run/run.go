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

package run

import (
	"context"
	"fmt"
	"time"

	kftraining "github.com/kubeflow/training-operator/pkg/apis/kubeflow.org/v1"
	"github.com/spf13/afero"

	"tfjob-e2e/pkg/appsetup"
	"tfjob-e2e/pkg/junit"
	"tfjob-e2e/pkg/logging"
	"tfjob-e2e/pkg/orchestrator"
	"tfjob-e2e/pkg/runconfig"
	"tfjob-e2e/pkg/tfjob"
)

// RunOptions holds all the necessary parameters for the 'run' command logic.
type RunOptions struct {
	AppDir    string
	Component string
	Params    string

	DockerImage        string
	BaseDockerImage    string
	BuildContext       string
	Platform           string
	ImageRepository    string
	OutputManifest     string // If set, the manifest is saved here and nothing is deployed
	InstallOperatorURL string

	// ExitCode is requested from the chief when it is terminated.
	ExitCode int
}

// JobClient is the part of the TFJob client the procedure drives.
type JobClient interface {
	Version() string
	WaitForCondition(ctx context.Context, namespace, name string, conditions []kftraining.JobConditionType, cb tfjob.StatusCallback) (*kftraining.TFJob, error)
	WaitForJob(ctx context.Context, namespace, name string, cb tfjob.StatusCallback) (*kftraining.TFJob, error)
	Delete(ctx context.Context, namespace, name string) error
	WaitForDelete(ctx context.Context, namespace, name string, cb tfjob.StatusCallback) error
}

// Verifier checks the RunConfig of the replicas of one role.
type Verifier interface {
	Verify(ctx context.Context, namespace, jobName string, replica runconfig.ReplicaType, numPS, numWorkers int) error
}

// Metrics receives the outcome and timings of a run.
type Metrics interface {
	ObserveJob(namespace string, succeeded bool)
	ObservePhase(phase string, d time.Duration)
}

// Runner launches a TFJob, verifies the RunConfig of its replicas,
// terminates the chief and tears the job down.
type Runner struct {
	Options      RunOptions
	Fs           afero.Fs
	Orchestrator orchestrator.Orchestrator
	Jobs         JobClient
	Verifier     Verifier
	Sender       runconfig.Sender
	Metrics      Metrics
}

// startConditions end the wait that follows the submission.
var startConditions = []kftraining.JobConditionType{
	kftraining.JobRunning,
	kftraining.JobSucceeded,
	kftraining.JobFailed,
}

// RunAndVerifyRunConfig runs the procedure once. It returns false with a nil
// error when the job ends without succeeding; the failure is recorded on tc
// and the job is left in the cluster. Any other problem is returned as an
// error, a *runconfig.MismatchError when a replica reports an unexpected
// RunConfig.
func (r *Runner) RunAndVerifyRunConfig(ctx context.Context, tc *junit.TestCase) (bool, error) {
	start := time.Now()
	defer func() { tc.Time = time.Since(start) }()

	var app *appsetup.App
	err := r.phase("setup", func() error {
		appDir, cleanup, err := appsetup.Resolve(ctx, r.Options.AppDir)
		if err != nil {
			return err
		}
		defer cleanup()
		app, err = appsetup.Setup(r.Fs, appsetup.Options{
			AppDir:    appDir,
			Component: r.Options.Component,
			Params:    r.Options.Params,
		})
		return err
	})
	if err != nil {
		return false, err
	}

	err = r.phase("submit", func() error {
		return r.Orchestrator.SubmitJob(ctx, orchestrator.JobDefinition{
			Name:               app.Name,
			Namespace:          app.Namespace,
			Env:                app.Env,
			Component:          app.Component,
			Version:            r.Jobs.Version(),
			Params:             app.Params,
			Template:           app.Template,
			DockerImage:        r.Options.DockerImage,
			BaseDockerImage:    r.Options.BaseDockerImage,
			BuildContext:       r.Options.BuildContext,
			Platform:           r.Options.Platform,
			ImageRepository:    r.Options.ImageRepository,
			OutputManifest:     r.Options.OutputManifest,
			InstallOperatorURL: r.Options.InstallOperatorURL,
		})
	})
	if err != nil {
		return false, err
	}
	if r.Options.OutputManifest != "" {
		logging.Info("Manifest written to %s; nothing was deployed.", r.Options.OutputManifest)
		return true, nil
	}

	var job *kftraining.TFJob
	err = r.phase("wait-start", func() error {
		job, err = r.Jobs.WaitForCondition(ctx, app.Namespace, app.Name, startConditions, tfjob.LogStatus)
		return err
	})
	if err != nil {
		return false, err
	}

	numPS, numWorkers := tfjob.ReplicaCounts(job)
	err = r.phase("verify", func() error {
		for _, replica := range runconfig.ReplicaTypes {
			if err := r.Verifier.Verify(ctx, app.Namespace, app.Name, replica, numPS, numWorkers); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	err = r.phase("terminate", func() error {
		return tfjob.TerminateReplicas(ctx, r.Sender, app.Namespace, app.Name, runconfig.Chief, 1, r.Options.ExitCode)
	})
	if err != nil {
		return false, err
	}

	err = r.phase("wait-finish", func() error {
		job, err = r.Jobs.WaitForJob(ctx, app.Namespace, app.Name, tfjob.LogStatus)
		return err
	})
	if err != nil {
		return false, err
	}

	succeeded := tfjob.JobSucceeded(job)
	if r.Metrics != nil {
		r.Metrics.ObserveJob(app.Namespace, succeeded)
	}
	if !succeeded {
		msg := fmt.Sprintf("Job %s in namespace %s in status %s", app.Name, app.Namespace, tfjob.FormatStatus(job))
		logging.Error("%s", msg)
		tc.Fail(msg)
		return false, nil
	}

	err = r.phase("delete", func() error {
		if err := r.Jobs.Delete(ctx, app.Namespace, app.Name); err != nil {
			return err
		}
		return r.Jobs.WaitForDelete(ctx, app.Namespace, app.Name, tfjob.LogStatus)
	})
	if err != nil {
		return false, err
	}
	logging.Info("Job %s in namespace %s succeeded and was deleted.", app.Name, app.Namespace)
	return true, nil
}

func (r *Runner) phase(name string, f func() error) error {
	start := time.Now()
	err := f()
	if r.Metrics != nil {
		r.Metrics.ObservePhase(name, time.Since(start))
	}
	return err
}
