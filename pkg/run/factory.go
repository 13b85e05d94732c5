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
	"github.com/spf13/afero"
	"k8s.io/client-go/rest"

	"tfjob-e2e/pkg/config"
	"tfjob-e2e/pkg/metrics"
	"tfjob-e2e/pkg/orchestrator/kubectl"
	"tfjob-e2e/pkg/proxy"
	"tfjob-e2e/pkg/runconfig"
	"tfjob-e2e/pkg/tfjob"
)

// NewRunner wires a Runner to the cluster described by restCfg.
func NewRunner(cfg *config.Config, restCfg *rest.Config, recorder *metrics.Recorder) (*Runner, error) {
	requester, err := proxy.NewRequester(restCfg, cfg.MasterHost)
	if err != nil {
		return nil, err
	}
	jobs, err := tfjob.NewForConfig(restCfg, cfg.TFJobVersion,
		tfjob.WithPollInterval(cfg.Wait.PollInterval),
		tfjob.WithTimeout(cfg.Wait.Timeout),
		tfjob.WithDeleteTimeout(cfg.Wait.DeleteTimeout))
	if err != nil {
		return nil, err
	}
	orch, err := kubectl.NewKubectlOrchestrator(cfg.KubeContext)
	if err != nil {
		return nil, err
	}

	return &Runner{
		Options: RunOptions{
			AppDir:             cfg.App.AppDir,
			Component:          cfg.App.Component,
			Params:             cfg.App.Params,
			DockerImage:        cfg.Image.Image,
			BaseDockerImage:    cfg.Image.BaseImage,
			BuildContext:       cfg.Image.BuildContext,
			Platform:           cfg.Image.Platform,
			ImageRepository:    cfg.Image.ImageRepository,
			OutputManifest:     cfg.OutputManifest,
			InstallOperatorURL: cfg.InstallOperator,
			ExitCode:           cfg.ExitCode,
		},
		Fs:           afero.NewOsFs(),
		Orchestrator: orch,
		Jobs:         jobs,
		Verifier:     runconfig.NewVerifier(runconfig.NewRemoteFetcher(requester), runconfig.WithObserver(recorder.ObserveCheck)),
		Sender:       requester,
		Metrics:      recorder,
	}, nil
}
