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

package orchestrator

import "context"

// JobDefinition holds all the necessary parameters to define a TFJob.
// Orchestrator implementations extract the fields relevant to them.
type JobDefinition struct {
	Name      string
	Namespace string
	Env       string
	Component string
	// Version is the kubeflow.org API version of the TFJob resource.
	Version string
	// Params are the application parameters the template is rendered with.
	Params map[string]string
	// Template is the TFJob manifest template; empty selects the builtin one.
	Template string

	DockerImage     string
	BaseDockerImage string
	BuildContext    string
	Platform        string
	ImageRepository string

	// OutputManifest, if set, receives the rendered manifest instead of the cluster.
	OutputManifest string
	// InstallOperatorURL is applied when the TFJob CRD is missing.
	InstallOperatorURL string
}

// Orchestrator defines the interface for submitting jobs to a cluster.
type Orchestrator interface {
	// SubmitJob takes a JobDefinition and orchestrates its deployment.
	SubmitJob(ctx context.Context, job JobDefinition) error
}
