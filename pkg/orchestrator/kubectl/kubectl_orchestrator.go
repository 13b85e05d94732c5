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

package kubectl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"tfjob-e2e/pkg/imagebuilder"
	"tfjob-e2e/pkg/logging"
	"tfjob-e2e/pkg/manifest"
	"tfjob-e2e/pkg/orchestrator"
	"tfjob-e2e/pkg/shell"
)

// TFJobCRD is the CustomResourceDefinition installed by the training operator.
const TFJobCRD = "tfjobs.kubeflow.org"

// CRDEstablishTimeout bounds the wait for a freshly installed TFJob CRD to be served.
const CRDEstablishTimeout = 2 * time.Minute

// KubectlOrchestrator implements the Orchestrator interface with kubectl.
type KubectlOrchestrator struct {
	kubectl     string
	kubeContext string
}

// NewKubectlOrchestrator creates an orchestrator that runs kubectl against
// kubeContext, or the current context when it is empty.
func NewKubectlOrchestrator(kubeContext string) (*KubectlOrchestrator, error) {
	return &KubectlOrchestrator{kubectl: "kubectl", kubeContext: kubeContext}, nil
}

// SubmitJob makes sure TFJobs can be created, resolves the image, renders the
// job's manifest and applies it.
func (k *KubectlOrchestrator) SubmitJob(ctx context.Context, job orchestrator.JobDefinition) error {
	logging.Info("Submitting TFJob %s/%s (component %s, environment %s)...", job.Namespace, job.Name, job.Component, job.Env)

	if job.OutputManifest == "" {
		if err := k.checkAndInstallTFJobCRD(ctx, job.InstallOperatorURL); err != nil {
			return fmt.Errorf("failed to check or install TFJob CRD: %w", err)
		}
	}

	image, err := k.buildDockerImage(job)
	if err != nil {
		return err
	}

	content, err := k.generateManifest(job, image)
	if err != nil {
		return err
	}

	if job.OutputManifest != "" {
		logging.Info("Saving TFJob manifest to %s", job.OutputManifest)
		if err := os.WriteFile(job.OutputManifest, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write TFJob manifest to file %s: %w", job.OutputManifest, err)
		}
		logging.Info("TFJob manifest saved successfully.")
		return nil
	}

	if err := k.applyManifests(ctx, content); err != nil {
		return fmt.Errorf("failed to apply TFJob manifest: %w", err)
	}
	logging.Info("TFJob %s/%s submitted successfully.", job.Namespace, job.Name)
	return nil
}

func (k *KubectlOrchestrator) buildDockerImage(job orchestrator.JobDefinition) (string, error) {
	switch {
	case job.BaseDockerImage != "":
		logging.Info("Building test-server image using Crane on top of %s...", job.BaseDockerImage)
		matcher, err := imagebuilder.ReadDockerignorePatterns(job.BuildContext, imagebuilder.DefaultIgnorePatterns)
		if err != nil {
			return "", fmt.Errorf("failed to read .dockerignore patterns: %w", err)
		}
		image, err := imagebuilder.BuildContainerImageFromBaseImage(job.ImageRepository, job.BaseDockerImage, job.BuildContext, job.Platform, matcher)
		if err != nil {
			return "", fmt.Errorf("crane-based image build failed: %w", err)
		}
		return image, nil
	case job.DockerImage != "" && job.OutputManifest == "":
		image, err := imagebuilder.ResolveImage(job.DockerImage, job.Platform)
		if err != nil {
			return "", err
		}
		return image, nil
	default:
		return job.DockerImage, nil
	}
}

func (k *KubectlOrchestrator) generateManifest(job orchestrator.JobDefinition, image string) (string, error) {
	logging.Info("Generating TFJob manifest...")
	overrides := map[string]string{
		"name":      job.Name,
		"namespace": job.Namespace,
		"env":       job.Env,
	}
	if job.Version != "" {
		overrides["version"] = job.Version
	}
	if image != "" {
		overrides["image"] = image
	}
	params := manifest.Merge(manifest.DefaultParams(), job.Params, overrides)

	tmpl := job.Template
	if tmpl == "" {
		tmpl = manifest.DefaultTFJobTemplate
	}
	content, err := manifest.Render(tmpl, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate TFJob manifest: %w", err)
	}
	logging.Debug("TFJob manifest:\n%s", content)
	return content, nil
}

func (k *KubectlOrchestrator) command(ctx context.Context, args ...string) *shell.Command {
	if k.kubeContext != "" {
		args = append([]string{"--context", k.kubeContext}, args...)
	}
	return shell.NewCommandContext(ctx, k.kubectl, args...)
}

func (k *KubectlOrchestrator) checkAndInstallTFJobCRD(ctx context.Context, installURL string) error {
	installed, err := k.isTFJobCRDInstalled(ctx)
	if err != nil {
		return err
	}
	if installed {
		return nil
	}
	if installURL == "" {
		return fmt.Errorf("CRD %s is not installed and no operator manifests were given (--install-operator)", TFJobCRD)
	}
	return k.installTrainingOperator(ctx, installURL)
}

func (k *KubectlOrchestrator) isTFJobCRDInstalled(ctx context.Context) (bool, error) {
	logging.Info("Checking for TFJob CRD installation...")
	res := k.command(ctx, "get", "crd", TFJobCRD).Execute()
	if res.ExitCode == 0 {
		logging.Info("TFJob CRD already installed.")
		return true, nil
	}
	if strings.Contains(res.Stderr, "not found") || strings.Contains(res.Stdout, "NotFound") {
		logging.Info("TFJob CRD not found.")
		return false, nil
	}
	return false, fmt.Errorf("failed to check for TFJob CRD: %s\n%s", res.Stderr, res.Stdout)
}

func (k *KubectlOrchestrator) installTrainingOperator(ctx context.Context, url string) error {
	logging.Info("Installing the training operator from %s...", url)

	manifestBytes, err := downloadManifests(ctx, url)
	if err != nil {
		return err
	}

	cleaned, err := cleanManifests(manifestBytes)
	if err != nil {
		return err
	}

	if err := k.applyManifests(ctx, string(cleaned)); err != nil {
		return err
	}
	if err := k.waitForTFJobCRD(ctx); err != nil {
		return err
	}
	logging.Info("Training operator installed successfully.")
	return nil
}

// waitForTFJobCRD blocks until the API server accepts TFJobs.
func (k *KubectlOrchestrator) waitForTFJobCRD(ctx context.Context) error {
	cmd := k.command(ctx, "wait", "--for=condition=established",
		fmt.Sprintf("--timeout=%s", CRDEstablishTimeout), "crd/"+TFJobCRD)
	logging.Info("Executing: %s", cmd)
	res := cmd.Execute()
	if res.ExitCode != 0 {
		return fmt.Errorf("CRD %s was not established: %s\n%s", TFJobCRD, res.Stderr, res.Stdout)
	}
	return nil
}

func (k *KubectlOrchestrator) applyManifests(ctx context.Context, manifests string) error {
	cmd := k.command(ctx, "apply", "-f", "-")
	cmd.SetInput(manifests)
	logging.Info("Executing: %s", cmd)
	res := cmd.Execute()
	if res.ExitCode != 0 {
		return fmt.Errorf("kubectl apply failed with exit code %d: %s\n%s", res.ExitCode, res.Stderr, res.Stdout)
	}
	return nil
}

func downloadManifests(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download operator manifests: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download operator manifests: received status code %d", resp.StatusCode)
	}

	manifestBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read operator manifests: %w", err)
	}
	return manifestBytes, nil
}

// cleanManifests drops every "description" field. The CRD schemas otherwise
// exceed the last-applied-configuration annotation limit of client-side apply.
func cleanManifests(manifestBytes []byte) ([]byte, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(manifestBytes))
	var cleaned bytes.Buffer

	for {
		var doc interface{}
		if err := decoder.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML document: %w", err)
		}
		if doc == nil {
			continue
		}

		removeDescriptionFields(doc)
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cleaned YAML: %w", err)
		}
		cleaned.WriteString("---\n")
		cleaned.Write(out)
	}
	return cleaned.Bytes(), nil
}

func removeDescriptionFields(node interface{}) {
	switch n := node.(type) {
	case map[interface{}]interface{}:
		for key, value := range n {
			if key == "description" {
				delete(n, key)
				continue
			}
			removeDescriptionFields(value)
		}
	case []interface{}:
		for _, item := range n {
			removeDescriptionFields(item)
		}
	}
}
