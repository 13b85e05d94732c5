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

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tfjob-e2e/pkg/junit"
	"tfjob-e2e/pkg/logging"
	"tfjob-e2e/pkg/metrics"
	"tfjob-e2e/pkg/run"
	"tfjob-e2e/pkg/tfjob"
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("app-dir", "a", "", "Application directory, local or a go-getter source (git::, https://, s3::...). Required.")
	runCmd.Flags().StringP("component", "c", "simple-tfjob", "Component of the application to deploy.")
	runCmd.Flags().StringP("params", "p", "", "Comma separated key=value parameters of the component. name and namespace are required.")
	runCmd.Flags().StringP("image", "i", "", "Pre-built test-server image. It is pinned to its digest before deployment.")
	runCmd.Flags().String("base-image", "", "Base image for Crane to append --build-context onto. Requires --build-context and --image-repository.")
	runCmd.Flags().String("build-context", "", "Directory appended as a layer onto --base-image.")
	runCmd.Flags().StringP("platform", "f", "linux/amd64", "Target platform of the test-server image (e.g., 'linux/amd64', 'linux/arm64').")
	runCmd.Flags().String("image-repository", "", "Repository the built image is pushed to (e.g., 'gcr.io/my-project').")
	runCmd.Flags().StringP("output-manifest", "o", "", "Path to output the generated TFJob manifest instead of running the test.")
	runCmd.Flags().String("install-operator", "", "Manifests URL of the training operator, applied when the TFJob CRD is missing.")
	runCmd.Flags().Int("exit-code", 0, "Exit code requested from the chief when it is terminated.")
	runCmd.Flags().Duration("poll-interval", tfjob.DefaultPollInterval, "Interval between job status polls.")
	runCmd.Flags().Duration("timeout", tfjob.DefaultTimeout, "How long to wait for the job to start and to finish.")
	runCmd.Flags().Duration("delete-timeout", tfjob.DefaultDeleteTimeout, "How long to wait for the job to be deleted.")
	runCmd.Flags().String("junit-path", "", "Write a JUnit XML report of the test case to this path.")
	runCmd.Flags().String("test-name", "estimator-runconfig", "Name of the test case in the JUnit report.")
	runCmd.Flags().String("pushgateway-url", "", "Prometheus Pushgateway to push the run metrics to.")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the TFJob runconfig end-to-end test.",
	Long: `The 'run' command creates a fresh environment of an application component,
submits the resulting TFJob, waits for it to start and checks the runconfig
reported by every chief, worker and ps replica. It then terminates the chief,
waits for the job to finish and deletes it when it succeeded.

A job that does not succeed is reported as a test failure and left in the
cluster for inspection.`,
	Run: runRunCmd,
}

func runRunCmd(cmd *cobra.Command, args []string) {
	logging.Info("Executing tfjob-e2e run command...")

	if err := cfg.ValidateRun(); err != nil {
		logging.Fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	restCfg, err := restConfig()
	if err != nil {
		logging.Fatal("%v", err)
	}

	recorder := metrics.NewRecorder()
	runner, err := run.NewRunner(cfg, restCfg, recorder)
	if err != nil {
		logging.Fatal("Failed to create runner: %v", err)
	}

	tc := &junit.TestCase{Name: cfg.Report.TestName, ClassName: "tfjob-e2e"}
	ok, runErr := runner.RunAndVerifyRunConfig(ctx, tc)
	if runErr != nil {
		tc.Fail(runErr.Error())
	}

	if cfg.Report.JUnitPath != "" {
		if err := junit.WriteReport(cfg.Report.JUnitPath, "tfjob-e2e", tc); err != nil {
			logging.Error("Failed to write JUnit report: %v", err)
		} else {
			logging.Info("JUnit report written to %s", cfg.Report.JUnitPath)
		}
	}
	if cfg.Report.PushgatewayURL != "" {
		if err := recorder.Push(ctx, cfg.Report.PushgatewayURL, "tfjob-e2e"); err != nil {
			logging.Error("Failed to push metrics: %v", err)
		}
	}

	if runErr != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "FAIL %s\n", tc.Name)
		logging.Fatal("tfjob-e2e run failed: %v", runErr)
	}
	if !ok {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "FAIL %s\n", tc.Name)
		logging.Fatal("%s", tc.Failure)
	}
	color.New(color.FgGreen, color.Bold).Fprintf(os.Stderr, "PASS %s\n", tc.Name)
}
