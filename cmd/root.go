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

// Package cmd defines the command line interface of tfjob-e2e.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/client-go/rest"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"tfjob-e2e/pkg/config"
	"tfjob-e2e/pkg/logging"
)

var (
	cfgFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "tfjob-e2e",
		Short: "End-to-end tests for distributed TensorFlow jobs on Kubernetes.",
		Long: `tfjob-e2e launches a TFJob from a templated application, checks that every
replica received the expected distributed runtime configuration, terminates the
chief and tears the job down.`,
		PersistentPreRunE: loadConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a tfjob-e2e YAML config file (default: tfjob-e2e.yaml in ./config or .).")
	rootCmd.PersistentFlags().String("kube-context", "", "Kubeconfig context to use. Defaults to the current context.")
	rootCmd.PersistentFlags().String("master-host", "", "API server to send replica requests through. Defaults to the kubeconfig host.")
	rootCmd.PersistentFlags().String("tfjob-version", "v1", "kubeflow.org API version of the TFJob resource.")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error).")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text or json).")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := logging.Configure(c.Logging.Level, c.Logging.Format); err != nil {
		return err
	}
	cfg = c
	return nil
}

// restConfig loads the kubeconfig for the configured context.
func restConfig() (*rest.Config, error) {
	rc, err := ctrlconfig.GetConfigWithContext(cfg.KubeContext)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	return rc, nil
}
