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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tfjob-e2e/pkg/logging"
	"tfjob-e2e/pkg/testserver"
)

var testServerPort int

func init() {
	rootCmd.AddCommand(testServerCmd)

	testServerCmd.Flags().IntVar(&testServerPort, "port", 2222, "Port to listen on.")
}

var testServerCmd = &cobra.Command{
	Use:   "test-server",
	Short: "Serves the replica endpoints inside a TFJob pod.",
	Long: `The 'test-server' command runs in every replica of an end-to-end TFJob. It
reads TF_CONFIG and serves /runconfig, /tfconfig, /healthz and /exit.`,
	Run: runTestServerCmd,
}

func runTestServerCmd(cmd *cobra.Command, args []string) {
	s, err := testserver.NewServer(os.Getenv(testserver.EnvTFConfig))
	if err != nil {
		logging.Fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.ListenAndServe(ctx, fmt.Sprintf(":%d", testServerPort)); err != nil {
		logging.Fatal("test server failed: %v", err)
	}
}
