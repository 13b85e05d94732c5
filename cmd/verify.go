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

	"tfjob-e2e/pkg/logging"
	"tfjob-e2e/pkg/proxy"
	"tfjob-e2e/pkg/runconfig"
	"tfjob-e2e/pkg/tfjob"
)

var (
	verifyNamespace  string
	verifyName       string
	verifyReplicas   []string
	verifyNumPS      int
	verifyNumWorkers int
)

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVarP(&verifyNamespace, "namespace", "n", "", "Namespace of the TFJob. Required.")
	verifyCmd.Flags().StringVar(&verifyName, "name", "", "Name of the TFJob. Required.")
	verifyCmd.Flags().StringSliceVarP(&verifyReplicas, "replica", "r", []string{"chief", "worker", "ps"}, "Replica types to verify, in order.")
	verifyCmd.Flags().IntVar(&verifyNumPS, "num-ps", -1, "Number of ps replicas. Read from the job when negative.")
	verifyCmd.Flags().IntVar(&verifyNumWorkers, "num-workers", -1, "Number of worker replicas. Read from the job when negative.")

	_ = verifyCmd.MarkFlagRequired("namespace")
	_ = verifyCmd.MarkFlagRequired("name")
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Checks the runconfig of the replicas of a running TFJob.",
	Long: `The 'verify' command compares the runconfig reported by each replica of a
running TFJob with the one expected from its replica counts. It stops at the
first replica that differs.`,
	Run: runVerifyCmd,
}

func runVerifyCmd(cmd *cobra.Command, args []string) {
	replicas := make([]runconfig.ReplicaType, 0, len(verifyReplicas))
	for _, r := range verifyReplicas {
		replica, err := runconfig.ParseReplicaType(r)
		if err != nil {
			logging.Fatal("%v", err)
		}
		replicas = append(replicas, replica)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	restCfg, err := restConfig()
	if err != nil {
		logging.Fatal("%v", err)
	}

	numPS, numWorkers := verifyNumPS, verifyNumWorkers
	if numPS < 0 || numWorkers < 0 {
		jobs, err := tfjob.NewForConfig(restCfg, cfg.TFJobVersion)
		if err != nil {
			logging.Fatal("%v", err)
		}
		job, err := jobs.Get(ctx, verifyNamespace, verifyName)
		if err != nil {
			logging.Fatal("Failed to get job %s/%s: %v", verifyNamespace, verifyName, err)
		}
		tfjob.LogStatus(job)
		jobPS, jobWorkers := tfjob.ReplicaCounts(job)
		if numPS < 0 {
			numPS = jobPS
		}
		if numWorkers < 0 {
			numWorkers = jobWorkers
		}
	}

	requester, err := proxy.NewRequester(restCfg, cfg.MasterHost)
	if err != nil {
		logging.Fatal("%v", err)
	}
	verifier := runconfig.NewVerifier(runconfig.NewRemoteFetcher(requester),
		runconfig.WithObserver(func(replica runconfig.ReplicaType, index int, err error) {
			target := runconfig.ReplicaName(verifyName, replica, index)
			if err != nil {
				color.New(color.FgRed).Fprintf(os.Stderr, "FAIL %s\n", target)
				return
			}
			color.New(color.FgGreen).Fprintf(os.Stderr, "ok   %s\n", target)
		}))

	for _, replica := range replicas {
		if err := verifier.Verify(ctx, verifyNamespace, verifyName, replica, numPS, numWorkers); err != nil {
			logging.Fatal("%v", err)
		}
	}
	logging.Info("All replicas of %s/%s reported the expected runconfig.", verifyNamespace, verifyName)
}
