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

package e2e

import (
	"time"

	kftraining "github.com/kubeflow/training-operator/pkg/apis/kubeflow.org/v1"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"tfjob-e2e/pkg/appsetup"
	"tfjob-e2e/pkg/junit"
	"tfjob-e2e/pkg/metrics"
	"tfjob-e2e/pkg/run"
)

var _ = ginkgo.Describe("TFJob runconfig", func() {
	ginkgo.It("Should inject the expected runconfig into every replica and clean up", func() {
		params, err := appsetup.ParseParams(e2eConfig.App.Params)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		key := client.ObjectKey{Namespace: params["namespace"], Name: params["name"]}

		recorder := metrics.NewRecorder()
		runner, err := run.NewRunner(e2eConfig, restCfg, recorder)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		tc := &junit.TestCase{Name: e2eConfig.Report.TestName, ClassName: "tfjob-e2e"}
		ginkgo.By("Running the job to completion", func() {
			ok, err := runner.RunAndVerifyRunConfig(ctx, tc)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue(), tc.Failure)
		})

		ginkgo.By("Checking the job is gone", func() {
			gomega.Eventually(func(g gomega.Gomega) {
				var job kftraining.TFJob
				g.Expect(apierrors.IsNotFound(k8sClient.Get(ctx, key, &job))).To(gomega.BeTrue())
			}, time.Minute, time.Second).Should(gomega.Succeed())
		})

		ginkgo.By("Checking the job outcome was counted", func() {
			gomega.Expect(testutil.CollectAndCount(recorder.Registry(), "tfjob_e2e_jobs_total")).To(gomega.Equal(1))
		})
	})
})
