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
	"context"
	"os"
	"path/filepath"
	"testing"

	kftraining "github.com/kubeflow/training-operator/pkg/apis/kubeflow.org/v1"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"tfjob-e2e/pkg/config"
	"tfjob-e2e/pkg/logging"
)

var (
	e2eConfig *config.Config
	restCfg   *rest.Config
	k8sClient client.Client
	ctx       context.Context
)

func TestAPIs(t *testing.T) {
	if _, found := os.LookupEnv("TFJOB_E2E_PARAMS"); !found {
		t.Skip("TFJOB_E2E_PARAMS is not set; the end-to-end suite needs a cluster with the training operator")
	}
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "TFJob End To End Suite")
}

var _ = ginkgo.BeforeSuite(func() {
	var err error
	e2eConfig, err = config.Load(os.Getenv("TFJOB_E2E_CONFIG"), nil)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	if e2eConfig.App.AppDir == "" {
		e2eConfig.App.AppDir, err = filepath.Abs(filepath.Join("testdata", "app"))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	}
	gomega.Expect(e2eConfig.ValidateRun()).To(gomega.Succeed())
	gomega.Expect(logging.Configure(e2eConfig.Logging.Level, e2eConfig.Logging.Format)).To(gomega.Succeed())

	restCfg, err = ctrlconfig.GetConfigWithContext(e2eConfig.KubeContext)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	scheme := runtime.NewScheme()
	gomega.Expect(kftraining.AddToScheme(scheme)).To(gomega.Succeed())
	k8sClient, err = client.New(restCfg, client.Options{Scheme: scheme})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	ctx = ginkgo.GinkgoT().Context()
})
