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

package manifest

import (
	"bytes"
	"fmt"
	"text/template"
)

// DefaultTFJobTemplate is the Go template for a TFJob whose replicas all run
// the bundled test server. It expects the name, namespace, env, version,
// image, num_ps and num_workers parameters.
const DefaultTFJobTemplate = `
apiVersion: kubeflow.org/{{.version}}
kind: TFJob
metadata:
  name: {{.name}}
  namespace: {{.namespace}}
  labels:
    tfjob-e2e/env: {{.env}}
spec:
  tfReplicaSpecs:
    Chief:
      replicas: 1
      restartPolicy: OnFailure
      template:
        metadata:
          labels:
            tfjob-e2e/env: {{.env}}
        spec:
          containers:
          - name: tensorflow
            image: {{.image}}
            command: ["tfjob-e2e", "test-server", "--port=2222"]
            ports:
            - containerPort: 2222
              name: tfjob-port
{{- if ne .num_ps "0" }}
    PS:
      replicas: {{.num_ps}}
      restartPolicy: OnFailure
      template:
        metadata:
          labels:
            tfjob-e2e/env: {{.env}}
        spec:
          containers:
          - name: tensorflow
            image: {{.image}}
            command: ["tfjob-e2e", "test-server", "--port=2222"]
            ports:
            - containerPort: 2222
              name: tfjob-port
{{- end }}
{{- if ne .num_workers "0" }}
    Worker:
      replicas: {{.num_workers}}
      restartPolicy: OnFailure
      template:
        metadata:
          labels:
            tfjob-e2e/env: {{.env}}
        spec:
          containers:
          - name: tensorflow
            image: {{.image}}
            command: ["tfjob-e2e", "test-server", "--port=2222"]
            ports:
            - containerPort: 2222
              name: tfjob-port
{{- end }}
`

// DefaultParams are the template parameters applied underneath the
// application's own.
func DefaultParams() map[string]string {
	return map[string]string{
		"version":     "v1",
		"num_ps":      "1",
		"num_workers": "1",
	}
}

// Merge returns a new map with the keys of each layer applied in order.
func Merge(layers ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// Render executes tmpl against params. A parameter referenced by the template
// but absent from params is an error.
func Render(tmpl string, params map[string]string) (string, error) {
	t, err := template.New("tfjob").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse tfjob template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to execute tfjob template: %w", err)
	}
	return buf.String(), nil
}
