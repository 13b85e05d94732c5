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

// Package proxy talks to the HTTP endpoints of individual TFJob replicas
// through the API server's service proxy.
package proxy

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"tfjob-e2e/pkg/logging"
)

// DefaultPort is the service port the replica test servers listen on.
const DefaultPort = 2222

// Requester sends actions to replica services.
type Requester struct {
	client kubernetes.Interface
	host   string
	port   int
}

// NewRequester builds a requester from cfg. A non-empty masterHost replaces
// the API server address of cfg; credentials are kept.
func NewRequester(cfg *rest.Config, masterHost string) (*Requester, error) {
	cfg = rest.CopyConfig(cfg)
	if masterHost != "" {
		cfg.Host = masterHost
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kubernetes client")
	}
	return &Requester{client: client, host: cfg.Host, port: DefaultPort}, nil
}

// MasterHost is the API server the requests are sent through.
func (r *Requester) MasterHost() string {
	return r.host
}

// SendRequest issues GET {master}/api/v1/namespaces/{namespace}/services/{target}:2222/proxy/{action}
// and returns the body. Non-2xx responses are errors.
func (r *Requester) SendRequest(ctx context.Context, namespace, target, action string, params map[string]string) ([]byte, error) {
	logging.Debug("Sending %q to %s/%s through %s", action, namespace, target, r.host)
	body, err := r.client.CoreV1().Services(namespace).
		ProxyGet("", target, strconv.Itoa(r.port), action, params).
		DoRaw(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "request %q to service %s/%s failed", action, namespace, target)
	}
	return body, nil
}
