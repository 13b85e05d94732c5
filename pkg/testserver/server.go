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

package testserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"tfjob-e2e/pkg/logging"
)

// exitDelay leaves time for the /exit response to reach the caller.
const exitDelay = 500 * time.Millisecond

// Server serves the replica endpoints.
type Server struct {
	tfConfig *TFConfig
	raw      string
	exit     func(code int)
	router   *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithExitFunc replaces os.Exit as the way /exit ends the replica.
func WithExitFunc(exit func(code int)) Option {
	return func(s *Server) { s.exit = exit }
}

// NewServer creates a server for the replica described by rawTFConfig.
func NewServer(rawTFConfig string, opts ...Option) (*Server, error) {
	cfg, err := ParseTFConfig(rawTFConfig)
	if err != nil {
		return nil, err
	}
	s := &Server{tfConfig: cfg, raw: rawTFConfig, exit: os.Exit}
	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter()
	router.HandleFunc("/runconfig", s.handleRunConfig).Methods("GET")
	router.HandleFunc("/tfconfig", s.handleTFConfig).Methods("GET")
	router.HandleFunc("/exit", s.handleExit).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router = router
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info("Test server for %s:%d listening on %s", s.tfConfig.Task.Type, s.tfConfig.Task.Index, addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRunConfig(w http.ResponseWriter, r *http.Request) {
	rc, err := s.tfConfig.RunConfig()
	if err != nil {
		logging.Error("Failed to derive runconfig: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rc); err != nil {
		logging.Error("Failed to write runconfig: %v", err)
	}
}

func (s *Server) handleTFConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, s.raw)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	code := 0
	if v := r.URL.Query().Get("exitCode"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid exitCode %q", v), http.StatusBadRequest)
			return
		}
		code = n
	}
	logging.WithFields(map[string]interface{}{
		"task_type":  s.tfConfig.Task.Type,
		"task_index": s.tfConfig.Task.Index,
		"exit_code":  code,
	}).Info("Exit requested")

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "exiting with code %d\n", code)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	go func() {
		time.Sleep(exitDelay)
		s.exit(code)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
