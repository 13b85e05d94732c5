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

// Package junit records end-to-end test cases and writes them as a JUnit
// XML report.
package junit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jstemmer/go-junit-report/v2/junit"
)

// TestCase is the outcome of one end-to-end check.
type TestCase struct {
	Name      string
	ClassName string
	Time      time.Duration
	Failure   string
}

// Fail records msg as the failure of the test case.
func (tc *TestCase) Fail(msg string) {
	tc.Failure = msg
}

// Failed reports whether a failure was recorded.
func (tc *TestCase) Failed() bool {
	return tc.Failure != ""
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// Build converts cases into a single-suite report.
func Build(suiteName string, timestamp time.Time, cases ...*TestCase) junit.Testsuites {
	suite := junit.Testsuite{Name: suiteName}
	suite.SetTimestamp(timestamp)

	var total time.Duration
	for _, tc := range cases {
		c := junit.Testcase{
			Name:      tc.Name,
			Classname: tc.ClassName,
			Time:      seconds(tc.Time),
		}
		if tc.Failed() {
			c.Failure = &junit.Result{Message: "Failed", Data: tc.Failure}
		}
		suite.AddTestcase(c)
		total += tc.Time
	}
	suite.Time = seconds(total)

	var report junit.Testsuites
	report.AddSuite(suite)
	return report
}

// WriteReport writes the cases as a JUnit XML file at path, creating its
// directory if needed.
func WriteReport(path, suiteName string, cases ...*TestCase) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer f.Close()

	report := Build(suiteName, time.Now(), cases...)
	if err := report.WriteXML(f); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return f.Close()
}
