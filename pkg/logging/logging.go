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

// Package logging is the single place the tool writes diagnostics through.
// It keeps the printf-style call sites used everywhere else and delegates to logrus.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	logger = newLogger(os.Stderr)

	// exitFunc is replaced in tests so Fatal can be observed.
	exitFunc = os.Exit
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(textFormatter(out))
	l.SetLevel(logrus.InfoLevel)
	return l
}

func textFormatter(out io.Writer) *logrus.TextFormatter {
	colors := false
	if f, ok := out.(*os.File); ok {
		colors = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   !colors,
	}
}

// Configure sets the level ("debug", "info", "warn", "error") and the
// format ("text" or "json") of the package logger.
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(textFormatter(logger.Out))
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q, expected \"text\" or \"json\"", format)
	}
	return nil
}

// SetOutput redirects all log output.
func SetOutput(out io.Writer) {
	logger.SetOutput(out)
}

// WithFields returns an entry carrying structured fields, for callers that
// want key/value context instead of a formatted message.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return logger.WithFields(logrus.Fields(fields))
}

func Debug(f string, a ...any) {
	logger.Debugf(f, a...)
}

func Info(f string, a ...any) {
	logger.Infof(f, a...)
}

func Warn(f string, a ...any) {
	logger.Warnf(f, a...)
}

func Error(f string, a ...any) {
	logger.Errorf(f, a...)
}

// Fatal logs at error level and terminates the process with exit code 1.
func Fatal(f string, a ...any) {
	logger.Errorf(f, a...)
	exitFunc(1)
}
