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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override config values.
const EnvPrefix = "TFJOB_E2E"

// Config holds every setting of the tool. Keys mirror the CLI flag names.
type Config struct {
	KubeContext  string `mapstructure:"kube-context"`
	MasterHost   string `mapstructure:"master-host"`
	TFJobVersion string `mapstructure:"tfjob-version"`

	App     AppConfig     `mapstructure:",squash"`
	Image   ImageConfig   `mapstructure:",squash"`
	Wait    WaitConfig    `mapstructure:",squash"`
	Report  ReportConfig  `mapstructure:",squash"`
	Logging LoggingConfig `mapstructure:",squash"`

	// ExitCode is the exit code requested from the chief when it is terminated.
	ExitCode int `mapstructure:"exit-code"`
	// InstallOperator is the manifests URL applied when the TFJob CRD is missing.
	InstallOperator string `mapstructure:"install-operator"`
	OutputManifest  string `mapstructure:"output-manifest"`
}

// AppConfig locates the templated application to deploy.
type AppConfig struct {
	AppDir    string `mapstructure:"app-dir"`
	Component string `mapstructure:"component"`
	Params    string `mapstructure:"params"`
}

// ImageConfig selects or builds the test-server image.
type ImageConfig struct {
	Image           string `mapstructure:"image"`
	BaseImage       string `mapstructure:"base-image"`
	BuildContext    string `mapstructure:"build-context"`
	Platform        string `mapstructure:"platform"`
	ImageRepository string `mapstructure:"image-repository"`
}

// WaitConfig bounds the polling loops of the job client.
type WaitConfig struct {
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	DeleteTimeout time.Duration `mapstructure:"delete-timeout"`
}

// ReportConfig controls where results are published.
type ReportConfig struct {
	JUnitPath      string `mapstructure:"junit-path"`
	TestName       string `mapstructure:"test-name"`
	PushgatewayURL string `mapstructure:"pushgateway-url"`
}

// LoggingConfig contains logging-related configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"log-level"`
	Format string `mapstructure:"log-format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	// Keys without a meaningful default are still registered so that
	// environment-only settings reach Unmarshal.
	for _, key := range []string{
		"kube-context", "master-host", "app-dir", "params", "image", "base-image",
		"build-context", "image-repository", "junit-path", "pushgateway-url",
		"install-operator", "output-manifest",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("tfjob-version", "v1")
	v.SetDefault("component", "simple-tfjob")
	v.SetDefault("platform", "linux/amd64")
	v.SetDefault("poll-interval", 10*time.Second)
	v.SetDefault("timeout", 10*time.Minute)
	v.SetDefault("delete-timeout", 5*time.Minute)
	v.SetDefault("test-name", "estimator-runconfig")
	v.SetDefault("exit-code", 0)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
}

// Load builds a Config from defaults, the config file, TFJOB_E2E_* environment
// variables and the flags in fs, in increasing order of precedence.
// If configPath is empty, tfjob-e2e.yaml is looked up in ./config and ".";
// a missing file is not an error.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tfjob-e2e")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("error binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ValidateRun checks the settings required to run the end-to-end procedure.
func (c *Config) ValidateRun() error {
	if c.App.AppDir == "" {
		return fmt.Errorf("an application directory is required (--app-dir)")
	}
	if c.App.Component == "" {
		return fmt.Errorf("a component is required (--component)")
	}
	if c.Image.Image != "" && c.Image.BaseImage != "" {
		return fmt.Errorf("cannot provide both --image and --base-image")
	}
	if c.Image.BaseImage != "" && (c.Image.BuildContext == "" || c.Image.ImageRepository == "") {
		return fmt.Errorf("--build-context and --image-repository must be provided when --base-image is used")
	}
	if c.Image.BaseImage == "" && c.Image.BuildContext != "" {
		return fmt.Errorf("--build-context cannot be provided without --base-image")
	}
	if c.Wait.PollInterval <= 0 || c.Wait.Timeout <= 0 || c.Wait.DeleteTimeout <= 0 {
		return fmt.Errorf("poll interval and timeouts must be positive")
	}
	return nil
}
