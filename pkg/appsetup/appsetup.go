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

// Package appsetup resolves an application directory and a component into the
// namespace, name and environment of the job to create.
package appsetup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-getter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"tfjob-e2e/pkg/logging"
)

const (
	// AppFile holds the component defaults of an application.
	AppFile = "app.yaml"
	// ParamsFile is written under environments/<env>/.
	ParamsFile = "params.yaml"

	componentsDir   = "components"
	environmentsDir = "environments"
	envPrefix       = "test-env-"
)

// AppSpec is the content of app.yaml.
type AppSpec struct {
	Name       string                   `yaml:"name,omitempty"`
	Components map[string]ComponentSpec `yaml:"components"`
}

// ComponentSpec declares default parameters for a component. A builtin
// component may omit its template and falls back to the default TFJob.
type ComponentSpec struct {
	Builtin bool              `yaml:"builtin,omitempty"`
	Params  map[string]string `yaml:"params,omitempty"`
}

// Options selects the component and parameters to deploy.
type Options struct {
	AppDir    string
	Component string
	// Params is a comma-separated list of key=value pairs.
	Params string
}

// App is a resolved application environment.
type App struct {
	Dir       string
	Namespace string
	Name      string
	Env       string
	Component string
	Params    map[string]string
	// Template is empty for builtin components without a template file.
	Template     string
	TemplatePath string
}

// newSalt returns the random part of an environment name.
var newSalt = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[0:4]
}

// Setup creates a fresh environment for opts.Component inside opts.AppDir and
// returns where the job will be created.
func Setup(fs afero.Fs, opts Options) (*App, error) {
	if opts.Component == "" {
		return nil, errors.New("component must be set")
	}

	spec, err := ReadAppSpec(fs, opts.AppDir)
	if err != nil {
		return nil, err
	}
	component, declared := spec.Components[opts.Component]

	userParams, err := ParseParams(opts.Params)
	if err != nil {
		return nil, err
	}

	env := envPrefix + newSalt()
	params := map[string]string{"env": env}
	for k, v := range component.Params {
		params[k] = v
	}
	for k, v := range userParams {
		params[k] = v
	}
	for _, required := range []string{"name", "namespace"} {
		if params[required] == "" {
			return nil, fmt.Errorf("%s must be provided as a parameter", required)
		}
	}

	templatePath, err := FindTemplate(fs, opts.AppDir, opts.Component)
	if err != nil {
		return nil, err
	}
	app := &App{
		Dir:          opts.AppDir,
		Namespace:    params["namespace"],
		Name:         params["name"],
		Env:          env,
		Component:    opts.Component,
		Params:       params,
		TemplatePath: templatePath,
	}
	switch {
	case templatePath != "":
		content, err := afero.ReadFile(fs, filepath.Join(opts.AppDir, templatePath))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read template of component %s", opts.Component)
		}
		app.Template = string(content)
	case declared && component.Builtin:
		logging.Debug("Component %s has no template; using the builtin TFJob", opts.Component)
	default:
		err := fmt.Errorf("component %s not found in %s", opts.Component, opts.AppDir)
		if hint := closestComponent(spec, opts.Component); hint != "" {
			err = fmt.Errorf("%w; did you mean %q?", err, hint)
		}
		return nil, err
	}

	if err := writeParams(fs, opts.AppDir, env, opts.Component, params); err != nil {
		return nil, err
	}
	logging.Info("Created environment %s for %s/%s (component %s)", env, app.Namespace, app.Name, app.Component)
	return app, nil
}

// ReadAppSpec reads app.yaml from dir.
func ReadAppSpec(fs afero.Fs, dir string) (*AppSpec, error) {
	p := filepath.Join(dir, AppFile)
	content, err := afero.ReadFile(fs, p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", p)
	}
	spec := &AppSpec{}
	if err := yaml.Unmarshal(content, spec); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", p)
	}
	return spec, nil
}

// FindTemplate returns the path, relative to dir, of the template file for
// component, or "" when there is none.
func FindTemplate(fs afero.Fs, dir, component string) (string, error) {
	fsys := afero.NewIOFS(afero.NewBasePathFs(fs, dir))
	pattern := path.Join(componentsDir, "**", component+".{yaml,yml,tmpl}")
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return "", errors.Wrapf(err, "failed to search templates in %s", dir)
	}
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return filepath.FromSlash(matches[0]), nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("component %s has more than one template: %s", component, strings.Join(matches, ", "))
	}
}

// maxSuggestionDistance is the largest edit distance a component name may be
// from the requested one and still be offered as a suggestion.
const maxSuggestionDistance = 3

// closestComponent returns the declared component nearest to name, or "" if
// none is close enough. Ties go to the alphabetically first name.
func closestComponent(spec *AppSpec, name string) string {
	names := make([]string, 0, len(spec.Components))
	for n := range spec.Components {
		names = append(names, n)
	}
	sort.Strings(names)

	best, bestDist := "", maxSuggestionDistance+1
	for _, n := range names {
		if d := levenshtein.Distance(name, n, nil); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// ParseParams parses "k1=v1,k2=v2". Whitespace around pairs is ignored.
func ParseParams(s string) (map[string]string, error) {
	params := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return params, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[k] = strings.TrimSpace(v)
	}
	return params, nil
}

func writeParams(fs afero.Fs, dir, env, component string, params map[string]string) error {
	envDir := filepath.Join(dir, environmentsDir, env)
	if err := fs.MkdirAll(envDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create environment %s", env)
	}
	content, err := yaml.Marshal(map[string]interface{}{
		"components": map[string]map[string]string{component: params},
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal environment params")
	}
	p := filepath.Join(envDir, ParamsFile)
	if err := afero.WriteFile(fs, p, content, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", p)
	}
	return nil
}

// IsRemote reports whether src needs to be fetched before use.
func IsRemote(src string) bool {
	if src == "" {
		return false
	}
	if _, err := os.Stat(src); err == nil {
		return false
	}
	detected, err := getter.Detect(src, "", getter.Detectors)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(detected, "file://")
}

// Fetch downloads a go-getter source (git::, https://, s3::, ...) into dst and
// returns dst.
func Fetch(ctx context.Context, src, dst string) (string, error) {
	pwd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}
	logging.Info("Fetching application %s into %s", src, dst)
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeDir,
	}
	if err := client.Get(); err != nil {
		return "", errors.Wrapf(err, "failed to fetch application %s", src)
	}
	return dst, nil
}

// Resolve returns a local directory for appDir, fetching it into a new
// temporary directory when it is remote. The returned cleanup removes
// anything that was fetched.
func Resolve(ctx context.Context, appDir string) (string, func(), error) {
	if !IsRemote(appDir) {
		return appDir, func() {}, nil
	}
	tmp, err := os.MkdirTemp("", "tfjob-e2e-app-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to create temporary directory")
	}
	cleanup := func() { os.RemoveAll(tmp) }
	dir, err := Fetch(ctx, appDir, filepath.Join(tmp, "app"))
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return dir, cleanup, nil
}
