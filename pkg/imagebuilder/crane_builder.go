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

// Package imagebuilder builds and resolves the container image the TFJob
// replicas run.
package imagebuilder

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/compression"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/sirupsen/logrus"

	"tfjob-e2e/pkg/shell"
)

// DockerPlatform represents the target platform for a Docker image.
type DockerPlatform string

const (
	LinuxAMD64 DockerPlatform = "linux/amd64"
	LinuxARM64 DockerPlatform = "linux/arm64"

	// ImageName is the repository name of built test-server images.
	ImageName = "tfjob-e2e-test-server"
)

// DefaultIgnorePatterns are never copied into a build context layer.
var DefaultIgnorePatterns = []string{
	".git",
	"vendor",
	"node_modules",
	"*.log",
	"tmp/",
	".DS_Store",
	"__pycache__",
	"environments/",
}

// BuildContainerImageFromBaseImage appends a layer made from buildContext,
// filtered by ignoreMatcher, onto baseDockerImage and pushes the result to
// repository. It returns the pushed image reference pinned to its digest.
func BuildContainerImageFromBaseImage(
	repository string,
	baseDockerImage string,
	buildContext string,
	platformStr string,
	ignoreMatcher *patternmatcher.PatternMatcher,
) (string, error) {
	platform, err := parsePlatform(platformStr)
	if err != nil {
		return "", err
	}

	tag := fmt.Sprintf("%s-%s", shell.RandomString(4), time.Now().Format("2006-01-02-15-04-05"))
	imageName := fmt.Sprintf("%s/%s:%s", strings.TrimSuffix(repository, "/"), ImageName, tag)

	logrus.Infof("Starting image build process for %s", imageName)
	logrus.Infof("Base Docker Image: %s", baseDockerImage)
	logrus.Infof("Build Context: %s", buildContext)
	logrus.Infof("Target Platform: %s/%s", platform.OS, platform.Architecture)

	tempTarballPath, err := createFilteredTar(buildContext, ignoreMatcher)
	if err != nil {
		return "", fmt.Errorf("failed to create filtered tarball: %w", err)
	}
	defer func() {
		os.Remove(tempTarballPath)
		logrus.Debugf("Cleaned up temporary tarball file: %s", tempTarballPath)
	}()

	tarLayer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		file, openErr := os.Open(tempTarballPath)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open temporary tarball %q: %w", tempTarballPath, openErr)
		}
		return file, nil
	}, tarball.WithCompression(compression.GZip))
	if err != nil {
		return "", fmt.Errorf("failed to create layer from tarball: %w", err)
	}

	baseRef, err := name.ParseReference(baseDockerImage)
	if err != nil {
		return "", fmt.Errorf("failed to parse base image reference %q: %w", baseDockerImage, err)
	}

	baseImg, err := crane.Pull(baseRef.String(), crane.WithPlatform(&platform))
	if err != nil {
		return "", fmt.Errorf("failed to pull base image %q: %w", baseDockerImage, err)
	}

	newImg, err := mutate.AppendLayers(baseImg, tarLayer)
	if err != nil {
		return "", fmt.Errorf("failed to append layer: %w", err)
	}

	imageRef, err := name.ParseReference(imageName)
	if err != nil {
		return "", fmt.Errorf("failed to parse new image reference %q: %w", imageName, err)
	}

	logrus.Infof("Uploading Container Image to %s", imageName)
	if err := crane.Push(newImg, imageRef.String(), crane.WithPlatform(&platform)); err != nil {
		return "", fmt.Errorf("failed to push image %q: %w", imageName, err)
	}

	digest, err := newImg.Digest()
	if err != nil {
		return "", fmt.Errorf("failed to compute digest of %q: %w", imageName, err)
	}
	pinned := imageRef.Context().Digest(digest.String()).String()
	logrus.Infof("Image %s built and uploaded successfully.", pinned)
	return pinned, nil
}

// ResolveImage checks that image exists in its registry and returns it pinned
// to the digest served for platformStr.
func ResolveImage(image, platformStr string) (string, error) {
	platform, err := parsePlatform(platformStr)
	if err != nil {
		return "", err
	}
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("failed to parse image reference %q: %w", image, err)
	}
	digest, err := crane.Digest(ref.String(), crane.WithPlatform(&platform))
	if err != nil {
		return "", fmt.Errorf("failed to resolve image %q: %w", image, err)
	}
	pinned := ref.Context().Digest(digest).String()
	logrus.Infof("Resolved image %s to %s", image, pinned)
	return pinned, nil
}

// parsePlatform converts a platform string (e.g., "linux/amd64") into a v1.Platform struct.
func parsePlatform(platformStr string) (v1.Platform, error) {
	parts := strings.Split(platformStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return v1.Platform{}, fmt.Errorf("invalid platform format: %q, expected \"os/arch\"", platformStr)
	}
	return v1.Platform{
		OS:           parts[0],
		Architecture: parts[1],
	}, nil
}

// ReadDockerignorePatterns builds a matcher from defaultPatterns followed by
// the patterns of dir/.dockerignore, if present.
func ReadDockerignorePatterns(dir string, defaultPatterns []string) (*patternmatcher.PatternMatcher, error) {
	dockerignorePath := filepath.Join(dir, ".dockerignore")

	patterns := make([]string, len(defaultPatterns))
	copy(patterns, defaultPatterns)

	if _, err := os.Stat(dockerignorePath); err == nil {
		file, err := os.Open(dockerignorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open .dockerignore file %q: %w", dockerignorePath, err)
		}
		defer file.Close()

		filePatterns, err := ignorefile.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read .dockerignore file %q: %w", dockerignorePath, err)
		}
		patterns = append(patterns, filePatterns...)
		logrus.Infof("Found %d patterns in .dockerignore at %q", len(filePatterns), dockerignorePath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat .dockerignore file %q: %w", dockerignorePath, err)
	}

	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern matcher: %w", err)
	}
	return matcher, nil
}

// ignored reports whether relPath is excluded. Directories are matched with
// a trailing slash so that "dir/" patterns apply to them.
func ignored(ignoreMatcher *patternmatcher.PatternMatcher, relPath string, isDir bool) (bool, error) {
	relPathSlash := filepath.ToSlash(relPath)
	if isDir && !strings.HasSuffix(relPathSlash, "/") {
		relPathSlash += "/"
	}
	return ignoreMatcher.MatchesOrParentMatches(relPathSlash)
}

func processTarEntry(tarWriter *tar.Writer, sourceDir string, ignoreMatcher *patternmatcher.PatternMatcher, path string, info fs.FileInfo, errFromWalk error) error {
	if errFromWalk != nil {
		return errFromWalk
	}

	relPath, err := filepath.Rel(sourceDir, path)
	if err != nil {
		return fmt.Errorf("failed to get relative path for %q: %w", path, err)
	}
	if relPath == "." {
		return nil
	}

	skip, err := ignored(ignoreMatcher, relPath, info.IsDir())
	if err != nil {
		return fmt.Errorf("failed to check ignore patterns for %q: %w", path, err)
	}
	if skip {
		if info.IsDir() {
			logrus.Debugf("Ignoring directory %q", relPath)
			return filepath.SkipDir
		}
		logrus.Debugf("Ignoring file %q", relPath)
		return nil
	}

	header, err := tar.FileInfoHeader(info, relPath)
	if err != nil {
		return fmt.Errorf("failed to create tar header for %q: %w", path, err)
	}
	header.Name = filepath.ToSlash(relPath)

	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %q: %w", path, err)
	}

	if info.Mode().IsRegular() {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open file %q: %w", path, err)
		}
		defer file.Close()

		if _, err := io.Copy(tarWriter, file); err != nil {
			return fmt.Errorf("failed to write file content for %q: %w", path, err)
		}
	}
	return nil
}

// createFilteredTar writes a gzipped tarball of sourceDir to a temporary file
// and returns its path.
func createFilteredTar(sourceDir string, ignoreMatcher *patternmatcher.PatternMatcher) (string, error) {
	tmpFile, err := os.CreateTemp("", "tfjob-e2e-build-context-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file for tarball: %w", err)
	}
	defer tmpFile.Close()

	gzipWriter := gzip.NewWriter(tmpFile)
	tarWriter := tar.NewWriter(gzipWriter)

	logrus.Infof("Creating filtered tar from %s to temporary file %s", sourceDir, tmpFile.Name())

	walkErr := filepath.Walk(sourceDir, func(path string, info fs.FileInfo, err error) error {
		return processTarEntry(tarWriter, sourceDir, ignoreMatcher, path, info, err)
	})
	if walkErr == nil {
		if err := tarWriter.Close(); err != nil {
			walkErr = fmt.Errorf("failed to close tar writer: %w", err)
		} else if err := gzipWriter.Close(); err != nil {
			walkErr = fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	if walkErr != nil {
		os.Remove(tmpFile.Name())
		return "", walkErr
	}
	return tmpFile.Name(), nil
}
