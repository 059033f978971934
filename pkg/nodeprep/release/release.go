/*
Copyright 2024 The Kubernetes Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package release resolves Kubernetes tool versions and composes the
// package repository locations for a resolved version line.
//
// Upstream endpoints are external collaborators whose availability is
// outside this system's control: every call is bounded by a timeout and
// a small number of retries with backoff, and persistent failure is
// fatal to the run rather than silently ignored.
package release

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blang/semver/v4"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"k8s.io/nodeprep/pkg/nodeprep/exit"
	"k8s.io/nodeprep/pkg/util/retry"
)

const (
	// StableVersionURL publishes the latest stable Kubernetes release tag
	StableVersionURL = "https://dl.k8s.io/release/stable.txt"

	// KeyringPath is where the repository signing key is installed
	KeyringPath = "/etc/apt/keyrings/kubernetes-apt-keyring.gpg"

	// SourcesListPath is where the repository definition is installed
	SourcesListPath = "/etc/apt/sources.list.d/kubernetes.list"

	fetchTimeout = 30 * time.Second
	maxFetches   = 3
)

var httpClient = &http.Client{Timeout: fetchTimeout}

// PkgsBaseURL is the community-owned package repository host. A variable
// so tests can point it at a local server.
var PkgsBaseURL = "https://pkgs.k8s.io"

// VersionResolutionError means the target tool version lookup could not
// be completed.
type VersionResolutionError struct {
	Err error
}

func (e *VersionResolutionError) Error() string {
	return fmt.Sprintf("resolving Kubernetes version: %v", e.Err)
}

func (e *VersionResolutionError) Unwrap() error { return e.Err }

// ExitCode implements exit.Coder.
func (e *VersionResolutionError) ExitCode() int { return exit.VersionResolution }

// Resolve returns the target tool version: the pinned version if given,
// otherwise the latest published stable release. Pinned versions may
// carry the apt pin qualifier ("1.28.2-1.1"), which is stripped to the
// numeric portion.
func Resolve(pinned string, stableURL string) (semver.Version, error) {
	if pinned != "" {
		v, err := parseVersion(pinned)
		if err != nil {
			return semver.Version{}, &VersionResolutionError{Err: err}
		}
		klog.Infof("using pinned version %s", v)
		return v, nil
	}
	if stableURL == "" {
		stableURL = StableVersionURL
	}
	b, err := fetch(stableURL)
	if err != nil {
		return semver.Version{}, &VersionResolutionError{Err: err}
	}
	v, err := parseVersion(strings.TrimSpace(string(b)))
	if err != nil {
		return semver.Version{}, &VersionResolutionError{Err: errors.Wrapf(err, "malformed response from %s", stableURL)}
	}
	klog.Infof("latest stable version is %s", v)
	return v, nil
}

// parseVersion parses a release tag, tolerating a leading "v" and a
// trailing apt pin qualifier after "-".
func parseVersion(s string) (semver.Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	return semver.Parse(s)
}

// fetch GETs a URL with bounded retries.
func fetch(url string) ([]byte, error) {
	var body []byte
	get := func() error {
		resp, err := httpClient.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// the server answered; retrying will not change its mind
			return backoff.Permanent(fmt.Errorf("GET %s: status %d", url, resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	if err := retry.Expo(get, 1*time.Second, fetchTimeout, maxFetches); err != nil {
		return nil, err
	}
	return body, nil
}

// minorLine formats the repository version line, e.g. "v1.28".
func minorLine(v semver.Version) string {
	return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
}

// AptRepo returns the repository definition line for a version line.
func AptRepo(v semver.Version) string {
	return fmt.Sprintf("deb [signed-by=%s] %s/core:/stable:/%s/deb/ /\n", KeyringPath, PkgsBaseURL, minorLine(v))
}

// SigningKey fetches the repository signing key for a version line into
// memory, so a fetch failure leaves no partial repository configuration
// on the host.
func SigningKey(v semver.Version) ([]byte, error) {
	url := fmt.Sprintf("%s/core:/stable:/%s/deb/Release.key", PkgsBaseURL, minorLine(v))
	key, err := fetch(url)
	if err != nil {
		return nil, &VersionResolutionError{Err: errors.Wrap(err, "fetching repository signing key")}
	}
	return key, nil
}

// ContainerdTarballURL composes the upstream release binary location for
// a containerd version and platform tag.
func ContainerdTarballURL(version, platformTag string) string {
	v := strings.TrimPrefix(version, "v")
	return fmt.Sprintf("https://github.com/containerd/containerd/releases/download/v%s/containerd-%s-linux-%s.tar.gz", v, v, platformTag)
}

// Download fetches a release artifact to memory with bounded retries.
func Download(url string) ([]byte, error) {
	klog.Infof("downloading %s", url)
	return fetch(url)
}
