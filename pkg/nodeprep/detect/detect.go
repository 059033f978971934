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

// Package detect gathers a read-only snapshot of host state used to
// branch behavior and compose package names. Facts are recomputed every
// run and never persisted.
package detect

import (
	"fmt"
	"runtime"
	"strings"

	"k8s.io/nodeprep/pkg/nodeprep/command"
)

// OSReleasePath is the freedesktop os-release file location.
const OSReleasePath = "/etc/os-release"

// SystemFacts is a read-only snapshot of host identity, gathered once per run.
type SystemFacts struct {
	// OSID is the os-release ID field, e.g. "ubuntu"
	OSID string
	// OSVersion is the os-release VERSION_ID field, e.g. "22.04"
	OSVersion string
	// Arch is the raw Go architecture string
	Arch string
	// PlatformTag is the package-platform tag for Arch, e.g. "amd64"
	PlatformTag string
}

// platformTags maps Go architectures to the package-platform tags the
// upstream repositories publish for.
var platformTags = map[string]string{
	"amd64": "amd64",
	"arm64": "arm64",
}

// RuntimeArch returns the runtime architecture
func RuntimeArch() string {
	return runtime.GOARCH
}

// PlatformTag maps a Go architecture to its package-platform tag.
func PlatformTag(goarch string) (string, error) {
	tag, ok := platformTags[goarch]
	if !ok {
		return "", fmt.Errorf("no platform tag for architecture %q", goarch)
	}
	return tag, nil
}

// Facts gathers host facts through the given runner. The architecture is
// taken from goarch so callers can pin it for tests.
func Facts(cr command.Runner, goarch string) (*SystemFacts, error) {
	contents, err := cr.ReadFile(OSReleasePath)
	if err != nil {
		return nil, err
	}
	id, ver := ParseOSRelease(contents)

	f := &SystemFacts{OSID: id, OSVersion: ver, Arch: goarch}
	if tag, err := PlatformTag(goarch); err == nil {
		f.PlatformTag = tag
	}
	return f, nil
}

// ParseOSRelease extracts the ID and VERSION_ID fields from os-release
// file contents. Values may be quoted per the os-release(5) format.
func ParseOSRelease(contents string) (id string, version string) {
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		v = strings.Trim(v, `"'`)
		switch k {
		case "ID":
			id = v
		case "VERSION_ID":
			version = v
		}
	}
	return id, version
}
