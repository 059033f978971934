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

// Package preflight validates host preconditions before any mutation.
//
// Checks run in a fixed order and short-circuit on the first failure.
// Each failure is a distinct typed error carrying its own exit code, so
// calling automation can branch on cause.
package preflight

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"k8s.io/nodeprep/pkg/nodeprep/checkpoint"
	"k8s.io/nodeprep/pkg/nodeprep/command"
	"k8s.io/nodeprep/pkg/nodeprep/detect"
	"k8s.io/nodeprep/pkg/nodeprep/exit"
)

// overridable for tests
var (
	euid   = os.Geteuid
	goarch = detect.RuntimeArch
)

// NotPrivilegedError means the caller lacks root privilege.
type NotPrivilegedError struct{}

func (e *NotPrivilegedError) Error() string {
	return "this command mutates host-wide state and must be run as root"
}

// ExitCode implements exit.Coder.
func (e *NotPrivilegedError) ExitCode() int { return exit.NotPrivileged }

// MissingDependencyError means a prerequisite provisioner has not
// completed on this host.
type MissingDependencyError struct {
	// Dependency is the provisioner whose marker is missing
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("the %s provisioner has not completed on this host: run `nodeprep %s` first", e.Dependency, e.Dependency)
}

// ExitCode implements exit.Coder.
func (e *MissingDependencyError) ExitCode() int { return exit.MissingDependency }

// UnsupportedOSError means the host is not the supported distribution.
type UnsupportedOSError struct {
	// Detected is the os-release ID found on the host
	Detected string
	// Supported is the single supported distribution
	Supported string
}

func (e *UnsupportedOSError) Error() string {
	return fmt.Sprintf("unsupported OS %q: only %s is supported", e.Detected, e.Supported)
}

// ExitCode implements exit.Coder.
func (e *UnsupportedOSError) ExitCode() int { return exit.UnsupportedOS }

// UnsupportedArchitectureError means the CPU architecture has no
// package-platform tag.
type UnsupportedArchitectureError struct {
	// Detected is the architecture found on the host
	Detected string
}

func (e *UnsupportedArchitectureError) Error() string {
	return fmt.Sprintf("unsupported architecture %q: supported architectures are amd64 and arm64", e.Detected)
}

// ExitCode implements exit.Coder.
func (e *UnsupportedArchitectureError) ExitCode() int { return exit.UnsupportedArchitecture }

// Requirements describes what a provisioner demands of the host before
// it will mutate anything.
type Requirements struct {
	// SupportedOS is the single supported os-release ID
	SupportedOS string
	// DependsOn names a provisioner whose completion marker must exist,
	// empty if there is no dependency
	DependsOn string
}

// Check validates the host against req, in order: privilege, dependency
// marker, OS identity, architecture. It performs no mutation, and on
// success returns the gathered system facts for the rest of the run.
func Check(cr command.Runner, st *checkpoint.Store, req Requirements) (*detect.SystemFacts, error) {
	if euid() != 0 {
		return nil, &NotPrivilegedError{}
	}

	if req.DependsOn != "" {
		m, err := st.Marker(req.DependsOn)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, &MissingDependencyError{Dependency: req.DependsOn}
		}
		klog.Infof("dependency %s completed at %s (version %q)", req.DependsOn, m.CompletedAt, m.Version)
	}

	facts, err := detect.Facts(cr, goarch())
	if err != nil {
		return nil, &UnsupportedOSError{Detected: "unknown", Supported: req.SupportedOS}
	}
	if facts.OSID != req.SupportedOS {
		return nil, &UnsupportedOSError{Detected: facts.OSID, Supported: req.SupportedOS}
	}

	if facts.PlatformTag == "" {
		return nil, &UnsupportedArchitectureError{Detected: facts.Arch}
	}

	klog.Infof("preflight passed: %s %s on %s", facts.OSID, facts.OSVersion, facts.PlatformTag)
	return facts, nil
}
