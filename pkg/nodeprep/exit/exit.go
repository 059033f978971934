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

// Package exit contains functions useful for exiting gracefully.
//
// Every failure class maps to a distinct exit code so that calling
// automation can branch on cause without parsing text. The codes are an
// external contract and must stay stable across releases.
package exit

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

// Exit codes based on sysexits(3), plus a project-specific block for
// provisioning failure classes.
const (
	// Failure represents a general failure code
	Failure = 1
	// BadUsage represents an incorrect command line
	BadUsage = 64
	// NotPrivileged represents a missing-root-privilege error
	NotPrivileged = 77
	// UnsupportedOS means the host OS is not the supported distribution
	UnsupportedOS = 80
	// UnsupportedArchitecture means the CPU architecture has no platform tag
	UnsupportedArchitecture = 81
	// MissingDependency means a prerequisite provisioner has not completed
	MissingDependency = 82
	// VersionResolution means the target tool version could not be resolved
	VersionResolution = 83
	// PackageInstall means one or more packages could not be installed
	PackageInstall = 84
	// ConfigVerification means a written configuration could not be confirmed
	ConfigVerification = 85
	// ServiceNotActive means a restarted service did not report active
	ServiceNotActive = 86
	// FilesystemWrite means a marker or checkpoint could not be persisted
	FilesystemWrite = 87
	// RunInProgress means another provisioning run holds the host lock
	RunInProgress = 88
)

// Coder is implemented by errors that carry their own process exit code.
type Coder interface {
	ExitCode() int
}

// Code walks the error chain and returns the exit code of the deepest
// Coder, or Failure if none is found.
func Code(err error) int {
	code := Failure
	for err != nil {
		if c, ok := err.(Coder); ok {
			code = c.ExitCode()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return code
}

// WithError outputs an error and exits with its mapped code.
func WithError(msg string, err error) {
	code := Code(err)
	klog.Infof("WithError(%s)=%v (code %d)", msg, err, code)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	klog.Flush()
	os.Exit(code)
}

// Message outputs a formatted message and exits with the given code.
func Message(code int, format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	klog.Flush()
	os.Exit(code)
}
