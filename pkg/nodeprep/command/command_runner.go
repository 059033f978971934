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

// Package command abstracts the host mutations a provisioner performs:
// running privileged commands and reading or writing well-known files.
// Everything that touches the host goes through a Runner so provisioning
// logic can be exercised against a fake in tests.
package command

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RunResult holds the results of a Runner
type RunResult struct {
	Stdout   bytes.Buffer
	Stderr   bytes.Buffer
	ExitCode int
	Args     []string // the args that were passed to Runner
}

// Runner represents an interface to run commands and touch files on a host.
type Runner interface {
	// RunCmd runs a cmd of exec.Cmd type, allowing the caller to set
	// cmd.Stdin, cmd.Stdout and cmd.Env.
	RunCmd(cmd *exec.Cmd) (*RunResult, error)

	// WriteFile writes data to a file on the host.
	WriteFile(path string, data []byte, perm os.FileMode) error

	// ReadFile reads the contents of a file on the host.
	ReadFile(path string) (string, error)

	// Remove removes a file from the host, a no-op if it does not exist.
	Remove(path string) error
}

// Command returns a human readable command string that does not induce eye fatigue
func (rr RunResult) Command() string {
	var sb strings.Builder
	sb.WriteString(rr.Args[0])
	for _, a := range rr.Args[1:] {
		if strings.Contains(a, " ") {
			sb.WriteString(fmt.Sprintf(` "%s"`, a))
			continue
		}
		sb.WriteString(fmt.Sprintf(" %s", a))
	}
	return sb.String()
}

// Output returns human-readable output for an execution result
func (rr RunResult) Output() string {
	var sb strings.Builder
	if rr.Stdout.Len() > 0 {
		sb.WriteString(fmt.Sprintf("-- stdout --\n%s\n-- /stdout --", rr.Stdout.Bytes()))
	}
	if rr.Stderr.Len() > 0 {
		sb.WriteString(fmt.Sprintf("\n** stderr ** \n%s\n** /stderr **", rr.Stderr.Bytes()))
	}
	return sb.String()
}
