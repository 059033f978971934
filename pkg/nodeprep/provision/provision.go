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

// Package provision runs an ordered list of named, idempotent steps and
// checkpoints each completion, so that a run interrupted partway can be
// retried cheaply: completed steps are skipped, the first incomplete
// step is re-executed, and no step runs twice with visible side effects.
package provision

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/juju/fslock"
	"k8s.io/klog/v2"

	"k8s.io/nodeprep/pkg/nodeprep/checkpoint"
	"k8s.io/nodeprep/pkg/nodeprep/exit"
)

// Step is a named, ordered unit of work. Actions must be idempotent:
// re-running a completed action may not change observable host state.
type Step struct {
	// Name uniquely identifies the step within its provisioner
	Name string
	// Run performs the step's side effects
	Run func() error
	// Verify, if set, confirms the step took hold after Run succeeds
	Verify func() error
	// AlwaysRun exempts the step from checkpoint skip. Used for
	// read-only steps that compute in-memory state later steps need.
	AlwaysRun bool
}

// StepError identifies the failing step and its underlying cause.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// InProgressError means another run holds this provisioner's host lock.
type InProgressError struct {
	Provisioner string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("a %s provisioning run is already in progress on this host", e.Provisioner)
}

// ExitCode implements exit.Coder.
func (e *InProgressError) ExitCode() int { return exit.RunInProgress }

// Config describes a provisioner to Run.
type Config struct {
	// Name is the provisioner identifier, used for checkpoints, the
	// marker and the run lock
	Name string
	// Steps are executed in order; the first failure aborts the run
	Steps []Step
	// InstalledVersion, if set, is consulted after all steps succeed to
	// record the installed version in the completion marker
	InstalledVersion func() string
}

// Run executes a provisioner's steps against the checkpoint store.
//
// Exactly one run per provisioner may mutate a host at a time; a held
// lock aborts with InProgressError before any step runs. A provisioner
// whose marker already exists exits immediately without running steps.
// On success the completion marker is written and the checkpoint record
// is left in place for audit.
func Run(st *checkpoint.Store, cfg Config) error {
	lock := fslock.New(filepath.Join(st.Dir(), cfg.Name+".lock"))
	if err := lock.TryLock(); err != nil {
		return &InProgressError{Provisioner: cfg.Name}
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			klog.Warningf("unlock %s: %v", cfg.Name, err)
		}
	}()

	m, err := st.Marker(cfg.Name)
	if err != nil {
		return err
	}
	if m != nil {
		klog.Infof("%s already provisioned at %s, nothing to do", cfg.Name, m.CompletedAt)
		fmt.Printf("%s: already provisioned, nothing to do\n", cfg.Name)
		return nil
	}

	n := len(cfg.Steps)
	for i, step := range cfg.Steps {
		if !step.AlwaysRun && st.IsComplete(cfg.Name, step.Name) {
			klog.Infof("%s step %q already complete, skipping", cfg.Name, step.Name)
			continue
		}

		klog.Infof("%s: provisioning (%d of %d): %s", cfg.Name, i+1, n, step.Name)
		fmt.Printf("  [%d/%d] %s\n", i+1, n, step.Name)

		start := time.Now()
		if err := step.Run(); err != nil {
			return &StepError{Step: step.Name, Err: err}
		}
		if step.Verify != nil {
			if err := step.Verify(); err != nil {
				return &StepError{Step: step.Name, Err: err}
			}
		}
		klog.Infof("%s step %q complete (%s)", cfg.Name, step.Name, time.Since(start).Round(time.Millisecond))

		if err := st.Complete(cfg.Name, step.Name); err != nil {
			return &StepError{Step: step.Name, Err: err}
		}
	}

	marker := checkpoint.Marker{Provisioner: cfg.Name}
	if cfg.InstalledVersion != nil {
		marker.Version = cfg.InstalledVersion()
	}
	if err := st.WriteMarker(marker); err != nil {
		return err
	}
	fmt.Printf("%s: provisioning complete\n", cfg.Name)
	return nil
}
