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

// Package checkpoint persists provisioning progress on the host.
//
// Two kinds of records are kept per provisioner, both JSON files under a
// single data directory whose layout is a stable external contract:
//
//	<dir>/<provisioner>.steps.json  - steps completed so far in this run
//	<dir>/<provisioner>.done        - marker written after a fully
//	                                  successful run, gating dependents
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"k8s.io/nodeprep/pkg/nodeprep/exit"
	"k8s.io/nodeprep/pkg/util/lock"
)

// DefaultDir is where provisioning state lives unless overridden.
const DefaultDir = "/var/lib/nodeprep"

// Record tracks which steps of a provisioner have completed.
type Record struct {
	Provisioner string               `json:"provisioner"`
	Steps       map[string]time.Time `json:"steps"`
}

// Marker is the persisted fact that a provisioner completed successfully
// on this host. It is only ever created or, on explicit re-provisioning,
// deleted - never mutated.
type Marker struct {
	Provisioner string    `json:"provisioner"`
	CompletedAt time.Time `json:"completedAt"`
	Version     string    `json:"version,omitempty"`
}

// WriteError means provisioning state could not be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ExitCode implements exit.Coder.
func (e *WriteError) ExitCode() int { return exit.FilesystemWrite }

// Store reads and writes provisioning state under a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &WriteError{Path: dir, Err: err}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store is rooted at.
func (s *Store) Dir() string { return s.dir }

// MarkerPath returns the marker path for a provisioner. The path is part
// of the external contract relied upon by operator workflows.
func (s *Store) MarkerPath(provisioner string) string {
	return filepath.Join(s.dir, provisioner+".done")
}

func (s *Store) recordPath(provisioner string) string {
	return filepath.Join(s.dir, provisioner+".steps.json")
}

// Complete persists that a step of a provisioner finished successfully.
func (s *Store) Complete(provisioner, step string) error {
	r, err := s.record(provisioner)
	if err != nil {
		return err
	}
	r.Steps[step] = time.Now().UTC()
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal checkpoint record")
	}
	if err := lock.WriteFile(s.recordPath(provisioner), b, 0644); err != nil {
		return &WriteError{Path: s.recordPath(provisioner), Err: err}
	}
	return nil
}

// IsComplete reports whether a step of a provisioner has been checkpointed.
func (s *Store) IsComplete(provisioner, step string) bool {
	r, err := s.record(provisioner)
	if err != nil {
		klog.Warningf("unreadable checkpoint record for %s: %v", provisioner, err)
		return false
	}
	_, ok := r.Steps[step]
	return ok
}

func (s *Store) record(provisioner string) (*Record, error) {
	r := &Record{Provisioner: provisioner, Steps: map[string]time.Time{}}
	b, err := os.ReadFile(s.recordPath(provisioner))
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.recordPath(provisioner))
	}
	if err := json.Unmarshal(b, r); err != nil {
		return nil, errors.Wrapf(err, "parse %s", s.recordPath(provisioner))
	}
	if r.Steps == nil {
		r.Steps = map[string]time.Time{}
	}
	return r, nil
}

// WriteMarker persists the completion marker for a provisioner.
func (s *Store) WriteMarker(m Marker) error {
	if m.CompletedAt.IsZero() {
		m.CompletedAt = time.Now().UTC()
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal marker")
	}
	if err := lock.WriteFile(s.MarkerPath(m.Provisioner), b, 0644); err != nil {
		return &WriteError{Path: s.MarkerPath(m.Provisioner), Err: err}
	}
	klog.Infof("marker written: %s", s.MarkerPath(m.Provisioner))
	return nil
}

// Marker returns the completion marker for a provisioner, or nil if the
// provisioner has not completed on this host.
func (s *Store) Marker(provisioner string) (*Marker, error) {
	b, err := os.ReadFile(s.MarkerPath(provisioner))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.MarkerPath(provisioner))
	}
	m := &Marker{}
	if err := json.Unmarshal(b, m); err != nil {
		// Markers written by hand or by very old versions may be empty
		// files; mere existence still gates dependents.
		klog.Warningf("marker %s is not JSON, treating as bare flag: %v", s.MarkerPath(provisioner), err)
		return &Marker{Provisioner: provisioner}, nil
	}
	return m, nil
}

// Clear removes the marker and checkpoint record for a provisioner,
// forcing a full re-run.
func (s *Store) Clear(provisioner string) error {
	for _, p := range []string{s.MarkerPath(provisioner), s.recordPath(provisioner)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return &WriteError{Path: p, Err: err}
		}
	}
	return nil
}
