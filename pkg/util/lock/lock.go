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

// Package lock is a package to ensure multiple processes do not write to
// the same file at the same time
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/mutex/v2"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// WriteFile decorates os.WriteFile with a file lock and retry
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	spec := PathMutexSpec(filename)
	klog.Infof("WriteFile acquiring %s: %+v", filename, spec)
	releaser, err := mutex.Acquire(spec)
	if err != nil {
		return errors.Wrapf(err, "failed to acquire lock for %s", filename)
	}

	defer releaser.Release()

	if err = os.WriteFile(filename, data, perm); err != nil {
		return errors.Wrapf(err, "writefile failed for %s", filename)
	}
	return err
}

// PathMutexSpec returns a mutex spec for a path
func PathMutexSpec(path string) mutex.Spec {
	s := mutex.Spec{
		Name:  getMutexNameForPath(path),
		Clock: clock.WallClock,
		// Poll the lock every 1s to see if we can get it
		Delay: 1 * time.Second,
		// panic after a minute instead of locking infinitely
		Timeout: 60 * time.Second,
	}
	return s
}

func getMutexNameForPath(path string) string {
	// mutex name must be a valid alphanumeric string with dashes
	dir, name := filepath.Split(path)
	name = strings.ReplaceAll(name, ".", "-")
	name = strings.ReplaceAll(name, "_", "-")

	p := strings.ReplaceAll(filepath.Base(dir), ".", "-")
	p = strings.ReplaceAll(p, "_", "-")
	mutexName := fmt.Sprintf("%s-%s", p, name)

	// Check if name starts with an int and prepend a string instead
	if _, err := strconv.Atoi(mutexName[:1]); err == nil {
		mutexName = "m" + mutexName
	}
	// There's an arbitrary hard max on mutex name at 40.
	if len(mutexName) > 40 {
		mutexName = mutexName[:40]
	}

	// Make sure name doesn't start or end with punctuation
	mutexName = strings.TrimPrefix(mutexName, "-")
	mutexName = strings.TrimSuffix(mutexName, "-")
	return mutexName
}
