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

package command

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/syncmap"

	"k8s.io/klog/v2"
)

// FakeCommandRunner mocks command output without running the Commands
//
// It implements the Runner interface and is used for testing.
type FakeCommandRunner struct {
	cmdMap  syncmap.Map
	errMap  syncmap.Map
	fileMap syncmap.Map

	mu  sync.Mutex
	ran []string
}

// NewFakeCommandRunner returns a new FakeCommandRunner
//
// The expected output of commands should be set with SetCommandToOutput
func NewFakeCommandRunner() *FakeCommandRunner {
	return &FakeCommandRunner{}
}

// RunCmd implements the Runner interface to run a exec.Cmd object
func (f *FakeCommandRunner) RunCmd(cmd *exec.Cmd) (*RunResult, error) {
	rr := &RunResult{Args: cmd.Args}
	klog.Infof("(FakeCommandRunner) Run: %v", rr.Command())

	key := rr.Command()
	f.mu.Lock()
	f.ran = append(f.ran, key)
	f.mu.Unlock()

	if err, ok := f.errMap.Load(key); ok {
		rr.ExitCode = 1
		return rr, err.(error)
	}

	out, ok := f.cmdMap.Load(key)
	if !ok {
		cmds := f.commands()
		if len(cmds) == 0 {
			return rr, fmt.Errorf("asked to execute %s, but FakeCommandRunner has no commands stored", rr.Command())
		}

		var txt strings.Builder
		for _, c := range cmds {
			txt.WriteString(fmt.Sprintf("  `%s`\n", c))
		}
		return rr, fmt.Errorf("unregistered command:\n  `%s`\nexpected one of:\n%s", key, txt.String())
	}

	var buf bytes.Buffer
	outStr := ""
	if out != nil {
		outStr = out.(string)
	}
	buf.WriteString(outStr)
	rr.Stdout = buf
	rr.Stderr = buf

	return rr, nil
}

// WriteFile stores the path, contents pair in the fake file map.
func (f *FakeCommandRunner) WriteFile(path string, data []byte, _ os.FileMode) error {
	klog.Infof("(FakeCommandRunner) Write: %s", path)
	f.fileMap.Store(path, string(data))
	return nil
}

// ReadFile returns the stored contents for path.
func (f *FakeCommandRunner) ReadFile(path string) (string, error) {
	contents, ok := f.fileMap.Load(path)
	if !ok {
		return "", fmt.Errorf("unavailable file: %s", path)
	}
	return contents.(string), nil
}

// Remove removes the path, contents pair from the fake file map.
func (f *FakeCommandRunner) Remove(path string) error {
	f.fileMap.Delete(path)
	return nil
}

// SetFileToContents stores the file to contents map for the FakeCommandRunner
func (f *FakeCommandRunner) SetFileToContents(fileToContents map[string]string) {
	for k, v := range fileToContents {
		f.fileMap.Store(k, v)
	}
}

// SetCommandToOutput stores the command to output map for the FakeCommandRunner
func (f *FakeCommandRunner) SetCommandToOutput(cmdToOutput map[string]string) {
	for k, v := range cmdToOutput {
		klog.Infof("fake command %q -> %q", k, v)
		f.cmdMap.Store(k, v)
	}
}

// SetCommandToError makes the given command fail with err.
func (f *FakeCommandRunner) SetCommandToError(cmd string, err error) {
	f.errMap.Store(cmd, err)
}

// GetFileToContents returns the stored contents for filename.
func (f *FakeCommandRunner) GetFileToContents(filename string) (string, error) {
	return f.ReadFile(filename)
}

// Commands returns the commands executed so far, in order.
func (f *FakeCommandRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.ran...)
}

// Files returns the paths currently present in the fake file map.
func (f *FakeCommandRunner) Files() []string {
	files := []string{}
	f.fileMap.Range(func(k, _ interface{}) bool {
		files = append(files, k.(string))
		return true
	})
	return files
}

func (f *FakeCommandRunner) commands() []string {
	cmds := []string{}
	f.cmdMap.Range(func(k, v interface{}) bool {
		cmds = append(cmds, fmt.Sprintf("%s", k))
		return true
	})
	return cmds
}

// DumpMaps prints out the list of stored commands and stored filenames.
func (f *FakeCommandRunner) DumpMaps(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	f.cmdMap.Range(func(k, v interface{}) bool {
		fmt.Fprintf(w, "%s:%s", k, v)
		return true
	})
	fmt.Fprintln(w, "Filenames: ")
	f.fileMap.Range(func(k, _ interface{}) bool {
		fmt.Fprint(w, k)
		return true
	})
}
