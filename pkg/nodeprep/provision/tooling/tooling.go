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

// Package tooling defines the Kubernetes tooling provisioner: the
// ordered steps that install kubelet, kubeadm and kubectl and prepare
// the kubelet's host prerequisites (swap, CRI endpoint).
package tooling

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"

	"k8s.io/nodeprep/pkg/nodeprep/command"
	"k8s.io/nodeprep/pkg/nodeprep/cruntime"
	"k8s.io/nodeprep/pkg/nodeprep/exit"
	"k8s.io/nodeprep/pkg/nodeprep/provision"
	"k8s.io/nodeprep/pkg/nodeprep/release"
)

// Name is the provisioner identifier, used in checkpoint and marker paths.
const Name = "tooling"

const (
	fstabPath  = "/etc/fstab"
	crictlPath = "/etc/crictl.yaml"
)

// tools are installed together and version-locked to each other.
var tools = []string{"kubelet", "kubeadm", "kubectl"}

// PackageInstallError names the tools that could not be installed.
type PackageInstallError struct {
	Missing []string
}

func (e *PackageInstallError) Error() string {
	return fmt.Sprintf("packages not installed: %s", strings.Join(e.Missing, ", "))
}

// ExitCode implements exit.Coder.
func (e *PackageInstallError) ExitCode() int { return exit.PackageInstall }

// Config holds the tooling provisioner's recognized inputs.
type Config struct {
	// KubernetesVersion pins the tool version; empty means the latest
	// published stable release is looked up
	KubernetesVersion string
	// StableVersionURL overrides the stable-release lookup endpoint
	StableVersionURL string
}

// State carries values computed during the run that later steps and the
// completion marker need.
type State struct {
	version semver.Version
}

// Version returns the resolved tool version, empty until the
// resolve-version step has run.
func (s *State) Version() string {
	if s.version.Equals(semver.Version{}) {
		return ""
	}
	return s.version.String()
}

// Steps returns the tooling provisioner's ordered step list.
func Steps(cr command.Runner, cfg Config) ([]provision.Step, *State) {
	st := &State{}

	steps := []provision.Step{
		{
			Name: "kernel-modules",
			Run: func() error {
				_, err := cr.RunCmd(exec.Command("modprobe", "br_netfilter"))
				return errors.Wrap(err, "modprobe br_netfilter")
			},
		},
		{
			// AlwaysRun: resolution is read-only on the host and later
			// steps need the version in-memory on re-entry too.
			Name:      "resolve-version",
			AlwaysRun: true,
			Run: func() error {
				v, err := release.Resolve(cfg.KubernetesVersion, cfg.StableVersionURL)
				if err != nil {
					return err
				}
				st.version = v
				return nil
			},
		},
		{
			Name: "apt-repo",
			Run: func() error {
				// Fetch the key into memory first: a lookup failure must
				// leave no partial repository configuration behind.
				key, err := release.SigningKey(st.version)
				if err != nil {
					return err
				}
				dearmor := exec.Command("gpg", "--dearmor", "--yes", "-o", release.KeyringPath)
				dearmor.Stdin = bytes.NewReader(key)
				if _, err := cr.RunCmd(dearmor); err != nil {
					return errors.Wrap(err, "gpg --dearmor")
				}
				return cr.WriteFile(release.SourcesListPath, []byte(release.AptRepo(st.version)), 0644)
			},
		},
		{
			Name: "install-tools",
			Run: func() error {
				if _, err := cr.RunCmd(exec.Command("apt-get", "update")); err != nil {
					return errors.Wrap(err, "apt-get update")
				}
				args := []string{"install", "-y"}
				for _, t := range tools {
					args = append(args, fmt.Sprintf("%s=%s-*", t, st.version))
				}
				if _, err := cr.RunCmd(exec.Command("apt-get", args...)); err != nil {
					return errors.Wrap(err, "apt-get install")
				}
				// Held packages survive unattended upgrades, keeping the
				// node at the version the control plane expects.
				if _, err := cr.RunCmd(exec.Command("apt-mark", "hold", "kubelet", "kubeadm", "kubectl")); err != nil {
					return errors.Wrap(err, "apt-mark hold")
				}
				return nil
			},
			Verify: func() error {
				missing := []string{}
				for _, t := range tools {
					if _, err := cr.RunCmd(exec.Command("dpkg", "-s", t)); err != nil {
						missing = append(missing, t)
					}
				}
				if len(missing) > 0 {
					return &PackageInstallError{Missing: missing}
				}
				return nil
			},
		},
		{
			Name: "disable-swap",
			Run: func() error {
				if _, err := cr.RunCmd(exec.Command("swapoff", "-a")); err != nil {
					return errors.Wrap(err, "swapoff -a")
				}
				return disableSwapInFstab(cr)
			},
		},
		{
			Name: "crictl",
			Run: func() error {
				socket := (&cruntime.Containerd{}).SocketPath()
				conf := fmt.Sprintf("runtime-endpoint: unix://%s\nimage-endpoint: unix://%s\n", socket, socket)
				return cr.WriteFile(crictlPath, []byte(conf), 0644)
			},
		},
	}

	return steps, st
}

// disableSwapInFstab comments out swap entries in the persistent mount
// table so swap stays off across reboots. Already-commented entries are
// left untouched, so repeated runs never double-comment.
func disableSwapInFstab(cr command.Runner) error {
	contents, err := cr.ReadFile(fstabPath)
	if err != nil {
		return err
	}
	out, changed := CommentSwapEntries(contents)
	if !changed {
		return nil
	}
	return cr.WriteFile(fstabPath, []byte(out), 0644)
}

// CommentSwapEntries returns contents with active swap mounts commented
// out and reports whether anything changed.
func CommentSwapEntries(contents string) (string, bool) {
	changed := false
	lines := strings.Split(contents, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) >= 3 && fields[2] == "swap" {
			lines[i] = "#" + line
			changed = true
		}
	}
	return strings.Join(lines, "\n"), changed
}
