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

// Package cruntime contains code specific to the containerd runtime.
package cruntime

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"k8s.io/nodeprep/pkg/nodeprep/command"
	"k8s.io/nodeprep/pkg/nodeprep/exit"
)

const (
	// ConfigPath is where containerd reads its configuration. The file
	// and its cgroup-driver setting are part of the external contract:
	// kubeadm and the kubelet inspect them.
	ConfigPath = "/etc/containerd/config.toml"

	// ServiceName is the systemd unit name
	ServiceName = "containerd"

	runcOptionsTable = `plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc.options`
)

// ConfigVerificationError means a written configuration could not be
// confirmed by re-reading it.
type ConfigVerificationError struct {
	Path    string
	Setting string
	Err     error
}

func (e *ConfigVerificationError) Error() string {
	return fmt.Sprintf("could not confirm %s in %s: %v", e.Setting, e.Path, e.Err)
}

func (e *ConfigVerificationError) Unwrap() error { return e.Err }

// ExitCode implements exit.Coder.
func (e *ConfigVerificationError) ExitCode() int { return exit.ConfigVerification }

// ServiceNotActiveError means a service did not report active after a
// restart.
type ServiceNotActiveError struct {
	Service string
}

func (e *ServiceNotActiveError) Error() string {
	return fmt.Sprintf("service %s is not active after restart: inspect its logs with `journalctl -u %s`", e.Service, e.Service)
}

// ExitCode implements exit.Coder.
func (e *ServiceNotActiveError) ExitCode() int { return exit.ServiceNotActive }

// Containerd manages the containerd runtime on a host.
type Containerd struct{}

// Name is a human readable name for containerd
func (r *Containerd) Name() string {
	return "containerd"
}

// SocketPath returns the path to the CRI socket for containerd
func (r *Containerd) SocketPath() string {
	return "/run/containerd/containerd.sock"
}

// Active returns if containerd is active on the host
func (r *Containerd) Active(cr command.Runner) bool {
	_, err := cr.RunCmd(exec.Command("systemctl", "is-active", "--quiet", "service", ServiceName))
	return err == nil
}

// Version returns the installed containerd version, or "" if it cannot
// be determined.
func (r *Containerd) Version(cr command.Runner) string {
	rr, err := cr.RunCmd(exec.Command("containerd", "--version"))
	if err != nil {
		klog.Warningf("containerd --version: %v", err)
		return ""
	}
	// output: containerd github.com/containerd/containerd v1.7.13 <commit>
	fields := strings.Fields(strings.TrimSpace(rr.Stdout.String()))
	if len(fields) < 3 {
		return ""
	}
	return strings.TrimPrefix(fields[2], "v")
}

// GenerateConfig writes the runtime configuration with the systemd
// cgroup driver enabled, starting from the runtime's own default
// template so local defaults survive.
func (r *Containerd) GenerateConfig(cr command.Runner) error {
	rr, err := cr.RunCmd(exec.Command("containerd", "config", "default"))
	if err != nil {
		return errors.Wrap(err, "containerd config default")
	}
	cfg := enableSystemdCgroup(rr.Stdout.String())
	if err := cr.WriteFile(ConfigPath, []byte(cfg), 0644); err != nil {
		return errors.Wrapf(err, "write %s", ConfigPath)
	}
	return nil
}

// VerifyConfig re-reads the written configuration and confirms the
// systemd cgroup setting decodes to true.
func (r *Containerd) VerifyConfig(cr command.Runner) error {
	contents, err := cr.ReadFile(ConfigPath)
	if err != nil {
		return &ConfigVerificationError{Path: ConfigPath, Setting: "SystemdCgroup", Err: err}
	}
	var raw map[string]interface{}
	if err := toml.Unmarshal([]byte(contents), &raw); err != nil {
		return &ConfigVerificationError{Path: ConfigPath, Setting: "SystemdCgroup", Err: err}
	}
	v, ok := lookup(raw, []string{"plugins", "io.containerd.grpc.v1.cri", "containerd", "runtimes", "runc", "options", "SystemdCgroup"})
	if !ok {
		return &ConfigVerificationError{Path: ConfigPath, Setting: "SystemdCgroup", Err: errors.New("setting not present")}
	}
	if b, ok := v.(bool); !ok || !b {
		return &ConfigVerificationError{Path: ConfigPath, Setting: "SystemdCgroup", Err: fmt.Errorf("setting is %v, want true", v)}
	}
	return nil
}

// lookup walks nested TOML tables by key path.
func lookup(m map[string]interface{}, path []string) (interface{}, bool) {
	var cur interface{} = m
	for _, k := range path {
		t, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = t[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// enableSystemdCgroup flips SystemdCgroup to true in a default
// containerd configuration, appending the runc options table when the
// template does not carry the setting at all.
func enableSystemdCgroup(cfg string) string {
	if strings.Contains(cfg, "SystemdCgroup = false") {
		return strings.Replace(cfg, "SystemdCgroup = false", "SystemdCgroup = true", 1)
	}
	if strings.Contains(cfg, "SystemdCgroup = true") {
		return cfg
	}
	return cfg + fmt.Sprintf("\n[%s]\n  SystemdCgroup = true\n", runcOptionsTable)
}
