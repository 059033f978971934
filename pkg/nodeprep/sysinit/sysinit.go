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

// Package sysinit provides an interface for the host init system.
// Ubuntu hosts are systemd, so that is the only implementation.
package sysinit

import (
	"os/exec"

	"github.com/pkg/errors"

	"k8s.io/nodeprep/pkg/nodeprep/command"
)

// Manager is a common interface for init systems
type Manager interface {
	// Name returns the name of the init manager
	Name() string

	// Active returns if a service is active
	Active(string) bool

	// DaemonReload reloads unit definitions
	DaemonReload() error

	// Enable enables a service to start on boot
	Enable(string) error

	// Restart restarts a service
	Restart(string) error
}

// Systemd is a systemd-backed Manager.
type Systemd struct {
	r command.Runner
}

// New returns a Manager for the host behind r.
func New(r command.Runner) Manager {
	return &Systemd{r: r}
}

// Name implements Manager.
func (s *Systemd) Name() string { return "systemd" }

// Active checks if a service reports the active state.
func (s *Systemd) Active(svc string) bool {
	_, err := s.r.RunCmd(exec.Command("systemctl", "is-active", "--quiet", "service", svc))
	return err == nil
}

// DaemonReload reloads systemd unit definitions.
func (s *Systemd) DaemonReload() error {
	if _, err := s.r.RunCmd(exec.Command("systemctl", "daemon-reload")); err != nil {
		return errors.Wrap(err, "systemctl daemon-reload")
	}
	return nil
}

// Enable enables a service to start on boot.
func (s *Systemd) Enable(svc string) error {
	if _, err := s.r.RunCmd(exec.Command("systemctl", "enable", svc)); err != nil {
		return errors.Wrapf(err, "systemctl enable %s", svc)
	}
	return nil
}

// Restart restarts a service.
func (s *Systemd) Restart(svc string) error {
	if _, err := s.r.RunCmd(exec.Command("systemctl", "restart", svc)); err != nil {
		return errors.Wrapf(err, "systemctl restart %s", svc)
	}
	return nil
}
