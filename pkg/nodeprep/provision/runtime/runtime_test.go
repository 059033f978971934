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

package runtime

import (
	"errors"
	"strings"
	"testing"

	"k8s.io/nodeprep/pkg/nodeprep/checkpoint"
	"k8s.io/nodeprep/pkg/nodeprep/command"
	"k8s.io/nodeprep/pkg/nodeprep/cruntime"
	"k8s.io/nodeprep/pkg/nodeprep/detect"
	"k8s.io/nodeprep/pkg/nodeprep/provision"
)

const defaultConfigSnippet = `version = 2

[plugins]
  [plugins."io.containerd.grpc.v1.cri"]
    [plugins."io.containerd.grpc.v1.cri".containerd]
      [plugins."io.containerd.grpc.v1.cri".containerd.runtimes]
        [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc]
          [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc.options]
            SystemdCgroup = false
`

var ubuntuFacts = &detect.SystemFacts{OSID: "ubuntu", OSVersion: "22.04", Arch: "amd64", PlatformTag: "amd64"}

// healthyHost registers the command outputs of a host where every
// provisioning command succeeds.
func healthyHost() *command.FakeCommandRunner {
	cr := command.NewFakeCommandRunner()
	cr.SetCommandToOutput(map[string]string{
		"modprobe overlay":          "",
		"modprobe br_netfilter":     "",
		"sysctl --system":           "",
		"apt-get update":            "",
		"apt-get install -y containerd": "",
		"containerd config default": defaultConfigSnippet,
		"systemctl daemon-reload":   "",
		"systemctl enable containerd": "",
		"systemctl restart containerd": "",
		"systemctl is-active --quiet service containerd": "",
		"containerd --version": "containerd github.com/containerd/containerd v1.7.13 deadbeef\n",
	})
	return cr
}

func testStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	st, err := checkpoint.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return st
}

func TestStepsPackageInstall(t *testing.T) {
	cr := healthyHost()
	st := testStore(t)

	steps, err := Steps(cr, ubuntuFacts, Config{InstallMethod: InstallMethodPackage})
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}

	err = provision.Run(st, provision.Config{
		Name:             Name,
		Steps:            steps,
		InstalledVersion: func() string { return InstalledVersion(cr) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// generated files
	mods, err := cr.ReadFile(modulesLoadPath)
	if err != nil {
		t.Fatalf("modules-load conf not written: %v", err)
	}
	for _, mod := range []string{"overlay", "br_netfilter"} {
		if !strings.Contains(mods, mod) {
			t.Errorf("modules-load conf missing %s:\n%s", mod, mods)
		}
	}
	sysctl, err := cr.ReadFile(sysctlPath)
	if err != nil {
		t.Fatalf("sysctl conf not written: %v", err)
	}
	for _, key := range []string{"net.bridge.bridge-nf-call-iptables", "net.ipv4.ip_forward", "net.bridge.bridge-nf-call-ip6tables"} {
		if !strings.Contains(sysctl, key) {
			t.Errorf("sysctl conf missing %s:\n%s", key, sysctl)
		}
	}
	cfg, err := cr.ReadFile(cruntime.ConfigPath)
	if err != nil {
		t.Fatalf("containerd config not written: %v", err)
	}
	if !strings.Contains(cfg, "SystemdCgroup = true") {
		t.Errorf("containerd config missing SystemdCgroup = true:\n%s", cfg)
	}

	// marker records the containerd version
	m, err := st.Marker(Name)
	if err != nil {
		t.Fatalf("Marker: %v", err)
	}
	if m == nil || m.Version != "1.7.13" {
		t.Errorf("marker = %+v, want version 1.7.13", m)
	}
}

func TestStepsServiceNotActive(t *testing.T) {
	cr := healthyHost()
	cr.SetCommandToError("systemctl is-active --quiet service containerd", errors.New("inactive"))
	st := testStore(t)

	steps, err := Steps(cr, ubuntuFacts, Config{InstallMethod: InstallMethodPackage})
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}

	err = provision.Run(st, provision.Config{Name: Name, Steps: steps})
	var sna *cruntime.ServiceNotActiveError
	if !errors.As(err, &sna) {
		t.Fatalf("Run error = %v, want ServiceNotActiveError", err)
	}
	if m, _ := st.Marker(Name); m != nil {
		t.Errorf("marker written despite inactive service: %+v", m)
	}
}

func TestStepsRerunIsNoOp(t *testing.T) {
	cr := healthyHost()
	st := testStore(t)

	steps, err := Steps(cr, ubuntuFacts, Config{InstallMethod: InstallMethodPackage})
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	cfg := provision.Config{Name: Name, Steps: steps}
	if err := provision.Run(st, cfg); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	before := len(cr.Commands())
	if err := provision.Run(st, cfg); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if after := len(cr.Commands()); after != before {
		t.Errorf("re-run of a completed provisioner executed %d commands", after-before)
	}
}

func TestStepsAppArmorSkippedByDefault(t *testing.T) {
	cr := healthyHost()

	steps, err := Steps(cr, ubuntuFacts, Config{InstallMethod: InstallMethodPackage})
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	for _, s := range steps {
		if s.Name == "disable-apparmor" {
			t.Error("disable-apparmor present without opt-in")
		}
	}
}

func TestDisableAppArmorNoProfile(t *testing.T) {
	cr := command.NewFakeCommandRunner()
	// no profile file on the host: removal must be a no-op
	if err := disableAppArmor(cr); err != nil {
		t.Fatalf("disableAppArmor: %v", err)
	}
	if cmds := cr.Commands(); len(cmds) != 0 {
		t.Errorf("commands run with no profile present: %v", cmds)
	}
}

func TestStepsConfigRejected(t *testing.T) {
	var tests = []struct {
		description string
		cfg         Config
	}{
		{"unknown method", Config{InstallMethod: "tarball"}},
		{"release without version", Config{InstallMethod: InstallMethodRelease}},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			if _, err := Steps(command.NewFakeCommandRunner(), ubuntuFacts, tc.cfg); err == nil {
				t.Error("Steps accepted invalid config")
			}
		})
	}
}
