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

// Package runtime defines the container-runtime provisioner: the ordered
// steps that install and configure containerd on an Ubuntu host so the
// kubelet can use it through CRI.
package runtime

import (
	"fmt"
	"os/exec"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"k8s.io/nodeprep/pkg/nodeprep/command"
	"k8s.io/nodeprep/pkg/nodeprep/cruntime"
	"k8s.io/nodeprep/pkg/nodeprep/detect"
	"k8s.io/nodeprep/pkg/nodeprep/provision"
	"k8s.io/nodeprep/pkg/nodeprep/release"
	"k8s.io/nodeprep/pkg/nodeprep/sysinit"
)

// Name is the provisioner identifier, used in checkpoint and marker paths.
const Name = "runtime"

// Install methods for containerd. Both strategies seen in the field are
// exposed as configuration rather than silently picking one.
const (
	// InstallMethodPackage installs containerd from the OS package manager
	InstallMethodPackage = "package"
	// InstallMethodRelease installs containerd from upstream release binaries
	InstallMethodRelease = "release"
)

const (
	modulesLoadPath = "/etc/modules-load.d/containerd.conf"
	sysctlPath      = "/etc/sysctl.d/99-kubernetes-cri.conf"
	unitPath        = "/etc/systemd/system/containerd.service"
	tarballTmpPath  = "/tmp/nodeprep-containerd.tar.gz"

	apparmorProfilePath = "/etc/apparmor.d/runc"
)

// Declared for persistent load across reboots; modprobe below covers the
// running kernel.
const modulesLoadConf = `overlay
br_netfilter
`

// Required for bridged pod traffic to traverse iptables and for packet
// forwarding between pods and the outside world.
const sysctlConf = `net.bridge.bridge-nf-call-iptables  = 1
net.ipv4.ip_forward                 = 1
net.bridge.bridge-nf-call-ip6tables = 1
`

// Upstream unit definition, installed only for the release-binary method.
const containerdUnit = `[Unit]
Description=containerd container runtime
Documentation=https://containerd.io
After=network.target local-fs.target

[Service]
ExecStartPre=-/sbin/modprobe overlay
ExecStart=/usr/local/bin/containerd
Type=notify
Delegate=yes
KillMode=process
Restart=always
RestartSec=5
LimitNPROC=infinity
LimitCORE=infinity
LimitNOFILE=infinity
TasksMax=infinity
OOMScoreAdjust=-999

[Install]
WantedBy=multi-user.target
`

// Config holds the runtime provisioner's recognized inputs.
type Config struct {
	// InstallMethod is InstallMethodPackage or InstallMethodRelease
	InstallMethod string
	// ContainerdVersion pins the release-binary version; required when
	// InstallMethod is InstallMethodRelease
	ContainerdVersion string
	// DisableAppArmor opts in to removing the runc apparmor profile.
	// Off by default: it reduces host security.
	DisableAppArmor bool
}

// Steps returns the runtime provisioner's ordered step list.
func Steps(cr command.Runner, facts *detect.SystemFacts, cfg Config) ([]provision.Step, error) {
	if cfg.InstallMethod != InstallMethodPackage && cfg.InstallMethod != InstallMethodRelease {
		return nil, fmt.Errorf("unknown containerd install method %q", cfg.InstallMethod)
	}
	if cfg.InstallMethod == InstallMethodRelease && cfg.ContainerdVersion == "" {
		return nil, fmt.Errorf("--containerd-version is required with the %s install method", InstallMethodRelease)
	}

	containerd := &cruntime.Containerd{}
	sd := sysinit.New(cr)

	steps := []provision.Step{
		{
			Name: "kernel-modules",
			Run: func() error {
				if err := cr.WriteFile(modulesLoadPath, []byte(modulesLoadConf), 0644); err != nil {
					return err
				}
				for _, mod := range []string{"overlay", "br_netfilter"} {
					if _, err := cr.RunCmd(exec.Command("modprobe", mod)); err != nil {
						return errors.Wrapf(err, "modprobe %s", mod)
					}
				}
				return nil
			},
		},
		{
			Name: "sysctl",
			Run: func() error {
				if err := cr.WriteFile(sysctlPath, []byte(sysctlConf), 0644); err != nil {
					return err
				}
				_, err := cr.RunCmd(exec.Command("sysctl", "--system"))
				return errors.Wrap(err, "sysctl --system")
			},
		},
		installStep(cr, facts, cfg),
		{
			Name: "configure-containerd",
			Run: func() error {
				return containerd.GenerateConfig(cr)
			},
			Verify: func() error {
				return containerd.VerifyConfig(cr)
			},
		},
		{
			Name: "restart-containerd",
			Run: func() error {
				if err := sd.DaemonReload(); err != nil {
					return err
				}
				if err := sd.Enable(cruntime.ServiceName); err != nil {
					return err
				}
				return sd.Restart(cruntime.ServiceName)
			},
			Verify: func() error {
				if !containerd.Active(cr) {
					return &cruntime.ServiceNotActiveError{Service: cruntime.ServiceName}
				}
				return nil
			},
		},
	}

	if cfg.DisableAppArmor {
		steps = append(steps, provision.Step{
			Name: "disable-apparmor",
			Run: func() error {
				klog.Warning("disabling the runc apparmor profile reduces host security")
				return disableAppArmor(cr)
			},
		})
	}

	return steps, nil
}

// InstalledVersion reports the containerd version for the completion
// marker, empty when not determinable.
func InstalledVersion(cr command.Runner) string {
	return (&cruntime.Containerd{}).Version(cr)
}

func installStep(cr command.Runner, facts *detect.SystemFacts, cfg Config) provision.Step {
	if cfg.InstallMethod == InstallMethodRelease {
		return provision.Step{
			Name: "install-containerd",
			Run: func() error {
				url := release.ContainerdTarballURL(cfg.ContainerdVersion, facts.PlatformTag)
				tarball, err := release.Download(url)
				if err != nil {
					return errors.Wrapf(err, "download %s", url)
				}
				if err := cr.WriteFile(tarballTmpPath, tarball, 0644); err != nil {
					return err
				}
				if _, err := cr.RunCmd(exec.Command("tar", "-C", "/usr/local", "-xzf", tarballTmpPath)); err != nil {
					return errors.Wrap(err, "unpack containerd")
				}
				if err := cr.WriteFile(unitPath, []byte(containerdUnit), 0644); err != nil {
					return err
				}
				return cr.Remove(tarballTmpPath)
			},
		}
	}
	return provision.Step{
		Name: "install-containerd",
		Run: func() error {
			// Installing an already-installed package is a no-op per
			// apt semantics, keeping this step idempotent.
			if _, err := cr.RunCmd(exec.Command("apt-get", "update")); err != nil {
				return errors.Wrap(err, "apt-get update")
			}
			if _, err := cr.RunCmd(exec.Command("apt-get", "install", "-y", "containerd")); err != nil {
				return errors.Wrap(err, "apt-get install containerd")
			}
			return nil
		},
	}
}

// disableAppArmor unloads and masks the runc profile. A host without the
// profile is left untouched.
func disableAppArmor(cr command.Runner) error {
	if _, err := cr.ReadFile(apparmorProfilePath); err != nil {
		klog.Infof("no apparmor profile at %s, nothing to disable", apparmorProfilePath)
		return nil
	}
	if _, err := cr.RunCmd(exec.Command("apparmor_parser", "-R", apparmorProfilePath)); err != nil {
		return errors.Wrap(err, "apparmor_parser -R")
	}
	if _, err := cr.RunCmd(exec.Command("ln", "-sf", apparmorProfilePath, "/etc/apparmor.d/disable/")); err != nil {
		return errors.Wrap(err, "mask apparmor profile")
	}
	return nil
}
