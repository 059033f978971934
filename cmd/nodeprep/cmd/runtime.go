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

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"k8s.io/nodeprep/pkg/nodeprep/command"
	"k8s.io/nodeprep/pkg/nodeprep/exit"
	"k8s.io/nodeprep/pkg/nodeprep/preflight"
	"k8s.io/nodeprep/pkg/nodeprep/provision"
	runtimeprov "k8s.io/nodeprep/pkg/nodeprep/provision/runtime"
)

const (
	containerdInstallFlag = "containerd-install"
	containerdVersionFlag = "containerd-version"
	disableAppArmorFlag   = "disable-apparmor"

	// supportedOS is the single distribution the provisioners support
	supportedOS = "ubuntu"
)

var runtimeCmd = &cobra.Command{
	Use:   "runtime",
	Short: "Install and configure the containerd runtime",
	Long: `Install and configure the containerd runtime: kernel modules, network
sysctls, the containerd package (or upstream release binaries), a
configuration with the systemd cgroup driver enabled, and an active,
enabled service. Progress is checkpointed; re-running resumes at the
first incomplete step.`,
	Run: func(_ *cobra.Command, _ []string) {
		cr := command.NewExecRunner()
		st := store()

		facts, err := preflight.Check(cr, st, preflight.Requirements{SupportedOS: supportedOS})
		if err != nil {
			exit.WithError("preflight failed", err)
		}

		steps, err := runtimeprov.Steps(cr, facts, runtimeprov.Config{
			InstallMethod:     viper.GetString(containerdInstallFlag),
			ContainerdVersion: viper.GetString(containerdVersionFlag),
			DisableAppArmor:   viper.GetBool(disableAppArmorFlag),
		})
		if err != nil {
			exit.Message(exit.BadUsage, "invalid configuration: %v", err)
		}

		err = provision.Run(st, provision.Config{
			Name:             runtimeprov.Name,
			Steps:            steps,
			InstalledVersion: func() string { return runtimeprov.InstalledVersion(cr) },
		})
		if err != nil {
			exit.WithError("runtime provisioning failed", err)
		}
	},
}

func init() {
	runtimeCmd.Flags().String(containerdInstallFlag, runtimeprov.InstallMethodPackage,
		"How to install containerd: 'package' (OS package manager) or 'release' (upstream release binaries).")
	runtimeCmd.Flags().String(containerdVersionFlag, "",
		"containerd version to install with the 'release' method, e.g. 1.7.13.")
	runtimeCmd.Flags().Bool(disableAppArmorFlag, false,
		"Remove the runc apparmor profile. Reduces host security; off by default.")
	if err := viper.BindPFlags(runtimeCmd.Flags()); err != nil {
		exit.WithError("unable to bind flags", err)
	}
	RootCmd.AddCommand(runtimeCmd)
}
