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
	"k8s.io/nodeprep/pkg/nodeprep/provision/tooling"
)

const (
	kubernetesVersionFlag = "kubernetes-version"
)

var toolingCmd = &cobra.Command{
	Use:   "tooling",
	Short: "Install kubelet, kubeadm and kubectl",
	Long: `Install the Kubernetes CLI tool set pinned to a resolved version, held
against automatic upgrades, with swap disabled and the CRI client pointed
at the containerd socket. Requires a completed "nodeprep runtime" run on
this host.`,
	Run: func(_ *cobra.Command, _ []string) {
		cr := command.NewExecRunner()
		st := store()

		_, err := preflight.Check(cr, st, preflight.Requirements{
			SupportedOS: supportedOS,
			DependsOn:   runtimeprov.Name,
		})
		if err != nil {
			exit.WithError("preflight failed", err)
		}

		steps, state := tooling.Steps(cr, tooling.Config{
			KubernetesVersion: viper.GetString(kubernetesVersionFlag),
		})

		err = provision.Run(st, provision.Config{
			Name:             tooling.Name,
			Steps:            steps,
			InstalledVersion: state.Version,
		})
		if err != nil {
			exit.WithError("tooling provisioning failed", err)
		}
	},
}

func init() {
	toolingCmd.Flags().String(kubernetesVersionFlag, "",
		"Kubernetes version to install, e.g. 1.28.2. Defaults to the latest stable release.")
	if err := viper.BindPFlags(toolingCmd.Flags()); err != nil {
		exit.WithError("unable to bind flags", err)
	}
	RootCmd.AddCommand(toolingCmd)
}
