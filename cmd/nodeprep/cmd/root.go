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
	goflag "flag"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"k8s.io/nodeprep/pkg/nodeprep/checkpoint"
	"k8s.io/nodeprep/pkg/nodeprep/exit"
)

const (
	dataDirFlag = "data-dir"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "nodeprep",
	Short: "nodeprep prepares an Ubuntu host for Kubernetes membership",
	Long: `nodeprep prepares a single Ubuntu host for Kubernetes membership in two
checkpointed stages: "nodeprep runtime" installs and configures the
containerd runtime, then "nodeprep tooling" installs kubelet, kubeadm and
kubectl and prepares the kubelet's host prerequisites. Each stage is safe
to re-run: completed steps are skipped.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		exit.WithError("command failed", err)
	}
}

func init() {
	klog.InitFlags(nil)
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)

	RootCmd.PersistentFlags().String(dataDirFlag, checkpoint.DefaultDir, "Directory holding provisioning markers and checkpoints.")
	if err := viper.BindPFlags(RootCmd.PersistentFlags()); err != nil {
		klog.Warningf("bind flags: %v", err)
	}

	viper.SetEnvPrefix("NODEPREP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// store opens the checkpoint store configured by --data-dir.
func store() *checkpoint.Store {
	st, err := checkpoint.NewStore(viper.GetString(dataDirFlag))
	if err != nil {
		exit.WithError("opening provisioning state", err)
	}
	return st
}
