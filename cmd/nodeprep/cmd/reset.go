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
	"fmt"

	"github.com/spf13/cobra"

	"k8s.io/nodeprep/pkg/nodeprep/exit"
	runtimeprov "k8s.io/nodeprep/pkg/nodeprep/provision/runtime"
	"k8s.io/nodeprep/pkg/nodeprep/provision/tooling"
)

var resetCmd = &cobra.Command{
	Use:   "reset [runtime|tooling]",
	Short: "Remove a provisioner's completion marker and checkpoints",
	Long: `Remove a provisioner's completion marker and checkpoints so the next run
re-executes every step. Host state already applied is left untouched;
there is no rollback. With no argument, both provisioners are reset.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{runtimeprov.Name, tooling.Name},
	Run: func(_ *cobra.Command, args []string) {
		st := store()
		names := []string{runtimeprov.Name, tooling.Name}
		if len(args) == 1 {
			names = args
		}
		for _, name := range names {
			if err := st.Clear(name); err != nil {
				exit.WithError("reset failed", err)
			}
			fmt.Printf("%s: provisioning state cleared\n", name)
		}
	},
}

func init() {
	RootCmd.AddCommand(resetCmd)
}
