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

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which provisioners have completed on this host",
	Run: func(_ *cobra.Command, _ []string) {
		st := store()
		for _, name := range []string{runtimeprov.Name, tooling.Name} {
			m, err := st.Marker(name)
			if err != nil {
				exit.WithError("reading marker", err)
			}
			if m == nil {
				fmt.Printf("%s: not provisioned\n", name)
				continue
			}
			if m.Version != "" {
				fmt.Printf("%s: complete at %s (version %s)\n", name, m.CompletedAt.Format("2006-01-02 15:04:05 MST"), m.Version)
				continue
			}
			fmt.Printf("%s: complete at %s\n", name, m.CompletedAt.Format("2006-01-02 15:04:05 MST"))
		}
	},
}

func init() {
	RootCmd.AddCommand(statusCmd)
}
