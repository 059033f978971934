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

	"k8s.io/nodeprep/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of nodeprep",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("nodeprep version: %s\n", version.GetVersion())
		if commit := version.GetGitCommitID(); commit != "" {
			fmt.Printf("commit: %s\n", commit)
		}
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
