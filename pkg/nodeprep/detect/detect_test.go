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

package detect

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"k8s.io/nodeprep/pkg/nodeprep/command"
)

const ubuntuOSRelease = `PRETTY_NAME="Ubuntu 22.04.3 LTS"
NAME="Ubuntu"
VERSION_ID="22.04"
VERSION="22.04.3 LTS (Jammy Jellyfish)"
ID=ubuntu
ID_LIKE=debian
`

func TestParseOSRelease(t *testing.T) {
	var tests = []struct {
		description string
		contents    string
		wantID      string
		wantVersion string
	}{
		{
			description: "ubuntu",
			contents:    ubuntuOSRelease,
			wantID:      "ubuntu",
			wantVersion: "22.04",
		},
		{
			description: "debian quoted id",
			contents:    "ID=\"debian\"\nVERSION_ID=\"12\"\n",
			wantID:      "debian",
			wantVersion: "12",
		},
		{
			description: "comments and blank lines",
			contents:    "# a comment\n\nID=ubuntu\n",
			wantID:      "ubuntu",
			wantVersion: "",
		},
		{
			description: "empty",
			contents:    "",
			wantID:      "",
			wantVersion: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			id, ver := ParseOSRelease(tc.contents)
			if id != tc.wantID {
				t.Errorf("ParseOSRelease id = %q, want: %q", id, tc.wantID)
			}
			if ver != tc.wantVersion {
				t.Errorf("ParseOSRelease version = %q, want: %q", ver, tc.wantVersion)
			}
		})
	}
}

func TestPlatformTag(t *testing.T) {
	var tests = []struct {
		goarch  string
		want    string
		wantErr bool
	}{
		{"amd64", "amd64", false},
		{"arm64", "arm64", false},
		{"s390x", "", true},
		{"riscv64", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.goarch, func(t *testing.T) {
			got, err := PlatformTag(tc.goarch)
			if (err != nil) != tc.wantErr {
				t.Fatalf("PlatformTag(%q) error = %v, wantErr: %t", tc.goarch, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("PlatformTag(%q) = %q, want: %q", tc.goarch, got, tc.want)
			}
		})
	}
}

func TestFacts(t *testing.T) {
	cr := command.NewFakeCommandRunner()
	cr.SetFileToContents(map[string]string{OSReleasePath: ubuntuOSRelease})

	got, err := Facts(cr, "arm64")
	if err != nil {
		t.Fatalf("Facts: %v", err)
	}
	want := &SystemFacts{OSID: "ubuntu", OSVersion: "22.04", Arch: "arm64", PlatformTag: "arm64"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Facts returned diff (-want +got):\n%s", diff)
	}
}
