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

package release

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blang/semver/v4"
)

func TestResolvePinned(t *testing.T) {
	var tests = []struct {
		pinned  string
		want    string
		wantErr bool
	}{
		{"1.28.2", "1.28.2", false},
		{"v1.28.2", "1.28.2", false},
		{"1.28.2-00", "1.28.2", false},
		{"1.28.2-1.1", "1.28.2", false},
		{" v1.30.0 ", "1.30.0", false},
		{"latest", "", true},
		{"1.28", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.pinned, func(t *testing.T) {
			got, err := Resolve(tc.pinned, "")
			if tc.wantErr {
				var vre *VersionResolutionError
				if !errors.As(err, &vre) {
					t.Fatalf("Resolve(%q) error = %v, want VersionResolutionError", tc.pinned, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tc.pinned, err)
			}
			if got.String() != tc.want {
				t.Errorf("Resolve(%q) = %s, want: %s", tc.pinned, got, tc.want)
			}
		})
	}
}

func TestResolveStable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("v1.29.1\n"))
	}))
	defer ts.Close()

	got, err := Resolve("", ts.URL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.String() != "1.29.1" {
		t.Errorf("Resolve = %s, want 1.29.1", got)
	}
}

func TestResolveStableMalformed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("flibble"))
	}))
	defer ts.Close()

	_, err := Resolve("", ts.URL)
	var vre *VersionResolutionError
	if !errors.As(err, &vre) {
		t.Fatalf("Resolve error = %v, want VersionResolutionError", err)
	}
}

func TestResolveStableUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer ts.Close()

	_, err := Resolve("", ts.URL)
	var vre *VersionResolutionError
	if !errors.As(err, &vre) {
		t.Fatalf("Resolve error = %v, want VersionResolutionError", err)
	}
}

func TestAptRepo(t *testing.T) {
	v := semver.MustParse("1.28.2")
	repo := AptRepo(v)
	if !strings.Contains(repo, "/core:/stable:/v1.28/deb/") {
		t.Errorf("AptRepo missing minor version line: %s", repo)
	}
	if !strings.Contains(repo, "signed-by="+KeyringPath) {
		t.Errorf("AptRepo missing signed-by: %s", repo)
	}
}

func TestSigningKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/core:/stable:/v1.28/deb/Release.key" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("-----BEGIN PGP PUBLIC KEY BLOCK-----\n"))
	}))
	defer ts.Close()

	orig := PkgsBaseURL
	PkgsBaseURL = ts.URL
	defer func() { PkgsBaseURL = orig }()

	key, err := SigningKey(semver.MustParse("1.28.2"))
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	if !strings.HasPrefix(string(key), "-----BEGIN PGP PUBLIC KEY BLOCK-----") {
		t.Errorf("unexpected key contents: %q", key)
	}
}

func TestContainerdTarballURL(t *testing.T) {
	var tests = []struct {
		version string
		tag     string
		want    string
	}{
		{"1.7.13", "amd64", "https://github.com/containerd/containerd/releases/download/v1.7.13/containerd-1.7.13-linux-amd64.tar.gz"},
		{"v1.7.13", "arm64", "https://github.com/containerd/containerd/releases/download/v1.7.13/containerd-1.7.13-linux-arm64.tar.gz"},
	}
	for _, tc := range tests {
		t.Run(tc.version+"-"+tc.tag, func(t *testing.T) {
			if got := ContainerdTarballURL(tc.version, tc.tag); got != tc.want {
				t.Errorf("ContainerdTarballURL = %s, want: %s", got, tc.want)
			}
		})
	}
}
