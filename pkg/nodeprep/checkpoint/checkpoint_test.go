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

package checkpoint

import (
	"os"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return st
}

func TestStepCompletion(t *testing.T) {
	st := testStore(t)

	if st.IsComplete("runtime", "sysctl") {
		t.Fatal("IsComplete true for a fresh store")
	}
	if err := st.Complete("runtime", "sysctl"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !st.IsComplete("runtime", "sysctl") {
		t.Error("IsComplete false after Complete")
	}
	// other steps and other provisioners remain incomplete
	if st.IsComplete("runtime", "kernel-modules") {
		t.Error("unrelated step reported complete")
	}
	if st.IsComplete("tooling", "sysctl") {
		t.Error("unrelated provisioner reported complete")
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	st := testStore(t)

	m, err := st.Marker("runtime")
	if err != nil {
		t.Fatalf("Marker: %v", err)
	}
	if m != nil {
		t.Fatalf("Marker on fresh store = %+v, want nil", m)
	}

	if err := st.WriteMarker(Marker{Provisioner: "runtime", Version: "1.7.13"}); err != nil {
		t.Fatalf("WriteMarker: %v", err)
	}

	m, err = st.Marker("runtime")
	if err != nil {
		t.Fatalf("Marker: %v", err)
	}
	if m == nil {
		t.Fatal("Marker = nil after WriteMarker")
	}
	if m.Version != "1.7.13" {
		t.Errorf("version = %q, want 1.7.13", m.Version)
	}
	if m.CompletedAt.IsZero() {
		t.Error("CompletedAt not stamped")
	}
}

func TestMarkerBareFlag(t *testing.T) {
	st := testStore(t)

	// markers created by hand gate dependents on mere existence
	if err := os.WriteFile(st.MarkerPath("runtime"), []byte{}, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := st.Marker("runtime")
	if err != nil {
		t.Fatalf("Marker: %v", err)
	}
	if m == nil {
		t.Fatal("Marker = nil for a bare flag file")
	}
}

func TestClear(t *testing.T) {
	st := testStore(t)

	if err := st.Complete("tooling", "disable-swap"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := st.WriteMarker(Marker{Provisioner: "tooling"}); err != nil {
		t.Fatalf("WriteMarker: %v", err)
	}

	if err := st.Clear("tooling"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if st.IsComplete("tooling", "disable-swap") {
		t.Error("step still complete after Clear")
	}
	m, err := st.Marker("tooling")
	if err != nil {
		t.Fatalf("Marker: %v", err)
	}
	if m != nil {
		t.Errorf("marker still present after Clear: %+v", m)
	}

	// clearing an already-clear provisioner is a no-op
	if err := st.Clear("tooling"); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
