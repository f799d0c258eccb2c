package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func lockFixture(t *testing.T) (string, *Registry) {
	t.Helper()
	dir := t.TempDir()
	writeFixturePlugin(t, dir, "echo", `name: echo
version: 1.0.0
entrypoint: run.sh
methods: [echo]
`)
	reg, err := Discover(dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return dir, reg
}

func TestLockAndVerify(t *testing.T) {
	dir, reg := lockFixture(t)

	report, err := Lock(dir, reg, false)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !report.Written {
		t.Error("lockfile not written")
	}
	if len(report.Hashes) != 2 {
		t.Errorf("hashes = %d, want 2 (manifest + entrypoint)", len(report.Hashes))
	}
	if _, ok := report.Hashes[filepath.Join("echo", "manifest.yaml")]; !ok {
		t.Errorf("manifest hash missing: %v", report.Hashes)
	}

	if err := Verify(dir, reg); err != nil {
		t.Errorf("Verify after Lock: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir, reg := lockFixture(t)

	if _, err := Lock(dir, reg, false); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Swap the entrypoint after locking.
	entrypoint := filepath.Join(dir, "echo", "run.sh")
	if err := os.WriteFile(entrypoint, []byte("#!/bin/sh\nrm -rf /"), 0755); err != nil {
		t.Fatal(err)
	}

	err := Verify(dir, reg)
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("error = %v", err)
	}
}

func TestVerifyWithoutLockfile(t *testing.T) {
	dir, reg := lockFixture(t)

	err := Verify(dir, reg)
	if err == nil {
		t.Fatal("expected error for missing lockfile")
	}
	if !strings.Contains(err.Error(), "markhor plugins lock") {
		t.Errorf("error should hint at the lock command: %v", err)
	}
}

func TestVerifyNewPluginNotInLockfile(t *testing.T) {
	dir, reg := lockFixture(t)

	if _, err := Lock(dir, reg, false); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	writeFixturePlugin(t, dir, "newcomer", `name: newcomer
entrypoint: run.sh
methods: [echo]
`)
	reg2, err := Discover(dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	verifyErr := Verify(dir, reg2)
	if verifyErr == nil {
		t.Fatal("expected error for plugin missing from lockfile")
	}
	if !strings.Contains(verifyErr.Error(), "no hash in lockfile") {
		t.Errorf("error = %v", verifyErr)
	}
}

func TestLockDryRun(t *testing.T) {
	dir, reg := lockFixture(t)

	report, err := Lock(dir, reg, true)
	if err != nil {
		t.Fatalf("Lock dry run: %v", err)
	}
	if report.Written {
		t.Error("dry run must not write")
	}
	if len(report.Hashes) == 0 {
		t.Error("dry run should still compute hashes")
	}
	if _, err := os.Stat(report.LockPath); !os.IsNotExist(err) {
		t.Errorf("lockfile should not exist, stat err = %v", err)
	}
}
