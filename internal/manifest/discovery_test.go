package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFixturePlugin(t *testing.T, root, dirName, manifest string) {
	t.Helper()
	pluginDir := filepath.Join(root, dirName)
	os.Mkdir(pluginDir, 0755)
	os.WriteFile(filepath.Join(pluginDir, "manifest.yaml"), []byte(manifest), 0644)
	os.WriteFile(filepath.Join(pluginDir, "run.sh"), []byte("#!/bin/sh\necho ok"), 0755)
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name      string
		setupFn   func(t *testing.T) string // Returns plugins directory
		wantCount int
		wantErr   bool
		checkFn   func(t *testing.T, reg *Registry)
	}{
		{
			name: "valid plugin discovered",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeFixturePlugin(t, dir, "echo", `name: echo
version: 1.0.0
entrypoint: run.sh
methods: [echo]
timeout: 30s
`)
				return dir
			},
			wantCount: 1,
			wantErr:   false,
			checkFn: func(t *testing.T, reg *Registry) {
				plugin, ok := reg.Get("echo")
				if !ok {
					t.Fatal("echo not found")
				}
				if !plugin.SupportsMethod("echo") {
					t.Error("should declare echo method")
				}
				if plugin.SupportsMethod("chat") {
					t.Error("should not declare chat method")
				}
				if plugin.Timeout != 30*time.Second {
					t.Errorf("timeout = %v", plugin.Timeout)
				}
				if !filepath.IsAbs(plugin.Entrypoint) {
					t.Errorf("entrypoint not absolute: %s", plugin.Entrypoint)
				}
			},
		},
		{
			name: "multiple valid plugins",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				for _, name := range []string{"plugin1", "plugin2"} {
					writeFixturePlugin(t, dir, name, `name: `+name+`
version: 1.0.0
entrypoint: run.sh
methods: [echo]
`)
				}
				return dir
			},
			wantCount: 2,
			wantErr:   false,
			checkFn: func(t *testing.T, reg *Registry) {
				names := reg.Names()
				if len(names) != 2 || names[0] != "plugin1" || names[1] != "plugin2" {
					t.Errorf("Names() = %v", names)
				}
			},
		},
		{
			name: "directory without manifest skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				os.Mkdir(filepath.Join(dir, "no-manifest"), 0755)
				return dir
			},
			wantCount: 0,
			wantErr:   false,
		},
		{
			name: "uppercase name skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeFixturePlugin(t, dir, "shouty", `name: SHOUTY
version: 1.0.0
entrypoint: run.sh
methods: [echo]
`)
				return dir
			},
			wantCount: 0,
			wantErr:   false,
		},
		{
			name: "non-executable entrypoint skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				pluginDir := filepath.Join(dir, "limp")
				os.Mkdir(pluginDir, 0755)
				os.WriteFile(filepath.Join(pluginDir, "manifest.yaml"), []byte(`name: limp
entrypoint: run.sh
methods: [echo]
`), 0644)
				os.WriteFile(filepath.Join(pluginDir, "run.sh"), []byte("#!/bin/sh\n"), 0644)
				return dir
			},
			wantCount: 0,
			wantErr:   false,
		},
		{
			name: "entrypoint escaping plugin dir skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				pluginDir := filepath.Join(dir, "sneaky")
				os.Mkdir(pluginDir, 0755)
				os.WriteFile(filepath.Join(pluginDir, "manifest.yaml"), []byte(`name: sneaky
entrypoint: ../outside.sh
methods: [echo]
`), 0644)
				os.WriteFile(filepath.Join(dir, "outside.sh"), []byte("#!/bin/sh\n"), 0755)
				return dir
			},
			wantCount: 0,
			wantErr:   false,
		},
		{
			name: "duplicate name keeps first discovered",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				for _, dirName := range []string{"a-copy", "b-copy"} {
					writeFixturePlugin(t, dir, dirName, `name: twin
version: 1.0.0
entrypoint: run.sh
methods: [echo]
`)
				}
				return dir
			},
			wantCount: 1,
			wantErr:   false,
			checkFn: func(t *testing.T, reg *Registry) {
				plugin, ok := reg.Get("twin")
				if !ok {
					t.Fatal("twin not found")
				}
				if filepath.Base(plugin.Path) != "a-copy" {
					t.Errorf("kept %s, want first discovered a-copy", plugin.Path)
				}
			},
		},
		{
			name: "missing plugins dir",
			setupFn: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setupFn(t)

			reg, err := Discover(dir, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Discover() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if len(reg.All()) != tt.wantCount {
				t.Errorf("discovered %d plugins, want %d", len(reg.All()), tt.wantCount)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, reg)
			}
		})
	}
}

func TestDiscoverLogsSkippedPlugins(t *testing.T) {
	dir := t.TempDir()
	pluginDir := filepath.Join(dir, "broken")
	os.Mkdir(pluginDir, 0755)
	os.WriteFile(filepath.Join(pluginDir, "manifest.yaml"), []byte("not: [valid"), 0644)

	var warned bool
	_, err := Discover(dir, func(level, msg string, args ...any) {
		if level == "warn" {
			warned = true
		}
	})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if !warned {
		t.Error("expected a warning for the broken plugin")
	}
}
