package manifest

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

const lockFilename = ".checksums.yaml"

// Lockfile pins BLAKE3 hashes of every plugin's manifest and entrypoint, so
// a silently swapped binary is caught before the host executes it.
type Lockfile struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockReport captures checksum generation outcome for the plugins dir.
type LockReport struct {
	LockPath string
	Written  bool
	Hashes   map[string]string
}

// ComputeFileHash computes the BLAKE3 hash of a file.
func ComputeFileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Lock hashes every discovered plugin's manifest.yaml and entrypoint and
// writes .checksums.yaml in the plugins dir. When dryRun is true, hashes are
// computed and reported without writing.
func Lock(pluginsDir string, reg *Registry, dryRun bool) (*LockReport, error) {
	absRoot, err := filepath.Abs(pluginsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugins dir %q: %w", pluginsDir, err)
	}

	report := &LockReport{
		LockPath: filepath.Join(absRoot, lockFilename),
		Hashes:   make(map[string]string),
	}

	for _, name := range reg.Names() {
		plugin, _ := reg.Get(name)
		for _, path := range []string{filepath.Join(plugin.Path, manifestFilename), plugin.Entrypoint} {
			rel, err := filepath.Rel(absRoot, path)
			if err != nil {
				return nil, fmt.Errorf("failed to relativize %s: %w", path, err)
			}

			hash, err := ComputeFileHash(path)
			if err != nil {
				return nil, fmt.Errorf("failed to hash %s: %w", rel, err)
			}
			report.Hashes[rel] = hash
		}
	}

	if dryRun {
		return report, nil
	}

	lock := Lockfile{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      report.Hashes,
	}

	data, err := yaml.Marshal(lock)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lockfile: %w", err)
	}

	// Write with restrictive permissions (contains expected hashes)
	if err := os.WriteFile(report.LockPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write lockfile: %w", err)
	}
	report.Written = true

	return report, nil
}

// LoadLockfile reads .checksums.yaml from the plugins dir.
func LoadLockfile(pluginsDir string) (*Lockfile, error) {
	lockPath := filepath.Join(pluginsDir, lockFilename)

	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("lockfile not found (run 'markhor plugins lock')")
		}
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	var lock Lockfile
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lockfile: %w", err)
	}

	if lock.Version != 1 {
		return nil, fmt.Errorf("unsupported lockfile version: %d", lock.Version)
	}

	return &lock, nil
}

// Verify checks every discovered plugin's manifest and entrypoint against
// the lockfile. A file missing from the lockfile or hashing differently is
// an error.
func Verify(pluginsDir string, reg *Registry) error {
	absRoot, err := filepath.Abs(pluginsDir)
	if err != nil {
		return fmt.Errorf("failed to resolve plugins dir %q: %w", pluginsDir, err)
	}

	lock, err := LoadLockfile(absRoot)
	if err != nil {
		return err
	}

	for _, name := range reg.Names() {
		plugin, _ := reg.Get(name)
		for _, path := range []string{filepath.Join(plugin.Path, manifestFilename), plugin.Entrypoint} {
			rel, err := filepath.Rel(absRoot, path)
			if err != nil {
				return fmt.Errorf("failed to relativize %s: %w", path, err)
			}

			expected, ok := lock.Hashes[rel]
			if !ok {
				return fmt.Errorf("plugin file %s has no hash in lockfile (run 'markhor plugins lock')", rel)
			}

			actual, err := ComputeFileHash(path)
			if err != nil {
				return fmt.Errorf("failed to hash %s: %w", rel, err)
			}
			if actual != expected {
				return fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
					"This indicates tampering or unauthorized modification.\n"+
					"If you changed this plugin intentionally, run: markhor plugins lock", rel, expected, actual)
			}
		}
	}

	return nil
}
