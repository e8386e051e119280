package payload

import (
	"bytes"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/velide/middleware-setup/internal/version"

	// Ensure SHA512 is available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// ManifestFilename is the release manifest shipped alongside payload files.
	ManifestFilename = "velide-payload.yaml"

	// DefaultFileMode is used when producing artifacts for distribution.
	DefaultFileMode os.FileMode = 0o755

	// ChecksumFunction is used to calculate payload file hashes.
	ChecksumFunction crypto.Hash = crypto.SHA512

	// defaultMapCapacity is the default initial capacity for the file map.
	defaultMapCapacity = 16
)

var (
	errHashUnavailable  = errors.New("hash function unavailable")
	errChecksumMismatch = errors.New("checksum mismatch")
	errNoChecksum       = errors.New("checksum missing for file")
)

// Manifest describes a published middleware release: its version and the
// base64-encoded checksum of every payload file, keyed by slash-separated
// path relative to the release root.
type Manifest struct {
	// VersionNumber is the semantic version of the release.
	VersionNumber string `yaml:"version"`
	// Files maps relative file paths to their base64-encoded checksums.
	Files map[string]string `yaml:"files"`
}

// NewManifest produces a Manifest initialized with the build version.
func NewManifest() *Manifest {
	return &Manifest{
		VersionNumber: version.Short(),
		Files:         make(map[string]string, defaultMapCapacity),
	}
}

// FileChecksum returns checksum bytes for a file using ChecksumFunction.
func FileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := ChecksumFunction.New()
	if _, err = hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// Scan walks a release directory and fills the manifest with the checksum
// of every regular file, excluding the manifest itself.
func (m *Manifest) Scan(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || d.Name() == ManifestFilename {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		checksum, err := FileChecksum(path)
		if err != nil {
			return err
		}

		m.Files[filepath.ToSlash(rel)] = base64.StdEncoding.EncodeToString(checksum)

		return nil
	})
}

// Checksum returns the decoded checksum recorded for a relative path.
func (m *Manifest) Checksum(rel string) ([]byte, error) {
	encoded, ok := m.Files[filepath.ToSlash(rel)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rel, errNoChecksum)
	}

	checksum, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode checksum for %s: %w", rel, err)
	}

	return checksum, nil
}

// Verify recomputes the checksum of every listed file under root and
// fails on the first mismatch or missing file.
func (m *Manifest) Verify(root string) error {
	for rel := range m.Files {
		want, err := m.Checksum(rel)
		if err != nil {
			return err
		}

		got, err := FileChecksum(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("verify %s: %w", rel, err)
		}

		if !bytes.Equal(want, got) {
			return fmt.Errorf("%s: %w", rel, errChecksumMismatch)
		}
	}

	return nil
}

// Parse decodes a manifest from raw YAML.
func Parse(contents []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	return &m, nil
}

// Load reads and parses a manifest from disk.
func Load(path string) (*Manifest, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	return Parse(contents)
}

// Save writes the manifest to disk.
func (m *Manifest) Save(path string) error {
	contents, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	return os.WriteFile(filepath.Clean(path), contents, DefaultFileMode)
}
