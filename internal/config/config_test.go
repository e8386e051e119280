package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and format validations for Settings.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing install root.
	settings := new(Settings)

	err := Validate(settings)
	require.Error(t, err)

	// Bad update folder URI.
	settings = &Settings{
		InstallRoot:        "/opt/velide",
		ServerUpdateFolder: "not a uri",
	}

	err = Validate(settings)
	require.Error(t, err)

	// Okay with update folder; default timeout filled in.
	settings = &Settings{
		InstallRoot:        "/opt/velide",
		ServerUpdateFolder: "https://updates.velide.app/middleware",
	}

	err = Validate(settings)
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, settings.Timeout)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Settings{
		InstallRoot:        "/opt/velide",
		ServerUpdateFolder: "https://updates.velide.app/middleware",
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.InstallRoot, loaded.InstallRoot)
	require.Equal(t, settings.ServerUpdateFolder, loaded.ServerUpdateFolder)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLayoutPaths verifies the well-known locations under the install root.
func TestLayoutPaths(t *testing.T) {
	t.Parallel()

	root := filepath.Join("some", "root")
	require.Equal(t, filepath.Join(root, ResourcesDirName, GeneratedConfigFilename), GeneratedConfigPath(root))
	require.Equal(t, filepath.Join(root, ResourcesDirName, ConfigTemplateFilename), ConfigTemplatePath(root))
}
