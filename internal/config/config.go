package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds parameters shared by the setup binaries.
type Settings struct {
	// InstallRoot is the directory the middleware is installed into.
	InstallRoot string `yaml:"install_root"`
	// ServerUpdateFolder is the URL where release artifacts are hosted.
	ServerUpdateFolder string `yaml:"update_folder"`
	// SigningPublicKey is the path to the PEM public key used to verify
	// release manifest signatures. Empty disables signature verification.
	SigningPublicKey string `yaml:"signing_public_key"`
	// Timeout is the duration for network operations such as payload downloads.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultSettingsFilename is the default filename for setup settings.
	DefaultSettingsFilename = "velide-setup-settings.yaml"

	// ResourcesDirName is the subdirectory of the install root holding
	// the generated config and its template.
	ResourcesDirName = "resources"

	// GeneratedConfigFilename is the middleware config produced on first install.
	GeneratedConfigFilename = "config.yaml"

	// ConfigTemplateFilename is the template the config is generated from.
	ConfigTemplateFilename = "config.template.yaml"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 15 * time.Second

	// DefaultFilePermissions is the default file permission for settings files.
	DefaultFilePermissions = 0o600

	// Base executable names; platform helpers append extension when needed.
	baseMainExecutable    = "velide-middleware"
	baseApplierExecutable = "velide-applier"
)

var (
	// errSettingsAreNotSet is returned when a nil settings struct is provided.
	errSettingsAreNotSet = errors.New("settings are not set")
	// errInstallRootRequired is returned when the install root is missing.
	errInstallRootRequired = errors.New("install root must be provided")
)

// Load reads settings from the provided path and validates essential fields.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultSettingsFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(contents, &s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&s); err != nil {
		return nil, err
	}

	return &s, nil
}

// Save writes settings to the provided path.
func Save(path string, s *Settings) error {
	if s == nil {
		return errSettingsAreNotSet
	}

	if path == "" {
		path = DefaultSettingsFilename
	}

	if err := Validate(s); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting.
func Validate(s *Settings) error {
	if s == nil {
		return errSettingsAreNotSet
	}

	if strings.TrimSpace(s.InstallRoot) == "" {
		return errInstallRootRequired
	}

	// Set default timeout if not specified.
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}

	if s.ServerUpdateFolder == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(s.ServerUpdateFolder); err != nil {
		return fmt.Errorf("invalid update folder URI: %w", err)
	}

	return nil
}

// GeneratedConfigPath returns the config location under the install root.
func GeneratedConfigPath(installRoot string) string {
	return filepath.Join(installRoot, ResourcesDirName, GeneratedConfigFilename)
}

// ConfigTemplatePath returns the template location under the install root.
func ConfigTemplatePath(installRoot string) string {
	return filepath.Join(installRoot, ResourcesDirName, ConfigTemplateFilename)
}

// MainExecutableName returns the middleware executable name for the current platform.
func MainExecutableName() string {
	return baseMainExecutable + ExecutableExtension()
}

// ApplierExecutableName returns the applier executable name for the current platform.
func ApplierExecutableName() string {
	return baseApplierExecutable + ExecutableExtension()
}

// ExecutableExtension returns ".exe" on Windows and "" elsewhere.
func ExecutableExtension() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return ".exe"
	}

	return ""
}
