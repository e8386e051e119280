package confgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/velide/middleware-setup/internal/logger"
)

const (
	// TokenTargetSystem is replaced with the chosen target system name.
	TokenTargetSystem = "{{ TARGET_SYSTEM }}"

	// TokenFolderToWatch is replaced with the escaped watched folder for
	// file-drop targets, or with a null marker otherwise.
	TokenFolderToWatch = "{{ FOLDER_TO_WATCH }}"

	// nullMarker is emitted for targets that do not watch a folder.
	nullMarker = "null"

	// generatedFileMode is the permission mode of the generated config.
	generatedFileMode os.FileMode = 0o600

	// tempFilePattern names the temp files used by writeAtomic.
	tempFilePattern = ".config-*.tmp"
)

// utf8BOM is prepended to the generated config. The middleware's settings
// loader expects it on Windows installations.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var (
	// errUnknownTargetSystem is returned for targets outside the closed set.
	errUnknownTargetSystem = errors.New("unknown target system")
	// errFolderRequired is returned when a file-drop target has no watched folder.
	errFolderRequired = errors.New("folder to watch must be provided")
	// errConnectionRequired is returned when a database target has no connection block.
	errConnectionRequired = errors.New("database connection must be provided")
)

// TargetSystem names the external system the middleware integrates with.
type TargetSystem string

// The closed set of supported integration targets.
const (
	// TargetCDS integrates via files dropped into a watched folder.
	TargetCDS TargetSystem = "CDS"
	// TargetFarmax integrates via a direct Firebird database connection.
	TargetFarmax TargetSystem = "Farmax"
)

// ParseTargetSystem maps user input onto the closed target set, case-insensitively.
func ParseTargetSystem(s string) (TargetSystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cds":
		return TargetCDS, nil
	case "farmax":
		return TargetFarmax, nil
	default:
		return "", fmt.Errorf("%q: %w", s, errUnknownTargetSystem)
	}
}

// NeedsFolderWatch reports whether the target consumes files from a watched folder.
func (t TargetSystem) NeedsFolderWatch() bool {
	return t == TargetCDS
}

// NeedsConnection reports whether the target requires database credentials.
func (t TargetSystem) NeedsConnection() bool {
	return t == TargetFarmax
}

// FarmaxConnection holds the credentials appended for database-backed targets.
type FarmaxConnection struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Request carries the immutable parameters collected by the interactive
// phase. It is passed by value into Generate so later steps cannot be
// affected by wizard state mutations.
type Request struct {
	// Target is the integration target chosen during setup.
	Target TargetSystem
	// FolderToWatch is the folder file-drop targets listen on.
	FolderToWatch string
	// Farmax is the connection block for database-backed targets.
	Farmax *FarmaxConnection
}

// Validate checks the request against the needs of the chosen target.
func (r Request) Validate() error {
	if _, err := ParseTargetSystem(string(r.Target)); err != nil {
		return err
	}

	if r.Target.NeedsFolderWatch() && strings.TrimSpace(r.FolderToWatch) == "" {
		return errFolderRequired
	}

	if r.Target.NeedsConnection() && r.Farmax == nil {
		return errConnectionRequired
	}

	return nil
}

// Outcome describes what Generate did.
type Outcome int

const (
	// OutcomeWritten means a fresh config was generated.
	OutcomeWritten Outcome = iota
	// OutcomeAlreadyPresent means an existing config was left untouched.
	OutcomeAlreadyPresent
	// OutcomeSkippedUpgrade means generation was aborted because the run is
	// an upgrade and no config exists to preserve; synthesizing one from
	// stale wizard state would be wrong.
	OutcomeSkippedUpgrade
)

// String returns a log-friendly name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeAlreadyPresent:
		return "config already present"
	case OutcomeSkippedUpgrade:
		return "skipped on upgrade"
	default:
		return "unknown"
	}
}

// Generate renders the middleware config from the template. An existing
// config is never modified, regardless of upgrade state or chosen target.
// Errors abort config generation only; callers continue the rest of the
// install.
func Generate(ctx context.Context, templatePath, configPath string, upgradeMode bool, req Request) (Outcome, error) {
	if _, err := os.Stat(configPath); err == nil {
		logger.InfoKV(ctx, "Config already present, leaving user settings untouched", "path", configPath)
		return OutcomeAlreadyPresent, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return OutcomeAlreadyPresent, fmt.Errorf("stat config: %w", err)
	}

	if upgradeMode {
		logger.WarnKV(ctx, "Upgrade run without an existing config, aborting config generation", "path", configPath)
		return OutcomeSkippedUpgrade, nil
	}

	if err := req.Validate(); err != nil {
		return OutcomeWritten, err
	}

	contents, err := os.ReadFile(filepath.Clean(templatePath))
	if err != nil {
		return OutcomeWritten, fmt.Errorf("read template: %w", err)
	}

	rendered, err := Render(string(contents), req)
	if err != nil {
		return OutcomeWritten, err
	}

	if err := writeAtomic(configPath, rendered); err != nil {
		return OutcomeWritten, fmt.Errorf("write config: %w", err)
	}

	logger.InfoKV(ctx, "Generated middleware config", "path", configPath, "target", req.Target)

	return OutcomeWritten, nil
}

// Render substitutes the template tokens line by line and appends the
// target-specific connection block after all substitutions.
func Render(template string, req Request) (string, error) {
	folderValue := nullMarker
	if req.Target.NeedsFolderWatch() {
		folderValue = `"` + EscapePath(req.FolderToWatch) + `"`
	}

	lines := strings.Split(template, "\n")
	for i, line := range lines {
		line = strings.ReplaceAll(line, TokenTargetSystem, string(req.Target))
		line = strings.ReplaceAll(line, TokenFolderToWatch, folderValue)
		lines[i] = line
	}

	result := strings.Join(lines, "\n")

	if req.Target.NeedsConnection() && req.Farmax != nil {
		block, err := yaml.Marshal(map[string]*FarmaxConnection{"farmax": req.Farmax})
		if err != nil {
			return "", fmt.Errorf("marshal connection block: %w", err)
		}

		if !strings.HasSuffix(result, "\n") {
			result += "\n"
		}

		result += string(block)
	}

	return result, nil
}

// EscapePath doubles every path separator so the path stays valid inside
// the quoted config value.
func EscapePath(path string) string {
	return strings.ReplaceAll(path, `\`, `\\`)
}

// writeAtomic writes the rendered config as UTF-8 with a byte-order marker,
// going through a temp file in the same directory so readers never observe
// a half-written config.
func writeAtomic(path, rendered string) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err = tmp.Write(utf8BOM); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if _, err = tmp.WriteString(rendered); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err = os.Chmod(tmpName, generatedFileMode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return nil
}
