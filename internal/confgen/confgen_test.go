package confgen

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testTemplate = `target_system: {{ TARGET_SYSTEM }}
folder_to_watch: {{ FOLDER_TO_WATCH }}
api:
  velide_server: https://api.velide.app
`

// TestParseTargetSystem checks the closed target set and case-insensitivity.
func TestParseTargetSystem(t *testing.T) {
	t.Parallel()

	target, err := ParseTargetSystem("cds")
	require.NoError(t, err)
	require.Equal(t, TargetCDS, target)

	target, err = ParseTargetSystem(" FARMAX ")
	require.NoError(t, err)
	require.Equal(t, TargetFarmax, target)

	_, err = ParseTargetSystem("sap")
	require.Error(t, err)
}

// TestRender_CDS verifies both tokens are gone and the watched folder
// appears exactly once with every separator doubled.
func TestRender_CDS(t *testing.T) {
	t.Parallel()

	req := Request{
		Target:        TargetCDS,
		FolderToWatch: `C:\pharmacy\incoming`,
	}

	rendered, err := Render(testTemplate, req)
	require.NoError(t, err)

	require.NotContains(t, rendered, TokenTargetSystem)
	require.NotContains(t, rendered, TokenFolderToWatch)
	require.Contains(t, rendered, "target_system: CDS")
	require.Equal(t, 1, strings.Count(rendered, `"C:\\pharmacy\\incoming"`))
	require.NotContains(t, rendered, "farmax:")
}

// TestRender_Farmax verifies the null folder marker and the appended
// connection block.
func TestRender_Farmax(t *testing.T) {
	t.Parallel()

	req := Request{
		Target: TargetFarmax,
		Farmax: &FarmaxConnection{
			Host:     "db.pharmacy.local",
			Port:     3050,
			Database: `C:\Farmax\dados.fdb`,
			Username: "SYSDBA",
			Password: "masterkey",
		},
	}

	rendered, err := Render(testTemplate, req)
	require.NoError(t, err)
	require.Contains(t, rendered, "folder_to_watch: null")

	// The appended block must parse as YAML and carry the credentials.
	var parsed struct {
		Farmax FarmaxConnection `yaml:"farmax"`
	}

	block := rendered[strings.Index(rendered, "farmax:"):]
	require.NoError(t, yaml.Unmarshal([]byte(block), &parsed))
	require.Equal(t, *req.Farmax, parsed.Farmax)
}

// TestGenerate_NeverClobbersExistingConfig is the central invariant:
// an existing config is untouched regardless of upgrade state or target.
func TestGenerate_NeverClobbersExistingConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	templatePath := filepath.Join(dir, "config.template.yaml")
	configPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(templatePath, []byte(testTemplate), 0o600))

	userConfig := []byte("target_system: CDS # hand-edited\n")
	require.NoError(t, os.WriteFile(configPath, userConfig, 0o600))

	for _, upgradeMode := range []bool{false, true} {
		outcome, err := Generate(context.Background(), templatePath, configPath, upgradeMode, Request{Target: TargetFarmax})
		require.NoError(t, err)
		require.Equal(t, OutcomeAlreadyPresent, outcome)

		got, err := os.ReadFile(configPath)
		require.NoError(t, err)
		require.Equal(t, userConfig, got)
	}
}

// TestGenerate_UpgradeWithoutConfigIsNoOp ensures upgrade runs never
// synthesize a config and the outcome is distinguishable from "present".
func TestGenerate_UpgradeWithoutConfigIsNoOp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	templatePath := filepath.Join(dir, "config.template.yaml")
	configPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(templatePath, []byte(testTemplate), 0o600))

	outcome, err := Generate(context.Background(), templatePath, configPath, true, Request{Target: TargetCDS, FolderToWatch: "x"})
	require.NoError(t, err)
	require.Equal(t, OutcomeSkippedUpgrade, outcome)
	require.NotEqual(t, OutcomeAlreadyPresent.String(), outcome.String())

	_, err = os.Stat(configPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestGenerate_WritesUTF8BOM checks the generated file starts with the
// byte-order marker and contains the rendered content.
func TestGenerate_WritesUTF8BOM(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	templatePath := filepath.Join(dir, "config.template.yaml")
	configPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(templatePath, []byte(testTemplate), 0o600))

	req := Request{Target: TargetCDS, FolderToWatch: `D:\drop`}

	outcome, err := Generate(context.Background(), templatePath, configPath, false, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeWritten, outcome)

	got, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, []byte{0xEF, 0xBB, 0xBF}, got[:3])
	require.Contains(t, string(got), `"D:\\drop"`)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	for _, entry := range entries {
		require.False(t, strings.HasSuffix(entry.Name(), ".tmp"))
	}
}

// TestGenerate_MissingTemplateAbortsStep confirms an unreadable template
// surfaces an error without creating a config.
func TestGenerate_MissingTemplateAbortsStep(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	_, err := Generate(context.Background(), filepath.Join(dir, "missing.yaml"), configPath, false, Request{Target: TargetCDS, FolderToWatch: "x"})
	require.Error(t, err)

	_, err = os.Stat(configPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRequestValidate covers target-specific parameter requirements.
func TestRequestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Request{Target: "SAP"}.Validate())
	require.Error(t, Request{Target: TargetCDS}.Validate())
	require.Error(t, Request{Target: TargetFarmax}.Validate())
	require.NoError(t, Request{Target: TargetCDS, FolderToWatch: `C:\in`}.Validate())
	require.NoError(t, Request{Target: TargetFarmax, Farmax: &FarmaxConnection{Host: "h", Port: 3050, Database: "d"}}.Validate())
}
