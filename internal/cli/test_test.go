package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, data, 0o644))
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := execTest(t, "json", t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestTestCommandPasses(t *testing.T) {
	out, err := execTest(t, "text", "testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ feedback\n")
	assert.Contains(t, out, "✓ sum\n")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execTest(t, "json", "--filter", "feed*", "testdata/scenarios")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, ScenarioResult{Name: "feedback", Pass: true}, resp.Data.Scenarios[0])
}

func TestTestCommandFailure(t *testing.T) {
	out, err := execTest(t, "json", "testdata/failing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	require.NotEmpty(t, resp.Data.Scenarios[0].Errors)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "Assertion failed: final_value")
}

func TestTestCommandUpdateAndMismatch(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	copyFile(t, "testdata/patches/sum.yaml", filepath.Join(dir, "patches", "sum.yaml"))
	copyFile(t, "testdata/scenarios/sum.yaml", filepath.Join(scenarios, "sum.yaml"))

	out, err := execTest(t, "text", "--update", scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ sum (golden updated)")

	golden, err := os.ReadFile(filepath.Join(scenarios, "golden", "sum.golden"))
	require.NoError(t, err)
	assert.Equal(t, "# sum run=test-run ticks=2\n"+
		"tick=1 time=1 node=total port=out value=8\n"+
		"tick=2 time=2 node=total port=out value=8\n", string(golden))

	_, err = execTest(t, "text", scenarios)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "golden", "sum.golden"), []byte("# stale\n"), 0o644))
	out, err = execTest(t, "text", scenarios)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestHelpText(t *testing.T) {
	out, err := execTest(t, "text", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "conformance")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "scenarios-dir")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "b.yaml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.yml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "golden", "c.yaml"), []byte(""), 0o644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(tmpDir, "a.yml"), filepath.Join(tmpDir, "b.yaml")}, files)

	files, err = findScenarioFiles(tmpDir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(tmpDir, "b.yaml")}, files)

	_, err = findScenarioFiles(tmpDir, "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yaml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.input))
	}
}

func TestExampleScenarios(t *testing.T) {
	out, err := execTest(t, "text", "../../examples/scenarios")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}
