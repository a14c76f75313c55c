package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchbay/internal/patch"
)

func execExport(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewExportCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestExportToStdoutYAML(t *testing.T) {
	out, err := execExport(t, "text", "testdata/patches/feedback.cue")
	require.NoError(t, err)

	doc, err := patch.Decode(bytes.NewBufferString(out), patch.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "feedback", doc.Name)
	require.Len(t, doc.Nodes, 2)
	assert.Equal(t, "integ", doc.Nodes[0].Name)
	assert.Equal(t, int64(1), doc.Nodes[0].ID)
	assert.Len(t, doc.Connections, 2)
}

func TestExportToStdoutJSON(t *testing.T) {
	out, err := execExport(t, "text", "--as", "json", "testdata/patches/sum.yaml")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
	assert.Contains(t, out, `"name": "sum"`)
}

func TestExportToFileKeepsHash(t *testing.T) {
	src, err := patch.LoadFile("testdata/patches/feedback.cue")
	require.NoError(t, err)
	want, err := patch.Hash(src)
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "feedback.json")
	out, err := execExport(t, "json", "--out", outPath, "testdata/patches/feedback.cue")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ExportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, want, resp.Data.Hash)

	written, err := patch.LoadFile(outPath)
	require.NoError(t, err)
	got, err := patch.Hash(written)
	require.NoError(t, err)
	assert.Equal(t, want, got, "export must not change the patch")
}

func TestExportErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{"invalid patch", []string{"testdata/patches/invalid.yaml"}, ExitFailure},
		{"bad --as", []string{"--as", "toml", "testdata/patches/sum.yaml"}, ExitCommandError},
		{"--as disagrees with --out", []string{"--as", "json", "--out", filepath.Join(t.TempDir(), "x.yaml"), "testdata/patches/sum.yaml"}, ExitCommandError},
		{"unsupported extension", []string{"--out", filepath.Join(t.TempDir(), "x.txt"), "testdata/patches/sum.yaml"}, ExitCommandError},
		{"missing patch", []string{"testdata/patches/nope.cue"}, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execExport(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
		})
	}
}
