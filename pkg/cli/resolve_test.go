package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/prism/pkg/compilecache"
)

func TestResolveCommand(t *testing.T) {
	dir := setupProject(t, map[string]string{"src/app.txt": "hello"})
	outDir := t.TempDir()
	out, _ := captureOutput(t)

	args := []string{"resolve",
		"-resource", "src/app.txt",
		"-group", "best,fallback",
		"-cmd", "tr a-z A-Z",
		"-content-type", "text/plain",
		"-out", outDir,
	}
	require.NoError(t, NewRootCommand().ExecuteArgs(args))

	reports := out.reports(t)
	require.Len(t, reports, 2)
	assert.Equal(t, "best", reports[0].Group)
	assert.Equal(t, "fallback", reports[1].Group)
	for _, r := range reports {
		assert.Equal(t, string(compilecache.StatusCreated), r.Status)
		assert.Equal(t, "text/plain", r.ContentType)
		assert.NotEmpty(t, r.Fingerprint)
		assert.Equal(t, 5, r.Size)
	}

	for _, group := range []string{"best", "fallback"} {
		data, err := os.ReadFile(filepath.Join(outDir, group, "src", "app.txt"))
		require.NoError(t, err)
		assert.Equal(t, "HELLO", string(data))
	}
	assert.FileExists(t, filepath.Join(dir, ".prism", "best", "src", "app.txt"))

	// second run is served from the cache
	require.NoError(t, NewRootCommand().ExecuteArgs(args))
	reports = out.reports(t)
	require.Len(t, reports, 4)
	assert.Equal(t, string(compilecache.StatusCached), reports[2].Status)
	assert.Equal(t, string(compilecache.StatusCached), reports[3].Status)

	// changing the source recompiles
	writeProjectFile(t, dir, "src/app.txt", "changed")
	require.NoError(t, NewRootCommand().ExecuteArgs(args))
	reports = out.reports(t)
	require.Len(t, reports, 6)
	assert.Equal(t, string(compilecache.StatusUpdated), reports[4].Status)
}

func TestResolveCommand_ParseError(t *testing.T) {
	dir := setupProject(t, map[string]string{
		"app.js":  "let",
		"fail.sh": "echo '1:4: unexpected end of input' >&2\nexit 65\n",
	})
	out, _ := captureOutput(t)

	err := NewRootCommand().ExecuteArgs([]string{"resolve",
		"-resource", "app.js",
		"-group", "best",
		"-cmd", "sh fail.sh",
	})
	require.Error(t, err)

	reports := out.reports(t)
	require.Len(t, reports, 1)
	assert.Equal(t, string(compilecache.StatusError), reports[0].Status)
	assert.Contains(t, reports[0].Error, "app.js:1:4: unexpected end of input")
	assert.NoFileExists(t, filepath.Join(dir, ".prism", "best", "app.js"))
}

func TestResolveCommand_Errors(t *testing.T) {
	setupProject(t, map[string]string{"app.js": "x"})
	captureOutput(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing resource", []string{"resolve", "-group", "best", "-cmd", "cat"}},
		{"missing group", []string{"resolve", "-resource", "app.js", "-cmd", "cat"}},
		{"missing cmd", []string{"resolve", "-resource", "app.js", "-group", "best"}},
		{"bad if-modified-since", []string{"resolve", "-resource", "app.js", "-group", "best", "-cmd", "cat", "-if-modified-since", "yesterday"}},
		{"missing source", []string{"resolve", "-resource", "missing.js", "-group", "best", "-cmd", "cat"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewRootCommand().ExecuteArgs(tt.args))
		})
	}
}
