package render_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hostprowl/prowl/internal/render"
	"github.com/stretchr/testify/require"
)

func TestHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, render.HTML(&buf, "domains.json"))

	out := buf.String()
	require.Contains(t, out, "<title>Found Websites</title>")
	require.Contains(t, out, "domains.json")
	require.Contains(t, out, "searchDomains")
	require.Contains(t, out, "pagination")
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "found_websites.html")
	require.NoError(t, render.WriteFile(path, "domains.json"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "domains.json")
}

func TestWriteFile_BadDir(t *testing.T) {
	t.Parallel()

	err := render.WriteFile(filepath.Join(t.TempDir(), "nosuchdir", "page.html"), "domains.json")
	require.Error(t, err)
}
