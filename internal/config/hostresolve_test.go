package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"example.org":              "http://example.org/api/databrowser",
		"https://example.org":      "https://example.org/api/databrowser",
		"example.org/some/path":    "http://example.org/api/databrowser",
		"https://example.org:8443": "https://example.org:8443/api/databrowser",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHost(in), in)
	}
}

func TestResolveClientHostFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "freva.toml")
	require.NoError(t, os.WriteFile(path, []byte("[databrowser]\nhost = \"data.example.org\"\nport = 8080\n"), 0o644))

	host, ok := ResolveClientHost([]string{filepath.Join(dir, "missing.toml"), path})
	require.True(t, ok)
	assert.Equal(t, "http://data.example.org:8080/api/databrowser", host)
}

func TestResolveClientHostFromLegacyINI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evaluation_system.conf")
	require.NoError(t, os.WriteFile(path, []byte("[core]\nsolr.host = legacy.example.org\n"), 0o644))

	host, ok := ResolveClientHost([]string{path})
	require.True(t, ok)
	assert.Equal(t, "http://legacy.example.org/api/databrowser", host)
}

func TestResolveClientHostNoneFound(t *testing.T) {
	_, ok := ResolveClientHost([]string{"/nonexistent/freva.toml"})
	assert.False(t, ok)
}
