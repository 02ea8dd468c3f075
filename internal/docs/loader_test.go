package docs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSupported(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{path: "api.txt", expected: true},
		{path: "README.md", expected: true},
		{path: "guide.MDX", expected: true},
		{path: "docs/Reference.Md", expected: true},
		{path: "spec.pdf", expected: false},
		{path: "openapi.json", expected: false},
		{path: "Makefile", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, Supported(tt.path))
		})
	}
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.md", "# Cat facts\nGET /fact")
	second := writeFile(t, dir, "second.TXT", "Auth: none")
	unsupported := writeFile(t, dir, "schema.json", `{"ignored": true}`)
	missing := filepath.Join(dir, "missing.md")

	core, logs := observer.New(zap.WarnLevel)
	loader := NewLoader(zap.New(core))

	result := loader.Load(first, unsupported, missing, second, dir)

	assert.Equal(t, "# Cat facts\nGET /fact\n\nAuth: none", result)
	assert.Equal(t, 3, logs.FilterMessage("skipping documentation file").Len())
}

func TestLoader_Load_Nothing(t *testing.T) {
	assert.Empty(t, Load(nil))
	assert.Empty(t, Load(nil, "does-not-exist.md"))
}
