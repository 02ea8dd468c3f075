package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTasks(t *testing.T) {
	input := `
# cat facts
get a cat fact from https://catfact.ninja/fact

  list the posts from https://jsonplaceholder.typicode.com/posts  
`
	tasks, err := readTasks(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"get a cat fact from https://catfact.ninja/fact",
		"list the posts from https://jsonplaceholder.typicode.com/posts",
	}, tasks)
}

func TestLoadTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\nsecond\n"), 0o600))

	tasks, err := loadTasks(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, tasks)

	tasks, err = loadTasks("-", strings.NewReader("from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"from stdin"}, tasks)

	_, err = loadTasks(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func TestCommands_Args(t *testing.T) {
	assert.Error(t, runCmd.Args(runCmd, nil))
	assert.Error(t, runCmd.Args(runCmd, []string{"a", "b"}))
	assert.NoError(t, runCmd.Args(runCmd, []string{"get a cat fact"}))

	for _, name := range []string{"doc", "raw"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
		assert.NotNil(t, batchCmd.Flags().Lookup(name), name)
	}
	assert.NotNil(t, batchCmd.Flags().Lookup("file"))
}
