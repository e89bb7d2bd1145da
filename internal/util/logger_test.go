package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanOldLogs_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	for i, name := range []string{"a.log", "b.log", "c.log", "keep.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, nil, 0644))
		stamp := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, stamp, stamp))
	}

	cleanOldLogs(dir, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"b.log", "c.log", "keep.txt"}, names)
}

func TestInitLogger_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Directory: dir, MaxBackups: 3}))

	matches, err := filepath.Glob(filepath.Join(dir, "sourcequery_*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
