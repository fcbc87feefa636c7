package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSourcePath_DefaultsToCurrentDirectory(t *testing.T) {
	tmp := t.TempDir()
	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	defer func() { _ = os.Chdir(oldDir) }()

	resolved, err := resolveSourcePath("")
	require.NoError(t, err)

	realTmp, err := filepath.EvalSymlinks(tmp)
	require.NoError(t, err)
	realResolved, err := filepath.EvalSymlinks(resolved)
	require.NoError(t, err)
	assert.Equal(t, realTmp, realResolved)
}

func TestResolveSourcePath_RejectsMissingPath(t *testing.T) {
	_, err := resolveSourcePath(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestResolveSourcePath_RejectsFile(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := resolveSourcePath(file)
	assert.Error(t, err)
}

func TestBuild_PropagatesEmbedderConstructionError(t *testing.T) {
	root := t.TempDir()
	cfg, err := loadConfigAt(root)
	require.NoError(t, err)

	_, err = build(t.Context(), cfg)
	assert.Error(t, err, "no model file is present in this temp dir, so embedder construction must fail")
}
