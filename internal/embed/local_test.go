package embed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModelPath_UsesConfiguredPathWhenPresent(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, modelFileName)
	require.NoError(t, os.WriteFile(modelPath, []byte("fake-model"), 0o644))

	resolved, err := ResolveModelPath(modelPath)
	require.NoError(t, err)
	assert.Equal(t, modelPath, resolved)
}

func TestResolveModelPath_FallsBackToCWDModelsDir(t *testing.T) {
	dir := t.TempDir()
	modelsDir := filepath.Join(dir, "Models")
	require.NoError(t, os.MkdirAll(modelsDir, 0o755))
	modelPath := filepath.Join(modelsDir, modelFileName)
	require.NoError(t, os.WriteFile(modelPath, []byte("fake-model"), 0o644))

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(oldWD)
	require.NoError(t, os.Chdir(dir))

	resolved, err := ResolveModelPath("")
	require.NoError(t, err)
	assert.Equal(t, modelPath, resolved)
}

func TestResolveModelPath_NoCandidateFailsClearly(t *testing.T) {
	_, err := ResolveModelPath("/definitely/not/a/real/path/model.onnx")
	assert.Error(t, err)
}

func TestMeanPool_AveragesOverUnmaskedPositions(t *testing.T) {
	seqLen, dim := 3, 2
	hidden := []float32{
		1, 1, // position 0 (CLS, unmasked)
		3, 3, // position 1 (unmasked)
		100, 100, // position 2 (masked out, padding)
	}
	mask := []int64{1, 1, 0}

	vec := meanPool(hidden, mask, 0, seqLen, dim)

	// raw mean before normalization would be (2, 2); after L2-normalize,
	// both components should be equal and the vector unit length.
	assert.InDelta(t, vec[0], vec[1], 1e-6)
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestMeanPool_AllMaskedOutLeavesZeroVector(t *testing.T) {
	vec := meanPool([]float32{1, 2, 3, 4}, []int64{0, 0}, 0, 2, 2)
	assert.Equal(t, []float32{0, 0}, vec)
}
