package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCmd_NoModelPresent_Errors(t *testing.T) {
	root := t.TempDir()
	cmd := newSearchCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--path", root, "hello", "world"})

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestSearchCmd_TopKFlagDefault(t *testing.T) {
	cmd := newSearchCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	topK, err := cmd.Flags().GetInt("top-k")
	require.NoError(t, err)
	assert.Equal(t, 5, topK)
}
