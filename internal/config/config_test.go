package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, ProviderLocal, cfg.Provider)
	assert.Equal(t, "memory-exchange", cfg.IndexName)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_DefaultsDatabasePathUnderSourcePath(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "memory_exchange.db"), cfg.DatabasePath)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := "provider: azure\nazure_embedder_endpoint: https://example.invalid\nazure_search_endpoint: https://example.invalid\nindex_name: custom\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memex.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "azure", cfg.Provider)
	assert.Equal(t, "custom", cfg.IndexName)
}

func TestLoad_EnvOverridesProjectFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memex.yaml"), []byte("index_name: from-file\n"), 0o644))
	t.Setenv("MEMEX_INDEX_NAME", "from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.IndexName)
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := NewConfig()
	cfg.Provider = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidate_AzureRequiresEndpoints(t *testing.T) {
	cfg := NewConfig()
	cfg.Provider = ProviderAzure
	assert.Error(t, cfg.Validate())

	cfg.AzureEmbedderEndpoint = "https://example.invalid"
	cfg.AzureSearchEndpoint = "https://example.invalid"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}
