package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()
	require.Equal(t, TransportStdio, cfg.Transport)
	require.Equal(t, BackendHNSW, cfg.VectorDB)
	require.True(t, cfg.Features.HybridSearch)
	require.False(t, cfg.Features.Reranking)
	require.Equal(t, 5000, cfg.Tuning.ChunkSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "ragcrawl.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("port: 9090\nvector_db: pgvector\npostgres_url: postgres://localhost/ragcrawl\n"), 0o644))

	cfg, err := Load(dir, yamlPath)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, BackendPG, cfg.VectorDB)
}

func TestLoadDotEnvOverridesAmbientEnvironment(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("CHUNK_SIZE=4000\n"), 0o644))

	t.Setenv("CHUNK_SIZE", "9999")

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	// The .env file must win over the ambient process environment variable
	// that was already set before Load ran (godotenv.Overload semantics).
	require.Equal(t, 4000, cfg.Tuning.ChunkSize)
}

func TestLoadEnvOverridesFeatureFlags(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("USE_RERANKING", "true")
	t.Setenv("USE_HYBRID_SEARCH", "false")

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	require.True(t, cfg.Features.Reranking)
	require.False(t, cfg.Features.HybridSearch)
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	cfg := New()
	cfg.Transport = "carrier-pigeon"
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresPostgresURLForPGBackend(t *testing.T) {
	cfg := New()
	cfg.VectorDB = BackendPG
	require.Error(t, cfg.Validate())

	cfg.PostgresURL = "postgres://localhost/db"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresPortForHTTPTransport(t *testing.T) {
	cfg := New()
	cfg.Transport = TransportHTTP
	cfg.Port = 0
	require.Error(t, cfg.Validate())
}
