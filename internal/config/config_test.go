package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "PORT", "DB_PATH", "JWT_SECRET", "ADMIN_USERNAME", "ADMIN_PASSWORD",
		"STORAGE_BACKEND", "STORAGE_DIR", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT",
		"S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_PREFIX",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "./filaprint.db", cfg.DBPath)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, "./static", cfg.Storage.Dir)
	assert.Equal(t, fallbackJWTSecret, cfg.JWTSecret)
	assert.True(t, cfg.IsDev())
	assert.Len(t, cfg.Warnings(), 2)
}

func TestLoad_DotEnvDoesNotOverwriteExistingEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := []byte(`
# comment
PORT=7070
export DB_PATH=/tmp/from-file.db
JWT_SECRET="quoted-secret"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, "quoted-secret", cfg.JWTSecret)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"), "")
	require.NoError(t, err)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load("", "")
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cr3t")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "s3cr3t", cfg.JWTSecret)
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_BACKEND", "S3")

	_, err := Load("", "")
	require.Error(t, err)

	t.Setenv("S3_BUCKET", "models")
	t.Setenv("S3_PREFIX", "/filaprint/")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, StorageS3, cfg.Storage.Backend)
	assert.Equal(t, "filaprint", cfg.Storage.S3.Prefix)
	assert.Equal(t, "auto", cfg.Storage.S3.Region)
}

func TestLoad_RejectsUnknownEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "staging")

	_, err := Load("", "")
	require.Error(t, err)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PORT: \"4040\"\nDB_PATH: /data/app.db\n"), 0o600))

	cfg, err := Load("", path)
	require.NoError(t, err)
	assert.Equal(t, "4040", cfg.Port)
	assert.Equal(t, "/data/app.db", cfg.DBPath)
}
