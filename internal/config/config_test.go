package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPServer.Address)
	assert.Equal(t, 5*time.Second, cfg.DB.QueryTimeout)
	assert.Equal(t, "book-marketplace", cfg.Storage.Bucket)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTPServer.AllowedOrigins)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from_file\nMINIO_BUCKET=from_file\n"), 0o644))
	t.Chdir(dir)
	t.Setenv("JWT_SECRET", "from_env")
	t.Setenv("MINIO_BUCKET", "")
	os.Unsetenv("MINIO_BUCKET")
	t.Cleanup(func() { os.Unsetenv("MINIO_BUCKET") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.JWTSecret)
	assert.Equal(t, "from_file", cfg.Storage.Bucket)
}

func TestLoad_ParsesLists(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTPServer.AllowedOrigins)
}
