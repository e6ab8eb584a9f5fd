package app

import (
	"mime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setSecrets(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, StorageLocal, cfg.StorageDriver)
	assert.Equal(t, 10, cfg.PostsPerPage)
	assert.Equal(t, int64(2097152), cfg.MaxUploadBytes)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "en", cfg.SlugLanguage())
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing session secret", map[string]string{"SESSION_SECRET": ""}},
		{"missing csrf secret", map[string]string{"CSRF_SECRET": ""}},
		{"malformed locale", map[string]string{"APP_LOCALE": "not a locale!"}},
		{"unknown storage driver", map[string]string{"STORAGE_DRIVER": "ftp"}},
		{"minio without keys", map[string]string{"STORAGE_DRIVER": StorageMinIO}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setSecrets(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMinIO(t *testing.T) {
	setSecrets(t)
	t.Setenv("STORAGE_DRIVER", StorageMinIO)
	t.Setenv("MINIO_ACCESS_KEY", "minio")
	t.Setenv("MINIO_SECRET_KEY", "minio123")
	t.Setenv("APP_LOCALE", "de-AT")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "inkpress", cfg.MinIOBucket)
	assert.Equal(t, "de", cfg.SlugLanguage())
	assert.True(t, cfg.IsProduction())
}

func TestAssetMimeTypes(t *testing.T) {
	assert.Equal(t, "image/webp", mime.TypeByExtension(".webp"))
	assert.Contains(t, mime.TypeByExtension(".css"), "text/css")
}
