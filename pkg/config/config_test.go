package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.Extraction.Provider)
	assert.True(t, cfg.Extraction.Fallback)
	assert.Equal(t, 90*time.Second, cfg.Extraction.Timeout)
	assert.Equal(t, 4, cfg.Export.Concurrency)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, 10*time.Minute, cfg.ProcessingStaleAfter)
	assert.Equal(t, "https://abr.business.gov.au/json", cfg.ABR.BaseURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EXTRACTION_PROVIDER", "gigachat")
	t.Setenv("EXTRACTION_FALLBACK", "false")
	t.Setenv("EXPORT_CONCURRENCY", "0")
	t.Setenv("DB_NAME", "receipts_test")
	t.Setenv("JWT_EXPIRATION", "1h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gigachat", cfg.Extraction.Provider)
	assert.False(t, cfg.Extraction.Fallback)
	assert.Equal(t, 1, cfg.Export.Concurrency)
	assert.Equal(t, time.Hour, cfg.JWT.Expiration)
	assert.Contains(t, cfg.Database.DSN(), "dbname=receipts_test")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EXTRACTION_PROVIDER", "tesseract")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresBucketForS3(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "s3")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsStaleWindowWithinExtractionTimeout(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EXTRACTION_TIMEOUT", "2m")
	t.Setenv("PROCESSING_STALE_AFTER", "2m")

	_, err := Load()
	require.ErrorContains(t, err, "PROCESSING_STALE_AFTER")
}
