package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_CarriesDocumentedTuning(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 20, cfg.Tuning.MergeFactor)
	assert.Equal(t, 50, cfg.Tuning.DocsPerSegment)
	assert.Equal(t, time.Second, cfg.RetryDelayDuration())
	assert.Equal(t, 5*time.Second, cfg.PacingSleepDuration())
	assert.True(t, cfg.InMemory())
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "en", cfg.Index.DefaultLanguage)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
index:
  dir: /var/lib/feedindex
  default_language: de
tuning:
  merge_factor: 8
  pacing_sleep: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/feedindex", cfg.Index.Dir)
	assert.False(t, cfg.InMemory())
	assert.Equal(t, "de", cfg.Index.DefaultLanguage)
	assert.Equal(t, 8, cfg.Tuning.MergeFactor)
	assert.Equal(t, 2*time.Second, cfg.PacingSleepDuration())
	// Untouched fields keep their defaults.
	assert.Equal(t, 50, cfg.Tuning.DocsPerSegment)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tuning:\n  retry_delay: soon\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RejectsBadTuning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tuning.MergeFactor = 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tuning.DocsPerSegment = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Index.DefaultLanguage = ""
	assert.Error(t, cfg.Validate())
}

func TestLanguage_NormalizesCultureTags(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		culture string
		want    string
	}{
		{"de", "de"},
		{"de-AT", "de"},
		{"pt_BR", "pt"},
		{"FR-fr", "fr"},
		{"", "en"},
		{"zz-ZZ", "en"}, // unconfigured language falls back
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Language(tt.culture), "culture %q", tt.culture)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Index.Dir = "/tmp/idx"
	cfg.Feeds.ListPath = "/tmp/feeds.json"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Index.Dir, loaded.Index.Dir)
	assert.Equal(t, cfg.Feeds.ListPath, loaded.Feeds.ListPath)
}
