package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DB_TYPE", "DATABASE_URL", "GOOGLE_API_KEY", "EMBEDDING_MODEL", "AGENT_MODEL", "SUPABASE_URL", "SUPABASE_ANON_KEY", "LOG_FORMAT", "LOG_VERBOSE"} {
		t.Setenv(key, "")
	}
	t.Setenv("WORK_DIR", "/tmp/work")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "./studio-memory.db", cfg.DatabaseURL)
	assert.Equal(t, "text-embedding-004", cfg.EmbeddingModel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.LogVerbose)
	assert.Equal(t, "/tmp/work", cfg.WorkDir)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/studio")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_VERBOSE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, "postgres://u:p@localhost:5432/studio", cfg.DatabaseURL)
	assert.Equal(t, "g-key", cfg.APIKey)
	assert.Equal(t, "https://proj.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, "anon", cfg.SupabaseAnonKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.LogVerbose)
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateExport())
	assert.NoError(t, cfg.ValidateAgent())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "bad db type", cfg: Config{DBType: "mysql", DatabaseURL: "x", LogFormat: "console"}, wantErr: "DB_TYPE"},
		{name: "missing postgres url", cfg: Config{DBType: "postgres", LogFormat: "console"}, wantErr: "postgres://"},
		{name: "missing sqlite path", cfg: Config{DBType: "sqlite", LogFormat: "console"}, wantErr: "data.db"},
		{name: "bad log format", cfg: Config{DBType: "sqlite", DatabaseURL: "x", LogFormat: "xml"}, wantErr: "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateExportAndAgent(t *testing.T) {
	assert.ErrorContains(t, Config{}.ValidateExport(), "SUPABASE_URL")
	assert.ErrorContains(t, Config{SupabaseURL: "https://x"}.ValidateExport(), "SUPABASE_ANON_KEY")
	assert.ErrorContains(t, Config{}.ValidateAgent(), "GOOGLE_API_KEY")
}
