package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	c, err := LoadFrom(New())
	require.NoError(t, err)
	require.Equal(t, "memory", c.Source.Kind)
	require.Equal(t, DefaultCacheEntries, c.CacheEntries)
	require.Equal(t, DefaultOperationTimeout, c.OperationTimeout)
	require.False(t, c.ImportsEnabled)
	require.Empty(t, c.AllowedDirs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	t.Setenv("SCHOOLPULSE_SOURCE_KIND", "postgres")
	t.Setenv("SCHOOLPULSE_DATABASE_DSN", "postgres://localhost/school")
	t.Setenv("SCHOOLPULSE_LIMITS_OPERATION_TIMEOUT", "45s")
	t.Setenv("SCHOOLPULSE_CACHE_ENTRIES", "3")
	t.Setenv("SCHOOLPULSE_SECURITY_ALLOWED_DIRS", a+string(os.PathListSeparator)+b)

	c, err := Load("", "")
	require.NoError(t, err)
	require.Equal(t, "postgres", c.Source.Kind)
	require.Equal(t, 45*time.Second, c.OperationTimeout)
	require.Equal(t, 3, c.CacheEntries)
	require.Equal(t, []string{a, b}, c.AllowedDirs)
}

func TestLoad_DotenvAndFile(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("SCHOOLPULSE_ROLLBAR_TOKEN=abc\n"), 0o600))
	file := filepath.Join(dir, "schoolpulse.yaml")
	require.NoError(t, os.WriteFile(file, []byte("city:\n  source: file\n  file: cities.yaml\nimports:\n  enabled: true\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SCHOOLPULSE_ROLLBAR_TOKEN") })

	c, err := Load(dotenv, file)
	require.NoError(t, err)
	require.Equal(t, "abc", c.RollbarToken)
	require.Equal(t, "file", c.City.Source)
	require.Equal(t, "cities.yaml", c.City.File)
	require.True(t, c.ImportsEnabled)

	_, err = Load(filepath.Join(dir, "missing.env"), "")
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	require.Error(t, Config{Source: SourceConfig{Kind: "postgres"}}.Validate())
	require.Error(t, Config{Source: SourceConfig{Kind: "workbook"}}.Validate())
	require.Error(t, Config{Source: SourceConfig{Kind: "mongo"}}.Validate())
	require.Error(t, Config{Source: SourceConfig{Kind: "memory"}, City: CityConfig{Source: "sql"}}.Validate())
	require.NoError(t, Config{Source: SourceConfig{Kind: "workbook"}, Workbook: WorkbookConfig{Path: "a.xlsx"}}.Validate())
}
