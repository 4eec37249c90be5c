package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SCHOOLPULSE_DATABASE_DSN.
const EnvPrefix = "SCHOOLPULSE"

// Config is the resolved server configuration.
type Config struct {
	Env string

	Source   SourceConfig
	Database DatabaseConfig
	Workbook WorkbookConfig
	City     CityConfig

	CacheEntries int

	MaxConcurrentRequests int
	MaxOpenWorkbooks      int
	MaxFactRows           int
	OperationTimeout      time.Duration

	AllowedDirs    []string
	ImportsEnabled bool

	MetricsAddr  string
	RollbarToken string
	LLMModel     string
}

// SourceConfig selects the fact store: postgres, workbook or memory.
type SourceConfig struct {
	Kind string
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

// WorkbookConfig names the workbook loaded at startup when Source.Kind is workbook.
type WorkbookConfig struct {
	Path  string
	Sheet string
}

// CityConfig selects the city directory: sql (the database's city table), file or none.
type CityConfig struct {
	Source  string
	File    string
	Refresh time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("env", DefaultEnv)
	v.SetDefault("source.kind", DefaultSourceKind)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.slow_query", DefaultSlowQuery)
	v.SetDefault("workbook.path", "")
	v.SetDefault("workbook.sheet", "")
	v.SetDefault("city.source", DefaultCitySource)
	v.SetDefault("city.file", "")
	v.SetDefault("city.refresh", DefaultCityRefresh)
	v.SetDefault("cache.entries", DefaultCacheEntries)
	v.SetDefault("limits.max_concurrent_requests", DefaultMaxConcurrentRequests)
	v.SetDefault("limits.max_open_workbooks", DefaultMaxOpenWorkbooks)
	v.SetDefault("limits.max_fact_rows", DefaultMaxFactRows)
	v.SetDefault("limits.operation_timeout", DefaultOperationTimeout)
	v.SetDefault("security.allowed_dirs", "")
	v.SetDefault("imports.enabled", false)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)
	v.SetDefault("rollbar.token", "")
	v.SetDefault("llm.model", DefaultLLMModel)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional .env file and an optional YAML/JSON/TOML config
// file, then resolves the configuration. Missing dotenv files are ignored.
func Load(dotenv, file string) (Config, error) {
	if dotenv != "" {
		if _, err := os.Stat(dotenv); err == nil {
			if err := godotenv.Load(dotenv); err != nil {
				return Config{}, errors.Wrapf(err, "config: load %s", dotenv)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "config: stat %s", dotenv)
		}
	}
	v := New()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "config: read %s", file)
		}
	}
	return LoadFrom(v)
}

// LoadFrom resolves and checks a Config from v.
func LoadFrom(v *viper.Viper) (Config, error) {
	c := Config{
		Env:    v.GetString("env"),
		Source: SourceConfig{Kind: strings.ToLower(strings.TrimSpace(v.GetString("source.kind")))},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			SlowQuery:       v.GetDuration("database.slow_query"),
		},
		Workbook: WorkbookConfig{
			Path:  v.GetString("workbook.path"),
			Sheet: v.GetString("workbook.sheet"),
		},
		City: CityConfig{
			Source:  strings.ToLower(strings.TrimSpace(v.GetString("city.source"))),
			File:    v.GetString("city.file"),
			Refresh: v.GetDuration("city.refresh"),
		},
		CacheEntries:          v.GetInt("cache.entries"),
		MaxConcurrentRequests: v.GetInt("limits.max_concurrent_requests"),
		MaxOpenWorkbooks:      v.GetInt("limits.max_open_workbooks"),
		MaxFactRows:           v.GetInt("limits.max_fact_rows"),
		OperationTimeout:      v.GetDuration("limits.operation_timeout"),
		AllowedDirs:           splitDirs(v.GetString("security.allowed_dirs")),
		ImportsEnabled:        v.GetBool("imports.enabled"),
		MetricsAddr:           v.GetString("metrics.addr"),
		RollbarToken:          v.GetString("rollbar.token"),
		LLMModel:              v.GetString("llm.model"),
	}
	return c, c.Validate()
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Source.Kind {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("config: database.dsn is required for the postgres source")
		}
	case "workbook":
		if c.Workbook.Path == "" {
			return errors.New("config: workbook.path is required for the workbook source")
		}
	default:
		return errors.Errorf("config: unknown source.kind %q", c.Source.Kind)
	}
	switch c.City.Source {
	case "none", "":
	case "sql":
		if c.Database.DSN == "" {
			return errors.New("config: database.dsn is required for the sql city directory")
		}
	case "file":
		if c.City.File == "" {
			return errors.New("config: city.file is required for the file city directory")
		}
	default:
		return errors.Errorf("config: unknown city.source %q", c.City.Source)
	}
	if c.CacheEntries < 0 {
		return errors.New("config: cache.entries must be >= 0")
	}
	return nil
}

func splitDirs(s string) []string {
	var out []string
	for _, d := range filepath.SplitList(s) {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}
