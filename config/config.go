// Package config loads data source, ORM and logging configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/seal-go/query/sqlgen"
)

var AppFs = afero.NewOsFs()

var (
	ErrNoDataSources    = errors.New("no data sources configured")
	ErrAmbiguousDefault = errors.New("default data source is ambiguous")
	ErrInvalidPool      = errors.New("invalid pool bounds")
	ErrInvalidCache     = errors.New("invalid structure cache bounds")
)

const (
	configName = ".seal"
	envPrefix  = "SEAL"
)

// Pool holds per data source pool bounds.
type Pool struct {
	MinConnections int `mapstructure:"min_connections" yaml:"min_connections"`
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections"`
	// AcquireTimeout bounds the wait for a connection. Zero selects the
	// 5s default; a negative value fails fast when the pool is exhausted.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	// KeepAliveInterval is how often idle connections are pinged. Zero selects one minute;
	// a negative value disables probing.
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval" yaml:"keep_alive_interval"`
	PingOnAcquire     bool          `mapstructure:"ping_on_acquire" yaml:"ping_on_acquire"`
}

// DataSource describes one logical database.
type DataSource struct {
	Dialect  string `mapstructure:"dialect"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Path     string `mapstructure:"path"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// Schema is the Postgres schema tables are introspected in.
	Schema string `mapstructure:"schema"`
	// DSN, when set, is passed to the driver verbatim.
	DSN     string            `mapstructure:"dsn"`
	Params  map[string]string `mapstructure:"params"`
	Default bool              `mapstructure:"default"`
	Pool    Pool              `mapstructure:"pool"`
}

// ORM holds the public fields every builder maintains.
type ORM struct {
	TenantField         string      `mapstructure:"tenant_field"`
	TenantValue         interface{} `mapstructure:"tenant_value"`
	LogicalDeletedField string      `mapstructure:"logical_deleted_field"`
	LogicalDeletedTrue  interface{} `mapstructure:"logical_deleted_true"`
	LogicalDeletedFalse interface{} `mapstructure:"logical_deleted_false"`
	CreatedByField      string      `mapstructure:"created_by_field"`
	CreatedAtField      string      `mapstructure:"created_at_field"`
	UpdatedByField      string      `mapstructure:"updated_by_field"`
	UpdatedAtField      string      `mapstructure:"updated_at_field"`
}

// Log configures internal/debug.
type Log struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
}

// StructureCache bounds the shared table structure cache.
type StructureCache struct {
	// Capacity is the most structures kept; 0 keeps every table.
	Capacity int `mapstructure:"capacity"`
	// TTL re-introspects structures older than this; 0 never expires.
	TTL time.Duration `mapstructure:"ttl"`
}

// Config holds the application configuration
type Config struct {
	DataSources    map[string]DataSource `mapstructure:"data_sources"`
	ORM            ORM                   `mapstructure:"orm"`
	Log            Log                   `mapstructure:"log"`
	StructureCache StructureCache        `mapstructure:"structure_cache"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("log.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("structure_cache.capacity", 0)
	v.SetDefault("structure_cache.ttl", "0s")
	for _, key := range []string{
		"orm.tenant_field", "orm.tenant_value",
		"orm.logical_deleted_field", "orm.logical_deleted_true", "orm.logical_deleted_false",
		"orm.created_by_field", "orm.created_at_field",
		"orm.updated_by_field", "orm.updated_at_field",
	} {
		v.SetDefault(key, nil)
	}
}

// Load reads configuration from path, or when path is empty from
// .seal.{yaml,json,toml} in the working directory, the home directory or
// ~/.config/seal. .env and .env.local are applied first, SEAL_* variables
// override file values, and DATABASE_URL supplies a data source when the
// file names none.
func Load(path string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetFs(AppFs)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "seal"))

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.DataSources) == 0 {
		if raw := os.Getenv("DATABASE_URL"); raw != "" {
			ds, err := FromURL(raw)
			if err != nil {
				return nil, err
			}
			ds.Default = true
			cfg.DataSources = map[string]DataSource{"default": ds}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv applies .env without overriding the environment, then
// .env.local with override.
func loadDotEnv() {
	apply := func(name string, override bool) {
		f, err := AppFs.Open(name)
		if err != nil {
			return
		}
		defer f.Close()

		vars, err := godotenv.Parse(f)
		if err != nil {
			return
		}
		for k, val := range vars {
			if _, set := os.LookupEnv(k); set && !override {
				continue
			}
			os.Setenv(k, val)
		}
	}
	apply(".env", false)
	apply(".env.local", true)
}

// Validate checks the configuration and normalizes dialect names.
func (c *Config) Validate() error {
	if len(c.DataSources) == 0 {
		return ErrNoDataSources
	}
	if c.StructureCache.Capacity < 0 || c.StructureCache.TTL < 0 {
		return fmt.Errorf("%w: capacity %d ttl %s", ErrInvalidCache, c.StructureCache.Capacity, c.StructureCache.TTL)
	}

	marked := 0
	for name, ds := range c.DataSources {
		dialect := sqlgen.NormalizeDialect(ds.Dialect)
		if dialect == "" {
			return fmt.Errorf("data source %s: %w: %q", name, sqlgen.ErrUnsupportedDialect, ds.Dialect)
		}
		ds.Dialect = dialect

		if ds.Pool.MaxConnections == 0 {
			ds.Pool.MaxConnections = 10
		}
		if ds.Pool.MinConnections < 0 || ds.Pool.MaxConnections < 0 || ds.Pool.MinConnections > ds.Pool.MaxConnections {
			return fmt.Errorf("data source %s: %w: min %d max %d", name, ErrInvalidPool, ds.Pool.MinConnections, ds.Pool.MaxConnections)
		}
		if ds.Default {
			marked++
		}
		c.DataSources[name] = ds
	}

	if marked > 1 || (marked == 0 && len(c.DataSources) > 1) {
		return fmt.Errorf("%w: %d of %d data sources marked default", ErrAmbiguousDefault, marked, len(c.DataSources))
	}
	return nil
}

// DefaultName returns the name of the default data source.
func (c *Config) DefaultName() string {
	names := c.Names()
	for _, name := range names {
		if c.DataSources[name].Default {
			return name
		}
	}
	if len(names) == 1 {
		return names[0]
	}
	return ""
}

// Names returns the data source names, sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.DataSources))
	for name := range c.DataSources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes cfg as YAML to path
func Save(cfg *Config, path string) error {
	v := viper.New()
	v.SetFs(AppFs)

	for name, ds := range cfg.DataSources {
		prefix := "data_sources." + name + "."
		v.Set(prefix+"dialect", ds.Dialect)
		v.Set(prefix+"host", ds.Host)
		v.Set(prefix+"port", ds.Port)
		v.Set(prefix+"path", ds.Path)
		v.Set(prefix+"user", ds.User)
		v.Set(prefix+"password", ds.Password)
		v.Set(prefix+"database", ds.Database)
		v.Set(prefix+"schema", ds.Schema)
		v.Set(prefix+"dsn", ds.DSN)
		v.Set(prefix+"params", ds.Params)
		v.Set(prefix+"default", ds.Default)
		v.Set(prefix+"pool.min_connections", ds.Pool.MinConnections)
		v.Set(prefix+"pool.max_connections", ds.Pool.MaxConnections)
		v.Set(prefix+"pool.acquire_timeout", ds.Pool.AcquireTimeout.String())
		v.Set(prefix+"pool.keep_alive_interval", ds.Pool.KeepAliveInterval.String())
		v.Set(prefix+"pool.ping_on_acquire", ds.Pool.PingOnAcquire)
	}

	v.Set("orm.tenant_field", cfg.ORM.TenantField)
	v.Set("orm.tenant_value", cfg.ORM.TenantValue)
	v.Set("orm.logical_deleted_field", cfg.ORM.LogicalDeletedField)
	v.Set("orm.logical_deleted_true", cfg.ORM.LogicalDeletedTrue)
	v.Set("orm.logical_deleted_false", cfg.ORM.LogicalDeletedFalse)
	v.Set("orm.created_by_field", cfg.ORM.CreatedByField)
	v.Set("orm.created_at_field", cfg.ORM.CreatedAtField)
	v.Set("orm.updated_by_field", cfg.ORM.UpdatedByField)
	v.Set("orm.updated_at_field", cfg.ORM.UpdatedAtField)
	v.Set("log.enabled", cfg.Log.Enabled)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("structure_cache.capacity", cfg.StructureCache.Capacity)
	v.Set("structure_cache.ttl", cfg.StructureCache.TTL.String())

	if dir := filepath.Dir(path); dir != "." {
		if err := AppFs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return v.WriteConfigAs(path)
}
