// Package config loads the demo binary's configuration from files, env vars,
// and flags, and validates it.
package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// Config holds the demo configuration.
type Config struct {
	Database  DatabaseConfig   `mapstructure:"database"`
	Run       RunConfig        `mapstructure:"run"`
	Relations []RelationConfig `mapstructure:"relations"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	PasswordFile    string        `mapstructure:"password_file"`
	PasswordPrompt  bool          `mapstructure:"password_prompt"`
	Database        string        `mapstructure:"database"`
	TLSMode         string        `mapstructure:"tls_mode"` // TLS mode: skip-verify, true, or false
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RunConfig describes the chunked pass over the root table.
type RunConfig struct {
	Table     string   `mapstructure:"table"`
	KeyColumn string   `mapstructure:"key_column"`
	Columns   []string `mapstructure:"columns"`
	ChunkSize int      `mapstructure:"chunk_size"`
	MaxChunks int      `mapstructure:"max_chunks"` // 0 means no limit
}

// RelationConfig describes one relation to memoize. Relations are listed in
// the config file; there are no per-relation flags.
type RelationConfig struct {
	Name                   string   `mapstructure:"name"`
	Table                  string   `mapstructure:"table"`
	KeyColumn              string   `mapstructure:"key_column"`
	Columns                []string `mapstructure:"columns"`
	Paths                  []string `mapstructure:"paths"`
	Eager                  bool     `mapstructure:"eager"`
	CacheCapacity          int      `mapstructure:"cache_capacity"`
	Multivalued            bool     `mapstructure:"multivalued"`
	AssociationTable       string   `mapstructure:"association_table"`
	AssociationSourceField string   `mapstructure:"association_source_field"`
	AssociationTargetField string   `mapstructure:"association_target_field"`
	IdentityField          string   `mapstructure:"identity_field"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// MetricsConfig holds the optional Prometheus endpoint parameters.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

var defineFlagsOnce sync.Once

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) – used only for interactive password prompt
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	v := viper.New()

	// Defaults (lowest priority)
	setDefaults(v)

	// --- Flags ---
	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	// --- Config file ---
	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("prefetch-demo")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/prefetch-demo/")
		v.AddConfigPath("$HOME/.prefetch-demo")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	// Canonical keys: dot + snake_case
	// Env vars: PREFETCH_DATABASE_MAX_OPEN_CONNS
	v.SetEnvPrefix("PREFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags binding (highest normal priority) ---
	bindChangedFlagsToViper(v)

	// --- Secure password input (explicit override) ---
	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readPasswordFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper) {
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := pflag.CommandLine.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := pflag.CommandLine.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := pflag.CommandLine.GetBool(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := pflag.CommandLine.GetDuration(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		// Database flags
		pflag.String("database.host", "", "Database host")
		pflag.Int("database.port", 0, "Database port")
		pflag.String("database.user", "", "Database user")
		pflag.String("database.password", "", "Database password")
		pflag.String("database.password_file", "", "Path to file containing database password (use @- for stdin)")
		pflag.Bool("database.password_prompt", false, "Prompt for database password securely")
		pflag.String("database.database", "", "Database name")
		pflag.String("database.tls_mode", "", "TLS mode (skip-verify, true, false)")
		pflag.Int("database.max_open_conns", 0, "Maximum open database connections")
		pflag.Int("database.max_idle_conns", 0, "Maximum idle connections in pool")
		pflag.Duration("database.conn_max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")

		// Run flags
		pflag.String("run.table", "", "Root table to iterate in chunks")
		pflag.String("run.key_column", "", "Unique column used for seek pagination")
		pflag.StringSlice("run.columns", nil, "Columns to select from the root table (comma-separated or repeated)")
		pflag.Int("run.chunk_size", 0, "Rows per chunk")
		pflag.Int("run.max_chunks", 0, "Stop after this many chunks (0 = no limit)")

		// Logging flags
		pflag.String("logging.level", "", "Log level (debug, info, warn, error)")
		pflag.String("logging.format", "", "Log format (json, text)")

		// Metrics flags
		pflag.Bool("metrics.enabled", false, "Serve Prometheus metrics during the run")
		pflag.String("metrics.addr", "", "Metrics listen address (e.g. :9090)")

		pflag.String("config", "", "Path to config file")
	})
}

func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 4000)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "test")
	v.SetDefault("database.tls_mode", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Run defaults
	v.SetDefault("run.table", "")
	v.SetDefault("run.key_column", "id")
	v.SetDefault("run.columns", []string{})
	v.SetDefault("run.chunk_size", 1000)
	v.SetDefault("run.max_chunks", 0)

	// Relation defaults live in the engine; the file only needs deviations.
	v.SetDefault("relations", []map[string]any{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Print("Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readPasswordFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}

// DSN returns a MySQL-compatible data source name.
func (d *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)

	// Add TLS parameter if configured
	if d.TLSMode != "" {
		dsn += fmt.Sprintf("&tls=%s", d.TLSMode)
	}

	return dsn
}
