package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "basic DSN",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Password: "password",
				Database: "test",
			},
			expected: "root:password@tcp(localhost:4000)/test?parseTime=true",
		},
		{
			name: "with TLS mode",
			config: DatabaseConfig{
				Host:     "db.example.com",
				Port:     3306,
				User:     "admin",
				Password: "p@ss:w0rd!",
				Database: "mydb",
				TLSMode:  "skip-verify",
			},
			expected: "admin:p@ss:w0rd!@tcp(db.example.com:3306)/mydb?parseTime=true&tls=skip-verify",
		},
		{
			name: "empty password",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Password: "",
				Database: "test",
			},
			expected: "root:@tcp(localhost:4000)/test?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.DSN()
			assert.Equal(t, tt.expected, result)
		})
	}
}

// Note: Full integration tests for Load() should be done in integration tests
// because Load() relies on global state (pflag.CommandLine) which is difficult
// to test in isolation without causing conflicts between tests.

func TestConfig_Validate(t *testing.T) {
	// Helper to create a valid base config
	validConfig := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Host:         "localhost",
				Port:         4000,
				User:         "root",
				Database:     "test",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
			Run: RunConfig{
				Table:     "invoice_lines",
				KeyColumn: "id",
				ChunkSize: 1000,
			},
			Relations: []RelationConfig{
				{
					Name:  "supplier",
					Table: "suppliers",
					Paths: []string{"supplier"},
				},
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
		}
	}

	t.Run("valid config passes validation", func(t *testing.T) {
		cfg := validConfig()
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Empty(t, result.Errors)
	})

	t.Run("invalid database port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 0
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.port")
	})

	t.Run("invalid database port high", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 70000
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.port")
	})

	t.Run("empty database name", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Database = ""
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.database")
	})

	t.Run("invalid TLS mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLSMode = "invalid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "database.tls_mode")
	})

	t.Run("valid TLS modes", func(t *testing.T) {
		for _, mode := range []string{"", "true", "false", "preferred"} {
			cfg := validConfig()
			cfg.Database.TLSMode = mode
			result := cfg.Validate()
			assert.False(t, result.HasErrors(), "TLS mode %q should be valid", mode)
		}
	})

	t.Run("skip-verify warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLSMode = "skip-verify"
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0].Message, "skip-verify")
	})

	t.Run("max_idle_conns greater than max_open_conns warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.MaxOpenConns = 10
		cfg.Database.MaxIdleConns = 20
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0].Message, "max_idle_conns")
	})

	t.Run("missing run table", func(t *testing.T) {
		cfg := validConfig()
		cfg.Run.Table = ""
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "run.table")
	})

	t.Run("zero chunk size", func(t *testing.T) {
		cfg := validConfig()
		cfg.Run.ChunkSize = 0
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "run.chunk_size")
	})

	t.Run("negative max chunks", func(t *testing.T) {
		cfg := validConfig()
		cfg.Run.MaxChunks = -1
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "run.max_chunks")
	})

	t.Run("no relations warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations = nil
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0].Message, "no relations")
	})

	t.Run("relation without name", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations[0].Name = ""
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "relations[0].name")
	})

	t.Run("duplicate relation names", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations = append(cfg.Relations, cfg.Relations[0])
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "duplicate relation name")
	})

	t.Run("relation without paths", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations[0].Paths = nil
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "relations[0].paths")
	})

	t.Run("negative cache capacity", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations[0].CacheCapacity = -1
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "cache_capacity")
	})

	t.Run("eager with cache capacity warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations[0].Eager = true
		cfg.Relations[0].CacheCapacity = 500
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0].Message, "no effect")
	})

	t.Run("multivalued requires association settings", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations[0].Multivalued = true
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "association_table")
		assert.Contains(t, result.Error(), "association_source_field")
		assert.Contains(t, result.Error(), "association_target_field")
	})

	t.Run("valid multivalued relation", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations[0] = RelationConfig{
			Name:                   "tags",
			Table:                  "tags",
			Paths:                  []string{"tags"},
			Multivalued:            true,
			AssociationTable:       "invoice_line_tags",
			AssociationSourceField: "invoice_line_id",
			AssociationTargetField: "tag_id",
		}
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
	})

	t.Run("association settings without multivalued", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations[0].AssociationTable = "invoice_line_tags"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "require multivalued")
	})

	t.Run("identity field without multivalued", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relations[0].IdentityField = "uuid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "identity_field")
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "invalid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "logging.level")
	})

	t.Run("invalid log format", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Format = "xml"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "logging.format")
	})

	t.Run("metrics enabled without addr", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = ""
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Contains(t, result.Error(), "metrics.addr")
	})

	t.Run("multiple errors collected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 0
		cfg.Run.Table = ""
		cfg.Logging.Level = "invalid"
		result := cfg.Validate()
		assert.True(t, result.HasErrors())
		assert.Len(t, result.Errors, 3)
	})
}

func TestValidationError_Error(t *testing.T) {
	t.Run("with hint", func(t *testing.T) {
		err := ValidationError{
			Field:   "test.field",
			Message: "test message",
			Hint:    "try this",
		}
		assert.Equal(t, "test.field: test message (hint: try this)", err.Error())
	})

	t.Run("without hint", func(t *testing.T) {
		err := ValidationError{
			Field:   "test.field",
			Message: "test message",
		}
		assert.Equal(t, "test.field: test message", err.Error())
	})
}
