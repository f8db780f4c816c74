package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Run.validate(result)
	validateRelations(result, c.Relations)
	c.Logging.validate(result)
	c.Metrics.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.Host) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.host",
			Message: "host cannot be empty",
		})
	}

	// Port range validation
	if d.Port < 1 || d.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
		})
	}

	if strings.TrimSpace(d.Database) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.database",
			Message: "database name cannot be empty",
		})
	}

	validTLSModes := map[string]bool{"": true, "skip-verify": true, "true": true, "false": true, "preferred": true}
	if !validTLSModes[d.TLSMode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls_mode",
			Message: fmt.Sprintf("invalid TLS mode %q", d.TLSMode),
			Hint:    "valid values are: skip-verify, true, false, preferred",
		})
	}
	if d.TLSMode == "skip-verify" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls_mode",
			Message: "skip-verify mode does not verify server certificates",
			Hint:    "use tls_mode=true in production",
		})
	}

	// Connection pool validation
	if d.MaxOpenConns < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.max_open_conns",
			Message: "max_open_conns cannot be negative",
		})
	}
	if d.MaxIdleConns < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.max_idle_conns",
			Message: "max_idle_conns cannot be negative",
		})
	}
	if d.MaxIdleConns > d.MaxOpenConns && d.MaxOpenConns > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.max_idle_conns",
			Message: "max_idle_conns is greater than max_open_conns",
			Hint:    "idle connections will be limited to max_open_conns",
		})
	}
	if d.ConnMaxLifetime < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.conn_max_lifetime",
			Message: "conn_max_lifetime cannot be negative",
		})
	}
}

func (r *RunConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(r.Table) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "run.table",
			Message: "root table is required",
			Hint:    "set run.table to the table to iterate in chunks",
		})
	}
	if strings.TrimSpace(r.KeyColumn) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "run.key_column",
			Message: "key_column cannot be empty",
		})
	}
	if r.ChunkSize < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "run.chunk_size",
			Message: "chunk_size must be greater than 0",
		})
	}
	if r.MaxChunks < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "run.max_chunks",
			Message: "max_chunks cannot be negative",
			Hint:    "use 0 to process every chunk",
		})
	}
}

func validateRelations(result *ValidationResult, relations []RelationConfig) {
	if len(relations) == 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "relations",
			Message: "no relations configured",
			Hint:    "the run will iterate the root table without attaching anything",
		})
		return
	}

	seen := map[string]bool{}
	for i, rel := range relations {
		field := fmt.Sprintf("relations[%d]", i)

		name := strings.TrimSpace(rel.Name)
		if name == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".name",
				Message: "relation name is required",
			})
		} else if seen[name] {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate relation name %q", name),
			})
		}
		seen[name] = true

		if len(rel.Paths) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".paths",
				Message: "at least one path is required",
			})
		}

		if rel.CacheCapacity < 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".cache_capacity",
				Message: "cache_capacity cannot be negative",
				Hint:    "use 0 for the default capacity",
			})
		}
		if rel.Eager && rel.CacheCapacity > 0 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   field + ".cache_capacity",
				Message: "cache_capacity has no effect on eager relations",
				Hint:    "eager relations are warmed once and never evict",
			})
		}

		if rel.Multivalued {
			if strings.TrimSpace(rel.AssociationTable) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".association_table",
					Message: "association_table is required for multivalued relations",
				})
			}
			if strings.TrimSpace(rel.AssociationSourceField) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".association_source_field",
					Message: "association_source_field is required for multivalued relations",
				})
			}
			if strings.TrimSpace(rel.AssociationTargetField) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".association_target_field",
					Message: "association_target_field is required for multivalued relations",
				})
			}
		} else {
			if rel.AssociationTable != "" || rel.AssociationSourceField != "" || rel.AssociationTargetField != "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".association_table",
					Message: "association settings require multivalued to be true",
				})
			}
			if rel.IdentityField != "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field + ".identity_field",
					Message: "identity_field only applies to multivalued relations",
				})
			}
		}
	}
}

func (l *LoggingConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[l.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level %q", l.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[l.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format %q", l.Format),
			Hint:    "valid values are: json, text",
		})
	}
}

func (m *MetricsConfig) validate(result *ValidationResult) {
	if m.Enabled && strings.TrimSpace(m.Addr) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "metrics.addr",
			Message: "addr is required when metrics are enabled",
		})
	}
}
