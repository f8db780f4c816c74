package prefetch

import (
	"context"
	"errors"
	"fmt"
)

// DefaultCacheCapacity is used when a RelationSpec leaves CacheCapacity zero.
const DefaultCacheCapacity = 10_000

// DataSource is the bulk-read capability backing one relation. ReadByKeys
// issues a single bulk read and returns the entities it found keyed by their
// identity; keys with no entity are simply absent from the result. ReadAll is
// only called for eager relations and must return every entity the source
// holds.
type DataSource interface {
	ReadByKeys(ctx context.Context, keys []any) (map[any]any, error)
	ReadAll(ctx context.Context) (map[any]any, error)
}

// AssociationSource reads association rows for multi-valued relations. The
// source and target field names come from the RelationSpec; implementations
// return the (source id, target id) pairs whose source id is in ids,
// preserving row order.
type AssociationSource interface {
	ReadRowsBySourceIDs(ctx context.Context, sourceField, targetField string, ids []any) ([]AssociationRow, error)
}

// AssociationRow is one membership edge between a root record and a target
// entity. Rows are re-read every chunk and never cached; only the target
// entities they reference are.
type AssociationRow struct {
	SourceID any
	TargetID any
}

// RelationSpec describes one relationship to memoize. Specs are validated at
// engine construction and immutable afterwards.
type RelationSpec struct {
	// Name identifies the relation in errors, logs, and stats. Must be
	// unique within an engine.
	Name string

	// Paths are the relationship attributes to populate, as path
	// expressions ("supplier", "invoice__supplier", "invoice.supplier").
	// For single-valued relations the key is read from the sibling
	// attribute named after the final hop plus the engine's key suffix.
	Paths []string

	// Source provides bulk reads for the related entities.
	Source DataSource

	// Eager loads the entire source into the cache at construction,
	// ignoring capacity. Suitable only for small tables.
	Eager bool

	// CacheCapacity bounds the relation's cache. Zero means
	// DefaultCacheCapacity; negative values are rejected.
	CacheCapacity int

	// Multivalued marks a many-to-many style relation resolved through
	// association rows instead of a foreign key.
	Multivalued bool

	// Associations, AssociationSourceField, and AssociationTargetField are
	// required for multivalued relations and forbidden otherwise.
	Associations           AssociationSource
	AssociationSourceField string
	AssociationTargetField string

	// IdentityField names the root-record attribute holding the identity
	// that association rows refer to. Multivalued only; defaults to "id".
	IdentityField string
}

// normalize applies defaults and validates the spec, returning the ready-to-use
// copy. All violations are ConfigErrors naming the offending field.
func (s RelationSpec) normalize() (RelationSpec, error) {
	if s.Name == "" {
		return s, &ConfigError{Field: "name", Message: "relation name is required"}
	}
	field := func(name string) string { return fmt.Sprintf("%s.%s", s.Name, name) }

	if len(s.Paths) == 0 {
		return s, &ConfigError{Field: field("paths"), Message: "at least one path is required"}
	}
	for _, expr := range s.Paths {
		if _, err := ParsePath(expr); err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				return s, &ConfigError{Field: field("paths"), Message: cfgErr.Message}
			}
			return s, &ConfigError{Field: field("paths"), Message: err.Error()}
		}
	}
	if s.Source == nil {
		return s, &ConfigError{Field: field("source"), Message: "data source is required"}
	}
	if s.CacheCapacity < 0 {
		return s, &ConfigError{Field: field("cache_capacity"), Message: "capacity must not be negative"}
	}
	if s.CacheCapacity == 0 {
		s.CacheCapacity = DefaultCacheCapacity
	}

	if s.Multivalued {
		if s.Associations == nil {
			return s, &ConfigError{Field: field("associations"), Message: "association source is required for multivalued relations"}
		}
		if s.AssociationSourceField == "" || s.AssociationTargetField == "" {
			return s, &ConfigError{
				Field:   field("association_source_field"),
				Message: "association source and target fields are required for multivalued relations",
			}
		}
		if s.IdentityField == "" {
			s.IdentityField = "id"
		}
	} else {
		if s.Associations != nil || s.AssociationSourceField != "" || s.AssociationTargetField != "" {
			return s, &ConfigError{
				Field:   field("associations"),
				Message: "association settings are only valid for multivalued relations",
			}
		}
		if s.IdentityField != "" {
			return s, &ConfigError{
				Field:   field("identity_field"),
				Message: "identity field is only valid for multivalued relations",
			}
		}
	}
	return s, nil
}
