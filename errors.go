package prefetch

import "fmt"

// ConfigError reports an invalid relation configuration: a malformed path, an
// attribute name that does not exist on the record shape, or a field
// combination the engine rejects. It is never retried.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// ResolutionError reports a path that cannot be evaluated against the shape
// of a record encountered at runtime, such as an intermediate hop holding a
// scalar where a nested record was expected.
type ResolutionError struct {
	Path    string
	Hop     string
	Message string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve path %q at %q: %s", e.Path, e.Hop, e.Message)
}
