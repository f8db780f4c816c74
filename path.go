package prefetch

import (
	"fmt"
	"strings"
)

// Path is a parsed relationship path: an ordered chain of attribute hops from
// a root record to the attribute the relation lives on.
type Path struct {
	raw  string
	hops []string
}

// ParsePath parses a path expression. The two surface syntaxes are
// equivalent: "a__b__c" and "a.b.c" both parse to the same hop chain. The
// double-underscore form wins when an expression contains both separators.
func ParsePath(expr string) (Path, error) {
	if expr == "" {
		return Path{}, &ConfigError{Field: "paths", Message: "path expression is empty"}
	}
	sep := "."
	if strings.Contains(expr, "__") {
		sep = "__"
	}
	hops := strings.Split(expr, sep)
	for _, hop := range hops {
		if hop == "" {
			return Path{}, &ConfigError{
				Field:   "paths",
				Message: fmt.Sprintf("path %q contains an empty attribute name", expr),
			}
		}
	}
	return Path{raw: expr, hops: hops}, nil
}

// String returns the expression the path was parsed from.
func (p Path) String() string {
	return p.raw
}

// Hops returns the attribute chain.
func (p Path) Hops() []string {
	return p.hops
}

func (p Path) leaf() string {
	return p.hops[len(p.hops)-1]
}

// Resolve walks the path against root and returns the value of its final
// attribute. A nil intermediate hop makes the whole chain absent: Resolve
// returns (nil, nil) rather than an error. An attribute name unknown to the
// record shape is a ConfigError; an intermediate value that is not a record
// is a ResolutionError.
func Resolve(root Record, path Path) (any, error) {
	parent, err := walk(root, path)
	if err != nil || parent == nil {
		return nil, err
	}
	return fieldValue(parent, path, path.leaf())
}

// Attach walks the path and sets its final attribute to value, creating
// empty nested records for nil intermediate hops along the way.
func Attach(root Record, path Path, value any) error {
	cur := root
	for _, hop := range path.hops[:len(path.hops)-1] {
		v, ok := cur.Field(hop)
		if !ok {
			return unknownAttributeErr(path, hop)
		}
		if v == nil {
			child := MapRecord{}
			cur.SetField(hop, child)
			cur = child
			continue
		}
		rec, ok := asRecord(v)
		if !ok {
			return notARecordErr(path, hop, v)
		}
		cur = rec
	}
	cur.SetField(path.leaf(), value)
	return nil
}

// walk returns the record at the second-to-last hop. A nil intermediate
// yields (nil, nil): the chain is absent for this record.
func walk(root Record, path Path) (Record, error) {
	cur := root
	for _, hop := range path.hops[:len(path.hops)-1] {
		v, ok := cur.Field(hop)
		if !ok {
			return nil, unknownAttributeErr(path, hop)
		}
		if v == nil {
			return nil, nil
		}
		rec, ok := asRecord(v)
		if !ok {
			return nil, notARecordErr(path, hop, v)
		}
		cur = rec
	}
	return cur, nil
}

func fieldValue(rec Record, path Path, name string) (any, error) {
	v, ok := rec.Field(name)
	if !ok {
		return nil, unknownAttributeErr(path, name)
	}
	return v, nil
}

func unknownAttributeErr(path Path, name string) error {
	return &ConfigError{
		Field:   "paths",
		Message: fmt.Sprintf("record has no attribute %q (path %q)", name, path.raw),
	}
}

func notARecordErr(path Path, hop string, v any) error {
	return &ResolutionError{
		Path:    path.raw,
		Hop:     hop,
		Message: fmt.Sprintf("value of type %T is not a record", v),
	}
}
