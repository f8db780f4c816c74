package prefetch

// Record is the minimal field-accessor contract the engine needs from the
// rows it processes. Field returns ok == false when the record's shape has no
// attribute of that name; returning a nil value with ok == true means the
// attribute exists but is absent (a null reference or unset relation).
//
// The engine only reads key attributes and writes relationship attributes; it
// never owns record lifecycle.
type Record interface {
	Field(name string) (value any, ok bool)
	SetField(name string, value any)
}

// MapRecord is the stock Record backed by a plain map, matching rows scanned
// from a database. It is schemaless: every attribute name exists, unset names
// read as nil.
type MapRecord map[string]any

// Field returns the value stored under name. ok is always true.
func (m MapRecord) Field(name string) (any, bool) {
	return m[name], true
}

// SetField stores value under name.
func (m MapRecord) SetField(name string, value any) {
	m[name] = value
}

// asRecord interprets a traversal hop value as a nested record. Plain
// map[string]any values are accepted so scanned rows nest without wrapping.
func asRecord(v any) (Record, bool) {
	switch r := v.(type) {
	case Record:
		return r, true
	case map[string]any:
		return MapRecord(r), true
	default:
		return nil, false
	}
}
