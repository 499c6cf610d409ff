package storelog

// Package storelog implements the generic append-only JSON-lines log
// store: one descriptor record followed by entry/update/delete records,
// replayed into an in-memory map on Init.

const (
	recordTypeDescriptor = "descriptor"
	recordTypeEntry      = "entry"
	recordTypeUpdate     = "update"
	recordTypeDelete     = "delete"
)

// schemaVersion is the only descriptor version this store understands.
const schemaVersion = 0

// Record is implemented by any value type a Store can hold. ID must be
// stable for the value's lifetime.
type Record interface {
	RecordID() string
}

// Codec adapts a concrete value type T to the log store's generic
// entry/update machinery. Implementations enforce their own field
// whitelist, immutability, and type-gate rules — a rich per-field set
// for items, trivial whole-value rules for simpler types like users and
// sessions.
type Codec[T Record] interface {
	// ValueType identifies T in the descriptor record (e.g. "item").
	ValueType() string

	// Marshal renders v as the field map for an "entry" record (excluding
	// "__recordType"). The map must include "id".
	Marshal(v T) (map[string]any, error)

	// Unmarshal parses an entry record's field map (excluding
	// "__recordType") back into a T. Must reject unknown fields.
	Unmarshal(fields map[string]any) (T, error)

	// Diff returns the field map for an "update" record transitioning
	// old -> new (excluding "__recordType"/"id"). An empty map signals a
	// no-op update, which the Store rejects.
	Diff(old, new T) (map[string]any, error)

	// Apply returns the value obtained by applying an update record's
	// field map (excluding "__recordType"/"id") onto base. Used both for
	// live updates and for replaying "update" records.
	Apply(base T, fields map[string]any) (T, error)
}
