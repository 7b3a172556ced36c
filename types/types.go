package types

// TableMetadata describes one table as seen by a schema inspection.
// Every inspection builds these fresh from the database file; nothing
// is cached between calls.
type TableMetadata struct {
	Name        string        `json:"name"`
	Columns     []string      `json:"columns"`
	PrimaryKeys []string      `json:"primary_keys"`
	Count       int64         `json:"count"`
	LabelColumn string        `json:"label_column,omitempty"`
	Hidden      bool          `json:"hidden"`
	ForeignKeys ForeignKeySet `json:"foreign_keys"`
}

// ForeignKeySet groups the foreign keys touching a table from both
// directions. Outgoing keys live on the table itself; incoming keys
// are declared on other tables that reference it.
type ForeignKeySet struct {
	Outgoing []ForeignKeyRef `json:"outgoing"`
	Incoming []ForeignKeyRef `json:"incoming"`
}

// ForeignKeyRef is a single foreign key edge. For outgoing keys Column
// is the local column and OtherTable/OtherColumn name the target; for
// incoming keys the directions are reversed.
type ForeignKeyRef struct {
	Column      string `json:"column"`
	OtherTable  string `json:"other_table"`
	OtherColumn string `json:"other_column"`
}

// QueryResult is the uniform shape returned by Execute. Truncated is
// only ever true when truncation was requested and the result exceeded
// the configured row cap.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated"`
}

// LabelKey identifies one foreign key value within a row batch. Values
// are normalized to strings so the key stays comparable regardless of
// the underlying SQLite storage class.
type LabelKey struct {
	Column string
	Value  string
}

// RowLabel is the human-readable resolution of one foreign key value.
type RowLabel struct {
	OtherTable string `json:"other_table"`
	Label      string `json:"label"`
}
