package databases

import "fmt"

// SchemaError reports a catalog-level failure during inspection or a
// catalog lookup. Per-table count failures are absorbed during
// inspection and never surface as a SchemaError.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema inspection failed: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// QueryError reports a failed statement execution, including time
// limit expiry. The engine's message is carried unchanged; callers
// that need to distinguish a timeout must inspect it.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ExtensionLoadError reports a failed extension load during connection
// preparation. It is fatal and is never downgraded.
type ExtensionLoadError struct {
	Extension string
	Err       error
}

func (e *ExtensionLoadError) Error() string {
	return fmt.Sprintf("failed to load extension %s: %v", e.Extension, e.Err)
}

func (e *ExtensionLoadError) Unwrap() error { return e.Err }
