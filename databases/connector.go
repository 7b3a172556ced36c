package databases

import (
	"context"
	"time"

	"github.com/PyTables/datasette-core/types"
)

// Connector is the read-oriented access layer over one database file.
//
// Inspect opens its own short-lived snapshot connection, so it never
// contends with Execute. Execute runs on the connector's single
// long-lived connection and is not internally synchronized: callers
// must serialize Execute calls on one connector. Separate connector
// instances, and repeated Inspect calls, may run concurrently.
type Connector interface {
	// Inspect returns fresh metadata for every table plus the list of
	// view names, in catalog order.
	Inspect(ctx context.Context) (map[string]*types.TableMetadata, []string, error)

	// Execute runs a single parameterized statement under a scoped
	// time limit.
	Execute(ctx context.Context, query string, opts ExecuteOptions) (*types.QueryResult, error)

	// ResolveForeignKeys turns foreign key values present in rows into
	// display labels. Lookup failures degrade to missing labels.
	ResolveForeignKeys(ctx context.Context, table string, rows []map[string]any) (map[string]string, map[types.LabelKey]types.RowLabel, error)

	// IsView reports whether the catalog contains a view by that name.
	IsView(ctx context.Context, name string) (bool, error)

	// Definition returns the stored SQL for a catalog object of the
	// given kind ("table", "view", "index", ...). ok is false when no
	// such object exists.
	Definition(ctx context.Context, name, kind string) (sql string, ok bool, err error)

	Close() error
}

// ExecuteOptions controls a single Execute call.
type ExecuteOptions struct {
	// Params are bound through the driver, never interpolated.
	// Positional values or sql.Named entries.
	Params []any

	// Truncate caps the result at the connector's configured maximum
	// and reports whether more rows existed.
	Truncate bool

	// TimeLimit overrides the connector's default statement budget
	// when greater than zero.
	TimeLimit time.Duration
}
