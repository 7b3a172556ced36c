package sqlite

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/PyTables/datasette-core/databases"
	"github.com/PyTables/datasette-core/types"
)

// Execute runs a single parameterized statement on the long-lived
// connection under a scoped time limit.
//
// The limit is installed as a context deadline covering exactly this
// statement; the engine interrupts the statement when it expires, and
// the deadline is released on every exit path, so no limit leaks into
// a later call. Expiry surfaces as a QueryError like any other
// execution failure.
//
// With opts.Truncate set, at most MaxReturnedRows rows are returned
// and Truncated reports whether more existed. Without it the full
// result set is fetched.
func (c *Connector) Execute(ctx context.Context, query string, opts databases.ExecuteOptions) (*types.QueryResult, error) {
	limit := opts.TimeLimit
	if limit <= 0 {
		limit = c.opts.TimeLimit
	}
	qctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	rows, err := c.db.QueryxContext(qctx, query, opts.Params...)
	if err != nil {
		return nil, c.queryFailed(query, opts.Params, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, c.queryFailed(query, opts.Params, err)
	}

	result := &types.QueryResult{Columns: cols}
	blobCols := blobColumns(rows)

	for rows.Next() {
		if opts.Truncate && c.opts.MaxReturnedRows > 0 && len(result.Rows) == c.opts.MaxReturnedRows {
			// One row past the cap proves the result was larger.
			result.Truncated = true
			break
		}
		row := make(map[string]any, len(cols))
		if err := rows.MapScan(row); err != nil {
			return nil, c.queryFailed(query, opts.Params, err)
		}
		decodeRow(row, blobCols)
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, c.queryFailed(query, opts.Params, err)
	}

	return result, nil
}

// queryFailed logs the failure with enough context for an operator,
// then wraps it unchanged.
func (c *Connector) queryFailed(query string, params []any, err error) error {
	slog.Error("query failed",
		"database", c.path,
		"sql", query,
		"params", params,
		"error", err,
	)
	return &databases.QueryError{SQL: query, Err: err}
}

// blobColumns returns the result columns declared as blobs, so their
// bytes are passed through untouched by text decoding.
func blobColumns(rows *sqlx.Rows) map[string]bool {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil
	}
	blob := make(map[string]bool)
	for _, ct := range cts {
		if strings.Contains(strings.ToUpper(ct.DatabaseTypeName()), "BLOB") {
			blob[ct.Name()] = true
		}
	}
	return blob
}

// decodeRow applies the text decoding policy: non-blob byte values
// become strings, and byte sequences that are not valid UTF-8 decode
// with the replacement character instead of failing.
func decodeRow(row map[string]any, blobCols map[string]bool) {
	for k, v := range row {
		switch val := v.(type) {
		case []byte:
			if !blobCols[k] {
				row[k] = decodeText(val)
			}
		case string:
			if !utf8.ValidString(val) {
				row[k] = strings.ToValidUTF8(val, string(utf8.RuneError))
			}
		}
	}
}

func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// quoteIdent makes an identifier safe to splice into SQL; catalog
// names cannot be bound as parameters.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = "?"
	}
	return strings.Join(marks, ",")
}
