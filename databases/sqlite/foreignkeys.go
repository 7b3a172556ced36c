package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PyTables/datasette-core/databases"
	"github.com/PyTables/datasette-core/types"
)

// ResolveForeignKeys resolves the foreign key values present in rows
// into display labels.
//
// For each outgoing key whose referenced table has a label column, the
// distinct values in rows are fetched in one batched query; each
// returned pair becomes a labeled entry. Keys without a label column
// are recorded in the raw map as column -> referenced table. A failed
// batch lookup (including one hitting the statement time limit) loses
// labels for that key only; enrichment is best effort and never fails
// the call.
func (c *Connector) ResolveForeignKeys(ctx context.Context, table string, rows []map[string]any) (map[string]string, map[types.LabelKey]types.RowLabel, error) {
	tables, _, err := c.Inspect(ctx)
	if err != nil {
		return nil, nil, err
	}
	meta, ok := tables[table]
	if !ok {
		return nil, nil, &databases.SchemaError{Err: fmt.Errorf("no such table: %s", table)}
	}

	raw := make(map[string]string)
	labeled := make(map[types.LabelKey]types.RowLabel)

	for _, fk := range meta.ForeignKeys.Outgoing {
		target, ok := tables[fk.OtherTable]
		if !ok || target.LabelColumn == "" {
			raw[fk.Column] = fk.OtherTable
			continue
		}

		values := distinctValues(rows, fk.Column)
		if len(values) == 0 {
			continue
		}

		query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s)",
			quoteIdent(fk.OtherColumn),
			quoteIdent(target.LabelColumn),
			quoteIdent(fk.OtherTable),
			quoteIdent(fk.OtherColumn),
			placeholders(len(values)),
		)
		res, err := c.Execute(ctx, query, databases.ExecuteOptions{Params: values})
		if err != nil {
			slog.Debug("foreign key label lookup failed",
				"table", table,
				"column", fk.Column,
				"error", err,
			)
			continue
		}

		for _, row := range res.Rows {
			key := types.LabelKey{Column: fk.Column, Value: valueString(row[fk.OtherColumn])}
			labeled[key] = types.RowLabel{
				OtherTable: fk.OtherTable,
				Label:      valueString(row[target.LabelColumn]),
			}
		}
	}

	return raw, labeled, nil
}

// distinctValues collects the distinct non-null values of one column
// across a row batch, in first-seen order.
func distinctValues(rows []map[string]any, column string) []any {
	seen := make(map[string]bool)
	var values []any
	for _, row := range rows {
		v, ok := row[column]
		if !ok || v == nil {
			continue
		}
		key := valueString(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		values = append(values, v)
	}
	return values
}

// valueString normalizes a SQLite value to its string form for map
// keying and labels.
func valueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return decodeText(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
