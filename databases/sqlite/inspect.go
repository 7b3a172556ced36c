package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/PyTables/datasette-core/databases"
	"github.com/PyTables/datasette-core/types"
)

// spatialiteInternalTables are bookkeeping tables created by the
// SpatiaLite extension. They are hidden whenever the database looks
// SpatiaLite-enabled.
var spatialiteInternalTables = []string{
	"ElementaryGeometries", "SpatialIndex", "geometry_columns",
	"spatial_ref_sys", "spatialite_history", "sql_statements_log",
	"sqlite_sequence", "views_geometry_columns", "virts_geometry_columns",
}

// Inspect derives metadata for every table plus the list of views.
// Each call opens its own snapshot connection and reads the current
// state of the file; results are never cached.
//
// A failing count(*) on a single table (some virtual table types
// reject aggregates) is absorbed as count 0. Any other failure aborts
// the inspection with a SchemaError.
func (c *Connector) Inspect(ctx context.Context) (map[string]*types.TableMetadata, []string, error) {
	snap, err := c.openSnapshot()
	if err != nil {
		return nil, nil, schemaErr(err)
	}
	defer snap.Close()

	tableNames, err := catalogNames(ctx, snap, "table")
	if err != nil {
		return nil, nil, schemaErr(err)
	}
	views, err := catalogNames(ctx, snap, "view")
	if err != nil {
		return nil, nil, schemaErr(err)
	}

	tables := make(map[string]*types.TableMetadata, len(tableNames))
	for _, name := range tableNames {
		meta, err := inspectTable(ctx, snap, name)
		if err != nil {
			return nil, nil, schemaErr(err)
		}
		tables[name] = meta
	}

	if err := attachForeignKeys(ctx, snap, tables); err != nil {
		return nil, nil, schemaErr(err)
	}

	hidden, err := hiddenTableNames(ctx, snap)
	if err != nil {
		return nil, nil, schemaErr(err)
	}
	markHidden(tables, hidden)

	return tables, views, nil
}

// schemaErr classifies a catalog-level failure. Extension load
// failures pass through untouched: they are fatal and never
// downgraded to a SchemaError.
func schemaErr(err error) error {
	var extErr *databases.ExtensionLoadError
	if errors.As(err, &extErr) {
		return extErr
	}
	return &databases.SchemaError{Err: err}
}

func catalogNames(ctx context.Context, db *sqlx.DB, kind string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = ?", kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func inspectTable(ctx context.Context, db *sqlx.DB, name string) (*types.TableMetadata, error) {
	meta := &types.TableMetadata{Name: name}

	// Count failures happen on FTS virtual tables and the like; the
	// table still gets inspected, with count 0. A dead context is not
	// an operational failure and aborts the scan instead.
	var count int64
	if err := db.GetContext(ctx, &count, "SELECT count(*) FROM "+quoteIdent(name)); err == nil {
		meta.Count = count
	} else if ctx.Err() != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT name, pk FROM pragma_table_info(?) ORDER BY cid", name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type pkColumn struct {
		name    string
		ordinal int
	}
	var pks []pkColumn

	for rows.Next() {
		var colName string
		var pk int
		if err := rows.Scan(&colName, &pk); err != nil {
			return nil, err
		}
		meta.Columns = append(meta.Columns, colName)
		if pk > 0 {
			pks = append(pks, pkColumn{name: colName, ordinal: pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Primary keys ordered by their position in the key, not by
	// declaration order.
	sort.Slice(pks, func(i, j int) bool { return pks[i].ordinal < pks[j].ordinal })
	for _, pk := range pks {
		meta.PrimaryKeys = append(meta.PrimaryKeys, pk.name)
	}

	// A two-column table with an "id" column labels rows by the other
	// column when rendering references to it.
	if len(meta.Columns) == 2 {
		switch {
		case meta.Columns[0] == "id":
			meta.LabelColumn = meta.Columns[1]
		case meta.Columns[1] == "id":
			meta.LabelColumn = meta.Columns[0]
		}
	}

	return meta, nil
}

// attachForeignKeys gathers foreign keys for every table in one pass,
// recording each edge as outgoing on the declaring table and incoming
// on the referenced table.
func attachForeignKeys(ctx context.Context, db *sqlx.DB, tables map[string]*types.TableMetadata) error {
	for name, meta := range tables {
		rows, err := db.QueryContext(ctx,
			`SELECT "table", "from", "to" FROM pragma_foreign_key_list(?)`, name)
		if err != nil {
			return err
		}

		for rows.Next() {
			var otherTable, from string
			var to sql.NullString
			if err := rows.Scan(&otherTable, &from, &to); err != nil {
				rows.Close()
				return err
			}

			otherColumn := to.String
			if !to.Valid {
				// REFERENCES with no column names the parent's primary
				// key implicitly.
				otherColumn = implicitKeyColumn(tables[otherTable])
			}

			meta.ForeignKeys.Outgoing = append(meta.ForeignKeys.Outgoing, types.ForeignKeyRef{
				Column:      from,
				OtherTable:  otherTable,
				OtherColumn: otherColumn,
			})
			if target, ok := tables[otherTable]; ok {
				target.ForeignKeys.Incoming = append(target.ForeignKeys.Incoming, types.ForeignKeyRef{
					Column:      otherColumn,
					OtherTable:  name,
					OtherColumn: from,
				})
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

func implicitKeyColumn(meta *types.TableMetadata) string {
	if meta != nil && len(meta.PrimaryKeys) == 1 {
		return meta.PrimaryKeys[0]
	}
	return "rowid"
}

// hiddenTableNames detects tables that should be hidden from users:
// full-text-search virtual tables (whose auxiliary tables share their
// name as a prefix) and, on SpatiaLite databases, the extension's
// internal tables. This is a heuristic kept in one place so it can be
// replaced wholesale.
func hiddenTableNames(ctx context.Context, db *sqlx.DB) ([]string, error) {
	hidden, err := catalogFTSNames(ctx, db)
	if err != nil {
		return nil, err
	}

	spatialite, err := detectSpatialite(ctx, db)
	if err != nil {
		return nil, err
	}
	if spatialite {
		hidden = append(hidden, spatialiteInternalTables...)
	}
	return hidden, nil
}

func catalogFTSNames(ctx context.Context, db *sqlx.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE rootpage = 0
		AND sql LIKE '%VIRTUAL TABLE%USING FTS%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func detectSpatialite(ctx context.Context, db *sqlx.DB) (bool, error) {
	var n int
	err := db.GetContext(ctx, &n,
		"SELECT count(*) FROM sqlite_master WHERE tbl_name = 'geometry_columns'")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func markHidden(tables map[string]*types.TableMetadata, hidden []string) {
	for name, meta := range tables {
		for _, h := range hidden {
			if name == h || strings.HasPrefix(name, h) {
				meta.Hidden = true
				break
			}
		}
	}
}

// IsView reports whether the catalog has a view by that name.
func (c *Connector) IsView(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.GetContext(ctx, &n,
		"SELECT count(*) FROM sqlite_master WHERE type = 'view' AND name = ?", name)
	if err != nil {
		return false, schemaErr(err)
	}
	return n > 0, nil
}

// Definition returns the stored SQL for the named catalog object of
// the given kind. ok is false when no such object exists.
func (c *Connector) Definition(ctx context.Context, name, kind string) (string, bool, error) {
	var stored sql.NullString
	err := c.db.GetContext(ctx, &stored,
		"SELECT sql FROM sqlite_master WHERE name = ? AND type = ?", name, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, schemaErr(err)
	}
	return stored.String, true, nil
}
