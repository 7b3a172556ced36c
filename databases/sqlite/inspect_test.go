package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/PyTables/datasette-core/databases"
)

func TestInspect(t *testing.T) {
	path := createDB(t,
		"CREATE TABLE author (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE TABLE book (id INTEGER PRIMARY KEY, title TEXT, author_id INTEGER REFERENCES author(id))",
		"CREATE TABLE pair (a TEXT, b TEXT, PRIMARY KEY (b, a))",
		"INSERT INTO author (name) VALUES ('Ada'), ('Grace'), ('Edsger')",
		"CREATE VIEW v_books AS SELECT title FROM book",
	)
	c := newTestConnector(t, path, Options{})
	ctx := context.Background()

	tables, views, err := c.Inspect(ctx)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	t.Run("lists views", func(t *testing.T) {
		if len(views) != 1 || views[0] != "v_books" {
			t.Errorf("views = %v, want [v_books]", views)
		}
	})

	t.Run("columns in declaration order", func(t *testing.T) {
		book := tables["book"]
		if book == nil {
			t.Fatal("missing table book")
		}
		want := []string{"id", "title", "author_id"}
		if len(book.Columns) != len(want) {
			t.Fatalf("columns = %v, want %v", book.Columns, want)
		}
		for i, col := range want {
			if book.Columns[i] != col {
				t.Errorf("columns[%d] = %q, want %q", i, book.Columns[i], col)
			}
		}
	})

	t.Run("composite primary key ordered by key position", func(t *testing.T) {
		pair := tables["pair"]
		if pair == nil {
			t.Fatal("missing table pair")
		}
		if len(pair.PrimaryKeys) != 2 || pair.PrimaryKeys[0] != "b" || pair.PrimaryKeys[1] != "a" {
			t.Errorf("primary keys = %v, want [b a]", pair.PrimaryKeys)
		}
	})

	t.Run("row counts", func(t *testing.T) {
		if got := tables["author"].Count; got != 3 {
			t.Errorf("author count = %d, want 3", got)
		}
		if got := tables["book"].Count; got != 0 {
			t.Errorf("book count = %d, want 0", got)
		}
	})

	t.Run("label column heuristic", func(t *testing.T) {
		if got := tables["author"].LabelColumn; got != "name" {
			t.Errorf("author label column = %q, want name", got)
		}
		if got := tables["book"].LabelColumn; got != "" {
			t.Errorf("book label column = %q, want none", got)
		}
	})

	t.Run("foreign keys attached both ways", func(t *testing.T) {
		book := tables["book"]
		if len(book.ForeignKeys.Outgoing) != 1 {
			t.Fatalf("book outgoing = %v, want one entry", book.ForeignKeys.Outgoing)
		}
		fk := book.ForeignKeys.Outgoing[0]
		if fk.Column != "author_id" || fk.OtherTable != "author" || fk.OtherColumn != "id" {
			t.Errorf("outgoing = %+v, want author_id -> author.id", fk)
		}

		author := tables["author"]
		if len(author.ForeignKeys.Incoming) != 1 {
			t.Fatalf("author incoming = %v, want one entry", author.ForeignKeys.Incoming)
		}
		in := author.ForeignKeys.Incoming[0]
		if in.OtherTable != "book" || in.OtherColumn != "author_id" {
			t.Errorf("incoming = %+v, want book.author_id", in)
		}
	})

	t.Run("plain tables are not hidden", func(t *testing.T) {
		for _, name := range []string{"author", "book", "pair"} {
			if tables[name].Hidden {
				t.Errorf("table %s hidden = true, want false", name)
			}
		}
	})
}

func TestInspectHiddenTables(t *testing.T) {
	path := createDB(t,
		"CREATE TABLE article (id INTEGER PRIMARY KEY, body TEXT)",
		"CREATE VIRTUAL TABLE article_fts USING fts4(body)",
	)
	c := newTestConnector(t, path, Options{})

	tables, _, err := c.Inspect(context.Background())
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	var hidden, visible []string
	for name, meta := range tables {
		if meta.Hidden {
			hidden = append(hidden, name)
		} else {
			visible = append(visible, name)
		}
	}

	// The virtual table and every table sharing its name prefix are
	// hidden; the content table is untouched.
	for name, meta := range tables {
		if strings.HasPrefix(name, "article_fts") && !meta.Hidden {
			t.Errorf("table %s hidden = false, want true", name)
		}
	}
	if tables["article"].Hidden {
		t.Error("table article hidden = true, want false")
	}
	if len(hidden) == 0 {
		t.Errorf("no hidden tables found, visible: %v", visible)
	}
}

func TestInspectCountFailureAbsorbed(t *testing.T) {
	// Deleting an FTS table's content shadow table leaves a virtual
	// table whose count(*) errors out. The scan must still complete,
	// reporting count 0 for that table alone.
	path := createDB(t,
		"CREATE TABLE article (id INTEGER PRIMARY KEY, body TEXT)",
		"CREATE VIRTUAL TABLE article_fts USING fts4(body)",
		"INSERT INTO article (body) VALUES ('one'), ('two')",
		`PRAGMA writable_schema = ON;
		 DELETE FROM sqlite_master WHERE name = 'article_fts_content';
		 PRAGMA writable_schema = OFF`,
	)
	c := newTestConnector(t, path, Options{})

	tables, _, err := c.Inspect(context.Background())
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	fts := tables["article_fts"]
	if fts == nil {
		t.Fatal("missing table article_fts")
	}
	if fts.Count != 0 {
		t.Errorf("article_fts count = %d, want 0", fts.Count)
	}
	if len(fts.Columns) != 1 || fts.Columns[0] != "body" {
		t.Errorf("article_fts columns = %v, want [body]", fts.Columns)
	}
	if got := tables["article"].Count; got != 2 {
		t.Errorf("article count = %d, want 2", got)
	}
}

func TestInspectCancelledContext(t *testing.T) {
	path := createDB(t, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	c := newTestConnector(t, path, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := c.Inspect(ctx); err == nil {
		t.Fatal("Inspect() expected error for cancelled context")
	}
}

func TestSchemaErrClassification(t *testing.T) {
	t.Run("extension load failures pass through", func(t *testing.T) {
		extErr := &databases.ExtensionLoadError{Extension: "mod_spatialite", Err: errors.New("not found")}
		if got := schemaErr(extErr); got != error(extErr) {
			t.Errorf("schemaErr() = %v, want the ExtensionLoadError unchanged", got)
		}
	})

	t.Run("other failures become SchemaError", func(t *testing.T) {
		got := schemaErr(errors.New("disk I/O error"))
		var sErr *databases.SchemaError
		if !errors.As(got, &sErr) {
			t.Errorf("schemaErr() = %v, want SchemaError", got)
		}
	})
}

func TestInspectSeesExternalChanges(t *testing.T) {
	path := createDB(t,
		"CREATE TABLE keep (id INTEGER PRIMARY KEY)",
		"CREATE TABLE dropme (id INTEGER PRIMARY KEY)",
	)
	c := newTestConnector(t, path, Options{})
	ctx := context.Background()

	tables, _, err := c.Inspect(ctx)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if _, ok := tables["dropme"]; !ok {
		t.Fatal("expected table dropme before the drop")
	}

	// Modify the file through an independent connection.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("opening writer connection: %v", err)
	}
	if _, err := db.Exec("DROP TABLE dropme"); err != nil {
		t.Fatalf("dropping table: %v", err)
	}
	db.Close()

	tables, _, err = c.Inspect(ctx)
	if err != nil {
		t.Fatalf("Inspect() after drop error = %v", err)
	}
	if _, ok := tables["dropme"]; ok {
		t.Error("table dropme still present after drop")
	}
	if _, ok := tables["keep"]; !ok {
		t.Error("table keep missing after drop")
	}
}

func TestIsView(t *testing.T) {
	path := createDB(t,
		"CREATE TABLE t (id INTEGER PRIMARY KEY)",
		"CREATE VIEW v AS SELECT id FROM t",
	)
	c := newTestConnector(t, path, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		want bool
	}{
		{"v", true},
		{"t", false},
		{"missing", false},
	}
	for _, tt := range tests {
		got, err := c.IsView(ctx, tt.name)
		if err != nil {
			t.Fatalf("IsView(%q) error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("IsView(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDefinition(t *testing.T) {
	path := createDB(t,
		"CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE VIEW v AS SELECT name FROM t",
	)
	c := newTestConnector(t, path, Options{})
	ctx := context.Background()

	t.Run("returns stored sql", func(t *testing.T) {
		def, ok, err := c.Definition(ctx, "v", "view")
		if err != nil {
			t.Fatalf("Definition() error = %v", err)
		}
		if !ok {
			t.Fatal("Definition() ok = false, want true")
		}
		if !strings.Contains(def, "CREATE VIEW") {
			t.Errorf("definition = %q, want CREATE VIEW statement", def)
		}
	})

	t.Run("missing object is absence, not an error", func(t *testing.T) {
		_, ok, err := c.Definition(ctx, "nonexistent", "table")
		if err != nil {
			t.Fatalf("Definition() error = %v", err)
		}
		if ok {
			t.Error("Definition() ok = true for nonexistent object")
		}
	})

	t.Run("kind must match", func(t *testing.T) {
		_, ok, err := c.Definition(ctx, "v", "table")
		if err != nil {
			t.Fatalf("Definition() error = %v", err)
		}
		if ok {
			t.Error("Definition() ok = true for wrong kind")
		}
	})
}
