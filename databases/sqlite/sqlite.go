package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/PyTables/datasette-core/databases"
)

const (
	DefaultMaxReturnedRows = 1000
	DefaultTimeLimit       = time.Second

	// connectTimeout bounds the initial connectivity check.
	connectTimeout = 5 * time.Second
)

// ScalarFunc describes a custom scalar SQL function registered on
// every prepared connection. NumArgs documents the arity and is
// checked against Impl's signature; use -1 for a variadic function.
type ScalarFunc struct {
	Name    string
	NumArgs int
	Impl    any
}

// PrepareHook runs once per raw connection, after functions and
// extensions are set up. It may perform arbitrary extra setup.
type PrepareHook func(conn *sqlite3.SQLiteConn) error

// Options configures a Connector. The zero value gets the default row
// cap and time limit.
type Options struct {
	MaxReturnedRows int
	TimeLimit       time.Duration
	Extensions      []string
	Functions       []ScalarFunc
	Prepare         PrepareHook
}

// Connector implements databases.Connector for a SQLite file.
//
// It owns one long-lived connection used by Execute; Inspect opens and
// closes its own read-only snapshot connection on every call. Execute
// is not internally synchronized.
type Connector struct {
	path       string
	driverName string
	db         *sqlx.DB
	opts       Options
}

var _ databases.Connector = (*Connector)(nil)

// driverSeq keeps registered driver names unique per connector, since
// database/sql has no way to unregister or reconfigure a driver.
var driverSeq atomic.Int64

// NewConnector opens the long-lived connection for the given database
// file. Connection preparation (custom functions, extensions, the
// prepare hook) is installed as a driver connect hook, so it applies
// exactly once to every raw connection before any statement runs.
func NewConnector(path string, opts Options) (*Connector, error) {
	if opts.MaxReturnedRows == 0 {
		opts.MaxReturnedRows = DefaultMaxReturnedRows
	}
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = DefaultTimeLimit
	}

	driverName := fmt.Sprintf("sqlite3-connector-%d", driverSeq.Add(1))
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: prepareConnection(opts),
	})
	sqlx.BindDriver(driverName, sqlx.QUESTION)

	db, err := sqlx.Open(driverName, fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection, kept for the connector's lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	c := &Connector{
		path:       path,
		driverName: driverName,
		db:         db,
		opts:       opts,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		var extErr *databases.ExtensionLoadError
		if errors.As(err, &extErr) {
			return nil, extErr
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return c, nil
}

// prepareConnection builds the connect hook applied to every raw
// connection: register custom functions, load extensions, then hand
// the connection to the caller-supplied hook. An extension load
// failure aborts the connection open.
func prepareConnection(opts Options) func(*sqlite3.SQLiteConn) error {
	return func(conn *sqlite3.SQLiteConn) error {
		for _, fn := range opts.Functions {
			if err := checkArity(fn); err != nil {
				return err
			}
			if err := conn.RegisterFunc(fn.Name, fn.Impl, true); err != nil {
				return fmt.Errorf("failed to register function %s: %w", fn.Name, err)
			}
		}
		for _, ext := range opts.Extensions {
			if err := conn.LoadExtension(ext, ""); err != nil {
				return &databases.ExtensionLoadError{Extension: ext, Err: err}
			}
		}
		if opts.Prepare != nil {
			if err := opts.Prepare(conn); err != nil {
				return fmt.Errorf("prepare hook failed: %w", err)
			}
		}
		return nil
	}
}

func checkArity(fn ScalarFunc) error {
	t := reflect.TypeOf(fn.Impl)
	if t == nil || t.Kind() != reflect.Func {
		return fmt.Errorf("function %s: implementation is not a function", fn.Name)
	}
	if fn.NumArgs >= 0 && !t.IsVariadic() && t.NumIn() != fn.NumArgs {
		return fmt.Errorf("function %s: implementation takes %d arguments, want %d",
			fn.Name, t.NumIn(), fn.NumArgs)
	}
	return nil
}

// openSnapshot opens an independent read-only connection against the
// current state of the file. It never blocks on, or is blocked by, the
// long-lived connection.
func (c *Connector) openSnapshot() (*sqlx.DB, error) {
	db, err := sqlx.Open(c.driverName, fmt.Sprintf("file:%s?immutable=1&mode=ro", c.path))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Path returns the database file path.
func (c *Connector) Path() string {
	return c.path
}

func (c *Connector) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
