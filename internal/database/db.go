package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/flights-api/internal/config"
	"github.com/iliyamo/flights-api/internal/query"
)

// Gateway owns the connection pool and schema bootstrap. Every repository
// operation takes its own Handle from Acquire and releases it before
// returning; handles are never shared between operations.
type Gateway struct {
	db      *sql.DB
	dialect query.Dialect

	schemaMu    sync.Mutex
	schemaReady bool
}

// Handle is one dedicated connection checked out of the pool.
type Handle struct {
	*sql.Conn
	once sync.Once
}

// Release returns the connection to the pool. It is safe to call more than once.
func (h *Handle) Release() {
	if h == nil || h.Conn == nil {
		return
	}
	h.once.Do(func() { _ = h.Conn.Close() })
}

// Open connects to the configured store and verifies the connection.
func Open(ctx context.Context, cfg config.DBConfig) (*Gateway, error) {
	var (
		driver  string
		dsn     string
		dialect query.Dialect
	)
	switch cfg.Driver {
	case "mysql":
		driver, dialect = "mysql", query.MySQL
		dsn = mysqlDSN(cfg)
	case "sqlite":
		driver, dialect = "sqlite", query.SQLite
		dsn = sqliteDSN(cfg.Path, cfg.LockTimeout)
	default:
		return nil, fmt.Errorf("open store: unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Pool settings
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	// Ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return New(db, dialect), nil
}

// OpenSQLite opens a file backed SQLite store with the default pool. Used by
// tests and the seed command.
func OpenSQLite(ctx context.Context, path string, lockTimeout time.Duration) (*Gateway, error) {
	return Open(ctx, config.DBConfig{
		Driver:      "sqlite",
		Path:        path,
		LockTimeout: lockTimeout,
		MaxOpen:     8,
		MaxIdle:     8,
		MaxLifetime: 30 * time.Minute,
	})
}

// New wraps an already opened pool.
func New(db *sql.DB, dialect query.Dialect) *Gateway {
	return &Gateway{db: db, dialect: dialect}
}

// mysqlDSN builds the DSN. parseTime=true maps DATETIME to time.Time, loc=UTC
// keeps times consistent, and innodb_lock_wait_timeout bounds how long a
// writer waits for a row lock before failing.
func mysqlDSN(cfg config.DBConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Pass
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Collation = "utf8mb4_unicode_ci"
	mc.Timeout = 5 * time.Second
	mc.Params = map[string]string{
		"innodb_lock_wait_timeout": strconv.Itoa(lockSeconds(cfg.LockTimeout)),
	}
	return mc.FormatDSN()
}

// sqliteDSN turns on foreign keys and a busy timeout for every pooled
// connection.
func sqliteDSN(path string, lockTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", lockTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	return path + "?" + q.Encode()
}

func lockSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// Dialect reports which SQL dialect the gateway speaks.
func (g *Gateway) Dialect() query.Dialect { return g.dialect }

// Acquire checks out a dedicated connection. Callers must defer Release.
func (g *Gateway) Acquire(ctx context.Context) (*Handle, error) {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Handle{Conn: conn}, nil
}

// Stats exposes pool statistics.
func (g *Gateway) Stats() sql.DBStats { return g.db.Stats() }

// Ping verifies the store is reachable.
func (g *Gateway) Ping(ctx context.Context) error { return g.db.PingContext(ctx) }

// Close closes the pool.
func (g *Gateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
