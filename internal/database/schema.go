package database

import (
	"context"
	"fmt"

	"github.com/iliyamo/flights-api/internal/query"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS flights (
		flight_id        BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		flight_number    VARCHAR(32)  NOT NULL,
		origin           VARCHAR(16)  NOT NULL,
		destination      VARCHAR(16)  NOT NULL,
		departure_time   DATETIME     NULL,
		arrival_time     DATETIME     NULL,
		duration_minutes INT          NULL,
		aircraft_type    VARCHAR(64)  NULL,
		seats_total      INT          NULL,
		seats_available  INT          NULL,
		status           VARCHAR(64)  NULL,
		created_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		process_id       VARCHAR(128) NULL,
		PRIMARY KEY (flight_id),
		KEY idx_flights_origin (origin),
		KEY idx_flights_destination (destination),
		KEY idx_flights_status (status),
		KEY idx_flights_number (flight_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS flight_logs (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		flight_id      BIGINT UNSIGNED NULL,
		changed_at     DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		changed_by     VARCHAR(128) NULL,
		change_summary VARCHAR(512) NULL,
		old_data       MEDIUMTEXT   NULL,
		new_data       MEDIUMTEXT   NULL,
		PRIMARY KEY (id),
		KEY idx_flight_logs_flight (flight_id),
		CONSTRAINT fk_flight_logs_flight FOREIGN KEY (flight_id)
			REFERENCES flights (flight_id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS flights (
		flight_id        INTEGER PRIMARY KEY AUTOINCREMENT,
		flight_number    TEXT NOT NULL,
		origin           TEXT NOT NULL,
		destination      TEXT NOT NULL,
		departure_time   DATETIME,
		arrival_time     DATETIME,
		duration_minutes INTEGER,
		aircraft_type    TEXT,
		seats_total      INTEGER,
		seats_available  INTEGER,
		status           TEXT,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		process_id       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flights_origin ON flights (origin)`,
	`CREATE INDEX IF NOT EXISTS idx_flights_destination ON flights (destination)`,
	`CREATE INDEX IF NOT EXISTS idx_flights_status ON flights (status)`,
	`CREATE INDEX IF NOT EXISTS idx_flights_number ON flights (flight_number)`,
	`CREATE TABLE IF NOT EXISTS flight_logs (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		flight_id      INTEGER,
		changed_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		changed_by     TEXT,
		change_summary TEXT,
		old_data       TEXT,
		new_data       TEXT,
		FOREIGN KEY (flight_id) REFERENCES flights (flight_id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flight_logs_flight ON flight_logs (flight_id)`,
}

// SchemaStatements returns the bootstrap DDL for a dialect.
func SchemaStatements(d query.Dialect) ([]string, error) {
	switch d {
	case query.MySQL:
		return mysqlSchema, nil
	case query.SQLite:
		return sqliteSchema, nil
	}
	return nil, fmt.Errorf("no schema for dialect %q", d)
}

// InitSchema creates the flights and flight_logs tables when absent. It runs
// at most once successfully per Gateway; concurrent callers wait for the
// first one, and a failed attempt can be retried.
func (g *Gateway) InitSchema(ctx context.Context) error {
	g.schemaMu.Lock()
	defer g.schemaMu.Unlock()
	if g.schemaReady {
		return nil
	}

	stmts, err := SchemaStatements(g.dialect)
	if err != nil {
		return err
	}

	h, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	for _, stmt := range stmts {
		if _, err := h.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	g.schemaReady = true
	return nil
}
