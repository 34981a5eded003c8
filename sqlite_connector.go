package dbconnector

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteConnector reads local database files. Database holds the file path,
// or ":memory:" for a private in-memory database.
type SQLiteConnector struct {
	baseConnector
}

func newSQLiteConnector(cfg ConnectionConfig) *SQLiteConnector {
	dsn := strings.TrimSpace(cfg.Database)
	if dsn == "" {
		dsn = ":memory:"
	}
	return &SQLiteConnector{baseConnector{
		engine: EngineSQLite,
		driver: "sqlite",
		dsn:    dsn,
		// every pooled connection to :memory: would see its own empty database
		prepare: func(db *sql.DB) { db.SetMaxOpenConns(1) },
	}}
}
