package dbconnector

import (
	"database/sql"
	"fmt"
	"strings"
)

const (
	EnginePostgres  = "postgres"
	EngineSQLServer = "sqlserver"
	EngineMySQL     = "mysql"
	EngineSQLite    = "sqlite"
)

// NormalizeEngine maps accepted aliases to the canonical engine name.
func NormalizeEngine(engine string) string {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "postgres", "postgresql":
		return EnginePostgres
	case "sqlserver", "mssql":
		return EngineSQLServer
	case "mysql":
		return EngineMySQL
	case "sqlite", "sqlite3":
		return EngineSQLite
	default:
		return ""
	}
}

func NewConnector(cfg ConnectionConfig) (Connector, error) {
	if strings.TrimSpace(cfg.Engine) == "" {
		return nil, &ConnectionError{Err: fmt.Errorf("engine is required: %w", ErrUnsupportedEngine)}
	}
	switch NormalizeEngine(cfg.Engine) {
	case EnginePostgres:
		return newPostgresConnector(cfg), nil
	case EngineSQLServer:
		return newMSSQLConnector(cfg), nil
	case EngineMySQL:
		return newMySQLConnector(cfg), nil
	case EngineSQLite:
		return newSQLiteConnector(cfg), nil
	default:
		return nil, &ConnectionError{Engine: cfg.Engine, Err: fmt.Errorf("%w %q", ErrUnsupportedEngine, cfg.Engine)}
	}
}

func openDatabase(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}
