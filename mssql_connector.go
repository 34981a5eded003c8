package dbconnector

import (
	"fmt"
	"net/url"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
)

type MSSQLConnector struct {
	baseConnector
}

func newMSSQLConnector(cfg ConnectionConfig) *MSSQLConnector {
	return &MSSQLConnector{baseConnector{
		engine:  EngineSQLServer,
		driver:  "sqlserver",
		dsn:     mssqlDSN(cfg),
		convert: convertMSSQLValue,
	}}
}

func mssqlDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	encrypt := "true"
	if strings.ToLower(strings.TrimSpace(cfg.SSLMode)) == "disable" {
		encrypt = "disable"
	}
	query := url.Values{}
	query.Set("database", cfg.Database)
	query.Set("encrypt", encrypt)
	query.Set("TrustServerCertificate", "true")
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// SQL Server returns uniqueidentifier columns as raw bytes in mixed-endian
// order; render them the way the server prints them.
func convertMSSQLValue(dbType string, v any) (any, bool) {
	if dbType != "UNIQUEIDENTIFIER" {
		return nil, false
	}
	raw, ok := v.([]byte)
	if !ok {
		return nil, false
	}
	var id mssql.UniqueIdentifier
	if err := id.Scan(raw); err != nil {
		return nil, false
	}
	return id.String(), true
}
