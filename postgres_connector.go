package dbconnector

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
)

type PostgresConnector struct {
	baseConnector
}

func newPostgresConnector(cfg ConnectionConfig) *PostgresConnector {
	return &PostgresConnector{baseConnector{
		engine: EnginePostgres,
		driver: "postgres",
		dsn:    postgresDSN(cfg),
	}}
}

func postgresDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}
