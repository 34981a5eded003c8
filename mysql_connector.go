package dbconnector

import (
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

type MySQLConnector struct {
	baseConnector
}

func newMySQLConnector(cfg ConnectionConfig) *MySQLConnector {
	return &MySQLConnector{baseConnector{
		engine: EngineMySQL,
		driver: "mysql",
		dsn:    mysqlDSN(cfg),
	}}
}

func mysqlDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "disable" {
		mc.TLSConfig = "false"
	} else if sslMode != "" {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}
