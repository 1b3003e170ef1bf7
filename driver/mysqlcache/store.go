package mysqlcache

import (
	_ "github.com/go-sql-driver/mysql"
	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/driver/sqlcore"
)

// Config configures a mysql-backed cache store.
type Config struct {
	cachecore.BaseConfig
	DSN   string
	Table string
}

// New builds a mysql-backed cachecore.Backend.
func New(cfg Config) (cachecore.Backend, error) {
	return sqlcore.New(sqlcore.Config{
		BaseConfig: cfg.BaseConfig,
		DriverName: "mysql",
		DSN:        cfg.DSN,
		Table:      cfg.Table,
	})
}
