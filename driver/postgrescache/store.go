package postgrescache

import (
	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/driver/sqlcore"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config configures a postgres-backed cache store.
type Config struct {
	cachecore.BaseConfig
	DSN   string
	Table string
}

// New builds a postgres-backed cachecore.Backend.
func New(cfg Config) (cachecore.Backend, error) {
	return sqlcore.New(sqlcore.Config{
		BaseConfig: cfg.BaseConfig,
		DriverName: "pgx",
		DSN:        cfg.DSN,
		Table:      cfg.Table,
	})
}
