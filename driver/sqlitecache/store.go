package sqlitecache

import (
	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/driver/sqlcore"
	_ "modernc.org/sqlite"
)

// Config configures a sqlite-backed cache store.
type Config struct {
	cachecore.BaseConfig
	DSN   string
	Table string
}

// New builds a sqlite-backed cachecore.Backend.
func New(cfg Config) (cachecore.Backend, error) {
	return sqlcore.New(sqlcore.Config{
		BaseConfig: cfg.BaseConfig,
		DriverName: "sqlite",
		DSN:        cfg.DSN,
		Table:      cfg.Table,
	})
}
