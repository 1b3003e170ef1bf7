// Package sqlcore stores cache entries in a single database/sql table.
//
// Each row holds the namespaced key, the raw value and an absolute expiry
// in unix milliseconds (0 for entries without a TTL). The schema, upsert
// syntax and placeholder style are picked from the database/sql driver
// name: "postgres"/"pgx" and "mysql" get their own dialect, anything else
// is treated as sqlite. Expired rows are skipped on read and removed lazily.
//
// Callers usually go through driver/sqlitecache, driver/postgrescache or
// driver/mysqlcache, which register the matching driver:
//
//	backend, err := sqlcore.New(sqlcore.Config{
//		DriverName: "pgx",
//		DSN:        "postgres://cache:secret@db:5432/app?sslmode=disable",
//		Table:      "nscache_entries",
//	})
package sqlcore
