package cassandracache

import "fmt"

// statements holds the CQL text for every operation. gocql prepares each
// one on first use per connection and reuses the prepared id afterwards.
type statements struct {
	createTable string
	contains    string
	setTTL      string
	set         string
	get         string
	delete      string
	truncate    string
}

// newStatements assumes table has already been validated.
func newStatements(table string) statements {
	return statements{
		createTable: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key varchar PRIMARY KEY, data blob)", table),
		contains:    fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE key = ?", table),
		setTTL:      fmt.Sprintf("INSERT INTO %s (key, data) VALUES (?, ?) USING TTL ?", table),
		set:         fmt.Sprintf("INSERT INTO %s (key, data) VALUES (?, ?)", table),
		// LIMIT 2 lets Get notice a duplicate primary key.
		get:      fmt.Sprintf("SELECT data FROM %s WHERE key = ? LIMIT 2", table),
		delete:   fmt.Sprintf("DELETE FROM %s WHERE key = ?", table),
		truncate: fmt.Sprintf("TRUNCATE %s", table),
	}
}
