// Package cassandracache stores namespaced blobs in a Cassandra table
// through the CQL native protocol.
//
// Each key is one row of a two-column table:
//
//	CREATE TABLE IF NOT EXISTS <table> (key varchar PRIMARY KEY, data blob)
//
// Failures are retried at two layers. The driver retries a timed out or
// unavailable request once against another host (NextHostPolicy); the
// store then re-runs the whole call when it failed with a transient error
// (IsTransient), up to Config.Tries for reads and Config.WriteTries for
// writes.
//
// Clear truncates the table. Every namespace sharing the table is wiped.
package cassandracache
