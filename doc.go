// Package nscache provides namespaced cache and session storage over
// interchangeable backends.
//
// A NamespaceManager formats keys as "<namespace>:<key>" and delegates to a
// cachecore.Backend. Backends are selected by the "type" parameter and
// shared through a Registry so that identical parameters reuse one
// connection pool:
//
//	reg := nscache.NewRegistry(nscache.WithRegistryLogger(zaplog.New(logger)))
//	mgr, err := reg.Manager(ctx, "sessions", cachecore.Params{
//		"type":     "cassandra_cql",
//		"url":      "cass1:9042;cass2:9042",
//		"keyspace": "beaker",
//		"expire":   "3600",
//	})
//	if err != nil {
//		return err
//	}
//	_ = mgr.SetValue("user 42", session, 0)
//
// Driver packages live under driver/; each can also be used directly.
package nscache
