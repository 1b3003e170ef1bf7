// Package rediscache provides a Redis-backed cachecore.Backend. The same
// adapter serves Dynomite clusters, which speak the Redis protocol.
//
// Example:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	backend := rediscache.New(rediscache.Config{Client: rdb})
//	mgr := nscache.NewNamespaceManager("sessions", backend)
package rediscache
