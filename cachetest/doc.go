// Package cachetest provides a reusable contract suite for
// cachecore.Backend implementations.
//
// Driver packages run it from their own tests:
//
//	func TestRedisStoreContract(t *testing.T) {
//		backend := rediscache.New(rediscache.Config{Client: newTestRedisClient(t)})
//		cachetest.RunBackendContract(t, backend, cachetest.Options{
//			CaseName: t.Name(),
//			TTL:      time.Second,
//			TTLWait:  1500 * time.Millisecond,
//		})
//	}
//
// Backends that cannot list keys set KeysUnsupported; the suite then
// asserts Keys fails with cachecore.ErrNotImplemented instead.
package cachetest
