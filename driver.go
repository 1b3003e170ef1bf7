package nscache

import "github.com/goforj/nscache/cachecore"

// Driver identifies a cache backend; the value of the "type" parameter.
type Driver = cachecore.Driver

const (
	DriverNull      = cachecore.DriverNull
	DriverFile      = cachecore.DriverFile
	DriverMemory    = cachecore.DriverMemory
	DriverMemcached = cachecore.DriverMemcached
	DriverTyrant    = cachecore.DriverTyrant
	DriverDynamo    = cachecore.DriverDynamo
	DriverSQL       = cachecore.DriverSQL
	DriverRedis     = cachecore.DriverRedis
	DriverDynomite  = cachecore.DriverDynomite
	DriverNATS      = cachecore.DriverNATS
	DriverCassandra = cachecore.DriverCassandra
	DriverRistretto = cachecore.DriverRistretto
	DriverBigcache  = cachecore.DriverBigcache
)
