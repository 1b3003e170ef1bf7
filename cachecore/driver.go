package cachecore

// Driver identifies a storage backend.
type Driver string

const (
	DriverNull      Driver = "null"
	DriverFile      Driver = "file"
	DriverMemory    Driver = "memory"
	DriverMemcached Driver = "memcached"
	DriverTyrant    Driver = "tyrant"
	DriverDynamo    Driver = "dynamodb"
	DriverSQL       Driver = "sql"
	DriverRedis     Driver = "redis"
	DriverDynomite  Driver = "dynomite"
	DriverNATS      Driver = "nats"
	DriverCassandra Driver = "cassandra_cql"
	DriverRistretto Driver = "ristretto"
	DriverBigcache  Driver = "bigcache"
)
