package cassandracache

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gocql/gocql"
	"github.com/goforj/nscache/cachecore"
)

// parseEndpoints splits "h1:9042; h2:9042" into hosts. The port of the
// first endpoint that carries one is used for the whole cluster.
func parseEndpoints(url string) ([]string, int, error) {
	var hosts []string
	port := 0
	for _, part := range strings.Split(url, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, rawPort, hasPort := strings.Cut(part, ":")
		hosts = append(hosts, host)
		if hasPort && port == 0 {
			p, err := strconv.Atoi(rawPort)
			if err != nil || p <= 0 {
				return nil, 0, cachecore.InvalidParam("url", fmt.Sprintf("invalid port in endpoint %q", part))
			}
			port = p
		}
	}
	if len(hosts) == 0 {
		return nil, 0, cachecore.MissingParam("url")
	}
	if port == 0 {
		port = defaultPort
	}
	return hosts, port, nil
}

// contactPoints resolves the configured endpoints and picks at most
// maxContactPoints addresses at random, so clients behind a round-robin
// name do not all start on the same node.
func contactPoints(ctx context.Context, cfg Config) ([]string, int, error) {
	hosts, port, err := parseEndpoints(cfg.URL)
	if err != nil {
		return nil, 0, err
	}
	ips, err := resolveHosts(ctx, cfg.Resolver, hosts)
	if err != nil {
		return nil, 0, err
	}
	if len(ips) == 0 {
		return nil, 0, fmt.Errorf("cassandra: no addresses for %v", hosts)
	}
	cfg.shuffle(len(ips), func(i, j int) { ips[i], ips[j] = ips[j], ips[i] })
	if len(ips) > maxContactPoints {
		ips = ips[:maxContactPoints]
	}
	return ips, port, nil
}

func clusterConfig(cfg Config, hosts []string, port int) *gocql.ClusterConfig {
	cc := gocql.NewCluster(hosts...)
	cc.Port = port
	cc.Keyspace = cfg.Keyspace
	cc.ProtoVersion = cfg.ProtocolVersion
	cc.Timeout = cfg.QueryTimeout
	cc.RetryPolicy = NextHostPolicy{}
	cc.DefaultIdempotence = true
	if cfg.MaxSchemaAgreementWait > 0 {
		cc.MaxWaitSchemaAgreement = cfg.MaxSchemaAgreementWait
	}
	if cfg.Datacenter != "" {
		cc.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(cfg.Datacenter))
	}
	if cfg.Username != "" && cfg.Password != "" {
		cc.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.Consistency != "" {
		if c, err := gocql.ParseConsistencyWrapper(strings.ToUpper(cfg.Consistency)); err == nil {
			cc.Consistency = c
		} else {
			cfg.Logger.Debug("cassandra: ignoring unknown consistency level", cachecore.Fields{"consistency_level": cfg.Consistency})
		}
	}
	return cc
}

// connect builds the cluster configuration and opens a session bound to
// the keyspace. Connection errors are returned as is.
func connect(ctx context.Context, cfg Config, obs *clusterMetrics) (Session, error) {
	hosts, port, err := contactPoints(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cc := clusterConfig(cfg, hosts, port)
	if obs != nil {
		cc.QueryObserver = obs
		cc.ConnectObserver = obs
		cc.HostFilter = obs
	}
	cfg.Logger.Info("cassandra: connecting", cachecore.Fields{
		"contact_points":   hosts,
		"port":             port,
		"keyspace":         cfg.Keyspace,
		"datacenter":       cfg.Datacenter,
		"protocol_version": cfg.ProtocolVersion,
	})
	sess, err := cfg.newSession(cc)
	if err != nil {
		return nil, fmt.Errorf("cassandra: connect: %w", err)
	}
	return sess, nil
}
