package cassandracache

import (
	"context"
	"fmt"
	"net"
)

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// resolveHosts returns the union of the IPv4 addresses of hosts, in
// first-seen order. Any lookup failure aborts the whole resolution.
func resolveHosts(ctx context.Context, r Resolver, hosts []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, h := range hosts {
		ips, err := r.LookupIP(ctx, "ip4", h)
		if err != nil {
			return nil, fmt.Errorf("cassandra: resolve %q: %w", h, err)
		}
		for _, ip := range ips {
			s := ip.String()
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out, nil
}
