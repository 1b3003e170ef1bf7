package nscache

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goforj/nscache/cachecore"
	"gopkg.in/yaml.v2"
)

// ParseParamsYAML reads a flat YAML mapping into Params. Scalar values are
// rendered as strings; nested mappings and lists are rejected.
//
// Example:
//
//	params, _ := nscache.ParseParamsYAML([]byte(`
//	type: cassandra_cql
//	url: cass1:9042;cass2:9042
//	keyspace: sessions
//	expire: 3600
//	`))
func ParseParamsYAML(data []byte) (cachecore.Params, error) {
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse cache params: %w", err)
	}
	out := make(cachecore.Params, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = tv
		case bool:
			out[k] = strconv.FormatBool(tv)
		case int:
			out[k] = strconv.Itoa(tv)
		case int64:
			out[k] = strconv.FormatInt(tv, 10)
		case uint64:
			out[k] = strconv.FormatUint(tv, 10)
		case float64:
			out[k] = strconv.FormatFloat(tv, 'f', -1, 64)
		default:
			return nil, cachecore.InvalidParam(k, fmt.Sprintf("%s must be a scalar value", k))
		}
	}
	return out, nil
}

// LoadParamsFile reads path and parses it with ParseParamsYAML.
func LoadParamsFile(path string) (cachecore.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseParamsYAML(data)
}
