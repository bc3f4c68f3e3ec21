package secrets

import (
	"encoding/json"
	"fmt"
	"os"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulKV implements KVBackend against Hashicorp Consul's KV store as an
// external secret backend: each secret is a JSON object stored under a
// Consul key, projected by field name at resolution time.
type ConsulKV struct {
	kv *consulapi.KV
}

// NewConsulKV builds a client from the standard CONSUL_HTTP_ADDR /
// CONSUL_HTTP_TOKEN environment variables.
func NewConsulKV() (*ConsulKV, error) {
	cfg := consulapi.DefaultConfig()
	if addr := os.Getenv("CONSUL_HTTP_ADDR"); addr != "" {
		cfg.Address = addr
	}
	if token := os.Getenv("CONSUL_HTTP_TOKEN"); token != "" {
		cfg.Token = token
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &ConsulKV{kv: client.KV()}, nil
}

// Get reads path and decodes its value as a JSON object.
func (c *ConsulKV) Get(path string) (map[string]any, error) {
	pair, _, err := c.kv.Get(path, nil)
	if err != nil {
		return nil, fmt.Errorf("consul KV get %q: %w", path, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("consul KV path %q not found", path)
	}
	var out map[string]any
	if err := json.Unmarshal(pair.Value, &out); err != nil {
		return nil, fmt.Errorf("consul KV path %q is not a JSON object: %w", path, err)
	}
	return out, nil
}
