package cache

import (
	"context"
	"fmt"

	consul "github.com/hashicorp/consul/api"
)

// ConsulOptions configures a ConsulStore.
type ConsulOptions struct {
	Address string `json:"address" yaml:"address"`
	Token   string `json:"token" yaml:"token"`
}

// ConsulStore is a Store backed by the Consul key-value API. Keys are stored under prefix/key.
type ConsulStore struct {
	consul *consul.Client
	prefix string
}

// NewConsulStore creates a ConsulStore.
func NewConsulStore(options ConsulOptions, prefix string) (*ConsulStore, error) {
	config := consul.DefaultConfig()
	if options.Address != "" {
		config.Address = options.Address
	}
	if options.Token != "" {
		config.Token = options.Token
	}
	client, err := consul.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}
	return &ConsulStore{consul: client, prefix: prefix}, nil
}

func (c *ConsulStore) path(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + "/" + key
}

func (c *ConsulStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	pair, _, err := c.consul.KV().Get(c.path(key), (&consul.QueryOptions{}).WithContext(ctx))
	if err != nil || pair == nil {
		return Entry{}, false, err
	}
	entry, err := decodeEntry(pair.Value)
	if err != nil {
		return Entry{}, false, fmt.Errorf("invalid cache entry for %q in Consul: %w", key, err)
	}
	return entry, true, nil
}

func (c *ConsulStore) Set(ctx context.Context, key string, entry Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	_, err = c.consul.KV().Put(&consul.KVPair{Key: c.path(key), Value: data},
		(&consul.WriteOptions{}).WithContext(ctx))
	return err
}

func (c *ConsulStore) Delete(ctx context.Context, key string) error {
	_, err := c.consul.KV().Delete(c.path(key), (&consul.WriteOptions{}).WithContext(ctx))
	return err
}

// Close removes everything that this store wrote, if it was given a prefix.
func (c *ConsulStore) Close() error {
	if c.prefix == "" {
		return nil
	}
	_, err := c.consul.KV().DeleteTree(c.prefix+"/", nil)
	return err
}
