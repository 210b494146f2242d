package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Type names a cache backend.
type Type string

const (
	TypeMemory   Type = "memory"
	TypeRedis    Type = "redis"
	TypeConsul   Type = "consul"
	TypeDynamoDB Type = "dynamodb"
	TypeNone     Type = "none"
)

// Options selects and configures a cache backend.
type Options struct {
	Type     Type            `json:"type" yaml:"type"`
	Prefix   string          `json:"prefix" yaml:"prefix"`
	Redis    RedisOptions    `json:"redis" yaml:"redis"`
	Consul   ConsulOptions   `json:"consul" yaml:"consul"`
	DynamoDB DynamoDBOptions `json:"dynamodb" yaml:"dynamodb"`
}

// RunPrefix returns a key prefix that is unique to this test run, so that concurrent runs sharing
// a remote backend do not see each other's entries.
func RunPrefix() string {
	return "api-test-harness:" + uuid.NewString()
}

// New creates the Store described by options. It returns a nil Store for TypeNone. An empty Type
// means TypeMemory. If no prefix is configured for a remote backend, RunPrefix is used.
func New(ctx context.Context, options Options) (Store, error) {
	prefix := options.Prefix
	if prefix == "" {
		prefix = RunPrefix()
	}
	switch options.Type {
	case "", TypeMemory:
		return NewMemoryStore(), nil
	case TypeNone:
		return nil, nil
	case TypeRedis:
		return NewRedisStore(options.Redis, prefix), nil
	case TypeConsul:
		return NewConsulStore(options.Consul, prefix)
	case TypeDynamoDB:
		return NewDynamoDBStore(ctx, options.DynamoDB, prefix)
	default:
		return nil, fmt.Errorf("unknown cache type %q", options.Type)
	}
}
