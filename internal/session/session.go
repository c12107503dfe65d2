// Package session persists workflow snapshots between planning cycles so a
// session can be inspected, and resumed after a crash, outside the worker
// that owns it.
package session

import (
	"fmt"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/core"
)

type StoreType string

const (
	InMemoryStore StoreType = "inmemory"
	RedisStore    StoreType = "redis"
)

// NewStore builds a snapshot store of the requested kind
func NewStore(storeType StoreType, cfg config.StorageConfig) (core.SnapshotStore, error) {
	switch storeType {
	case InMemoryStore:
		return NewInMemory(), nil
	case RedisStore:
		return NewRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported snapshot store type: %s", storeType)
	}
}
