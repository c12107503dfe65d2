package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/core"
)

const snapshotKeyPrefix = "reportflow:session:"

// snapshotTTL bounds how long a finished or abandoned session lingers
const snapshotTTL = 24 * time.Hour

// Redis stores one JSON snapshot per session under a TTL key
type Redis struct {
	client *redis.Client
	logger *log.Logger
}

func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s:%d): %w", cfg.Host, cfg.Port, err)
	}

	return &Redis{
		client: client,
		logger: log.New(log.Writer(), "[SESSION] ", log.LstdFlags),
	}, nil
}

func (s *Redis) SaveSnapshot(ctx context.Context, state core.WorkflowState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling snapshot %s: %w", state.SessionID, err)
	}
	if err := s.client.Set(ctx, snapshotKeyPrefix+state.SessionID, payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", state.SessionID, err)
	}
	return nil
}

func (s *Redis) LoadSnapshot(ctx context.Context, sessionID string) (core.WorkflowState, bool, error) {
	payload, err := s.client.Get(ctx, snapshotKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return core.WorkflowState{}, false, nil
	}
	if err != nil {
		return core.WorkflowState{}, false, fmt.Errorf("loading snapshot %s: %w", sessionID, err)
	}

	var state core.WorkflowState
	if err := json.Unmarshal(payload, &state); err != nil {
		return core.WorkflowState{}, false, fmt.Errorf("decoding snapshot %s: %w", sessionID, err)
	}
	return state, true, nil
}

// Close releases the underlying connection pool
func (s *Redis) Close() error { return s.client.Close() }
