package session

import (
	"context"
	"testing"
	"time"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/core"
)

func storageConfig() config.StorageConfig { return config.StorageConfig{} }

func TestInMemoryRoundTrip(t *testing.T) {
	store := NewInMemory()
	state := core.NewWorkflowState("sess-1", core.ReportRequest{Question: "cash flow", Industry: "retail"})
	state.ComputedMetrics["metric-total-income"] = int64(1650)

	if err := store.SaveSnapshot(context.Background(), state); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, ok, err := store.LoadSnapshot(context.Background(), "sess-1")
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot: ok=%v err=%v", ok, err)
	}
	if loaded.Question != "cash flow" || loaded.ComputedMetrics["metric-total-income"] != int64(1650) {
		t.Fatalf("got %+v", loaded)
	}
}

func TestInMemoryMissReportsNotFound(t *testing.T) {
	store := NewInMemory()
	_, ok, err := store.LoadSnapshot(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestInMemorySnapshotsAreIsolated(t *testing.T) {
	store := NewInMemory()
	state := core.NewWorkflowState("sess-1", core.ReportRequest{Question: "q"})
	if err := store.SaveSnapshot(context.Background(), state); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	// Mutating the caller's copy must not leak into the stored snapshot.
	state.ComputedMetrics["metric-x"] = 1
	loaded, _, _ := store.LoadSnapshot(context.Background(), "sess-1")
	if len(loaded.ComputedMetrics) != 0 {
		t.Fatalf("stored snapshot shares memory with the caller: %+v", loaded.ComputedMetrics)
	}

	// And mutating a loaded copy must not corrupt the store.
	loaded.PendingMetricIDs = append(loaded.PendingMetricIDs, "metric-y")
	again, _, _ := store.LoadSnapshot(context.Background(), "sess-1")
	if len(again.PendingMetricIDs) != 0 {
		t.Fatalf("loaded snapshot shares memory with the store: %+v", again.PendingMetricIDs)
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	if _, err := NewStore("etcd", storageConfig()); err == nil {
		t.Fatalf("expected error for unsupported store type")
	}
}

func TestNewStoreInMemory(t *testing.T) {
	store, err := NewStore(InMemoryStore, storageConfig())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := store.(*InMemory); !ok {
		t.Fatalf("got %T", store)
	}
}

func TestNewStoreRedisUnreachable(t *testing.T) {
	cfg := storageConfig()
	cfg.Redis = config.RedisConfig{Host: "127.0.0.1", Port: 1, Timeout: 200 * time.Millisecond}
	if _, err := NewStore(RedisStore, cfg); err == nil {
		t.Fatalf("expected connection error for unreachable redis")
	}
}
