package core

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditTrail writes each oracle decision, generated outline, and final
// report as a standalone JSON artifact. Strictly a logging side-channel:
// every failure is swallowed after a log line and orchestration never reads
// these files back.
type AuditTrail struct {
	dir    string
	logger *log.Logger

	mu  sync.Mutex
	seq map[string]int
}

// NewAuditTrail creates an audit trail rooted at dir. An empty dir disables
// the trail.
func NewAuditTrail(dir string) *AuditTrail {
	return &AuditTrail{
		dir:    dir,
		logger: log.New(log.Writer(), "[AUDIT] ", log.LstdFlags),
		seq:    map[string]int{},
	}
}

// Record writes one artifact for the given session, best effort
func (a *AuditTrail) Record(sessionID, kind string, payload interface{}) {
	if a == nil || a.dir == "" {
		return
	}

	a.mu.Lock()
	a.seq[sessionID]++
	seq := a.seq[sessionID]
	a.mu.Unlock()

	doc := map[string]interface{}{
		"session_id":  sessionID,
		"kind":        kind,
		"sequence":    seq,
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
		"payload":     NormalizeValue(payload),
	}

	dir := filepath.Join(a.dir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Printf("cannot create audit dir %s: %v", dir, err)
		return
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		a.logger.Printf("cannot marshal %s artifact: %v", kind, err)
		return
	}

	path := filepath.Join(dir, fmt.Sprintf("%03d_%s.json", seq, kind))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		a.logger.Printf("cannot write %s: %v", path, err)
	}
}
