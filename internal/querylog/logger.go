package querylog

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	KindTier      = "tier"
	KindDiversity = "diversity"
)

type Entry struct {
	Timestamp       time.Time     `json:"timestamp"`
	Kind            string        `json:"kind"`
	Tier            string        `json:"tier"`
	TopPerPartition int           `json:"top_per_partition,omitempty"`
	NumResults      int           `json:"num_results"`
	Duration        time.Duration `json:"duration_ns"`
	LatencyMs       int64         `json:"latency_ms"`
	CorrelationID   string        `json:"correlation_id"`
}

// Logger appends one JSON line per index query.
type Logger struct {
	writer io.Writer
	mu     sync.Mutex
}

func New(w io.Writer) *Logger {
	return &Logger{writer: w}
}

func NewFileLogger(path string) (*Logger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	cleanPath := filepath.Clean(path)
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	entry.Timestamp = time.Now()
	entry.LatencyMs = entry.Duration.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewEncoder(l.writer).Encode(entry); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}
