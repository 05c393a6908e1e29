package progress

import (
	"context"
	"fmt"
	"time"

	"salonindex/internal/blobstore"
)

// Store persists Progress in the blob store. Writes are read-merge-write
// with no compare-and-swap; only the active job is expected to write.
type Store struct {
	blobs  blobstore.Store
	logCap int
	now    func() time.Time
}

func NewStore(blobs blobstore.Store, logCap int) *Store {
	if logCap <= 0 {
		logCap = DefaultLogCap
	}
	return &Store{blobs: blobs, logCap: logCap, now: time.Now}
}

// Load returns the idle shape when nothing has been stored.
func (s *Store) Load(ctx context.Context) (*Progress, error) {
	p := Idle()
	found, err := s.blobs.GetJSON(ctx, Key, p)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if !found {
		return Idle(), nil
	}
	if p.Log == nil {
		p.Log = []string{}
	}
	return p, nil
}

// Update merges patch into the stored record.
func (s *Store) Update(ctx context.Context, patch Patch) (*Progress, error) {
	p, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if patch.RunID != "" && (!p.IsRunning || p.RunID != patch.RunID) {
		return nil, fmt.Errorf("%w: current run %q", ErrSuperseded, p.RunID)
	}
	p.apply(patch)
	for _, line := range patch.Append {
		p.Log = append(p.Log, s.stamp(line))
	}
	p.Log = trim(p.Log, s.logCap)

	now := s.now().UTC()
	p.UpdatedAt = &now
	if err := s.blobs.PutJSON(ctx, Key, p); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	return p, nil
}

func (s *Store) AppendLog(ctx context.Context, line string) error {
	_, err := s.Update(ctx, Patch{Append: []string{line}})
	return err
}

// Reset overwrites the record with a fresh running job.
func (s *Store) Reset(ctx context.Context, runID string, total int) (*Progress, error) {
	now := s.now().UTC()
	p := &Progress{
		IsRunning: true,
		Status:    StatusRunning,
		RunID:     runID,
		StartedAt: &now,
		UpdatedAt: &now,
		Total:     total,
		Log:       []string{s.stamp(fmt.Sprintf("run %s started with %d records", runID, total))},
	}
	if err := s.blobs.PutJSON(ctx, Key, p); err != nil {
		return nil, fmt.Errorf("reset progress: %w", err)
	}
	return p, nil
}

func (s *Store) stamp(line string) string {
	return fmt.Sprintf("[%s] %s", s.now().UTC().Format(time.RFC3339), line)
}

// trim drops the oldest lines beyond limit.
func trim(log []string, limit int) []string {
	if len(log) <= limit {
		return log
	}
	out := make([]string, limit)
	copy(out, log[len(log)-limit:])
	return out
}
