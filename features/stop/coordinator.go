package stop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"salonindex/internal/blobstore"
	"salonindex/internal/metrics"

	"github.com/google/uuid"
)

// Coordinator keeps stop signals in the blob store so that any process can
// post one and the running job sees it on its next poll.
type Coordinator struct {
	blobs blobstore.Store
	now   func() time.Time
	newID func() string
}

func NewCoordinator(blobs blobstore.Store) *Coordinator {
	return &Coordinator{
		blobs: blobs,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

func (c *Coordinator) load(ctx context.Context) (*record, error) {
	var r record
	if _, err := c.blobs.GetJSON(ctx, Key, &r); err != nil {
		return nil, fmt.Errorf("load stop signals: %w", err)
	}
	return &r, nil
}

func (c *Coordinator) save(ctx context.Context, r *record) error {
	if err := c.blobs.PutJSON(ctx, Key, r); err != nil {
		return fmt.Errorf("save stop signals: %w", err)
	}
	return nil
}

func (c *Coordinator) IssueStop(ctx context.Context, source, reason string) (string, error) {
	return c.issue(ctx, source, reason, SeverityNormal)
}

// EmergencyStop is checked at the same points as a normal stop.
func (c *Coordinator) EmergencyStop(ctx context.Context, source, reason string) (string, error) {
	return c.issue(ctx, source, reason, SeverityEmergency)
}

func (c *Coordinator) issue(ctx context.Context, source, reason string, severity Severity) (string, error) {
	r, err := c.load(ctx)
	if err != nil {
		return "", err
	}

	sig := Signal{
		ID:        c.newID(),
		Source:    source,
		Reason:    reason,
		Timestamp: c.now().UTC(),
		Severity:  severity,
	}
	r.Pending = append(r.Pending, sig)
	r.TotalIssued++
	if severity == SeverityEmergency {
		r.EmergencyCount++
	} else {
		r.NormalCount++
	}

	if err := c.save(ctx, r); err != nil {
		return "", err
	}

	metrics.RecordStopSignal(string(severity))
	slog.WarnContext(ctx, "stop signal issued", "signal_id", sig.ID, "severity", severity, "source", source, "reason", reason)
	return sig.ID, nil
}

// ClearSignals drops every pending signal and returns how many there were.
// Lifetime counters are kept.
func (c *Coordinator) ClearSignals(ctx context.Context) (int, error) {
	r, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	n := len(r.Pending)
	now := c.now().UTC()
	r.Pending = nil
	r.LastClearedAt = &now
	if err := c.save(ctx, r); err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "stop signals cleared", "cleared", n)
	return n, nil
}

// Active returns the signal a poller should honour, or nil.
func (c *Coordinator) Active(ctx context.Context) (*Signal, error) {
	r, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return r.current(), nil
}

func (c *Coordinator) Stats(ctx context.Context) (*Stats, error) {
	r, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Current:        r.current(),
		Pending:        len(r.Pending),
		TotalIssued:    r.TotalIssued,
		NormalCount:    r.NormalCount,
		EmergencyCount: r.EmergencyCount,
		LastClearedAt:  r.LastClearedAt,
	}, nil
}
