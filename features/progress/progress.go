package progress

import (
	"errors"
	"time"
)

// Key is the blob key of the shared progress record.
const Key = "enrichment-progress"

const DefaultLogCap = 100

// ErrSuperseded is returned by a run-scoped update once that run no longer
// holds the slot.
var ErrSuperseded = errors.New("progress belongs to a different run")

type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// Progress is the durable state of the current or last enrichment job.
// IsRunning doubles as the single-job lock.
type Progress struct {
	IsRunning  bool       `json:"isRunning"`
	Status     Status     `json:"status"`
	RunID      string     `json:"runId,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
	Processed  int        `json:"processed"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Log        []string   `json:"log"`
}

func Idle() *Progress {
	return &Progress{Status: StatusIdle, Log: []string{}}
}

// Patch names the fields an Update changes. Nil fields are left alone;
// Append lines are added to the log. A non-empty RunID applies the patch only
// while that run is the running one.
type Patch struct {
	RunID      string
	IsRunning  *bool
	Status     *Status
	FinishedAt *time.Time
	Processed  *int
	Total      *int
	Succeeded  *int
	Failed     *int
	Append     []string
}

func (p *Progress) apply(patch Patch) {
	if patch.IsRunning != nil {
		p.IsRunning = *patch.IsRunning
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.FinishedAt != nil {
		t := *patch.FinishedAt
		p.FinishedAt = &t
	}
	if patch.Processed != nil {
		p.Processed = *patch.Processed
	}
	if patch.Total != nil {
		p.Total = *patch.Total
	}
	if patch.Succeeded != nil {
		p.Succeeded = *patch.Succeeded
	}
	if patch.Failed != nil {
		p.Failed = *patch.Failed
	}
}
