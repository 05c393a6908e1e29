package job

import (
	"errors"
	"time"
)

var ErrRecordGone = errors.New("record no longer exists")

// Job is an enrichment unit that failed and can be retried.
type Job struct {
	ID         string    `json:"id"`
	RecordID   string    `json:"record_id"`
	RecordName string    `json:"record_name"`
	RunID      string    `json:"run_id"`
	Error      string    `json:"error"`
	Retries    int       `json:"retries"`
	CreatedAt  time.Time `json:"created_at"`
}
