package stop

import "time"

// Key is the blob key of the stop record.
const Key = "enrichment-stop"

type Severity string

const (
	SeverityNormal    Severity = "NORMAL"
	SeverityEmergency Severity = "EMERGENCY"
)

// Signal stays visible to every poller until ClearSignals.
type Signal struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
}

// record is the stored shape: pending signals plus lifetime counters.
type record struct {
	Pending        []Signal   `json:"pending"`
	TotalIssued    int        `json:"totalIssued"`
	NormalCount    int        `json:"normalCount"`
	EmergencyCount int        `json:"emergencyCount"`
	LastClearedAt  *time.Time `json:"lastClearedAt,omitempty"`
}

// current prefers the newest emergency signal, then the newest normal one.
func (r *record) current() *Signal {
	var latest *Signal
	for i := len(r.Pending) - 1; i >= 0; i-- {
		s := r.Pending[i]
		if s.Severity == SeverityEmergency {
			return &s
		}
		if latest == nil {
			latest = &s
		}
	}
	return latest
}

type Stats struct {
	Current        *Signal    `json:"current"`
	Pending        int        `json:"pending"`
	TotalIssued    int        `json:"totalIssued"`
	NormalCount    int        `json:"normalCount"`
	EmergencyCount int        `json:"emergencyCount"`
	LastClearedAt  *time.Time `json:"lastClearedAt"`
}
