package search

import "time"

// Report is the outcome of one search. Count is authoritative; Errors lists
// every absorbed I/O failure so "no matches" and "errors occurred" can be
// told apart.
type Report struct {
	Root         string
	Keyword      string
	Count        int
	Matches      []string
	Errors       []error
	FilesScanned int64
	DirsScanned  int64
	Skipped      int64
	PeakWorkers  int
	PeakActive   int
	StartedAt    time.Time
	Duration     time.Duration
}

// Summary is the serializable view of a Report.
type Summary struct {
	Root         string   `json:"root"`
	Keyword      string   `json:"keyword"`
	Count        int      `json:"count"`
	Matches      []string `json:"matches"`
	Errors       []string `json:"errors,omitempty"`
	FilesScanned int64    `json:"files_scanned"`
	DirsScanned  int64    `json:"dirs_scanned"`
	Skipped      int64    `json:"skipped"`
	PeakWorkers  int      `json:"peak_workers"`
	PeakActive   int      `json:"peak_active"`
	StartedAt    string   `json:"started_at"`
	DurationMs   int64    `json:"duration_ms"`
}

func (r *Report) Summary() Summary {
	s := Summary{
		Root:         r.Root,
		Keyword:      r.Keyword,
		Count:        r.Count,
		Matches:      r.Matches,
		FilesScanned: r.FilesScanned,
		DirsScanned:  r.DirsScanned,
		Skipped:      r.Skipped,
		PeakWorkers:  r.PeakWorkers,
		PeakActive:   r.PeakActive,
		StartedAt:    r.StartedAt.Format(time.RFC3339),
		DurationMs:   r.Duration.Milliseconds(),
	}
	if s.Matches == nil {
		s.Matches = []string{}
	}
	for _, err := range r.Errors {
		s.Errors = append(s.Errors, err.Error())
	}
	return s
}
