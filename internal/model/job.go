package model

import "time"

const (
	JobDeliver   = "deliver"
	JobReap      = "reap"
	JobOverdue   = "overdue"
	JobRecurring = "recurring"
	JobPrune     = "prune"
)

// JobNames lists every job in the order the CLI documents them.
var JobNames = []string{JobDeliver, JobReap, JobOverdue, JobRecurring, JobPrune}

// Summary is returned by every scheduled invocation.
type Summary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Skipped   int `json:"skipped"`
}

func (s *Summary) Add(o Summary) {
	s.Processed += o.Processed
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
	s.Retried += o.Retried
	s.Skipped += o.Skipped
}

type JobRun struct {
	ID         string    `json:"id" db:"id"`
	Job        string    `json:"job" db:"job"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
	Processed  int       `json:"processed" db:"processed"`
	Succeeded  int       `json:"succeeded" db:"succeeded"`
	Failed     int       `json:"failed" db:"failed"`
	Retried    int       `json:"retried" db:"retried"`
	Skipped    int       `json:"skipped" db:"skipped"`
	Error      *string   `json:"error,omitempty" db:"error"`
}
