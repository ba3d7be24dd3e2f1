package model

import "time"

// RunStatus tracks a crawl run's lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// CrawlRun is one recorded execution of the scraper.
type CrawlRun struct {
	ID          string     `json:"id"`
	Queries     []string   `json:"queries"`
	Status      RunStatus  `json:"status"`
	RecordCount int        `json:"record_count"`
	OutputPath  string     `json:"output_path,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
