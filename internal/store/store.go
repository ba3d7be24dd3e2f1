// Package store records crawl runs and their results in SQLite so past
// crawls can be inspected and records queried without re-scraping.
package store

import (
	"context"

	"github.com/sells-group/registry-scraper/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// RecordFilter specifies criteria for listing persisted records.
type RecordFilter struct {
	Query  string `json:"query,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for crawl history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, queries []string) (*model.CrawlRun, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, recordCount int, outputPath, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.CrawlRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.CrawlRun, error)

	// Records
	SaveRecords(ctx context.Context, runID string, records []model.BusinessRecord) (int, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.BusinessRecord, error)
	CountRecords(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
