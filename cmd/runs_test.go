package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/registry-scraper/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	finished := started.Add(95 * time.Second)

	var sb strings.Builder
	formatRunsList(&sb, []model.CrawlRun{
		{
			ID:          "0b5e7c1a-9f7e-4a43-8f0a-2b7a8a1f3c21",
			Queries:     []string{"llc", "inc"},
			Status:      model.RunStatusComplete,
			RecordCount: 120,
			StartedAt:   started,
			FinishedAt:  &finished,
		},
		{
			ID:        "ffffffff-0000-0000-0000-000000000000",
			Queries:   []string{"corp"},
			Status:    model.RunStatusRunning,
			StartedAt: started,
		},
	})
	out := sb.String()

	assert.Contains(t, out, "0b5e7c1a")
	assert.NotContains(t, out, "0b5e7c1a-9f7e", "IDs are truncated for display")
	assert.Contains(t, out, "llc,inc")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "120")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "2026-08-20 14:30")
}

func TestFormatRunsList_TruncatesLongQueryLists(t *testing.T) {
	var sb strings.Builder
	formatRunsList(&sb, []model.CrawlRun{{
		ID:        "abc",
		Queries:   []string{"llc", "inc", "corp", "company", "limited", "enterprises"},
		Status:    model.RunStatusComplete,
		StartedAt: time.Now(),
	}})

	assert.Contains(t, sb.String(), "...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("123456789abc"))
	assert.Equal(t, "short", truncateID("short"))
}
