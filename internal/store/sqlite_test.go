package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/registry-scraper/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"llc", "inc"})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	err = s.FinishRun(ctx, run.ID, model.RunStatusComplete, 42, "/tmp/out.json", "")
	require.NoError(t, err)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 42, got.RecordCount)
	assert.Equal(t, "/tmp/out.json", got.OutputPath)
	assert.Equal(t, []string{"llc", "inc"}, got.Queries)
	require.NotNil(t, got.FinishedAt)
}

func TestFinishRun_RecordsFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"llc"})
	require.NoError(t, err)

	require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusFailed, 0, "", "challenge unsolved"))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "challenge unsolved", got.Error)
}

func TestFinishRun_UnknownID(t *testing.T) {
	s := newTestStore(t)
	err := s.FinishRun(context.Background(), "nope", model.RunStatusComplete, 0, "", "")
	assert.Error(t, err)
}

func TestListRuns_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, []string{"llc"})
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, []string{"inc"})
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, a.ID, model.RunStatusComplete, 3, "", ""))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)
}

func TestSaveRecords_FirstSeenWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"llc"})
	require.NoError(t, err)

	inserted, err := s.SaveRecords(ctx, run.ID, []model.BusinessRecord{
		{RegistrationID: "R1", BusinessName: "Acme LLC", Status: "Active"},
		{RegistrationID: "R2", BusinessName: "Beta Inc", Status: "Active"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Second save of R1 must not overwrite the original row.
	inserted, err = s.SaveRecords(ctx, run.ID, []model.BusinessRecord{
		{RegistrationID: "R1", BusinessName: "Acme LLC Renamed", Status: "Dissolved"},
		{RegistrationID: "R3", BusinessName: "Gamma Corp"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	records, err := s.ListRecords(ctx, RecordFilter{Query: "Acme"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Acme LLC", records[0].BusinessName)
	assert.Equal(t, "Active", records[0].Status)

	n, err := s.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSaveRecords_SkipsEmptyKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"llc"})
	require.NoError(t, err)

	inserted, err := s.SaveRecords(ctx, run.ID, []model.BusinessRecord{
		{},
		{BusinessName: "Name Only Co"},
	})
	require.NoError(t, err)
	// The nameless record is dropped; the name-only record keys on its name.
	assert.Equal(t, 1, inserted)
}

func TestListRecords_StatusFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"llc"})
	require.NoError(t, err)
	_, err = s.SaveRecords(ctx, run.ID, []model.BusinessRecord{
		{RegistrationID: "R1", BusinessName: "A", Status: "Active"},
		{RegistrationID: "R2", BusinessName: "B", Status: "Dissolved"},
	})
	require.NoError(t, err)

	active, err := s.ListRecords(ctx, RecordFilter{Status: "Active"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "R1", active[0].RegistrationID)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.Error(t, err)
}
