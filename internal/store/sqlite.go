package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/registry-scraper/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS crawl_runs (
	id           TEXT PRIMARY KEY,
	queries      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	record_count INTEGER NOT NULL DEFAULT 0,
	output_path  TEXT,
	error        TEXT,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at  DATETIME
);

CREATE TABLE IF NOT EXISTS business_records (
	registration_id TEXT PRIMARY KEY,
	business_name   TEXT NOT NULL,
	status          TEXT,
	filing_date     TEXT,
	agent_name      TEXT,
	agent_address   TEXT,
	agent_email     TEXT,
	first_run_id    TEXT NOT NULL REFERENCES crawl_runs(id),
	first_seen_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_crawl_runs_status ON crawl_runs(status);
CREATE INDEX IF NOT EXISTS idx_business_records_name ON business_records(business_name);
CREATE INDEX IF NOT EXISTS idx_business_records_status ON business_records(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, queries []string) (*model.CrawlRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queriesJSON, err := json.Marshal(queries)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal queries")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawl_runs (id, queries, status, started_at) VALUES (?, ?, ?, ?)`,
		id, string(queriesJSON), string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.CrawlRun{
		ID:        id,
		Queries:   queries,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, recordCount int, outputPath, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crawl_runs SET status = ?, record_count = ?, output_path = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), recordCount, outputPath, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.CrawlRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, queries, status, record_count, output_path, error, started_at, finished_at
		 FROM crawl_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.CrawlRun, error) {
	query := `SELECT id, queries, status, record_count, output_path, error, started_at, finished_at
	          FROM crawl_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.CrawlRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs rows")
}

// SaveRecords persists records first-seen-wins: a registration ID
// already in the table keeps its original row. Returns the number of
// rows actually inserted.
func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, records []model.BusinessRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO business_records
		 (registration_id, business_name, status, filing_date, agent_name, agent_address, agent_email, first_run_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		key := r.Key()
		if key == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx,
			key, r.BusinessName, r.Status, r.FilingDate,
			r.AgentName, r.AgentAddress, r.AgentEmail, runID,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert record %s", key)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit records")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.BusinessRecord, error) {
	query := `SELECT registration_id, business_name, status, filing_date,
	                 agent_name, agent_address, agent_email
	          FROM business_records WHERE 1=1`
	var args []any

	if filter.Query != "" {
		query += ` AND business_name LIKE ?`
		args = append(args, "%"+filter.Query+"%")
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY business_name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.BusinessRecord
	for rows.Next() {
		var r model.BusinessRecord
		var status, filingDate, agentName, agentAddress, agentEmail sql.NullString
		if err := rows.Scan(&r.RegistrationID, &r.BusinessName, &status, &filingDate,
			&agentName, &agentAddress, &agentEmail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		r.Status = status.String
		r.FilingDate = filingDate.String
		r.AgentName = agentName.String
		r.AgentAddress = agentAddress.String
		r.AgentEmail = agentEmail.String
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records rows")
}

func (s *SQLiteStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM business_records`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count records")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.CrawlRun, error) {
	var run model.CrawlRun
	var queriesJSON string
	var outputPath, errMsg sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &queriesJSON, &run.Status, &run.RecordCount,
		&outputPath, &errMsg, &run.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(err, "sqlite: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(queriesJSON), &run.Queries); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal queries")
	}
	run.OutputPath = outputPath.String
	run.Error = errMsg.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", kind, id)
	}
	return nil
}
