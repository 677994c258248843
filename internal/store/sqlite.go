package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/gymdex/gymdex-cli/internal/merge"
	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/similarity"
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
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	candidates  INTEGER NOT NULL DEFAULT 0,
	result      TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS baseline_records (
	id         TEXT PRIMARY KEY,
	dedup_key  TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS crawled_records (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	name       TEXT NOT NULL,
	data       TEXT NOT NULL,
	crawled_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS merge_results (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id),
	result     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS merged_records (
	dedup_key  TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_baseline_name ON baseline_records(name);
CREATE INDEX IF NOT EXISTS idx_crawled_session ON crawled_records(session_id);
CREATE INDEX IF NOT EXISTS idx_merged_session ON merged_records(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, candidates int) (*model.CrawlSession, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, candidates, started_at) VALUES (?, ?, ?, ?)`,
		id, string(model.SessionStatusRunning), candidates, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}

	return &model.CrawlSession{
		ID:         id,
		Status:     model.SessionStatusRunning,
		Candidates: candidates,
		StartedAt:  now,
	}, nil
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, id string, status model.SessionStatus, result *model.SessionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, result = ?, finished_at = ? WHERE id = ?`,
		string(status), string(resultJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete session %s", id)
	}
	return checkRowsAffected(res, "session", id)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.CrawlSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, candidates, result, started_at, finished_at FROM sessions WHERE id = ?`,
		id,
	)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.CrawlSession, error) {
	query := `SELECT id, status, candidates, result, started_at, finished_at FROM sessions WHERE 1=1`
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
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.CrawlSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) SaveBaseline(ctx context.Context, records []model.BaselineRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin baseline tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO baseline_records (id, dedup_key, name, address, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare baseline insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	saved := 0
	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		data, err := json.Marshal(r)
		if err != nil {
			return saved, eris.Wrapf(err, "sqlite: marshal baseline %s", r.Name)
		}
		if _, err := stmt.ExecContext(ctx, id, similarity.DedupKey(r.Name, r.Address), r.Name, r.Address, string(data), now); err != nil {
			return saved, eris.Wrapf(err, "sqlite: insert baseline %s", r.Name)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return saved, eris.Wrap(err, "sqlite: commit baseline tx")
	}
	return saved, nil
}

func (s *SQLiteStore) ListBaseline(ctx context.Context, limit, offset int) ([]model.BaselineRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM baseline_records ORDER BY name LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list baseline")
	}
	defer rows.Close()

	var records []model.BaselineRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan baseline")
		}
		var r model.BaselineRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal baseline")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list baseline iterate")
}

func (s *SQLiteStore) SaveCrawled(ctx context.Context, sessionID string, records []model.CrawledRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin crawled tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO crawled_records (id, session_id, name, data, crawled_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare crawled insert")
	}
	defer stmt.Close()

	saved := 0
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return saved, eris.Wrapf(err, "sqlite: marshal crawled %s", r.Name)
		}
		crawledAt := r.CrawledAt
		if crawledAt.IsZero() {
			crawledAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), sessionID, r.Name, string(data), crawledAt); err != nil {
			return saved, eris.Wrapf(err, "sqlite: insert crawled %s", r.Name)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return saved, eris.Wrap(err, "sqlite: commit crawled tx")
	}
	return saved, nil
}

func (s *SQLiteStore) ListCrawled(ctx context.Context, sessionID string) ([]model.CrawledRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM crawled_records WHERE session_id = ? ORDER BY crawled_at`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list crawled")
	}
	defer rows.Close()

	var records []model.CrawledRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan crawled")
		}
		var r model.CrawledRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal crawled")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list crawled iterate")
}

func (s *SQLiteStore) SaveMergeResult(ctx context.Context, sessionID string, result *merge.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal merge result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO merge_results (session_id, result, created_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET result = excluded.result, created_at = excluded.created_at`,
		sessionID, string(resultJSON), now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert merge result")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO merged_records (dedup_key, session_id, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO UPDATE SET session_id = excluded.session_id, data = excluded.data, updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare merged insert")
	}
	defer stmt.Close()

	for _, r := range result.MergedData {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal merged %s", r.Name)
		}
		if _, err := stmt.ExecContext(ctx, similarity.DedupKey(r.Name, r.Address), sessionID, string(data), now); err != nil {
			return eris.Wrapf(err, "sqlite: upsert merged %s", r.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit merge tx")
}

func (s *SQLiteStore) GetMergeResult(ctx context.Context, sessionID string) (*merge.Result, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM merge_results WHERE session_id = ?`, sessionID,
	).Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get merge result %s", sessionID)
	}

	var result merge.Result
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal merge result")
	}
	return &result, nil
}

func (s *SQLiteStore) ListMerged(ctx context.Context, limit, offset int) ([]model.MergedRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM merged_records ORDER BY dedup_key LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list merged")
	}
	defer rows.Close()

	var records []model.MergedRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan merged")
		}
		var r model.MergedRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal merged")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list merged iterate")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.CrawlSession, error) {
	var (
		sess       model.CrawlSession
		status     string
		resultJSON sql.NullString
		finishedAt sql.NullTime
	)
	err := row.Scan(&sess.ID, &status, &sess.Candidates, &resultJSON, &sess.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(err, "session not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan session")
	}

	sess.Status = model.SessionStatus(status)
	if resultJSON.Valid && resultJSON.String != "" && resultJSON.String != "null" {
		var result model.SessionResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, eris.Wrap(err, "unmarshal session result")
		}
		sess.Result = &result
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		sess.FinishedAt = &t
	}
	return &sess, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
