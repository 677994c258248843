package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/gymdex/gymdex-cli/internal/merge"
	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/similarity"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	candidates  INTEGER NOT NULL DEFAULT 0,
	result      JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS baseline_records (
	id         TEXT PRIMARY KEY,
	dedup_key  TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS crawled_records (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	name       TEXT NOT NULL,
	data       JSONB NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS merge_results (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id),
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS merged_records (
	dedup_key  TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_baseline_name ON baseline_records(name);
CREATE INDEX IF NOT EXISTS idx_crawled_session ON crawled_records(session_id);
CREATE INDEX IF NOT EXISTS idx_merged_session ON merged_records(session_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, candidates int) (*model.CrawlSession, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, status, candidates, started_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.SessionStatusRunning), candidates, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}

	return &model.CrawlSession{
		ID:         id,
		Status:     model.SessionStatusRunning,
		Candidates: candidates,
		StartedAt:  now,
	}, nil
}

func (s *PostgresStore) CompleteSession(ctx context.Context, id string, status model.SessionStatus, result *model.SessionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, result = $2, finished_at = $3 WHERE id = $4`,
		string(status), resultJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.CrawlSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, candidates, result, started_at, finished_at FROM sessions WHERE id = $1`,
		id,
	)
	return scanPgSession(row)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.CrawlSession, error) {
	query := `SELECT id, status, candidates, result, started_at, finished_at FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.CrawlSession
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) SaveBaseline(ctx context.Context, records []model.BaselineRecord) (int, error) {
	now := time.Now().UTC()
	saved := 0
	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		data, err := json.Marshal(r)
		if err != nil {
			return saved, eris.Wrapf(err, "postgres: marshal baseline %s", r.Name)
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO baseline_records (id, dedup_key, name, address, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (dedup_key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
			id, similarity.DedupKey(r.Name, r.Address), r.Name, r.Address, data, now,
		)
		if err != nil {
			return saved, eris.Wrapf(err, "postgres: insert baseline %s", r.Name)
		}
		saved++
	}
	return saved, nil
}

func (s *PostgresStore) ListBaseline(ctx context.Context, limit, offset int) ([]model.BaselineRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM baseline_records ORDER BY name LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list baseline")
	}
	defer rows.Close()

	var records []model.BaselineRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan baseline")
		}
		var r model.BaselineRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal baseline")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list baseline iterate")
}

func (s *PostgresStore) SaveCrawled(ctx context.Context, sessionID string, records []model.CrawledRecord) (int, error) {
	saved := 0
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return saved, eris.Wrapf(err, "postgres: marshal crawled %s", r.Name)
		}
		crawledAt := r.CrawledAt
		if crawledAt.IsZero() {
			crawledAt = time.Now().UTC()
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO crawled_records (id, session_id, name, data, crawled_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), sessionID, r.Name, data, crawledAt,
		)
		if err != nil {
			return saved, eris.Wrapf(err, "postgres: insert crawled %s", r.Name)
		}
		saved++
	}
	return saved, nil
}

func (s *PostgresStore) ListCrawled(ctx context.Context, sessionID string) ([]model.CrawledRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM crawled_records WHERE session_id = $1 ORDER BY crawled_at`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list crawled")
	}
	defer rows.Close()

	var records []model.CrawledRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan crawled")
		}
		var r model.CrawledRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal crawled")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list crawled iterate")
}

func (s *PostgresStore) SaveMergeResult(ctx context.Context, sessionID string, result *merge.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal merge result")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO merge_results (session_id, result, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET result = EXCLUDED.result, created_at = EXCLUDED.created_at`,
		sessionID, resultJSON, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert merge result")
	}

	for _, r := range result.MergedData {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal merged %s", r.Name)
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO merged_records (dedup_key, session_id, data, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (dedup_key) DO UPDATE SET session_id = EXCLUDED.session_id, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
			similarity.DedupKey(r.Name, r.Address), sessionID, data, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert merged %s", r.Name)
		}
	}
	return nil
}

func (s *PostgresStore) GetMergeResult(ctx context.Context, sessionID string) (*merge.Result, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM merge_results WHERE session_id = $1`, sessionID,
	).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get merge result %s", sessionID)
	}

	var result merge.Result
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal merge result")
	}
	return &result, nil
}

func (s *PostgresStore) ListMerged(ctx context.Context, limit, offset int) ([]model.MergedRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM merged_records ORDER BY dedup_key LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list merged")
	}
	defer rows.Close()

	var records []model.MergedRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan merged")
		}
		var r model.MergedRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal merged")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list merged iterate")
}

func scanPgSession(row pgx.Row) (*model.CrawlSession, error) {
	var (
		sess       model.CrawlSession
		status     string
		resultJSON []byte
		finishedAt *time.Time
	)
	err := row.Scan(&sess.ID, &status, &sess.Candidates, &resultJSON, &sess.StartedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "session not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan session")
	}

	sess.Status = model.SessionStatus(status)
	if len(resultJSON) > 0 && string(resultJSON) != "null" {
		var result model.SessionResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal session result")
		}
		sess.Result = &result
	}
	sess.FinishedAt = finishedAt
	return &sess, nil
}
