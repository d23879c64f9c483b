package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pursuit-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pursuits (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_jobs (
	id         TEXT PRIMARY KEY,
	pursuit_id TEXT NOT NULL REFERENCES pursuits(id),
	kind       TEXT NOT NULL,
	payload    JSONB,
	status     TEXT NOT NULL DEFAULT 'pending',
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reference_pursuits (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON analysis_jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_pursuit ON analysis_jobs(pursuit_id, kind);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetPursuit(ctx context.Context, id string) (*model.Pursuit, error) {
	var docJSON []byte
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT doc, created_at, updated_at FROM pursuits WHERE id = $1`, id,
	).Scan(&docJSON, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("pursuit not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pursuit %s", id)
	}

	p, err := decodePursuit(id, docJSON)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return p, nil
}

func (s *PostgresStore) SavePursuit(ctx context.Context, id string, fields map[string]any) (*model.Pursuit, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin save")
	}
	defer tx.Rollback(ctx)

	var docJSON []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM pursuits WHERE id = $1 FOR UPDATE`, id).Scan(&docJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("pursuit not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read doc for save")
	}

	var doc map[string]any
	if err := json.Unmarshal(docJSON, &doc); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal doc")
	}

	merged := mergeFields(doc, fields)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal merged doc")
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE pursuits SET doc = $1, updated_at = $2 WHERE id = $3`,
		mergedJSON, now, id,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: save pursuit %s", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit save")
	}

	p, err := decodePursuit(id, mergedJSON)
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = now
	return p, nil
}

func (s *PostgresStore) PutPursuit(ctx context.Context, p *model.Pursuit) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	docJSON, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pursuit")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pursuits (id, doc, created_at, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		p.ID, docJSON, now, now,
	)
	return eris.Wrapf(err, "postgres: put pursuit %s", p.ID)
}

func (s *PostgresStore) StartJob(ctx context.Context, id string, kind model.JobKind, payload map[string]any) error {
	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM pursuits WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("pursuit not found: %s", id)
	}
	if err != nil {
		return eris.Wrap(err, "postgres: check pursuit")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal payload")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, pursuit_id, kind, payload, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), id, string(kind), payloadJSON, string(model.JobStatusPending), now, now,
	)
	return eris.Wrapf(err, "postgres: start %s job for %s", kind, id)
}

func (s *PostgresStore) NextPendingJob(ctx context.Context) (*model.AnalysisJob, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`UPDATE analysis_jobs SET status = $1, updated_at = $2
		 WHERE id = (
			SELECT id FROM analysis_jobs WHERE status = $3
			ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, pursuit_id, kind, payload, status, created_at, updated_at`,
		string(model.JobStatusRunning), now, string(model.JobStatusPending),
	)

	var j model.AnalysisJob
	var kind, status string
	var payloadJSON []byte
	err := row.Scan(&j.ID, &j.PursuitID, &kind, &payloadJSON, &status, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim job")
	}
	j.Kind = model.JobKind(kind)
	j.Status = model.JobStatus(status)
	if len(payloadJSON) > 0 && string(payloadJSON) != "null" {
		if err := json.Unmarshal(payloadJSON, &j.Payload); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job payload")
		}
	}
	return &j, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) PutReference(ctx context.Context, r *model.ReferencePursuit) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	docJSON, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal reference")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reference_pursuits (id, doc, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		r.ID, docJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put reference %s", r.ID)
}

func (s *PostgresStore) ListReferences(ctx context.Context) ([]model.ReferencePursuit, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM reference_pursuits ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list references")
	}
	defer rows.Close()

	var refs []model.ReferencePursuit
	for rows.Next() {
		var docJSON []byte
		if err := rows.Scan(&docJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reference")
		}
		var r model.ReferencePursuit
		if err := json.Unmarshal(docJSON, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal reference")
		}
		refs = append(refs, r)
	}
	return refs, eris.Wrap(rows.Err(), "postgres: list references iterate")
}
