package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pursuit-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS pursuits (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analysis_jobs (
	id         TEXT PRIMARY KEY,
	pursuit_id TEXT NOT NULL REFERENCES pursuits(id),
	kind       TEXT NOT NULL,
	payload    TEXT,
	status     TEXT NOT NULL DEFAULT 'pending',
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reference_pursuits (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON analysis_jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_pursuit ON analysis_jobs(pursuit_id, kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetPursuit(ctx context.Context, id string) (*model.Pursuit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, doc, created_at, updated_at FROM pursuits WHERE id = ?`, id,
	)
	return scanPursuit(row)
}

func (s *SQLiteStore) SavePursuit(ctx context.Context, id string, fields map[string]any) (*model.Pursuit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save")
	}
	defer tx.Rollback()

	var docJSON string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM pursuits WHERE id = ?`, id).Scan(&docJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("pursuit not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read doc for save")
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal doc")
	}

	merged := mergeFields(doc, fields)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal merged doc")
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE pursuits SET doc = ?, updated_at = ? WHERE id = ?`,
		string(mergedJSON), now, id,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: save pursuit %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit save")
	}

	p, err := decodePursuit(id, mergedJSON)
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = now
	return p, nil
}

func (s *SQLiteStore) PutPursuit(ctx context.Context, p *model.Pursuit) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	docJSON, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pursuit")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pursuits (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		p.ID, string(docJSON), now, now,
	)
	return eris.Wrapf(err, "sqlite: put pursuit %s", p.ID)
}

func (s *SQLiteStore) StartJob(ctx context.Context, id string, kind model.JobKind, payload map[string]any) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pursuits WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return eris.Errorf("pursuit not found: %s", id)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: check pursuit")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal payload")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_jobs (id, pursuit_id, kind, payload, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), id, string(kind), string(payloadJSON), string(model.JobStatusPending), now, now,
	)
	return eris.Wrapf(err, "sqlite: start %s job for %s", kind, id)
}

func (s *SQLiteStore) NextPendingJob(ctx context.Context) (*model.AnalysisJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin claim")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, pursuit_id, kind, payload, status, created_at, updated_at
		 FROM analysis_jobs WHERE status = ? ORDER BY created_at LIMIT 1`,
		string(model.JobStatusPending),
	)
	job, err := scanJob(row)
	if err == errNoJob {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE analysis_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.JobStatusRunning), now, job.ID,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: claim job %s", job.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit claim")
	}

	job.Status = model.JobStatusRunning
	job.UpdatedAt = now
	return job, nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) PutReference(ctx context.Context, r *model.ReferencePursuit) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	docJSON, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal reference")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reference_pursuits (id, doc, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`,
		r.ID, string(docJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put reference %s", r.ID)
}

func (s *SQLiteStore) ListReferences(ctx context.Context) ([]model.ReferencePursuit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM reference_pursuits ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list references")
	}
	defer rows.Close()

	var refs []model.ReferencePursuit
	for rows.Next() {
		var docJSON string
		if err := rows.Scan(&docJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reference")
		}
		var r model.ReferencePursuit
		if err := json.Unmarshal([]byte(docJSON), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal reference")
		}
		refs = append(refs, r)
	}
	return refs, eris.Wrap(rows.Err(), "sqlite: list references iterate")
}

// helpers

var errNoJob = eris.New("no pending job")

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPursuit(row scannable) (*model.Pursuit, error) {
	var id, docJSON string
	var createdAt, updatedAt time.Time

	err := row.Scan(&id, &docJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("pursuit not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan pursuit")
	}

	p, err := decodePursuit(id, []byte(docJSON))
	if err != nil {
		return nil, err
	}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return p, nil
}

func decodePursuit(id string, docJSON []byte) (*model.Pursuit, error) {
	var p model.Pursuit
	if err := json.Unmarshal(docJSON, &p); err != nil {
		return nil, eris.Wrapf(err, "unmarshal pursuit %s", id)
	}
	p.ID = id
	return &p, nil
}

func scanJob(row scannable) (*model.AnalysisJob, error) {
	var j model.AnalysisJob
	var payloadJSON sql.NullString

	err := row.Scan(&j.ID, &j.PursuitID, &j.Kind, &payloadJSON, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errNoJob
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan job")
	}
	if payloadJSON.Valid && payloadJSON.String != "" && payloadJSON.String != "null" {
		if err := json.Unmarshal([]byte(payloadJSON.String), &j.Payload); err != nil {
			return nil, eris.Wrap(err, "unmarshal job payload")
		}
	}
	return &j, nil
}
