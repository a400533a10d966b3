package records

import (
	"context"
	"errors"
	"fmt"
	"studynotes/internal/apperrors"
	"studynotes/internal/note"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	owner_id     TEXT        NOT NULL,
	subject_id   TEXT        NOT NULL,
	title        TEXT        NOT NULL DEFAULT '',
	source_url   TEXT        NOT NULL DEFAULT '',
	status       TEXT        NOT NULL,
	artifact_key TEXT        NOT NULL DEFAULT '',
	generation   BIGINT      NOT NULL DEFAULT 1,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner_id, subject_id)
)`

const recordColumns = `owner_id, subject_id, title, source_url, status, artifact_key, generation, created_at, updated_at`

// Overwrites keep created_at and bump generation so in-flight runs of the
// previous submission lose their conditional writes.
const upsertSQL = `
INSERT INTO notes (owner_id, subject_id, title, source_url, status, artifact_key, generation, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, '', 1, $6, $7)
ON CONFLICT (owner_id, subject_id) DO UPDATE SET
	title        = EXCLUDED.title,
	source_url   = EXCLUDED.source_url,
	status       = EXCLUDED.status,
	artifact_key = '',
	generation   = notes.generation + 1,
	updated_at   = EXCLUDED.updated_at
RETURNING ` + recordColumns

// Status writes only apply from a state that may move to the new one.
const updateStatusSQL = `
UPDATE notes SET status = $4, artifact_key = $5, updated_at = $6
WHERE owner_id = $1 AND subject_id = $2 AND generation = $3 AND status = ANY($7)`

const currentSQL = `SELECT generation, status FROM notes WHERE owner_id = $1 AND subject_id = $2`

const getSQL = `SELECT ` + recordColumns + ` FROM notes WHERE owner_id = $1 AND subject_id = $2`

// Postgres stores records in a notes table through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres: DATABASE_URL is empty")
	}
	poolConf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConf)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Postgres{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Migrate creates the notes table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return apperrors.Storage("postgres.migrate", err)
	}
	return nil
}

// Upsert implements note.RecordStore.
func (p *Postgres) Upsert(ctx context.Context, rec *note.StatusRecord) (*note.StatusRecord, error) {
	if rec == nil {
		return nil, apperrors.Validation("record", "record is required")
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = p.now()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	row := p.pool.QueryRow(ctx, upsertSQL,
		rec.OwnerID, rec.SubjectID, rec.Title, rec.SourceURL, string(rec.Status), createdAt, updatedAt)
	stored, err := scanRecord(row)
	if err != nil {
		return nil, apperrors.Storage("postgres.upsert", err)
	}
	return stored, nil
}

// UpdateStatus implements note.RecordStore.
func (p *Postgres) UpdateStatus(ctx context.Context, key note.RecordKey, generation int64, status note.Status, artifactKey string) error {
	tag, err := p.pool.Exec(ctx, updateStatusSQL,
		key.OwnerID, key.SubjectID, generation, string(status), artifactKeyFor(status, artifactKey), p.now(),
		statusStrings(status.Predecessors()))
	if err != nil {
		return apperrors.Storage("postgres.update_status", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var (
		current int64
		stored  string
	)
	err = p.pool.QueryRow(ctx, currentSQL, key.OwnerID, key.SubjectID).Scan(&current, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("note", key.SubjectID)
	}
	if err != nil {
		return apperrors.Storage("postgres.update_status", err)
	}
	if current != generation {
		return note.ErrStale
	}
	return note.ErrTransition
}

func statusStrings(statuses []note.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Get implements note.RecordStore.
func (p *Postgres) Get(ctx context.Context, key note.RecordKey) (*note.StatusRecord, error) {
	rec, err := scanRecord(p.pool.QueryRow(ctx, getSQL, key.OwnerID, key.SubjectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("note", key.SubjectID)
	}
	if err != nil {
		return nil, apperrors.Storage("postgres.get", err)
	}
	return rec, nil
}

// Ready implements health.ReadinessChecker.
func (p *Postgres) Ready(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func scanRecord(row pgx.Row) (*note.StatusRecord, error) {
	var (
		rec    note.StatusRecord
		status string
	)
	err := row.Scan(&rec.OwnerID, &rec.SubjectID, &rec.Title, &rec.SourceURL, &status,
		&rec.ArtifactKey, &rec.Generation, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = note.Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

var _ note.RecordStore = (*Postgres)(nil)
