package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetopt/internal/model"
	"fleetopt/internal/opt"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

const solveColumns = `id::text, status, request, COALESCE(callback_url,''), COALESCE(callback_secret,''), response, COALESCE(error,''), created_at, started_at, finished_at`

type scanner interface{ Scan(dest ...any) error }

func scanSolve(row scanner) (model.SolveRecord, error) {
	var rec model.SolveRecord
	var request, response []byte
	var started, finished sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Status, &request, &rec.CallbackURL, &rec.CallbackSecret, &response, &rec.Error, &rec.CreatedAt, &started, &finished); err != nil {
		return model.SolveRecord{}, err
	}
	rec.Request = request
	if len(response) > 0 {
		var resp model.SolutionResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return model.SolveRecord{}, fmt.Errorf("decode response of %s: %w", rec.ID, err)
		}
		rec.Response = &resp
	}
	rec.StartedAt = nullTime(started)
	rec.FinishedAt = nullTime(finished)
	return rec, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (p *Postgres) CreateSolve(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.SolveRecord{}, fmt.Errorf("create solve: %w", err)
	}
	rec.ID = id.String()
	rec.Status = model.SolveQueued
	rec.CreatedAt = time.Now().UTC()
	_, err = p.db.ExecContext(ctx, `INSERT INTO solves (id, status, request, callback_url, callback_secret, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.Status, []byte(rec.Request), nullIfEmpty(rec.CallbackURL), nullIfEmpty(rec.CallbackSecret), rec.CreatedAt)
	if err != nil {
		return model.SolveRecord{}, fmt.Errorf("create solve: %w", err)
	}
	return rec, nil
}

func (p *Postgres) GetSolve(ctx context.Context, id string) (model.SolveRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.SolveRecord{}, ErrNotFound
	}
	rec, err := scanSolve(p.db.QueryRowContext(ctx, `SELECT `+solveColumns+` FROM solves WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.SolveRecord{}, ErrNotFound
	}
	return rec, err
}

func (p *Postgres) ListSolves(ctx context.Context, status model.SolveStatus, cursor string, limit int) ([]model.SolveRecord, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + solveColumns + ` FROM solves WHERE ($1 = '' OR status = $1) AND ($2 = '' OR id::text > $2) ORDER BY id LIMIT $3`
	rows, err := p.db.QueryContext(ctx, q, string(status), cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.SolveRecord{}
	var last string
	for rows.Next() {
		rec, err := scanSolve(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, rec)
		last = rec.ID
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

// ClaimQueued uses SKIP LOCKED so several workers can share the queue. UPDATE ... RETURNING
// has no defined order, so the claimed rows are re-sorted.
func (p *Postgres) ClaimQueued(ctx context.Context, limit int) ([]model.SolveRecord, error) {
	rows, err := p.db.QueryContext(ctx, `WITH claimed AS (
            UPDATE solves SET status='running', started_at=now()
            WHERE id IN (SELECT id FROM solves WHERE status='queued' ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED)
            RETURNING solves.*)
        SELECT `+solveColumns+` FROM claimed ORDER BY id`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queued: %w", err)
	}
	defer rows.Close()
	var out []model.SolveRecord
	for rows.Next() {
		rec, err := scanSolve(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByID(out)
	return out, nil
}

func (p *Postgres) finish(ctx context.Context, q string, args ...any) error {
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CompleteSolve(ctx context.Context, id string, resp model.SolutionResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return p.finish(ctx, `UPDATE solves SET status='succeeded', response=$2, error=NULL, finished_at=now() WHERE id=$1`, id, b)
}

func (p *Postgres) FailSolve(ctx context.Context, id, msg string) error {
	return p.finish(ctx, `UPDATE solves SET status='failed', error=$2, finished_at=now() WHERE id=$1`, id, msg)
}

func (p *Postgres) SaveSolveMetrics(ctx context.Context, id string, m opt.Metrics) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return p.finish(ctx, `UPDATE solves SET metrics=$2 WHERE id=$1`, id, b)
}

func (p *Postgres) GetSolveMetrics(ctx context.Context, id string) (opt.Metrics, error) {
	if _, err := uuid.Parse(id); err != nil {
		return opt.Metrics{}, ErrNotFound
	}
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT metrics FROM solves WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(raw) == 0) {
		return opt.Metrics{}, ErrNotFound
	}
	if err != nil {
		return opt.Metrics{}, err
	}
	var m opt.Metrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return opt.Metrics{}, fmt.Errorf("decode metrics of %s: %w", id, err)
	}
	return m, nil
}

func (p *Postgres) DeleteSolvesBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM solves WHERE status IN ('succeeded','failed') AND created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
