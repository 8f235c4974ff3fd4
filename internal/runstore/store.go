// Package runstore persists finished runs in PostgreSQL: one row per run with
// its parameters and summary, and the run lines bulk loaded with COPY.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/trec"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/postgres"
)

// Schema creates the tables the store needs.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          UUID PRIMARY KEY,
    tag         TEXT NOT NULL,
    params      JSONB NOT NULL,
    summary     JSONB NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS run_results (
    run_id   UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    query_id TEXT NOT NULL,
    docno    TEXT NOT NULL,
    rank     INTEGER NOT NULL,
    score    DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, query_id, rank)
);`

// Run describes one stored run. Params holds the scoring, feedback and
// tokenizer settings the run was produced with.
type Run struct {
	ID         string             `json:"id"`
	Tag        string             `json:"tag"`
	Params     json.RawMessage    `json:"params"`
	Summary    analytics.RunStats `json:"summary"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating run tables: %w", err)
	}
	return nil
}

// SaveRun writes run and its lines in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, lines []trec.Line) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}
	params := run.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, tag, params, summary, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			run.ID, run.Tag, []byte(params), summary, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		); err != nil {
			return fmt.Errorf("inserting run %s: %w", run.ID, err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("run_results", "run_id", "query_id", "docno", "rank", "score"))
		if err != nil {
			return fmt.Errorf("preparing copy: %w", err)
		}
		defer stmt.Close()
		for _, l := range lines {
			if _, err := stmt.ExecContext(ctx, run.ID, l.QueryID, l.DocNo, l.Rank, l.Score); err != nil {
				return fmt.Errorf("copying line %s/%d: %w", l.QueryID, l.Rank, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("flushing copy: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("run saved",
		"run_id", run.ID,
		"tag", run.Tag,
		"lines", len(lines),
	)
	return nil
}

// ListRuns returns the last limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, tag, params, summary, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			params  []byte
			summary []byte
		)
		if err := rows.Scan(&run.ID, &run.Tag, &params, &summary, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		run.Params = params
		if err := json.Unmarshal(summary, &run.Summary); err != nil {
			s.logger.Warn("skipping run with corrupt summary", "run_id", run.ID, "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Lines returns a stored run in query, rank order. A run with no stored
// lines yields an empty slice; an unknown run yields sql.ErrNoRows.
func (s *Store) Lines(ctx context.Context, runID string) ([]trec.Line, error) {
	var tag string
	err := s.db.DB.QueryRowContext(ctx, `SELECT tag FROM runs WHERE id = $1`, runID).Scan(&tag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT query_id, docno, rank, score FROM run_results
		 WHERE run_id = $1 ORDER BY query_id, rank`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading lines of run %s: %w", runID, err)
	}
	defer rows.Close()

	lines := []trec.Line{}
	for rows.Next() {
		l := trec.Line{Tag: tag}
		if err := rows.Scan(&l.QueryID, &l.DocNo, &l.Rank, &l.Score); err != nil {
			return nil, fmt.Errorf("scanning run line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
