package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/rapidtrace/internal/rapidbin"
)

// Run is an archived trace.
type Run struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ContentHash string          `json:"content_hash"`
	Header      rapidbin.Header `json:"header"`
	Seq         int64           `json:"seq"`
}

// SaveRun archives a binary trace under name.
//
// The trace is decoded first; a corrupt trace is rejected with the decoder's
// *rapidbin.FormatError and nothing is written. Saving bytes that are already
// archived returns the existing run and created=false.
func (s *Store) SaveRun(ctx context.Context, name string, data []byte) (run Run, created bool, err error) {
	tr, err := rapidbin.Decode(data)
	if err != nil {
		return Run{}, false, fmt.Errorf("write run: %w", err)
	}

	hash := ContentHash(data)
	existing, err := s.runByHash(ctx, hash)
	switch {
	case err == nil:
		s.logger.Debug("run already archived", zap.String("run_id", existing.ID), zap.String("hash", hash))
		return existing, false, nil
	case !errors.Is(err, ErrRunNotFound):
		return Run{}, false, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, false, fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return Run{}, false, fmt.Errorf("write run: next seq: %w", err)
	}

	run = Run{
		ID:          s.ids.Generate(),
		Name:        name,
		ContentHash: hash,
		Header:      tr.Header,
		Seq:         seq,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, name, content_hash, threads, locks, regions, events, trace, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Name,
		run.ContentHash,
		run.Header.Threads,
		run.Header.Locks,
		run.Header.Regions,
		int64(run.Header.Events),
		data,
		run.Seq,
	)
	if err != nil {
		return Run{}, false, fmt.Errorf("write run: %w", err)
	}

	if err := insertEvents(ctx, tx, run.ID, tr.Records); err != nil {
		return Run{}, false, fmt.Errorf("write run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Run{}, false, fmt.Errorf("write run: commit: %w", err)
	}

	s.logger.Info("archived run",
		zap.String("run_id", run.ID),
		zap.String("name", run.Name),
		zap.Uint64("events", run.Header.Events),
	)
	return run, true, nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, runID string, records []rapidbin.Record) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, thread, op, decoration, location)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, runID, i, r.Thread, uint8(r.Op), int64(r.Decoration), r.Location); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}
	return nil
}
