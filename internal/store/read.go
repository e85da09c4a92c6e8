package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/rapidtrace/internal/event"
	"github.com/roach88/rapidtrace/internal/rapidbin"
)

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, name, content_hash, threads, locks, regions, events, seq`

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

func (s *Store) runByHash(ctx context.Context, hash string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE content_hash = ?`, hash)
	return scanRun(row)
}

// ListRuns returns every archived run ordered by seq.
//
// Returns an empty slice (not nil) if the archive is empty.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// EventFilter narrows ReadEvents. Nil fields match everything.
type EventFilter struct {
	Thread *uint16
	Op     *event.Op
}

// ReadEvents returns the decoded records of a run in trace order.
//
// Returns an empty slice (not nil) if nothing matches. An unknown run id is
// ErrRunNotFound.
func (s *Store) ReadEvents(ctx context.Context, runID string, f EventFilter) ([]rapidbin.Record, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	where := []string{"run_id = ?"}
	args := []any{runID}
	if f.Thread != nil {
		where = append(where, "thread = ?")
		args = append(args, *f.Thread)
	}
	if f.Op != nil {
		where = append(where, "op = ?")
		args = append(args, uint8(*f.Op))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT thread, op, decoration, location
		FROM events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []rapidbin.Record{}
	for rows.Next() {
		var (
			r          rapidbin.Record
			op         uint8
			decoration int64
		)
		if err := rows.Scan(&r.Thread, &op, &decoration, &r.Location); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Op = event.Op(op)
		r.Decoration = uint64(decoration)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// LoadTrace returns the archived binary trace bytes of a run.
func (s *Store) LoadTrace(ctx context.Context, runID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT trace FROM runs WHERE id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load trace %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load trace %s: %w", runID, err)
	}
	return data, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run    Run
		events int64
	)
	err := sc.Scan(
		&run.ID,
		&run.Name,
		&run.ContentHash,
		&run.Header.Threads,
		&run.Header.Locks,
		&run.Header.Regions,
		&events,
		&run.Seq,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Header.Events = uint64(events)
	return run, nil
}
