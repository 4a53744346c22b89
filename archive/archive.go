// Package archive keeps interactions removed by retention in a SQLite
// database so pruning the live document never loses history outright.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/niblit/memory"
	"github.com/aschepis/backscratcher/niblit/migrations"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const interactionsTable = "archived_interactions"

// SweepRecord summarises one retention sweep.
type SweepRecord struct {
	RanAt     time.Time
	Pruned    int
	Condensed int
	Repaired  int
}

// Archive stores pruned interactions and sweep history.
type Archive struct {
	db     *sql.DB
	now    func() time.Time
	logger zerolog.Logger
}

// Open opens (creating if needed) the archive database at path and applies
// migrations.
func Open(path string, logger zerolog.Logger) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	logger = logger.With().Str("component", "archive").Logger()
	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Archive{db: db, now: time.Now, logger: logger}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// ArchiveInteractions stores items in one transaction and returns how many
// rows were written. Repeated turns with identical text and timestamp are
// kept as separate rows.
func (a *Archive) ArchiveInteractions(ctx context.Context, items []memory.Interaction) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	archivedAt := a.now().Unix()
	inserted := 0
	for _, it := range items {
		query := sq.Insert(interactionsTable).
			Columns("ts", "role", "text", "archived_at").
			Values(it.Timestamp, string(it.Role), it.Text, archivedAt)

		queryStr, args, err := query.ToSql()
		if err != nil {
			return 0, fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, queryStr, args...); err != nil {
			return 0, fmt.Errorf("archive interaction: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive tx: %w", err)
	}
	a.logger.Debug().Int("offered", len(items)).Int("inserted", inserted).Msg("Archived interactions")
	return inserted, nil
}

// Count returns the number of archived interactions.
func (a *Archive) Count(ctx context.Context) (int, error) {
	queryStr, args, err := sq.Select("COUNT(*)").From(interactionsTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int
	if err := a.db.QueryRowContext(ctx, queryStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archived interactions: %w", err)
	}
	return n, nil
}

// Between returns archived interactions with from <= ts < to, oldest first.
func (a *Archive) Between(ctx context.Context, from, to time.Time, limit int) ([]memory.Interaction, error) {
	query := sq.Select("ts", "role", "text").
		From(interactionsTable).
		Where(sq.GtOrEq{"ts": from.Unix()}).
		Where(sq.Lt{"ts": to.Unix()}).
		OrderBy("ts ASC", "id ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query archived interactions: %w", err)
	}
	defer rows.Close()

	var out []memory.Interaction
	for rows.Next() {
		var (
			it   memory.Interaction
			role string
		)
		if err := rows.Scan(&it.Timestamp, &role, &it.Text); err != nil {
			return nil, fmt.Errorf("scan archived interaction: %w", err)
		}
		it.Role = memory.Role(role)
		out = append(out, it)
	}
	return out, rows.Err()
}

// RecordSweep stores a sweep summary.
func (a *Archive) RecordSweep(ctx context.Context, rec SweepRecord) error {
	queryStr, args, err := sq.Insert("sweep_reports").
		Columns("ran_at", "pruned", "condensed", "repaired").
		Values(rec.RanAt.Unix(), rec.Pruned, rec.Condensed, rec.Repaired).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := a.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("record sweep: %w", err)
	}
	return nil
}

// LastSweep returns the most recent sweep, or ok=false if none ran yet.
func (a *Archive) LastSweep(ctx context.Context) (rec SweepRecord, ok bool, err error) {
	queryStr, args, err := sq.Select("ran_at", "pruned", "condensed", "repaired").
		From("sweep_reports").
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return rec, false, fmt.Errorf("build query: %w", err)
	}

	var ranAt int64
	err = a.db.QueryRowContext(ctx, queryStr, args...).Scan(&ranAt, &rec.Pruned, &rec.Condensed, &rec.Repaired)
	if err == sql.ErrNoRows {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("query last sweep: %w", err)
	}
	rec.RanAt = time.Unix(ranAt, 0)
	return rec, true, nil
}
