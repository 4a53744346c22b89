// Package maintenance runs the periodic retention sweep over the knowledge
// store: repair, time-based pruning, optional archiving, condensation and a
// forced flush.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/niblit/archive"
	"github.com/aschepis/backscratcher/niblit/memory"
	"github.com/rs/zerolog"
)

const (
	DefaultRetentionDays = 30
	DefaultKeepTop       = 50
	DefaultSchedule      = "24h"
)

// Store is the part of memory.Store the maintainer drives. Each call takes the
// store lock on its own, so foreground requests interleave between steps.
type Store interface {
	RepairEmptyFacts(sentinel string) (int, error)
	PruneInteractions(cutoff time.Time) ([]memory.Interaction, error)
	ClearCondensed() (int, error)
	Condense(keepTop int) ([]memory.Fact, error)
	Flush() error
}

// Archiver receives interactions removed by a sweep.
type Archiver interface {
	ArchiveInteractions(ctx context.Context, items []memory.Interaction) (int, error)
	RecordSweep(ctx context.Context, rec archive.SweepRecord) error
}

// Config controls a Maintainer.
type Config struct {
	RetentionDays    int
	KeepTop          int
	ReplaceCondensed bool
	Schedule         string
}

// Report describes one sweep.
type Report struct {
	RanAt            time.Time
	Repaired         int
	Pruned           int
	Archived         int
	ClearedCondensed int
	Condensed        int
}

func (r Report) String() string {
	return fmt.Sprintf("Removed %d old interactions and condensed memory.", r.Pruned)
}

// Maintainer is the retention sweep.
type Maintainer struct {
	store    Store
	archiver Archiver
	cfg      Config
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Maintainer.
type Option func(*Maintainer)

// WithArchiver stores pruned interactions before they are dropped for good.
func WithArchiver(a Archiver) Option {
	return func(m *Maintainer) { m.archiver = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Maintainer) { m.now = now }
}

// New creates a Maintainer over store.
func New(store Store, cfg Config, logger zerolog.Logger, opts ...Option) *Maintainer {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.KeepTop <= 0 {
		cfg.KeepTop = DefaultKeepTop
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	m := &Maintainer{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "maintenance").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Heal repairs blank fact values.
func (m *Maintainer) Heal(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := m.store.RepairEmptyFacts(memory.RepairedValue)
	if n > 0 {
		m.logger.Info().Int("repaired", n).Msg("Repaired empty facts")
	}
	return n, err
}

// Run performs one sweep with the given retention in days; days <= 0 uses the
// configured retention. Write failures in intermediate steps do not stop the
// sweep since the in-memory document is already updated; the final flush
// decides the returned error.
func (m *Maintainer) Run(ctx context.Context, days int) (Report, error) {
	if days <= 0 {
		days = m.cfg.RetentionDays
	}
	rep := Report{RanAt: m.now()}
	log := m.logger.With().Int("retention_days", days).Logger()

	var err error
	if rep.Repaired, err = m.Heal(ctx); err != nil && !memory.IsWriteFailure(err) {
		return rep, fmt.Errorf("repair facts: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	cutoff := rep.RanAt.Add(-time.Duration(days) * 24 * time.Hour)
	removed, err := m.store.PruneInteractions(cutoff)
	rep.Pruned = len(removed)
	if err != nil && !memory.IsWriteFailure(err) {
		return rep, fmt.Errorf("prune interactions: %w", err)
	}

	if m.archiver != nil && len(removed) > 0 {
		n, err := m.archiver.ArchiveInteractions(ctx, removed)
		if err != nil {
			log.Warn().Err(err).Int("count", len(removed)).Msg("Failed to archive pruned interactions")
		}
		rep.Archived = n
	}

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if m.cfg.ReplaceCondensed {
		if rep.ClearedCondensed, err = m.store.ClearCondensed(); err != nil && !memory.IsWriteFailure(err) {
			return rep, fmt.Errorf("clear condensed facts: %w", err)
		}
	}

	condensed, err := m.store.Condense(m.cfg.KeepTop)
	rep.Condensed = len(condensed)
	if err != nil && !memory.IsWriteFailure(err) {
		return rep, fmt.Errorf("condense: %w", err)
	}

	if err := m.store.Flush(); err != nil {
		log.Error().Err(err).Msg("Retention sweep could not persist the document")
		return rep, fmt.Errorf("flush: %w", err)
	}

	if m.archiver != nil {
		rec := archive.SweepRecord{RanAt: rep.RanAt, Pruned: rep.Pruned, Condensed: rep.Condensed, Repaired: rep.Repaired}
		if err := m.archiver.RecordSweep(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("Failed to record sweep")
		}
	}

	log.Info().
		Int("pruned", rep.Pruned).
		Int("archived", rep.Archived).
		Int("condensed", rep.Condensed).
		Int("repaired", rep.Repaired).
		Msg("Retention sweep completed")
	return rep, nil
}

// Job returns the scheduler job for this maintainer.
func (m *Maintainer) Job() *SweepJob {
	return &SweepJob{m: m}
}

// SweepJob runs the retention sweep on the configured schedule.
type SweepJob struct {
	m *Maintainer
}

func (j *SweepJob) Name() string     { return "retention-sweep" }
func (j *SweepJob) Schedule() string { return j.m.cfg.Schedule }

func (j *SweepJob) Run(ctx context.Context) error {
	_, err := j.m.Run(ctx, 0)
	return err
}
