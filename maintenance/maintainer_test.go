package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/niblit/archive"
	"github.com/aschepis/backscratcher/niblit/memory"
	"github.com/rs/zerolog"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fakeArchiver struct {
	items   []memory.Interaction
	sweeps  []archive.SweepRecord
	failArc bool
}

func (f *fakeArchiver) ArchiveInteractions(ctx context.Context, items []memory.Interaction) (int, error) {
	if f.failArc {
		return 0, errors.New("disk full")
	}
	f.items = append(f.items, items...)
	return len(items), nil
}

func (f *fakeArchiver) RecordSweep(ctx context.Context, rec archive.SweepRecord) error {
	f.sweeps = append(f.sweeps, rec)
	return nil
}

func seededStore(t *testing.T, c *clock) *memory.Store {
	t.Helper()
	s, err := memory.Open(filepath.Join(t.TempDir(), "mem.json"), memory.WithClock(c.Now), memory.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	base := c.now
	for _, age := range []int{40, 35, 20, 1} {
		c.now = base.Add(-time.Duration(age) * 24 * time.Hour)
		if err := s.AddInteraction(memory.RoleUser, "gardening tomatoes gardening"); err != nil {
			t.Fatalf("AddInteraction() error = %v", err)
		}
	}
	c.now = base
	return s
}

func TestRunPrunesAndCondenses(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := seededStore(t, c)
	arc := &fakeArchiver{}
	m := New(s, Config{}, zerolog.Nop(), WithArchiver(arc), WithClock(c.Now))

	rep, err := m.Run(context.Background(), 30)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Pruned != 2 {
		t.Errorf("Pruned = %d, want 2", rep.Pruned)
	}
	if got := rep.String(); got != "Removed 2 old interactions and condensed memory." {
		t.Errorf("String() = %q", got)
	}
	if len(arc.items) != 2 || rep.Archived != 2 {
		t.Errorf("archived %d items, report %d", len(arc.items), rep.Archived)
	}
	if len(arc.sweeps) != 1 || arc.sweeps[0].Pruned != 2 {
		t.Errorf("sweeps = %+v", arc.sweeps)
	}

	st := s.Stats()
	if st.Interactions != 2 {
		t.Errorf("interactions left = %d, want 2", st.Interactions)
	}
	if rep.Condensed != 2 || st.CondensedFacts != 2 {
		t.Fatalf("condensed report %d, facts %d, want 2", rep.Condensed, st.CondensedFacts)
	}
	keys := map[string]string{}
	for _, f := range s.ListFacts(10) {
		keys[f.Key] = f.Value
	}
	if keys["common_1"] != "gardening" || keys["common_2"] != "tomatoes" {
		t.Errorf("condensed facts = %v", keys)
	}
}

func TestRunDefaultsRetention(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := seededStore(t, c)
	m := New(s, Config{RetentionDays: 10}, zerolog.Nop(), WithClock(c.Now))

	rep, err := m.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Pruned != 3 {
		t.Errorf("Pruned = %d, want 3", rep.Pruned)
	}
}

func TestRunCondensePrependsUnlessReplacing(t *testing.T) {
	tests := []struct {
		name    string
		replace bool
		want    int
	}{
		{name: "prepend mode accumulates", replace: false, want: 4},
		{name: "replace mode is idempotent", replace: true, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			s := seededStore(t, c)
			m := New(s, Config{ReplaceCondensed: tt.replace}, zerolog.Nop(), WithClock(c.Now))

			for i := 0; i < 2; i++ {
				if _, err := m.Run(context.Background(), 30); err != nil {
					t.Fatalf("Run() error = %v", err)
				}
			}
			if got := s.Stats().CondensedFacts; got != tt.want {
				t.Errorf("CondensedFacts = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestArchiveFailureIsNotFatal(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := seededStore(t, c)
	m := New(s, Config{}, zerolog.Nop(), WithArchiver(&fakeArchiver{failArc: true}), WithClock(c.Now))

	rep, err := m.Run(context.Background(), 30)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Pruned != 2 || rep.Archived != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestHealRepairsEmptyFacts(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := seededStore(t, c)
	if err := s.AddFact("ok", "value"); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}
	m := New(s, Config{}, zerolog.Nop())

	n, err := m.Heal(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Heal() on clean store = %d, %v", n, err)
	}
}

func TestRunHonoursCancelledContext(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := seededStore(t, c)
	m := New(s, Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Run(ctx, 30); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if s.Stats().Interactions != 4 {
		t.Error("cancelled sweep should not prune")
	}
}

func TestSweepJob(t *testing.T) {
	m := New(nil, Config{Schedule: "@hourly"}, zerolog.Nop())
	j := m.Job()
	if j.Name() != "retention-sweep" || j.Schedule() != "@hourly" {
		t.Errorf("job = %s %s", j.Name(), j.Schedule())
	}
	if got := New(nil, Config{}, zerolog.Nop()).Job().Schedule(); got != DefaultSchedule {
		t.Errorf("default schedule = %q", got)
	}
}

func TestRunRemovesOnlyEntriesOutsideWindow(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := memory.Open(filepath.Join(t.TempDir(), "mem.json"), memory.WithClock(c.Now), memory.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	base := c.now
	for _, age := range []int{40, 20, 1} {
		c.now = base.Add(-time.Duration(age) * 24 * time.Hour)
		if err := s.AddInteraction(memory.RoleUser, "note"); err != nil {
			t.Fatalf("AddInteraction() error = %v", err)
		}
	}
	c.now = base

	rep, err := New(s, Config{}, zerolog.Nop(), WithClock(c.Now)).Run(context.Background(), 30)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", rep.Pruned)
	}
	left := s.RecentInteractions(10)
	if len(left) != 2 || left[0].Timestamp != base.Add(-20*24*time.Hour).Unix() {
		t.Errorf("remaining = %+v", left)
	}
}
