package capability

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/niblit/archive"
	"github.com/aschepis/backscratcher/niblit/maintenance"
	"github.com/aschepis/backscratcher/niblit/memory"
	"github.com/rs/zerolog"
)

func openStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.Open(filepath.Join(t.TempDir(), "mem.json"), memory.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAnalytics(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "No text to analyze."},
		{in: "Go go GO! rust.", want: "Tokens: 4. Top words: go, rust."},
		{in: "a b c d e f g h i j", want: "Tokens: 10. Top words: a, b, c, d, e, f, g, h."},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Analytics{}.Invoke(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Invoke() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdeasAreStableAndStored(t *testing.T) {
	s := openStore(t)
	m := Ideas{Store: s}

	first, err := m.Invoke(context.Background(), "beekeeping")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	second, _ := m.Invoke(context.Background(), "beekeeping")
	if first != second {
		t.Errorf("ideas differ between calls:\n%s\n---\n%s", first, second)
	}
	if lines := strings.Split(first, "\n"); len(lines) != 3 {
		t.Fatalf("got %d ideas, want 3", len(lines))
	}
	facts := s.FactsByKey("idea:beekeeping:1")
	if len(facts) == 0 || !facts[0].HasTag("idea") || !facts[0].HasTag("auto") {
		t.Errorf("idea fact = %+v", facts)
	}

	if _, err := m.Invoke(context.Background(), "  "); err == nil {
		t.Error("empty topic should fail")
	}
}

func TestReflect(t *testing.T) {
	s := openStore(t)
	now := func() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }
	m := Reflect{Store: s, Now: now}

	got, err := m.Invoke(context.Background(), "Garden today. Garden tomorrow, maybe rain.")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	want := "Saved reflection at 2026-05-04T03:02:01Z. Top themes: Garden, today, tomorrow, maybe, rain"
	if got != want {
		t.Errorf("Invoke() = %q, want %q", got, want)
	}
	if len(s.FactsByKey("reflect:2026-05-04T03:02:01Z")) != 1 {
		t.Error("reflection fact not stored")
	}

	if got, _ := m.Invoke(context.Background(), ""); got != "No entry recorded." {
		t.Errorf("empty entry = %q", got)
	}
}

func TestMemoryModule(t *testing.T) {
	s := openStore(t)
	for _, kv := range [][2]string{{"color", "blue"}, {"pet", "cat"}, {"color", "green"}} {
		if err := s.AddFact(kv[0], kv[1]); err != nil {
			t.Fatal(err)
		}
	}
	m := Memory{Store: s}
	ctx := context.Background()

	tests := []struct {
		action  string
		want    string
		wantErr bool
	}{
		{action: "list 2", want: "color: green\npet: cat"},
		{action: "stats", want: "Facts: 3 (0 condensed). Interactions: 0."},
		{action: "forget color", want: "Forgot 2 fact(s) for 'color'."},
		{action: "forget color", want: "Forgot 0 fact(s) for 'color'."},
		{action: "", want: "pet: cat"},
		{action: "list zero", wantErr: true},
		{action: "dance", wantErr: true},
		{action: "archive", wantErr: true},
		{action: "last-sweep", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := m.Invoke(ctx, tt.action)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Invoke(%q) error = %v", tt.action, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Invoke(%q) = %q, want %q", tt.action, got, tt.want)
			}
		})
	}
}

func TestMemoryModuleReadsArchive(t *testing.T) {
	ctx := context.Background()
	arch, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("archive.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = arch.Close() })

	day := int64(24 * 60 * 60)
	now := time.Unix(10*day, 0)
	_, err = arch.ArchiveInteractions(ctx, []memory.Interaction{
		{Timestamp: 2 * day, Role: memory.RoleUser, Text: "too old"},
		{Timestamp: 8 * day, Role: memory.RoleUser, Text: "plant tomatoes?"},
		{Timestamp: 8*day + 1, Role: memory.RoleAssistant, Text: "in spring"},
	})
	if err != nil {
		t.Fatalf("ArchiveInteractions() error = %v", err)
	}

	m := Memory{Store: openStore(t), History: arch, Now: func() time.Time { return now }}

	tests := []struct {
		action  string
		want    string
		wantErr bool
	}{
		{action: "stats", want: "Facts: 0 (0 condensed). Interactions: 0. Archived: 3."},
		{action: "archive 3", want: "[1970-01-09T00:00:00Z] user: plant tomatoes?\n[1970-01-09T00:00:01Z] assistant: in spring"},
		{action: "archive 1", want: "No archived interactions in the last 1 day(s)."},
		{action: "archive never", wantErr: true},
		{action: "last-sweep", want: "No retention sweep recorded yet."},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := m.Invoke(ctx, tt.action)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Invoke(%q) error = %v", tt.action, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Invoke(%q) = %q, want %q", tt.action, got, tt.want)
			}
		})
	}

	rec := archive.SweepRecord{RanAt: time.Unix(9*day, 0), Pruned: 4, Condensed: 2, Repaired: 1}
	if err := arch.RecordSweep(ctx, rec); err != nil {
		t.Fatalf("RecordSweep() error = %v", err)
	}
	got, err := m.Invoke(ctx, "last-sweep")
	if err != nil {
		t.Fatalf("Invoke(last-sweep) error = %v", err)
	}
	if want := "Last sweep at 1970-01-10T00:00:00Z: pruned 4, condensed 2, repaired 1."; got != want {
		t.Errorf("Invoke(last-sweep) = %q, want %q", got, want)
	}
}

func TestMemoryModuleWithoutArchive(t *testing.T) {
	m := Memory{Store: openStore(t)}
	for _, action := range []string{"archive", "last-sweep"} {
		if _, err := m.Invoke(context.Background(), action); !errors.Is(err, ErrNoArchive) {
			t.Errorf("Invoke(%q) error = %v, want ErrNoArchive", action, err)
		}
	}
}

func TestSelfTeacher(t *testing.T) {
	s := openStore(t)
	long := strings.Repeat("x", 300)
	for _, it := range []struct {
		role memory.Role
		text string
	}{
		{memory.RoleUser, "first question"},
		{memory.RoleAssistant, "answer"},
		{memory.RoleUser, long},
		{memory.RoleUser, "latest question"},
	} {
		if err := s.AddInteraction(it.role, it.text); err != nil {
			t.Fatal(err)
		}
	}

	got, err := SelfTeacher{Store: s}.Invoke(context.Background(), "2")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "Generated 2 internal lessons." {
		t.Errorf("Invoke() = %q", got)
	}
	if f := s.FactsByKey("lesson:1"); len(f) != 1 || f[0].Value != "latest question" {
		t.Errorf("lesson:1 = %+v", f)
	}
	if f := s.FactsByKey("lesson:2"); len(f) != 1 || len(f[0].Value) != 240 {
		t.Errorf("lesson:2 length = %d", len(f[0].Value))
	}
}

type stubSweeper struct {
	days int
	err  error
}

func (s *stubSweeper) Run(_ context.Context, days int) (maintenance.Report, error) {
	s.days = days
	return maintenance.Report{Pruned: 7}, s.err
}

func (s *stubSweeper) Heal(context.Context) (int, error) { return 3, s.err }

func TestMaintenanceModules(t *testing.T) {
	sw := &stubSweeper{}
	ctx := context.Background()

	if got, _ := (SelfHealer{Sweeper: sw}).Invoke(ctx, ""); got != "Repaired 3 broken or empty facts." {
		t.Errorf("SelfHealer = %q", got)
	}
	got, err := SelfMaintenance{Sweeper: sw}.Invoke(ctx, "14")
	if err != nil || got != "Removed 7 old interactions and condensed memory." || sw.days != 14 {
		t.Errorf("SelfMaintenance = %q, %v (days %d)", got, err, sw.days)
	}
	if _, err := (SelfMaintenance{Sweeper: sw}).Invoke(ctx, "soon"); err == nil {
		t.Error("invalid days should fail")
	}

	sw.err = errors.New("disk full")
	if _, err := (SelfHealer{Sweeper: sw}).Invoke(ctx, ""); err == nil {
		t.Error("sweeper error should propagate")
	}
}

func TestPersonalityModule(t *testing.T) {
	s := openStore(t)
	m := PersonalityModule{Store: s}
	ctx := context.Background()

	if got, _ := m.Invoke(ctx, "show"); got != "mood=neutral, verbosity=medium" {
		t.Errorf("show = %q", got)
	}
	if got, _ := m.Invoke(ctx, "set mood cheerful"); got != "Personality mood set to cheerful." {
		t.Errorf("set = %q", got)
	}
	if s.Personality()["mood"] != "cheerful" {
		t.Error("mood not stored")
	}
	if _, err := m.Invoke(ctx, "set mood"); err == nil {
		t.Error("incomplete set should fail")
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(time.Second, zerolog.Nop())
	RegisterBuiltins(r, openStore(t), &stubSweeper{}, nil, nil)

	want := []string{"analytics", "device_manager", "ideas", "memory", "personality", "reflect", "self_healer", "self_maintenance", "self_teacher"}
	if got := strings.Join(r.Names(), ","); got != strings.Join(want, ",") {
		t.Errorf("Names() = %s", got)
	}
	if _, err := r.Invoke(context.Background(), "device_manager", "scan"); !errors.Is(err, ErrNoPublicAPI) {
		t.Errorf("device_manager error = %v", err)
	}
}
