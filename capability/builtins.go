package capability

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/niblit/archive"
	"github.com/aschepis/backscratcher/niblit/maintenance"
	"github.com/aschepis/backscratcher/niblit/memory"
	"github.com/samber/lo"
)

// Store is the part of memory.Store the built-in modules use.
type Store interface {
	AddFact(key, value string, tags ...string) error
	ListFacts(limit int) []memory.Fact
	Forget(key string) (int, error)
	RecentInteractions(n int) []memory.Interaction
	Stats() memory.Stats
	Personality() memory.Personality
	SetPersonality(key, value string) error
}

// Sweeper is the retention maintainer as seen by the maintenance modules.
type Sweeper interface {
	Run(ctx context.Context, days int) (maintenance.Report, error)
	Heal(ctx context.Context) (int, error)
}

// History is the read side of the interaction archive.
type History interface {
	Count(ctx context.Context) (int, error)
	Between(ctx context.Context, from, to time.Time, limit int) ([]memory.Interaction, error)
	LastSweep(ctx context.Context) (archive.SweepRecord, bool, error)
}

// RegisterBuiltins registers every built-in module. history may be nil when
// no archive is configured.
func RegisterBuiltins(r *Registry, store Store, sweeper Sweeper, history History, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.Register("analytics", Analytics{})
	r.Register("ideas", Ideas{Store: store})
	r.Register("reflect", Reflect{Store: store, Now: now})
	r.Register("memory", Memory{Store: store, History: history, Now: now})
	r.Register("self_teacher", SelfTeacher{Store: store})
	r.Register("self_healer", SelfHealer{Sweeper: sweeper})
	r.Register("self_maintenance", SelfMaintenance{Sweeper: sweeper})
	r.Register("personality", PersonalityModule{Store: store})
	// Hardware access is not available in this process.
	r.Register("device_manager", nil)
}

// cleanToken strips trailing sentence punctuation.
func cleanToken(tok string) string {
	return strings.TrimRight(tok, ".,!?")
}

// rankByFrequency orders distinct words by count descending, first
// occurrence breaking ties.
func rankByFrequency(words []string) []string {
	counts := lo.CountValues(words)
	distinct := lo.Uniq(words)
	slices.SortStableFunc(distinct, func(a, b string) int {
		return counts[b] - counts[a]
	})
	return distinct
}

// Analytics reports token statistics for the action text.
type Analytics struct{}

func (Analytics) Invoke(_ context.Context, action string) (string, error) {
	var toks []string
	for _, f := range strings.Fields(action) {
		if t := strings.ToLower(cleanToken(f)); t != "" {
			toks = append(toks, t)
		}
	}
	if len(toks) == 0 {
		return "No text to analyze.", nil
	}
	top := rankByFrequency(toks)
	if len(top) > 8 {
		top = top[:8]
	}
	return fmt.Sprintf("Tokens: %d. Top words: %s.", len(toks), strings.Join(top, ", ")), nil
}

var ideaSeeds = []string{
	"Create an educational micro-course about %s targeted at beginners.",
	"Build a lightweight monitoring dashboard that tracks %s trends.",
	"Offer a data-driven newsletter with weekly insights on %s.",
	"Prototype an automation that solves a repetitive problem in %s workflows.",
}

// Ideas stores three idea seeds for a topic. The omitted seed is chosen by a
// hash of the topic so results are stable per topic.
type Ideas struct {
	Store Store
}

func (m Ideas) Invoke(_ context.Context, action string) (string, error) {
	topic := strings.TrimSpace(action)
	if topic == "" {
		return "", errors.New("ideas: topic is required")
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(topic)))
	skip := int(h.Sum32() % uint32(len(ideaSeeds)))

	chosen := make([]string, 0, len(ideaSeeds)-1)
	for i, seed := range ideaSeeds {
		if i != skip {
			chosen = append(chosen, fmt.Sprintf(seed, topic))
		}
	}
	for i, idea := range chosen {
		if err := m.Store.AddFact(fmt.Sprintf("idea:%s:%d", topic, i+1), idea, "idea", "auto"); err != nil {
			return "", fmt.Errorf("store idea: %w", err)
		}
	}
	return strings.Join(chosen, "\n"), nil
}

// Reflect records a journal entry and reports its top themes.
type Reflect struct {
	Store Store
	Now   func() time.Time
}

func (m Reflect) Invoke(_ context.Context, action string) (string, error) {
	entry := strings.TrimSpace(action)
	if entry == "" {
		return "No entry recorded.", nil
	}
	ts := m.Now().UTC().Format(time.RFC3339)
	if err := m.Store.AddFact("reflect:"+ts, entry, "reflect"); err != nil {
		return "", fmt.Errorf("store reflection: %w", err)
	}

	var words []string
	for _, f := range strings.Fields(entry) {
		if w := cleanToken(f); len([]rune(w)) > 3 {
			words = append(words, w)
		}
	}
	top := rankByFrequency(words)
	if len(top) > 5 {
		top = top[:5]
	}
	return fmt.Sprintf("Saved reflection at %s. Top themes: %s", ts, strings.Join(top, ", ")), nil
}

// ErrNoArchive is returned by archive actions when no archive is configured.
var ErrNoArchive = errors.New("memory: no archive configured")

const archiveListLimit = 20

// Memory inspects the store: "list [n]", "stats", "forget <key>",
// "archive [days]" or "last-sweep".
type Memory struct {
	Store   Store
	History History
	Now     func() time.Time
}

func (m Memory) Invoke(ctx context.Context, action string) (string, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(action), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "", "list":
		limit := 10
		if rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil || n <= 0 {
				return "", fmt.Errorf("memory: invalid limit %q", rest)
			}
			limit = n
		}
		return FormatFacts(m.Store.ListFacts(limit)), nil
	case "stats":
		st := m.Store.Stats()
		out := fmt.Sprintf("Facts: %d (%d condensed). Interactions: %d.", st.Facts, st.CondensedFacts, st.Interactions)
		if m.History != nil {
			n, err := m.History.Count(ctx)
			if err != nil {
				return "", err
			}
			out += fmt.Sprintf(" Archived: %d.", n)
		}
		return out, nil
	case "forget":
		if rest == "" {
			return "", errors.New("memory: forget needs a key")
		}
		n, err := m.Store.Forget(rest)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Forgot %d fact(s) for '%s'.", n, rest), nil
	case "archive":
		return m.archived(ctx, rest)
	case "last-sweep":
		return m.lastSweep(ctx)
	default:
		return "", fmt.Errorf("memory: unknown action %q", verb)
	}
}

// archived lists archived turns from the last days (default 7), oldest first.
func (m Memory) archived(ctx context.Context, arg string) (string, error) {
	if m.History == nil {
		return "", ErrNoArchive
	}
	days := 7
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("memory: invalid archive window %q", arg)
		}
		days = n
	}

	now := m.now()
	items, err := m.History.Between(ctx, now.Add(-time.Duration(days)*24*time.Hour), now, archiveListLimit)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return fmt.Sprintf("No archived interactions in the last %d day(s).", days), nil
	}
	lines := lo.Map(items, func(it memory.Interaction, _ int) string {
		return fmt.Sprintf("[%s] %s: %s", it.Time().UTC().Format(time.RFC3339), it.Role, it.Text)
	})
	return strings.Join(lines, "\n"), nil
}

func (m Memory) lastSweep(ctx context.Context) (string, error) {
	if m.History == nil {
		return "", ErrNoArchive
	}
	rec, ok, err := m.History.LastSweep(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "No retention sweep recorded yet.", nil
	}
	return fmt.Sprintf("Last sweep at %s: pruned %d, condensed %d, repaired %d.",
		rec.RanAt.UTC().Format(time.RFC3339), rec.Pruned, rec.Condensed, rec.Repaired), nil
}

func (m Memory) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// FormatFacts renders facts one per line, most recent first.
func FormatFacts(facts []memory.Fact) string {
	if len(facts) == 0 {
		return "No facts stored."
	}
	lines := lo.Map(facts, func(f memory.Fact, _ int) string {
		return fmt.Sprintf("%s: %s", f.Key, f.Value)
	})
	return strings.Join(lines, "\n")
}

// SelfTeacher turns recent user turns into lesson facts.
type SelfTeacher struct {
	Store Store
}

func (m SelfTeacher) Invoke(_ context.Context, action string) (string, error) {
	limit := 5
	if a := strings.TrimSpace(action); a != "" {
		n, err := strconv.Atoi(a)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("self_teacher: invalid lesson count %q", a)
		}
		limit = n
	}

	recent := m.Store.RecentInteractions(200)
	lessons := 0
	for i := len(recent) - 1; i >= 0 && lessons < limit; i-- {
		it := recent[i]
		if it.Role != memory.RoleUser || strings.TrimSpace(it.Text) == "" {
			continue
		}
		excerpt := it.Text
		if r := []rune(excerpt); len(r) > 240 {
			excerpt = string(r[:240])
		}
		lessons++
		if err := m.Store.AddFact(fmt.Sprintf("lesson:%d", lessons), excerpt, "lesson"); err != nil {
			return "", fmt.Errorf("store lesson: %w", err)
		}
	}
	return fmt.Sprintf("Generated %d internal lessons.", lessons), nil
}

// SelfHealer repairs blank fact values.
type SelfHealer struct {
	Sweeper Sweeper
}

func (m SelfHealer) Invoke(ctx context.Context, _ string) (string, error) {
	n, err := m.Sweeper.Heal(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Repaired %d broken or empty facts.", n), nil
}

// SelfMaintenance runs the retention sweep; the action may name the window in days.
type SelfMaintenance struct {
	Sweeper Sweeper
}

func (m SelfMaintenance) Invoke(ctx context.Context, action string) (string, error) {
	days := 0
	if a := strings.TrimSpace(action); a != "" {
		n, err := strconv.Atoi(a)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("self_maintenance: invalid retention %q", a)
		}
		days = n
	}
	rep, err := m.Sweeper.Run(ctx, days)
	if err != nil {
		return "", err
	}
	return rep.String(), nil
}

// PersonalityModule shows or changes personality settings: "show" or "set <key> <value>".
type PersonalityModule struct {
	Store Store
}

func (m PersonalityModule) Invoke(_ context.Context, action string) (string, error) {
	fields := strings.Fields(action)
	if len(fields) == 0 || strings.EqualFold(fields[0], "show") {
		p := m.Store.Personality()
		keys := lo.Keys(p)
		slices.Sort(keys)
		pairs := lo.Map(keys, func(k string, _ int) string { return k + "=" + p[k] })
		return strings.Join(pairs, ", "), nil
	}
	if strings.EqualFold(fields[0], "set") && len(fields) >= 3 {
		key, value := fields[1], strings.Join(fields[2:], " ")
		if err := m.Store.SetPersonality(key, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Personality %s set to %s.", key, value), nil
	}
	return "", errors.New("personality: usage is 'show' or 'set <key> <value>'")
}
