// Package router turns a line of user text into a response, recording the
// exchange in the knowledge store.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aschepis/backscratcher/niblit/capability"
	ctxpkg "github.com/aschepis/backscratcher/niblit/context"
	"github.com/aschepis/backscratcher/niblit/llm"
	"github.com/aschepis/backscratcher/niblit/memory"
	"github.com/rs/zerolog"
)

const (
	DefaultContextWindow = 10
	DefaultMaxTokens     = 300

	recentFactsLimit = 10
)

// Response strings.
const (
	ToggleUsage    = "[TOGGLE ERROR] Usage: toggle-llm on/off"
	ResearchUsage  = "[RESEARCH ERROR] Usage: self-research <cmd> <arg> or self-research <natural query>"
	ModuleUsage    = "[MODULE ERROR] Missing module command"
	RememberUsage  = "Use `!remember key: value` to save facts."
	ForgetUsage    = "Use `!forget key` to remove facts."
	ConciseReply   = "Okay, I'll be more concise."
	DetailedReply  = "Okay, I'll be more detailed."
	rawModeFormat  = "[RAW DATA MODE] You said: \"%s\""
	llmErrorFormat = "I heard you say: \"%s\" (LLM error: %v)"
)

// HelpText lists the commands the router understands.
const HelpText = `Commands:
  !remember key: value
  !forget key
  !memory
  be more concise | be more detailed
  module <name> <action>
  self-research <cmd> <arg>
  self-research <natural query>
  toggle-llm on/off
  help
  exit | quit`

// Store is the part of the knowledge store the router uses.
type Store interface {
	AddInteraction(role memory.Role, text string) error
	RecentInteractions(n int) []memory.Interaction
	AddFact(key, value string, tags ...string) error
	Forget(key string) (int, error)
	ListFacts(limit int) []memory.Fact
	Personality() memory.Personality
	SetPersonality(key, value string) error
}

// Collaborator is the language model the router falls back to.
type Collaborator interface {
	IsAvailable(ctx context.Context) bool
	Query(ctx context.Context, prompt string, history []memory.Interaction, maxTokens int) (string, error)
}

// Researcher answers self-research commands.
type Researcher interface {
	Handle(ctx context.Context, cmd, arg string) string
}

// Modules invokes named capabilities.
type Modules interface {
	Invoke(ctx context.Context, name, action string) (string, error)
}

// Router dispatches user text. Handle may be called concurrently; the store
// serializes the writes.
type Router struct {
	store        Store
	collaborator Collaborator
	researcher   Researcher
	modules      Modules

	contextWindow int
	maxTokens     int
	logger        zerolog.Logger

	mu         sync.RWMutex
	llmEnabled bool

	turns atomic.Uint64
}

// Option configures a Router.
type Option func(*Router)

// WithCollaborator sets the language model fallback.
func WithCollaborator(c Collaborator) Option {
	return func(r *Router) { r.collaborator = c }
}

// WithResearcher sets the self-research handler.
func WithResearcher(res Researcher) Option {
	return func(r *Router) { r.researcher = res }
}

// WithModules sets the capability registry used by "module <name> <action>".
func WithModules(m Modules) Option {
	return func(r *Router) { r.modules = m }
}

// WithContextWindow sets how many past interactions are sent to the collaborator.
func WithContextWindow(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.contextWindow = n
		}
	}
}

// WithMaxTokens sets the collaborator response cap at medium verbosity.
func WithMaxTokens(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithLLMEnabled sets the initial toggle state.
func WithLLMEnabled(on bool) Option {
	return func(r *Router) { r.llmEnabled = on }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New returns a Router over store. The LLM toggle starts on.
func New(store Store, opts ...Option) *Router {
	r := &Router{
		store:         store,
		contextWindow: DefaultContextWindow,
		maxTokens:     DefaultMaxTokens,
		logger:        zerolog.Nop(),
		llmEnabled:    true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "router").Logger()
	return r
}

// LLMEnabled reports the toggle state.
func (r *Router) LLMEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llmEnabled
}

// SetLLMEnabled sets the toggle state.
func (r *Router) SetLLMEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmEnabled = on
}

// Handle answers text. The user turn is recorded before the response is
// computed and the assistant turn after, so every call appends exactly one
// pair. The response is always usable; the error is non-nil only when the
// store failed to persist, and carries every write failure of the turn.
func (r *Router) Handle(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	turn := r.turns.Add(1)
	ctx = ctxpkg.WithTurnID(ctx, turn)
	log := r.logger.With().Uint64("turn", turn).Logger()

	t := &turnState{log: log}
	history := r.store.RecentInteractions(r.contextWindow)
	t.record(r.store.AddInteraction(memory.RoleUser, text))

	response := r.dispatch(ctx, t, text, history)

	t.record(r.store.AddInteraction(memory.RoleAssistant, response))
	return response, t.err()
}

// turnState collects write failures raised while handling one turn.
type turnState struct {
	log      zerolog.Logger
	failures []error
}

func (t *turnState) record(err error) {
	if err == nil {
		return
	}
	if memory.IsWriteFailure(err) {
		t.failures = append(t.failures, err)
		return
	}
	t.log.Error().Err(err).Msg("Store operation failed")
}

func (t *turnState) err() error {
	return errors.Join(t.failures...)
}

func (r *Router) dispatch(ctx context.Context, t *turnState, text string, history []memory.Interaction) string {
	low := strings.ToLower(text)

	switch {
	case strings.Contains(low, "help"):
		ctxpkg.Trace(ctx, "intent: help")
		return HelpText
	case strings.HasPrefix(low, "toggle-llm"):
		ctxpkg.Trace(ctx, "intent: toggle-llm")
		return r.toggle(low)
	case strings.HasPrefix(text, "!remember"):
		ctxpkg.Trace(ctx, "intent: remember")
		return r.remember(t, strings.TrimPrefix(text, "!remember"))
	case strings.HasPrefix(text, "!forget"):
		ctxpkg.Trace(ctx, "intent: forget")
		return r.forget(t, strings.TrimPrefix(text, "!forget"))
	case low == "!memory":
		ctxpkg.Trace(ctx, "intent: memory")
		return capability.FormatFacts(r.store.ListFacts(recentFactsLimit))
	case strings.Contains(low, "be more concise"):
		ctxpkg.Trace(ctx, "intent: personality")
		t.record(r.store.SetPersonality("verbosity", "low"))
		return ConciseReply
	case strings.Contains(low, "be more detailed"):
		ctxpkg.Trace(ctx, "intent: personality")
		t.record(r.store.SetPersonality("verbosity", "high"))
		return DetailedReply
	case strings.HasPrefix(low, "self-research"):
		ctxpkg.Trace(ctx, "intent: self-research")
		return r.research(ctx, text)
	case low == "module" || strings.HasPrefix(low, "module "):
		ctxpkg.Trace(ctx, "intent: module")
		return r.module(ctx, t, text)
	}

	if r.LLMEnabled() && r.collaborator != nil && r.collaborator.IsAvailable(ctx) {
		ctxpkg.Trace(ctx, "intent: llm")
		reply, err := r.collaborator.Query(ctx, text, history, r.tokenBudget())
		if err != nil {
			r.logger.Warn().Err(err).Bool("timeout", llm.IsTimeoutError(err)).Msg("LLM fallback failed")
			return fmt.Sprintf(llmErrorFormat, text, err)
		}
		return reply
	}

	ctxpkg.Trace(ctx, "intent: raw")
	return fmt.Sprintf(rawModeFormat, text)
}

func (r *Router) toggle(low string) string {
	parts := strings.Fields(low)
	if len(parts) != 2 || (parts[1] != "on" && parts[1] != "off") {
		return ToggleUsage
	}
	on := parts[1] == "on"
	r.SetLLMEnabled(on)
	r.logger.Info().Bool("enabled", on).Msg("LLM toggled")
	if on {
		return "LLM enabled"
	}
	return "LLM disabled"
}

func (r *Router) remember(t *turnState, payload string) string {
	key, value, ok := strings.Cut(payload, ":")
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return RememberUsage
	}
	err := r.store.AddFact(key, value, "user")
	t.record(err)
	if err != nil && !memory.IsWriteFailure(err) {
		return fmt.Sprintf("Could not save: %v", err)
	}
	return "Saved."
}

func (r *Router) forget(t *turnState, payload string) string {
	key := strings.TrimSpace(payload)
	if key == "" {
		return ForgetUsage
	}
	n, err := r.store.Forget(key)
	t.record(err)
	return fmt.Sprintf("Forgot %d fact(s) for '%s'.", n, key)
}

// research splits "self-research <cmd> <arg>" on single spaces into at most
// three parts.
func (r *Router) research(ctx context.Context, text string) string {
	if r.researcher == nil {
		return ResearchUsage
	}
	parts := strings.SplitN(text, " ", 3)
	switch len(parts) {
	case 2:
		return r.researcher.Handle(ctx, "web.run", parts[1])
	case 3:
		return r.researcher.Handle(ctx, parts[1], parts[2])
	default:
		return ResearchUsage
	}
}

func (r *Router) module(ctx context.Context, t *turnState, text string) string {
	fields := strings.SplitN(strings.TrimSpace(text), " ", 3)
	if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
		return ModuleUsage
	}
	if r.modules == nil {
		return capability.Describe(&capability.RoutingError{Module: fields[1], Err: capability.ErrModuleNotRegistered})
	}
	action := ""
	if len(fields) == 3 {
		action = strings.TrimSpace(fields[2])
	}
	out, err := r.modules.Invoke(ctx, fields[1], action)
	if err != nil {
		if memory.IsWriteFailure(err) {
			t.record(err)
		}
		return capability.Describe(err)
	}
	return out
}

// tokenBudget scales the response cap by the stored verbosity.
func (r *Router) tokenBudget() int {
	switch r.store.Personality()["verbosity"] {
	case "low":
		return max(r.maxTokens/2, 1)
	case "high":
		return r.maxTokens * 2
	default:
		return r.maxTokens
	}
}
