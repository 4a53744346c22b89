package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/niblit/memory"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	DefaultAvailabilityTTL = 10 * time.Second
	DefaultQueryTimeout    = 30 * time.Second
	DefaultMaxTokens       = 300
	DefaultHistoryWindow   = 10
	DefaultSystemPrompt    = "You are Niblit, a concise, helpful assistant."
)

// AvailabilityState is the cached result of the last reachability check.
type AvailabilityState int

const (
	StateUnknown AvailabilityState = iota
	StateOnline
	StateOffline
)

func (s AvailabilityState) String() string {
	switch s {
	case StateOnline:
		return "checked-online"
	case StateOffline:
		return "checked-offline"
	default:
		return "unknown"
	}
}

// CollaboratorConfig configures a Collaborator.
type CollaboratorConfig struct {
	Model           string
	SystemPrompt    string
	AvailabilityTTL time.Duration
	Timeout         time.Duration
	HistoryWindow   int
	Now             func() time.Time
}

// Collaborator is the language-model collaborator consumed by the router. It
// caches availability so callers never probe the network on every request.
type Collaborator struct {
	client Client
	pinger Pinger
	cfg    CollaboratorConfig
	logger zerolog.Logger

	mu        sync.Mutex
	state     AvailabilityState
	checkedAt time.Time

	probeMu sync.Mutex
}

// NewCollaborator wraps client. If pinger is nil, a configured client is
// assumed reachable.
func NewCollaborator(client Client, pinger Pinger, cfg CollaboratorConfig, logger zerolog.Logger) *Collaborator {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = DefaultAvailabilityTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQueryTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Collaborator{
		client: client,
		pinger: pinger,
		cfg:    cfg,
		logger: logger.With().Str("component", "llm_collaborator").Logger(),
	}
}

// State returns the cached availability state.
func (c *Collaborator) State() AvailabilityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAvailable reports the cached availability, re-checking at most once per TTL.
// If another goroutine is already probing, the last known state is returned.
func (c *Collaborator) IsAvailable(ctx context.Context) bool {
	if c == nil || c.client == nil {
		return false
	}

	c.mu.Lock()
	state, checkedAt := c.state, c.checkedAt
	c.mu.Unlock()

	if state != StateUnknown && c.cfg.Now().Sub(checkedAt) < c.cfg.AvailabilityTTL {
		return state == StateOnline
	}

	if !c.probeMu.TryLock() {
		return state == StateOnline
	}
	defer c.probeMu.Unlock()
	return c.probe(ctx) == StateOnline
}

// Refresh forces a reachability check and returns the new state.
func (c *Collaborator) Refresh(ctx context.Context) AvailabilityState {
	if c == nil || c.client == nil {
		return StateOffline
	}
	c.probeMu.Lock()
	defer c.probeMu.Unlock()
	return c.probe(ctx)
}

// probe must be called with probeMu held.
func (c *Collaborator) probe(ctx context.Context) AvailabilityState {
	state := StateOnline
	if c.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		err := c.pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			c.logger.Debug().Err(err).Msg("LLM availability check failed")
			state = StateOffline
		}
	}
	c.setState(state)
	return state
}

func (c *Collaborator) setState(state AvailabilityState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != state {
		c.logger.Info().Str("from", c.state.String()).Str("to", state.String()).Msg("LLM availability changed")
	}
	c.state = state
	c.checkedAt = c.cfg.Now()
}

// Query sends prompt with the tail of history as conversational context.
// Errors are *Error values; timeouts and unreachable providers also mark the
// collaborator offline until the next check.
func (c *Collaborator) Query(ctx context.Context, prompt string, history []memory.Interaction, maxTokens int) (string, error) {
	if c == nil || c.client == nil {
		return "", NewUnavailableError("no language model configured", nil)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if len(history) > c.cfg.HistoryWindow {
		history = history[len(history)-c.cfg.HistoryWindow:]
	}

	messages := lo.Map(history, func(it memory.Interaction, _ int) Message {
		role := RoleUser
		if it.Role == memory.RoleAssistant {
			role = RoleAssistant
		}
		return NewTextMessage(role, it.Text)
	})
	messages = append(messages, NewTextMessage(RoleUser, prompt))

	queryCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.Synchronous(queryCtx, &Request{
		Model:     c.cfg.Model,
		System:    c.cfg.SystemPrompt,
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	})
	if err != nil {
		if errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			err = NewTimeoutError(fmt.Sprintf("llm request exceeded %s", c.cfg.Timeout), err)
		} else {
			err = Classify(err)
		}
		if IsTimeoutError(err) || IsUnavailableError(err) {
			c.setState(StateOffline)
		}
		c.logger.Warn().Err(err).Msg("LLM query failed")
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", NewProviderError("empty response from language model", nil)
	}
	return text, nil
}
