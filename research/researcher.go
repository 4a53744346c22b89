// Package research answers self-research requests: internal command hints,
// capability calls and web lookups.
package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/niblit/capability"
	ctxpkg "github.com/aschepis/backscratcher/niblit/context"
	"github.com/rs/zerolog"
)

// Response prefixes.
const (
	InternalPrefix  = "[INTERNAL RESEARCH] → "
	ResultsHeader   = "[WEB RESEARCH RESULTS]\n"
	NoResults       = "[NO RESULTS FOUND]"
	WebErrorPrefix  = "[WEB RESEARCH ERROR] "
	UnknownResearch = "[RESEARCH ERROR] Unknown command or missing argument"
)

// commandTable maps research shorthands to the user commands they stand for.
var commandTable = map[string]string{
	"ideas":    "ideas about",
	"reflect":  "reflect",
	"analyze":  "analyze",
	"memory":   "!memory",
	"heal":     "self-heal",
	"teach":    "self-teach",
	"maintain": "self-maintenance",
	"impl":     "self-idea-impl",
	"device":   "device-info",
	"read":     "read-file",
	"write":    "write-file",
}

// Invoker runs a named capability.
type Invoker interface {
	Invoke(ctx context.Context, name, action string) (string, error)
}

// Researcher dispatches research commands.
type Researcher struct {
	modules  Invoker
	searcher WebSearcher
	logger   zerolog.Logger
}

// NewResearcher returns a Researcher. A nil searcher makes web lookups report
// an error instead of reaching the network.
func NewResearcher(modules Invoker, searcher WebSearcher, logger zerolog.Logger) *Researcher {
	return &Researcher{
		modules:  modules,
		searcher: searcher,
		logger:   logger.With().Str("component", "researcher").Logger(),
	}
}

// Handle answers "self-research <cmd> <arg>". An empty arg with a non-empty
// cmd treats cmd as a web query.
func (r *Researcher) Handle(ctx context.Context, cmd, arg string) string {
	cmd = strings.ToLower(strings.TrimSpace(cmd))
	arg = strings.TrimSpace(arg)

	if mapped, ok := commandTable[cmd]; ok {
		return strings.TrimSpace(InternalPrefix + mapped + " " + arg)
	}

	switch {
	case cmd == "module" && arg != "":
		name, action, _ := strings.Cut(arg, " ")
		return r.Module(ctx, name, strings.TrimSpace(action))
	case cmd == "web" || cmd == "web.run":
		if arg == "" {
			return UnknownResearch
		}
		return r.Web(ctx, arg)
	case arg == "" && cmd != "":
		return r.Web(ctx, cmd)
	}
	return UnknownResearch
}

// Module invokes a capability and renders failures as response text.
func (r *Researcher) Module(ctx context.Context, name, action string) string {
	if r.modules == nil {
		return capability.Describe(&capability.RoutingError{Module: name, Err: capability.ErrModuleNotRegistered})
	}
	out, err := r.modules.Invoke(ctx, name, action)
	if err != nil {
		return capability.Describe(err)
	}
	return out
}

// Web runs a web lookup and formats the results.
func (r *Researcher) Web(ctx context.Context, query string) string {
	if r.searcher == nil {
		return WebErrorPrefix + "web research is not configured"
	}
	ctxpkg.Trace(ctx, fmt.Sprintf("Web research: %s", query))

	results, err := r.searcher.Search(ctx, query)
	if err != nil {
		r.logger.Warn().Err(err).Str("query", query).Msg("Web research failed")
		return WebErrorPrefix + err.Error()
	}
	if len(results) == 0 {
		return NoResults
	}
	r.logger.Debug().Str("query", query).Int("results", len(results)).Msg("Web research succeeded")
	return ResultsHeader + strings.Join(results, "\n\n")
}
