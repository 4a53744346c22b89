package runtime

import (
	"context"

	"github.com/aschepis/backscratcher/niblit/llm"
	"github.com/rs/zerolog"
)

// DefaultProbeSchedule is how often the availability probe runs.
const DefaultProbeSchedule = "1m"

// Refresher re-checks language model reachability.
type Refresher interface {
	Refresh(ctx context.Context) llm.AvailabilityState
}

// ProbeJob keeps the collaborator's availability cache warm so interactive
// requests rarely pay for a reachability check. It never touches the store.
type ProbeJob struct {
	target   Refresher
	schedule string
	logger   zerolog.Logger
}

// NewProbeJob returns a probe for target. An empty schedule uses DefaultProbeSchedule.
func NewProbeJob(target Refresher, schedule string, logger zerolog.Logger) *ProbeJob {
	if schedule == "" {
		schedule = DefaultProbeSchedule
	}
	return &ProbeJob{
		target:   target,
		schedule: schedule,
		logger:   logger.With().Str("component", "llm_probe").Logger(),
	}
}

func (p *ProbeJob) Name() string     { return "llm-availability-probe" }
func (p *ProbeJob) Schedule() string { return p.schedule }

func (p *ProbeJob) Run(ctx context.Context) error {
	state := p.target.Refresh(ctx)
	p.logger.Debug().Str("state", state.String()).Msg("Availability probed")
	return nil
}
