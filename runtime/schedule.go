package runtime

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a schedule string.
// Supports:
//   - Cron expressions: "0 */15 * * * *" (6-field) or "*/15 * * * *" (5-field)
//   - Descriptors: "@hourly", "@every 5m"
//   - Go duration strings: "15m", "2h", "1h30m"
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("schedule string is empty")
	}

	cronSched, err := scheduleParser.Parse(schedule)
	if err == nil {
		return cronSched, nil
	}

	duration, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule as cron expression or duration: %w", err)
	}
	if duration < time.Second {
		return nil, fmt.Errorf("schedule interval %s is shorter than one second", duration)
	}
	return cron.ConstantDelaySchedule{Delay: duration}, nil
}
