package runtime

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule string
		wantNext time.Time
		wantErr  bool
	}{
		{name: "duration", schedule: "5m", wantNext: base.Add(5 * time.Minute)},
		{name: "long duration", schedule: "24h", wantNext: base.Add(24 * time.Hour)},
		{name: "five field cron", schedule: "*/15 * * * *", wantNext: base.Add(15 * time.Minute)},
		{name: "six field cron", schedule: "30 0 10 * * *", wantNext: base.Add(30 * time.Second)},
		{name: "descriptor", schedule: "@hourly", wantNext: base.Add(time.Hour)},
		{name: "every", schedule: "@every 90s", wantNext: base.Add(90 * time.Second)},
		{name: "empty", schedule: "", wantErr: true},
		{name: "garbage", schedule: "whenever", wantErr: true},
		{name: "sub-second", schedule: "10ms", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := ParseSchedule(tt.schedule)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSchedule(%q) error = %v, wantErr %v", tt.schedule, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := sched.Next(base); !got.Equal(tt.wantNext) {
				t.Errorf("ParseSchedule(%q).Next() = %v, want %v", tt.schedule, got, tt.wantNext)
			}
		})
	}
}
