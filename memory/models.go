package memory

import "time"

// Role identifies who produced an Interaction.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

const (
	// DefaultMaxInteractions bounds the interaction log.
	DefaultMaxInteractions = 500

	// TagCondensed marks facts produced by Condense.
	TagCondensed = "condensed"

	// RepairedValue replaces blank fact values found during repair.
	RepairedValue = "[REPAIRED EMPTY FACT]"

	metaRecoveredAt = "recovered_at"
	metaBackupPath  = "recovered_backup"
)

// Fact is a durable key/value record. Keys are not unique.
type Fact struct {
	Key       string   `json:"key"`
	Value     string   `json:"value"`
	Tags      []string `json:"tags"`
	Timestamp int64    `json:"ts"`
}

// HasTag reports whether the fact carries tag.
func (f Fact) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (f Fact) clone() Fact {
	tags := make([]string, len(f.Tags))
	copy(tags, f.Tags)
	f.Tags = tags
	return f
}

// Interaction is one conversational turn.
type Interaction struct {
	Timestamp int64  `json:"ts"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
}

// Time returns the interaction timestamp as a time.Time.
func (i Interaction) Time() time.Time {
	return time.Unix(i.Timestamp, 0)
}

// Personality is a flat string-keyed settings record (mood, verbosity, ...).
type Personality map[string]string

// Document is the whole persisted state. It is always read and written wholesale.
type Document struct {
	Facts        []Fact         `json:"facts"`
	Interactions []Interaction  `json:"interactions"`
	Personality  Personality    `json:"personality"`
	Meta         map[string]any `json:"meta"`
}

func newDocument() *Document {
	return &Document{
		Facts:        []Fact{},
		Interactions: []Interaction{},
		Personality:  defaultPersonality(),
		Meta:         map[string]any{},
	}
}

func defaultPersonality() Personality {
	return Personality{
		"mood":      "neutral",
		"verbosity": "medium",
	}
}

// Stats summarises the document contents.
type Stats struct {
	Facts          int
	CondensedFacts int
	Interactions   int
}
