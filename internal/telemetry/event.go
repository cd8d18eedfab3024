package telemetry

import "time"

// Level controls how much operational detail is retained per emitted
// event. Each level is a strict superset of the one below it.
type Level string

const (
	LevelMinimal  Level = "minimal"
	LevelStandard Level = "standard"
	LevelDetailed Level = "detailed"
)

// ParseLevel maps a configuration string to a Level. The second return
// value is false for unrecognized input.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelMinimal, LevelStandard, LevelDetailed:
		return Level(s), true
	}
	return LevelMinimal, false
}

// Status is the outcome of a single tool invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Metadata carries optional per-invocation context supplied by the
// middleware or the tool handler. All fields are optional; pointer fields
// distinguish "absent" from a zero value so the anonymizer can omit
// rather than default them.
type Metadata struct {
	ResponseTimeMs *int64
	Service        string
	CacheHit       *bool
	RetryCount     *int
	Country        string
	Params         map[string]any
	ErrorType      string

	// SessionID and Sequence are populated by the collector at the
	// detailed level only. SessionID never leaves the process in clear
	// form; the anonymizer replaces it with a salted digest.
	SessionID string
	Sequence  *uint64
}

// RawEvent is the ephemeral input to the anonymizer. It exists only for
// the duration of one Track call and is never buffered or persisted.
type RawEvent struct {
	Tool   string
	Status Status
	Time   time.Time
	Level  Level
	Meta   Metadata
}

// AnonymizedEvent is the wire form of one tracked invocation. Optional
// fields carry omitempty so each privacy level's JSON is exactly the
// permitted field set: the anonymizer never populates a field above the
// configured level, and absent metadata is omitted, not defaulted.
type AnonymizedEvent struct {
	Version        string `json:"version"`
	Tool           string `json:"tool"`
	Status         Status `json:"status"`
	TimestampHour  string `json:"timestamp_hour"`
	AnalyticsLevel Level  `json:"analytics_level"`

	// Present only when Status is StatusError.
	ErrorType string `json:"error_type,omitempty"`

	// Standard level and above.
	ResponseTimeMs *int64 `json:"response_time_ms,omitempty"`
	Service        string `json:"service,omitempty"`
	CacheHit       *bool  `json:"cache_hit,omitempty"`
	RetryCount     *int   `json:"retry_count,omitempty"`
	Country        string `json:"country,omitempty"`

	// Detailed level only.
	Parameters  map[string]any `json:"parameters,omitempty"`
	SessionHash string         `json:"session_hash,omitempty"`
	Sequence    *uint64        `json:"sequence,omitempty"`
}
