package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// sessionHashLen is the number of hex characters retained from the
// salted session digest. The digest is one-way; no reverse mapping is
// kept anywhere.
const sessionHashLen = 16

// paramAllowlist is the fixed set of operation parameter keys that may
// appear in a detailed event. The filter is fail-closed: any key not
// listed here is dropped, which is what keeps coordinates, place names,
// and free-text input out of emitted events structurally instead of by
// scrubbing.
var paramAllowlist = map[string]struct{}{
	"days":           {},
	"hours":          {},
	"granularity":    {},
	"units":          {},
	"format":         {},
	"include_hourly": {},
	"include_daily":  {},
	"alerts":         {},
}

// Anonymizer reduces raw events to their privacy-level-gated wire form.
// It is pure and deterministic given the configured salt.
type Anonymizer struct {
	version string
	salt    string
}

// NewAnonymizer creates an Anonymizer that stamps events with the given
// client version and uses salt for session digests.
func NewAnonymizer(version, salt string) *Anonymizer {
	return &Anonymizer{version: version, salt: salt}
}

// Anonymize converts a raw event into its anonymized form according to
// the event's privacy level. Fields above the level are never populated;
// optional metadata absent on the input is omitted, never defaulted.
func (a *Anonymizer) Anonymize(raw RawEvent) AnonymizedEvent {
	ev := AnonymizedEvent{
		Version:        a.version,
		Tool:           raw.Tool,
		Status:         raw.Status,
		TimestampHour:  truncateToHour(raw.Time).Format(time.RFC3339),
		AnalyticsLevel: raw.Level,
	}

	if raw.Status == StatusError {
		ev.ErrorType = raw.Meta.ErrorType
		if ev.ErrorType == "" {
			ev.ErrorType = "unknown"
		}
	}

	if raw.Level == LevelMinimal {
		return ev
	}

	// Standard fields, each included only if present on the input.
	ev.ResponseTimeMs = raw.Meta.ResponseTimeMs
	ev.Service = raw.Meta.Service
	ev.CacheHit = raw.Meta.CacheHit
	ev.RetryCount = raw.Meta.RetryCount
	ev.Country = raw.Meta.Country

	if raw.Level == LevelStandard {
		return ev
	}

	// Detailed fields.
	ev.Parameters = filterParams(raw.Meta.Params)
	ev.SessionHash = a.hashSession(raw.Meta.SessionID)
	ev.Sequence = raw.Meta.Sequence

	return ev
}

// hashSession returns a truncated one-way digest of the session id, or
// an empty string when no session id is present.
func (a *Anonymizer) hashSession(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(a.salt + ":" + sessionID))
	return hex.EncodeToString(sum[:])[:sessionHashLen]
}

// filterParams keeps only allowlisted keys. It returns nil when nothing
// survives so the field is omitted from the wire form entirely.
func filterParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	var out map[string]any
	for k, v := range params {
		if _, ok := paramAllowlist[k]; !ok {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = v
	}
	return out
}

// truncateToHour rounds a timestamp down to the top of the hour in UTC,
// preventing fine-grained timing correlation.
func truncateToHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
