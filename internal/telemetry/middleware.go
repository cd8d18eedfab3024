package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Handler is the shape of one tool invocation the middleware can wrap.
// The MCP layer adapts its typed handlers to this shape.
type Handler[In, Out any] func(ctx context.Context, in In) (Out, error)

// Extractor derives extra event metadata from a successful invocation.
// It sees both the input and the result so it can record operation
// parameters alongside result-derived fields like cache hits.
type Extractor[In, Out any] func(in In, out Out) Metadata

// Instrument wraps a tool handler with usage tracking: it measures
// wall-clock duration, classifies failures, and forwards the outcome to
// the collector. The original error is returned unchanged so the
// caller's error handling is unaffected by analytics.
func Instrument[In, Out any](c *Collector, tool string, extract Extractor[In, Out], next Handler[In, Out]) Handler[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		start := time.Now()
		out, err := next(ctx, in)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			c.Track(tool, StatusError, Metadata{
				ResponseTimeMs: &elapsed,
				ErrorType:      classify(err),
			})
			return out, err
		}

		var meta Metadata
		if extract != nil {
			meta = extract(in, out)
		}
		meta.ResponseTimeMs = &elapsed
		c.Track(tool, StatusSuccess, meta)
		return out, nil
	}
}

// classify maps an error to a coarse category by inspecting its identity
// and message. Substring matching is best-effort classification, not a
// strict contract.
func classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "validation") ||
		strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "required"):
		return "validation"
	case strings.Contains(msg, "not found") ||
		strings.Contains(msg, "no such"):
		return "not_found"
	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429"):
		return "rate_limit"
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "dial") ||
		strings.Contains(msg, "dns") ||
		strings.Contains(msg, "unreachable"):
		return "network"
	case strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "internal server") ||
		strings.Contains(msg, "status 5"):
		return "service_error"
	default:
		return "unknown"
	}
}
