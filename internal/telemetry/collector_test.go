package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"
)

// --- Fakes ---

type fakeSender struct {
	mu      sync.Mutex
	batches [][]AnonymizedEvent
	err     error
}

func (f *fakeSender) SendBatch(_ context.Context, events []AnonymizedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakeSender) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// calls counts successful deliveries; attempts counts every SendBatch
// invocation including failures.
func (f *fakeSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type countingSender struct {
	mu       sync.Mutex
	attempts int
	err      error
}

func (c *countingSender) SendBatch(_ context.Context, _ []AnonymizedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	return c.err
}

func (c *countingSender) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- Helpers ---

func testConfig(level Level) Config {
	return Config{
		Enabled:  true,
		Level:    level,
		Endpoint: DefaultEndpoint,
		Salt:     "test-salt",
		Version:  "test",
	}
}

func newTestCollector(t *testing.T, cfg Config, sender Sender) (*Collector, *fakeClock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCollector(cfg, sender, logger)
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clk.Now
	t.Cleanup(c.Shutdown)
	return c, clk
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- Tests ---

func TestCollector_CapacityTriggersOutOfBandFlush(t *testing.T) {
	sender := &fakeSender{}
	c, clk := newTestCollector(t, testConfig(LevelStandard), sender)

	// Spaced ingest keeps the rolling rate window under its cap.
	for i := 0; i < bufferCapacity; i++ {
		c.Track("get_forecast", StatusSuccess, Metadata{})
		clk.Advance(1100 * time.Millisecond)
	}

	waitFor(t, "capacity flush", func() bool { return sender.calls() == 1 })

	sender.mu.Lock()
	batchLen := len(sender.batches[0])
	sender.mu.Unlock()
	if batchLen != bufferCapacity {
		t.Errorf("flushed batch has %d events, want %d", batchLen, bufferCapacity)
	}

	waitFor(t, "buffer drain", func() bool { return c.Stats().Buffered == 0 })
}

func TestCollector_BufferNeverExceedsCapacity(t *testing.T) {
	sender := &fakeSender{}
	c, _ := newTestCollector(t, testConfig(LevelStandard), sender)

	// Pre-fill the buffer to capacity so the next append would overflow.
	c.mu.Lock()
	c.buf = make([]AnonymizedEvent, bufferCapacity)
	c.mu.Unlock()

	c.Track("get_forecast", StatusSuccess, Metadata{})

	stats := c.Stats()
	if stats.Buffered != bufferCapacity {
		t.Errorf("Buffered = %d, want %d", stats.Buffered, bufferCapacity)
	}
	if stats.DroppedOverflow != 1 {
		t.Errorf("DroppedOverflow = %d, want 1", stats.DroppedOverflow)
	}
}

func TestCollector_RateLimit61stDropped(t *testing.T) {
	sender := &fakeSender{}
	c, _ := newTestCollector(t, testConfig(LevelStandard), sender)

	for i := 0; i < ingestRateLimit+1; i++ {
		c.Track("get_forecast", StatusSuccess, Metadata{})
	}

	stats := c.Stats()
	if stats.Tracked != ingestRateLimit {
		t.Errorf("Tracked = %d, want %d", stats.Tracked, ingestRateLimit)
	}
	if stats.DroppedRateLimited != 1 {
		t.Errorf("DroppedRateLimited = %d, want 1", stats.DroppedRateLimited)
	}
	// The drop leaves the buffer untouched.
	if stats.Buffered != ingestRateLimit {
		t.Errorf("Buffered = %d, want %d", stats.Buffered, ingestRateLimit)
	}
}

func TestCollector_RateWindowSlides(t *testing.T) {
	sender := &fakeSender{}
	c, clk := newTestCollector(t, testConfig(LevelStandard), sender)

	for i := 0; i < ingestRateLimit; i++ {
		c.Track("get_forecast", StatusSuccess, Metadata{})
	}
	clk.Advance(61 * time.Second)
	c.Track("get_forecast", StatusSuccess, Metadata{})

	stats := c.Stats()
	if stats.Tracked != ingestRateLimit+1 {
		t.Errorf("Tracked = %d, want %d after window slid", stats.Tracked, ingestRateLimit+1)
	}
	if stats.DroppedRateLimited != 0 {
		t.Errorf("DroppedRateLimited = %d, want 0", stats.DroppedRateLimited)
	}
}

func TestCollector_FlushCadenceGuard(t *testing.T) {
	sender := &countingSender{}
	c, clk := newTestCollector(t, testConfig(LevelStandard), sender)

	c.Track("get_forecast", StatusSuccess, Metadata{})
	c.Flush()
	if sender.count() != 1 {
		t.Fatalf("first flush attempts = %d, want 1", sender.count())
	}

	// A second flush inside the 30-second guard is skipped.
	clk.Advance(10 * time.Second)
	c.Track("get_forecast", StatusSuccess, Metadata{})
	c.Flush()
	if sender.count() != 1 {
		t.Errorf("guarded flush attempts = %d, want 1", sender.count())
	}
	if got := c.Stats().Buffered; got != 1 {
		t.Errorf("Buffered = %d, want 1 (events wait for the next tick)", got)
	}

	// After the guard elapses the buffered events go out.
	clk.Advance(25 * time.Second)
	c.Flush()
	if sender.count() != 2 {
		t.Errorf("post-guard flush attempts = %d, want 2", sender.count())
	}
}

func TestCollector_EmptyBufferFlushIsNoop(t *testing.T) {
	sender := &countingSender{}
	c, _ := newTestCollector(t, testConfig(LevelStandard), sender)

	c.Flush()
	if sender.count() != 0 {
		t.Errorf("attempts = %d, want 0 for empty buffer", sender.count())
	}
	if !c.Stats().LastFlush.IsZero() {
		t.Error("empty flush must not consume the cadence guard")
	}
}

func TestCollector_CircuitBreakerLifecycle(t *testing.T) {
	sender := &countingSender{}
	sender.setErr(errors.New("connection refused"))
	c, clk := newTestCollector(t, testConfig(LevelStandard), sender)

	// Five consecutive failed sends open the circuit.
	for i := 0; i < breakerThreshold; i++ {
		c.Track("get_forecast", StatusSuccess, Metadata{})
		c.Flush()
		clk.Advance(31 * time.Second)
	}
	if sender.count() != breakerThreshold {
		t.Fatalf("attempts = %d, want %d", sender.count(), breakerThreshold)
	}
	if !c.Stats().CircuitOpen {
		t.Fatal("circuit should be open after consecutive failures")
	}

	// While open, a flush drops the buffer without a network call.
	c.Track("get_forecast", StatusSuccess, Metadata{})
	c.Flush()
	if sender.count() != breakerThreshold {
		t.Errorf("attempts = %d, want %d (no call while open)", sender.count(), breakerThreshold)
	}
	stats := c.Stats()
	if stats.DroppedCircuitOpen == 0 {
		t.Error("expected events dropped while circuit open")
	}
	if stats.Buffered != 0 {
		t.Errorf("Buffered = %d, want 0 (open circuit drops, never accumulates)", stats.Buffered)
	}

	// After the cooldown the next flush probes exactly once; a failed
	// probe re-opens for a full window.
	clk.Advance(breakerCooldown + time.Second)
	c.Track("get_forecast", StatusSuccess, Metadata{})
	c.Flush()
	if sender.count() != breakerThreshold+1 {
		t.Errorf("attempts = %d, want %d (one probe)", sender.count(), breakerThreshold+1)
	}
	if !c.Stats().CircuitOpen {
		t.Error("failed probe should re-open the circuit")
	}

	// A successful probe closes it again.
	sender.setErr(nil)
	clk.Advance(breakerCooldown + time.Second)
	c.Track("get_forecast", StatusSuccess, Metadata{})
	c.Flush()
	if c.Stats().CircuitOpen {
		t.Error("successful probe should close the circuit")
	}
	if got := c.Stats().ConsecutiveSendFailures; got != 0 {
		t.Errorf("ConsecutiveSendFailures = %d, want 0 after recovery", got)
	}
}

func TestCollector_ShutdownIdempotent(t *testing.T) {
	sender := &fakeSender{}
	c, _ := newTestCollector(t, testConfig(LevelStandard), sender)

	c.Track("get_forecast", StatusSuccess, Metadata{})
	c.Track("get_forecast", StatusSuccess, Metadata{})

	c.Shutdown()
	c.Shutdown()

	if sender.calls() != 1 {
		t.Errorf("final flushes = %d, want exactly 1", sender.calls())
	}

	// The collector is inert afterwards.
	c.Track("get_forecast", StatusSuccess, Metadata{})
	if got := c.Stats().Tracked; got != 2 {
		t.Errorf("Tracked = %d after shutdown, want 2", got)
	}
}

func TestCollector_ShutdownFlushBypassesCadenceGuard(t *testing.T) {
	sender := &fakeSender{}
	c, clk := newTestCollector(t, testConfig(LevelStandard), sender)

	c.Track("get_forecast", StatusSuccess, Metadata{})
	c.Flush()
	if sender.calls() != 1 {
		t.Fatalf("calls = %d, want 1", sender.calls())
	}

	clk.Advance(time.Second)
	c.Track("get_forecast", StatusSuccess, Metadata{})
	c.Shutdown()

	if sender.calls() != 2 {
		t.Errorf("calls = %d, want 2 (final flush is best-effort, not guarded)", sender.calls())
	}
}

func TestCollector_TrackNeverPanics(t *testing.T) {
	sender := &fakeSender{}
	c, _ := newTestCollector(t, testConfig(LevelDetailed), sender)

	circular := map[string]any{}
	circular["units"] = circular

	c.Track("get_forecast", StatusSuccess, Metadata{
		Params: map[string]any{
			"days":  math.NaN(),
			"units": circular,
			"lat":   math.Inf(1),
		},
	})
	c.Track("", StatusError, Metadata{})
	c.Track("get_forecast", Status("bogus"), Metadata{})

	if got := c.Stats().Tracked; got != 3 {
		t.Errorf("Tracked = %d, want 3", got)
	}
}

func TestCollector_TrackRecoversInternalPanic(t *testing.T) {
	sender := &fakeSender{}
	c, _ := newTestCollector(t, testConfig(LevelStandard), sender)

	// Force an internal failure on every call; the boundary must absorb
	// it, including past the alert threshold.
	c.anon = nil
	for i := 0; i < errorStreakAlert+2; i++ {
		c.Track("get_forecast", StatusSuccess, Metadata{})
	}

	if got := c.Stats().Tracked; got != 0 {
		t.Errorf("Tracked = %d, want 0", got)
	}
}

func TestCollector_DetailedLevelAttachesSessionAndSequence(t *testing.T) {
	sender := &fakeSender{}
	c, _ := newTestCollector(t, testConfig(LevelDetailed), sender)

	c.Track("get_forecast", StatusSuccess, Metadata{})
	c.Track("get_forecast", StatusSuccess, Metadata{})

	c.mu.Lock()
	events := append([]AnonymizedEvent(nil), c.buf...)
	c.mu.Unlock()

	if len(events) != 2 {
		t.Fatalf("buffered %d events, want 2", len(events))
	}
	if events[0].SessionHash == "" || events[0].SessionHash != events[1].SessionHash {
		t.Errorf("session hashes %q and %q, want equal and non-empty",
			events[0].SessionHash, events[1].SessionHash)
	}
	if events[0].Sequence == nil || *events[0].Sequence != 1 {
		t.Errorf("first Sequence = %v, want 1", events[0].Sequence)
	}
	if events[1].Sequence == nil || *events[1].Sequence != 2 {
		t.Errorf("second Sequence = %v, want 2", events[1].Sequence)
	}
}

func TestCollector_StandardLevelOmitsSession(t *testing.T) {
	sender := &fakeSender{}
	c, _ := newTestCollector(t, testConfig(LevelStandard), sender)

	c.Track("get_forecast", StatusSuccess, Metadata{})

	c.mu.Lock()
	ev := c.buf[0]
	c.mu.Unlock()

	if ev.SessionHash != "" || ev.Sequence != nil {
		t.Errorf("standard event carries session fields: %+v", ev)
	}
}

func TestCollector_DisabledIsInert(t *testing.T) {
	sender := &countingSender{}
	cfg := testConfig(LevelStandard)
	cfg.Enabled = false
	c, _ := newTestCollector(t, cfg, sender)

	for i := 0; i < 10; i++ {
		c.Track("get_forecast", StatusSuccess, Metadata{})
	}
	c.Flush()

	if sender.count() != 0 {
		t.Errorf("attempts = %d, want 0 when disabled", sender.count())
	}
	if got := c.Stats().Tracked; got != 0 {
		t.Errorf("Tracked = %d, want 0 when disabled", got)
	}
}

func TestCollector_SustainedOutageEndToEnd(t *testing.T) {
	sender := &countingSender{}
	sender.setErr(errors.New("dial tcp: connection refused"))
	c, clk := newTestCollector(t, testConfig(LevelStandard), sender)

	// 150 invocations, one per second, with the endpoint unreachable
	// throughout.
	for i := 0; i < 150; i++ {
		c.Track("get_forecast", StatusSuccess, Metadata{})
		clk.Advance(time.Second)
	}

	waitFor(t, "capacity flush attempt", func() bool { return sender.count() == 1 })

	stats := c.Stats()
	if stats.Buffered > bufferCapacity {
		t.Errorf("Buffered = %d, exceeds capacity %d", stats.Buffered, bufferCapacity)
	}
	if sender.count() != 1 {
		t.Errorf("attempts = %d, want exactly 1 under the cadence guard", sender.count())
	}
	if stats.DroppedSendFailed != bufferCapacity {
		t.Errorf("DroppedSendFailed = %d, want %d (failed batch dropped, never requeued)",
			stats.DroppedSendFailed, bufferCapacity)
	}
	if stats.ConsecutiveSendFailures != 1 {
		t.Errorf("ConsecutiveSendFailures = %d, want 1", stats.ConsecutiveSendFailures)
	}
	// Every invocation is accounted for: buffered once, or dropped while
	// the full buffer waited for its flush. Nothing is ever requeued.
	if got := stats.Tracked + stats.DroppedOverflow; got != 150 {
		t.Errorf("Tracked + DroppedOverflow = %d, want 150", got)
	}
	if got := int(stats.Tracked) - bufferCapacity; got != stats.Buffered {
		t.Errorf("Buffered = %d, want %d (tracked minus the failed batch)", stats.Buffered, got)
	}
}
