package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// bufferCapacity bounds the in-memory event buffer. Reaching it
	// triggers an out-of-band flush; while a flush cannot run, further
	// events are dropped rather than queued.
	bufferCapacity = 100

	// ingestRateLimit caps accepted events per rolling ingestRateWindow.
	ingestRateLimit  = 60
	ingestRateWindow = time.Minute

	// flushInterval is the periodic flush cadence, independent of buffer
	// occupancy.
	flushInterval = 5 * time.Minute

	// minFlushGap is the minimum spacing between flush attempts.
	minFlushGap = 30 * time.Second

	// hourlyFlushSoftCap is logged when exceeded, never enforced.
	hourlyFlushSoftCap = 20

	// breakerThreshold consecutive send failures open the circuit for
	// breakerCooldown; the first flush after the cooldown is a half-open
	// probe.
	breakerThreshold = 5
	breakerCooldown  = 5 * time.Minute

	// errorStreakAlert is the consecutive internal tracking-failure
	// count that escalates to an alert-level log. This is separate from
	// the circuit breaker, which only governs network sends.
	errorStreakAlert = 10
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
)

// Stats is a point-in-time snapshot of collector state, used by the CLI
// status output and the dashboard.
type Stats struct {
	Enabled bool
	Level   Level

	Buffered int
	Tracked  uint64
	Sent     uint64

	DroppedRateLimited uint64
	DroppedOverflow    uint64
	DroppedCircuitOpen uint64
	DroppedSendFailed  uint64

	FlushAttempts   uint64
	FlushesThisHour int
	LastFlush       time.Time

	CircuitOpen             bool
	CircuitOpenUntil        time.Time
	ConsecutiveSendFailures int
}

// Collector owns the event buffer, session identity, rate limiter, flush
// scheduler, and circuit breaker. Track is the single write entry point
// and Flush the single drain entry point; both absorb every internal
// failure.
type Collector struct {
	cfg    Config
	anon   *Anonymizer
	sender Sender
	logger *slog.Logger

	session *sessionContext
	done    chan struct{}
	once    sync.Once

	// now is the clock; tests substitute a fake.
	now func() time.Time

	mu          sync.Mutex
	buf         []AnonymizedEvent
	ingestTimes []time.Time
	closed      bool

	lastFlush       time.Time
	hourStart       time.Time
	flushesThisHour int

	circuit             circuitState
	consecutiveFailures int
	openUntil           time.Time

	errorStreak int

	tracked            uint64
	sent               uint64
	flushAttempts      uint64
	droppedRateLimited uint64
	droppedOverflow    uint64
	droppedCircuitOpen uint64
	droppedSendFailed  uint64
}

// NewCollector creates a collector and, when analytics is enabled,
// starts its periodic flush timer. The timer goroutine exits on Shutdown
// and never keeps the process alive on its own.
func NewCollector(cfg Config, sender Sender, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		cfg:     cfg,
		anon:    NewAnonymizer(cfg.Version, cfg.Salt),
		sender:  sender,
		logger:  logger.With("component", "analytics"),
		session: newSessionContext(),
		done:    make(chan struct{}),
		now:     time.Now,
		buf:     make([]AnonymizedEvent, 0, bufferCapacity),
	}
	if cfg.Enabled {
		go c.run()
	}
	return c
}

func (c *Collector) run() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

// Track records one tool invocation. It never panics and never returns
// an error: every internal failure is caught here, logged, and counted,
// and a sustained failure streak escalates to an alert-level log.
func (c *Collector) Track(tool string, status Status, meta Metadata) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tracking %s: %v", tool, r)
			}
		}()
		return c.track(tool, status, meta)
	}()

	c.mu.Lock()
	if err == nil {
		c.errorStreak = 0
		c.mu.Unlock()
		return
	}
	c.errorStreak++
	streak := c.errorStreak
	c.mu.Unlock()

	c.logger.Warn("event tracking failed", "tool", tool, "error", err)
	if streak == errorStreakAlert {
		c.logger.Error("analytics pipeline degraded: consecutive tracking failures",
			"streak", streak)
	}
}

func (c *Collector) track(tool string, status Status, meta Metadata) error {
	c.mu.Lock()
	if c.closed || !c.cfg.Enabled {
		c.mu.Unlock()
		return nil
	}

	now := c.now()
	c.pruneIngestWindow(now)
	if len(c.ingestTimes) >= ingestRateLimit {
		c.droppedRateLimited++
		c.mu.Unlock()
		c.logger.Debug("ingest rate limit exceeded, event dropped", "tool", tool)
		return nil
	}
	c.ingestTimes = append(c.ingestTimes, now)

	// The session token and sequence exist on the wire only at the
	// detailed level.
	if c.cfg.Level == LevelDetailed {
		meta.SessionID = c.session.id
		seq := c.session.next()
		meta.Sequence = &seq
	}

	ev := c.anon.Anonymize(RawEvent{
		Tool:   tool,
		Status: status,
		Time:   now,
		Level:  c.cfg.Level,
		Meta:   meta,
	})

	if len(c.buf) >= bufferCapacity {
		c.droppedOverflow++
		c.mu.Unlock()
		c.logger.Debug("event buffer full, event dropped", "tool", tool)
		return nil
	}
	c.buf = append(c.buf, ev)
	c.tracked++
	full := len(c.buf) >= bufferCapacity
	c.mu.Unlock()

	if full {
		// Out-of-band flush: the call that filled the buffer returns
		// before the network round-trip starts.
		go c.Flush()
	}
	return nil
}

// pruneIngestWindow drops ingest timestamps older than the rolling
// window. Caller holds the mutex.
func (c *Collector) pruneIngestWindow(now time.Time) {
	cutoff := now.Add(-ingestRateWindow)
	i := 0
	for i < len(c.ingestTimes) && !c.ingestTimes[i].After(cutoff) {
		i++
	}
	if i > 0 {
		c.ingestTimes = append(c.ingestTimes[:0], c.ingestTimes[i:]...)
	}
}

// Flush drains the buffer and sends it as one batch, subject to the
// cadence guard and the circuit breaker. Failed batches are dropped,
// never requeued.
func (c *Collector) Flush() {
	c.flushNow(context.Background(), false)
}

func (c *Collector) flushNow(ctx context.Context, force bool) {
	c.mu.Lock()
	if len(c.buf) == 0 {
		c.mu.Unlock()
		return
	}

	now := c.now()
	if !force && !c.lastFlush.IsZero() && now.Sub(c.lastFlush) < minFlushGap {
		c.mu.Unlock()
		c.logger.Debug("flush skipped by cadence guard")
		return
	}

	c.flushAttempts++
	c.lastFlush = now
	if c.hourStart.IsZero() || now.Sub(c.hourStart) >= time.Hour {
		c.hourStart = now
		c.flushesThisHour = 0
	}
	c.flushesThisHour++
	if c.flushesThisHour > hourlyFlushSoftCap {
		c.logger.Warn("hourly flush volume above soft cap",
			"flushes", c.flushesThisHour, "cap", hourlyFlushSoftCap)
	}

	// While the circuit is open, drop immediately rather than
	// accumulating toward the next outage retry.
	if c.circuit == circuitOpen && now.Before(c.openUntil) {
		n := len(c.buf)
		c.buf = make([]AnonymizedEvent, 0, bufferCapacity)
		c.droppedCircuitOpen += uint64(n)
		c.mu.Unlock()
		c.logger.Debug("circuit open, buffered events dropped", "count", n)
		return
	}
	probe := c.circuit == circuitOpen

	// Atomic swap-to-empty: the send below works on its own batch, so a
	// concurrent flush or append never races over the same slice.
	batch := c.buf
	c.buf = make([]AnonymizedEvent, 0, bufferCapacity)
	c.mu.Unlock()

	err := c.sender.SendBatch(ctx, batch)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.consecutiveFailures++
		c.droppedSendFailed += uint64(len(batch))
		c.logger.Warn("event batch send failed",
			"error", err, "events", len(batch),
			"consecutive_failures", c.consecutiveFailures)
		if probe || c.consecutiveFailures >= breakerThreshold {
			c.circuit = circuitOpen
			c.openUntil = c.now().Add(breakerCooldown)
			c.logger.Warn("analytics circuit opened", "until", c.openUntil)
		}
		return
	}

	if c.circuit == circuitOpen {
		c.logger.Info("analytics circuit closed after successful probe")
	}
	c.circuit = circuitClosed
	c.consecutiveFailures = 0
	c.sent += uint64(len(batch))
}

// Shutdown is idempotent and terminal: it cancels the periodic timer,
// performs one best-effort final flush if the buffer is non-empty, and
// marks the collector inert so subsequent Track calls become no-ops.
func (c *Collector) Shutdown() {
	c.once.Do(func() {
		close(c.done)

		c.mu.Lock()
		c.closed = true
		pending := len(c.buf)
		c.mu.Unlock()

		if pending > 0 {
			c.flushNow(context.Background(), true)
		}
		c.logger.Debug("analytics collector shut down")
	})
}

// Stats returns a snapshot of the collector's current state.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Enabled:                 c.cfg.Enabled,
		Level:                   c.cfg.Level,
		Buffered:                len(c.buf),
		Tracked:                 c.tracked,
		Sent:                    c.sent,
		DroppedRateLimited:      c.droppedRateLimited,
		DroppedOverflow:         c.droppedOverflow,
		DroppedCircuitOpen:      c.droppedCircuitOpen,
		DroppedSendFailed:       c.droppedSendFailed,
		FlushAttempts:           c.flushAttempts,
		FlushesThisHour:         c.flushesThisHour,
		LastFlush:               c.lastFlush,
		CircuitOpen:             c.circuit == circuitOpen,
		CircuitOpenUntil:        c.openUntil,
		ConsecutiveSendFailures: c.consecutiveFailures,
	}
}
