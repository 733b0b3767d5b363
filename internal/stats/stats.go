// Package stats collects pipeline counters and latency samples for
// dashboard display. It maintains bounded ring buffers of recent latency
// observations from which summaries are computed on demand, plus a ring of
// recent transcription activity.
//
// This collector is the dashboard's read model; the OpenTelemetry
// instruments in internal/observe cover the Prometheus export path. The
// two are fed side by side because the OTel metrics API deliberately has
// no point-in-time read, and the dashboard needs one.
//
// Thread-safe for concurrent use. Counters are monotonically
// non-decreasing for the lifetime of the collector.
package stats

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Millis is a duration that travels as fractional milliseconds in JSON,
// which is what the dashboard's _ms field names promise. In Go it keeps
// full nanosecond precision.
type Millis time.Duration

// Std returns the value as a time.Duration.
func (m Millis) Std() time.Duration { return time.Duration(m) }

func (m Millis) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(m) / float64(time.Millisecond))
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*m = Millis(ms * float64(time.Millisecond))
	return nil
}

// defaultWindowSize is the number of latency samples retained per stage
// when NewCollector is given a non-positive window.
const defaultWindowSize = 256

// recentLimit is the number of activity entries retained.
const recentLimit = 50

// Collector aggregates pipeline statistics. Every stage reports into the
// same instance, which the coordinator constructs at startup and passes
// down explicitly.
type Collector struct {
	mu sync.Mutex

	start time.Time

	framesIngested    int64
	framesDropped     int64
	utterancesEmitted int64
	utterancesDropped int64
	matched           int64
	unmatched         int64
	failures          int64

	queueWait latencyBuffer
	inference latencyBuffer
	execute   latencyBuffer
	endToEnd  latencyBuffer

	perPattern map[string]*patternStats
	recent     []Activity
	recentPos  int
	recentFull bool
}

// patternStats tracks per-pattern match counts and execution latency.
type patternStats struct {
	count      int64
	executeSum time.Duration
}

// Activity is one recent transcription outcome for the dashboard feed.
type Activity struct {
	Time    time.Time `json:"time"`
	Text    string    `json:"text"`
	Matched bool      `json:"matched"`
	Pattern string    `json:"pattern,omitempty"`
	E2E     Millis    `json:"e2e_ms"`
}

// NewCollector creates a Collector retaining windowSize latency samples
// per stage (default 256 when non-positive).
func NewCollector(windowSize int) *Collector {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &Collector{
		start:      time.Now(),
		queueWait:  newLatencyBuffer(windowSize),
		inference:  newLatencyBuffer(windowSize),
		execute:    newLatencyBuffer(windowSize),
		endToEnd:   newLatencyBuffer(windowSize),
		perPattern: make(map[string]*patternStats),
		recent:     make([]Activity, recentLimit),
	}
}

// ─── Counter taps ────────────────────────────────────────────────────────────

// FrameIngested records one frame accepted by the frame channel.
func (c *Collector) FrameIngested() {
	c.mu.Lock()
	c.framesIngested++
	c.mu.Unlock()
}

// FrameDropped records one frame discarded because the frame channel was full.
func (c *Collector) FrameDropped() {
	c.mu.Lock()
	c.framesDropped++
	c.mu.Unlock()
}

// UtteranceEmitted records one utterance flushed by the segmenter.
func (c *Collector) UtteranceEmitted() {
	c.mu.Lock()
	c.utterancesEmitted++
	c.mu.Unlock()
}

// UtteranceDropped records one pending utterance evicted on queue overflow.
func (c *Collector) UtteranceDropped() {
	c.mu.Lock()
	c.utterancesDropped++
	c.mu.Unlock()
}

// TranscriptionFailed records one non-fatal inference failure.
func (c *Collector) TranscriptionFailed() {
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()
}

// CommandMatched records a successful pattern match and its handler
// execution time.
func (c *Collector) CommandMatched(pattern string, execute time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matched++
	ps := c.perPattern[pattern]
	if ps == nil {
		ps = &patternStats{}
		c.perPattern[pattern] = ps
	}
	ps.count++
	ps.executeSum += execute
	c.execute.add(execute)
}

// CommandUnmatched records a transcript that matched no pattern.
func (c *Collector) CommandUnmatched() {
	c.mu.Lock()
	c.unmatched++
	c.mu.Unlock()
}

// ─── Latency taps ────────────────────────────────────────────────────────────

// RecordQueueWait records how long an utterance waited before transcription.
func (c *Collector) RecordQueueWait(d time.Duration) {
	c.mu.Lock()
	c.queueWait.add(d)
	c.mu.Unlock()
}

// RecordInference records one ASR inference duration.
func (c *Collector) RecordInference(d time.Duration) {
	c.mu.Lock()
	c.inference.add(d)
	c.mu.Unlock()
}

// RecordEndToEnd records the full utterance-end → dispatch-complete latency.
func (c *Collector) RecordEndToEnd(d time.Duration) {
	c.mu.Lock()
	c.endToEnd.add(d)
	c.mu.Unlock()
}

// RecordActivity appends one entry to the recent-activity ring.
func (c *Collector) RecordActivity(a Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent[c.recentPos] = a
	c.recentPos++
	if c.recentPos >= len(c.recent) {
		c.recentPos = 0
		c.recentFull = true
	}
}

// ─── Snapshot ────────────────────────────────────────────────────────────────

// LatencySummary holds the summary statistics for one latency stage.
type LatencySummary struct {
	Min Millis `json:"min_ms"`
	Avg Millis `json:"avg_ms"`
	Max Millis `json:"max_ms"`
	P50 Millis `json:"p50_ms"`
	P95 Millis `json:"p95_ms"`
}

// PatternCount is one row of the per-pattern frequency table, sorted by
// descending count in the snapshot.
type PatternCount struct {
	Pattern    string `json:"pattern"`
	Count      int64  `json:"count"`
	AvgExecute Millis `json:"avg_execute_ms"`
}

// Snapshot is a point-in-time copy of all statistics. Each counter
// reflects every update that completed before the Snapshot call.
type Snapshot struct {
	SessionDuration   Millis         `json:"session_duration_ms"`
	FramesIngested    int64          `json:"frames_ingested"`
	FramesDropped     int64          `json:"frames_dropped"`
	UtterancesEmitted int64          `json:"utterances_emitted"`
	UtterancesDropped int64          `json:"utterances_dropped"`
	Matched           int64          `json:"commands_matched"`
	Unmatched         int64          `json:"commands_unmatched"`
	Failures          int64          `json:"transcription_failures"`
	MatchRate         float64        `json:"match_rate_percent"`
	QueueWait         LatencySummary `json:"queue_wait"`
	Inference         LatencySummary `json:"inference"`
	Execute           LatencySummary `json:"execute"`
	EndToEnd          LatencySummary `json:"end_to_end"`
	Patterns          []PatternCount `json:"patterns"`
}

// Snapshot returns a point-in-time view of all statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SessionDuration:   Millis(time.Since(c.start)),
		FramesIngested:    c.framesIngested,
		FramesDropped:     c.framesDropped,
		UtterancesEmitted: c.utterancesEmitted,
		UtterancesDropped: c.utterancesDropped,
		Matched:           c.matched,
		Unmatched:         c.unmatched,
		Failures:          c.failures,
		QueueWait:         c.queueWait.summary(),
		Inference:         c.inference.summary(),
		Execute:           c.execute.summary(),
		EndToEnd:          c.endToEnd.summary(),
	}
	if total := c.matched + c.unmatched; total > 0 {
		snap.MatchRate = 100 * float64(c.matched) / float64(total)
	}

	snap.Patterns = make([]PatternCount, 0, len(c.perPattern))
	for name, ps := range c.perPattern {
		row := PatternCount{Pattern: name, Count: ps.count}
		if ps.count > 0 {
			row.AvgExecute = Millis(ps.executeSum / time.Duration(ps.count))
		}
		snap.Patterns = append(snap.Patterns, row)
	}
	sort.Slice(snap.Patterns, func(i, j int) bool {
		if snap.Patterns[i].Count != snap.Patterns[j].Count {
			return snap.Patterns[i].Count > snap.Patterns[j].Count
		}
		return snap.Patterns[i].Pattern < snap.Patterns[j].Pattern
	})
	return snap
}

// Recent returns up to limit recent activity entries, newest first.
func (c *Collector) Recent(limit int) []Activity {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.recentPos
	if c.recentFull {
		n = len(c.recent)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Activity, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (c.recentPos - 1 - i + len(c.recent)) % len(c.recent)
		out = append(out, c.recent[idx])
	}
	return out
}

// ─── latencyBuffer ───────────────────────────────────────────────────────────

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{data: make([]time.Duration, size)}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos >= len(lb.data) {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) summary() LatencySummary {
	n := lb.pos
	if lb.full {
		n = len(lb.data)
	}
	if n == 0 {
		return LatencySummary{}
	}

	samples := make([]time.Duration, n)
	copy(samples, lb.data[:n])
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return LatencySummary{
		Min: Millis(samples[0]),
		Avg: Millis(sum / time.Duration(n)),
		Max: Millis(samples[n-1]),
		P50: Millis(samples[percentileIndex(n, 50)]),
		P95: Millis(samples[percentileIndex(n, 95)]),
	}
}

// percentileIndex returns the index of the p-th percentile sample in a
// sorted slice of length n using the nearest-rank method.
func percentileIndex(n, p int) int {
	idx := n*p/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}
