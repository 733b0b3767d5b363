package stats

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestCollector_Counters(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)

	for i := 0; i < 5; i++ {
		c.FrameIngested()
	}
	c.FrameDropped()
	c.UtteranceEmitted()
	c.UtteranceEmitted()
	c.UtteranceDropped()
	c.TranscriptionFailed()

	snap := c.Snapshot()
	if snap.FramesIngested != 5 {
		t.Errorf("frames ingested = %d, want 5", snap.FramesIngested)
	}
	if snap.FramesDropped != 1 {
		t.Errorf("frames dropped = %d, want 1", snap.FramesDropped)
	}
	if snap.UtterancesEmitted != 2 {
		t.Errorf("utterances emitted = %d, want 2", snap.UtterancesEmitted)
	}
	if snap.UtterancesDropped != 1 {
		t.Errorf("utterances dropped = %d, want 1", snap.UtterancesDropped)
	}
	if snap.Failures != 1 {
		t.Errorf("failures = %d, want 1", snap.Failures)
	}
}

func TestCollector_MatchRate(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)

	if got := c.Snapshot().MatchRate; got != 0 {
		t.Errorf("match rate with no commands = %v, want 0", got)
	}

	c.CommandMatched("play_music", time.Millisecond)
	c.CommandMatched("next_track", time.Millisecond)
	c.CommandMatched("volume_up", time.Millisecond)
	c.CommandUnmatched()

	if got := c.Snapshot().MatchRate; got != 75 {
		t.Errorf("match rate = %v, want 75", got)
	}
}

func TestCollector_PatternsSortedByCount(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)

	c.CommandMatched("volume_up", 2*time.Millisecond)
	c.CommandMatched("play_music", 10*time.Millisecond)
	c.CommandMatched("play_music", 20*time.Millisecond)
	c.CommandMatched("stop_music", 4*time.Millisecond)

	rows := c.Snapshot().Patterns
	if len(rows) != 3 {
		t.Fatalf("patterns = %d rows, want 3", len(rows))
	}
	if rows[0].Pattern != "play_music" || rows[0].Count != 2 {
		t.Errorf("rows[0] = %+v, want play_music count 2", rows[0])
	}
	if rows[0].AvgExecute.Std() != 15*time.Millisecond {
		t.Errorf("avg execute = %v, want 15ms", rows[0].AvgExecute.Std())
	}
	// Equal counts break ties alphabetically.
	if rows[1].Pattern != "stop_music" || rows[2].Pattern != "volume_up" {
		t.Errorf("tie order = [%s %s], want [stop_music volume_up]", rows[1].Pattern, rows[2].Pattern)
	}
}

func TestCollector_LatencySummary(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)

	for i := 1; i <= 100; i++ {
		c.RecordInference(time.Duration(i) * time.Millisecond)
	}

	s := c.Snapshot().Inference
	if s.Min.Std() != time.Millisecond {
		t.Errorf("min = %v, want 1ms", s.Min.Std())
	}
	if s.Max.Std() != 100*time.Millisecond {
		t.Errorf("max = %v, want 100ms", s.Max.Std())
	}
	if s.Avg.Std() != 50500*time.Microsecond {
		t.Errorf("avg = %v, want 50.5ms", s.Avg.Std())
	}
	if s.P50.Std() != 50*time.Millisecond {
		t.Errorf("p50 = %v, want 50ms", s.P50.Std())
	}
	if s.P95.Std() != 95*time.Millisecond {
		t.Errorf("p95 = %v, want 95ms", s.P95.Std())
	}
}

func TestCollector_LatencyWindowBounded(t *testing.T) {
	t.Parallel()
	c := NewCollector(4)

	// Only the last four samples survive.
	for _, d := range []time.Duration{100, 1, 2, 3, 4} {
		c.RecordQueueWait(d * time.Millisecond)
	}

	s := c.Snapshot().QueueWait
	if s.Max.Std() != 4*time.Millisecond {
		t.Errorf("max = %v, want 4ms (oldest sample evicted)", s.Max.Std())
	}
	if s.Min.Std() != time.Millisecond {
		t.Errorf("min = %v, want 1ms", s.Min.Std())
	}
}

func TestCollector_EmptyLatencySummary(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)
	if s := c.Snapshot().EndToEnd; s != (LatencySummary{}) {
		t.Errorf("empty summary = %+v, want zero value", s)
	}
}

func TestSnapshot_JSONDurationsAreMilliseconds(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)
	c.RecordInference(1500 * time.Millisecond)
	c.CommandMatched("play_music", 10*time.Millisecond)

	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// The _ms field names promise milliseconds on the wire, not the raw
	// nanosecond count of time.Duration.
	var wire struct {
		Inference struct {
			Avg float64 `json:"avg_ms"`
		} `json:"inference"`
		Patterns []struct {
			AvgExecute float64 `json:"avg_execute_ms"`
		} `json:"patterns"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire.Inference.Avg != 1500 {
		t.Errorf("inference avg_ms = %v, want 1500", wire.Inference.Avg)
	}
	if len(wire.Patterns) != 1 || wire.Patterns[0].AvgExecute != 10 {
		t.Errorf("patterns = %+v, want one row with avg_execute_ms 10", wire.Patterns)
	}

	// Decoding back into the typed snapshot restores durations.
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if snap.Inference.Avg.Std() != 1500*time.Millisecond {
		t.Errorf("round-trip avg = %v, want 1.5s", snap.Inference.Avg.Std())
	}
}

func TestActivity_JSONE2EIsMilliseconds(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(Activity{Text: "play music", E2E: Millis(2500 * time.Microsecond)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire struct {
		E2E float64 `json:"e2e_ms"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire.E2E != 2.5 {
		t.Errorf("e2e_ms = %v, want 2.5", wire.E2E)
	}
}

func TestCollector_RecentNewestFirst(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)

	texts := []string{"play music", "next song", "volume up"}
	for _, txt := range texts {
		c.RecordActivity(Activity{Time: time.Now(), Text: txt, Matched: true})
	}

	got := c.Recent(2)
	if len(got) != 2 {
		t.Fatalf("recent = %d entries, want 2", len(got))
	}
	if got[0].Text != "volume up" || got[1].Text != "next song" {
		t.Errorf("order = [%q %q], want newest first", got[0].Text, got[1].Text)
	}

	// Zero limit returns everything recorded.
	if got := c.Recent(0); len(got) != 3 {
		t.Errorf("Recent(0) = %d entries, want 3", len(got))
	}
}

func TestCollector_RecentRingWraps(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)

	// Overfill the 50-entry ring.
	for i := 0; i < 60; i++ {
		c.RecordActivity(Activity{Time: time.Now(), Text: string(rune('a' + i%26))})
	}

	got := c.Recent(0)
	if len(got) != recentLimit {
		t.Fatalf("recent = %d entries, want %d", len(got), recentLimit)
	}
	// Entry 59 was recorded last: 59%26 = 7 → 'h'.
	if got[0].Text != "h" {
		t.Errorf("newest = %q, want h", got[0].Text)
	}
}

func TestCollector_ConcurrentUpdates(t *testing.T) {
	t.Parallel()
	c := NewCollector(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.FrameIngested()
				c.RecordInference(time.Millisecond)
				c.CommandMatched("play_music", time.Microsecond)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.FramesIngested != 8000 {
		t.Errorf("frames ingested = %d, want 8000", snap.FramesIngested)
	}
	if snap.Matched != 8000 {
		t.Errorf("matched = %d, want 8000", snap.Matched)
	}
}
