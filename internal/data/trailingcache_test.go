package data

import (
	"testing"
	"time"
)

func mkSnapshot(base time.Time, offset time.Duration, field string, value float64) Snapshot {
	s := NewSnapshot(base.Add(offset))
	s.Set(field, value, true)
	return s
}

func TestTrailingCachePushRejectsTooSoon(t *testing.T) {
	base := time.Unix(0, 0)
	c := NewTrailingCache(10, 10*time.Second)

	if !c.Push(mkSnapshot(base, 0, "P1", 1.0)) {
		t.Fatalf("expected first push accepted")
	}
	if c.Push(mkSnapshot(base, 5*time.Second, "P1", 1.1)) {
		t.Fatalf("expected push before interval elapsed to be rejected")
	}
	if !c.Push(mkSnapshot(base, 10*time.Second, "P1", 1.2)) {
		t.Fatalf("expected push exactly at interval to be accepted")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 accepted entries, got %d", c.Len())
	}
}

func TestTrailingCacheEvictsOldestBeyondCapacity(t *testing.T) {
	base := time.Unix(0, 0)
	c := NewTrailingCache(2, time.Second)

	for i := 0; i < 5; i++ {
		c.Push(mkSnapshot(base, time.Duration(i)*time.Second, "P1", float64(i)))
	}
	if c.Len() != 2 {
		t.Fatalf("expected ring capped at 2, got %d", c.Len())
	}
}

func TestTrailingCacheClearRearms(t *testing.T) {
	base := time.Unix(0, 0)
	c := NewTrailingCache(10, 10*time.Second)
	c.Push(mkSnapshot(base, 0, "P1", 1.0))

	c.Clear(base.Add(100 * time.Second))
	if c.Len() != 0 {
		t.Fatalf("expected cleared cache to be empty")
	}
	if c.Push(mkSnapshot(base, 105*time.Second, "P1", 2.0)) {
		t.Fatalf("expected push before re-armed nextScheduled to be rejected")
	}
	if !c.Push(mkSnapshot(base, 110*time.Second, "P1", 2.0)) {
		t.Fatalf("expected push at/after re-armed nextScheduled to be accepted")
	}
}

func TestTrailingCacheLatest(t *testing.T) {
	c := NewTrailingCache(10, time.Second)
	if _, ok := c.Latest(); ok {
		t.Fatalf("expected no latest entry for an empty cache")
	}
	base := time.Unix(0, 0)
	c.Push(mkSnapshot(base, 0, "P1", 1.0))
	c.Push(mkSnapshot(base, time.Second, "P1", 2.0))
	latest, ok := c.Latest()
	if !ok {
		t.Fatalf("expected a latest entry")
	}
	v, _ := latest.Get("P1")
	if v != 2.0 {
		t.Fatalf("expected latest P1=2.0, got %v", v)
	}
}

func TestTrailingRatesDegenerateReturnsNone(t *testing.T) {
	c := NewTrailingCache(10, time.Second)
	rates := c.TrailingRates()
	if len(rates) != 0 {
		t.Fatalf("expected no fields with an empty cache, got %v", rates)
	}

	base := time.Unix(0, 0)
	c.Push(mkSnapshot(base, 0, "P1", 1.0))
	rates = c.TrailingRates()
	if _, ok := rates["P1"].Get(); ok {
		t.Fatalf("expected None with only one sample")
	}
}

func TestTrailingRatesComputesUnitsPerMinute(t *testing.T) {
	base := time.Unix(0, 0)
	c := NewTrailingCache(10, time.Second)
	c.Push(mkSnapshot(base, 0, "P1", 0.0))
	c.Push(mkSnapshot(base, 10*time.Second, "P1", 1.0))

	rates := c.TrailingRates()
	got, ok := rates["P1"].Get()
	if !ok {
		t.Fatalf("expected a valid rate")
	}
	// delta=1.0 over 10s => 1.0*60/10 = 6.0 units/min
	if got != 6.0 {
		t.Fatalf("expected 6.0 units/min, got %v", got)
	}
}

func TestTrailingRatesDiscardsDtOutlierPairs(t *testing.T) {
	// Tolerance is centered on the most recent interval (spec §3: "Δt1 is
	// the most recent interval"); an earlier stalled gap is the outlier
	// here, not the resumed-cadence pair.
	base := time.Unix(0, 0)
	c := NewTrailingCache(10, time.Second)
	c.Push(mkSnapshot(base, 0, "P1", 0.0))
	c.Push(mkSnapshot(base, 100*time.Second, "P1", 1.0))  // stalled gap, dt=100s
	c.Push(mkSnapshot(base, 110*time.Second, "P1", 2.0))  // resumed cadence, dt=10s (most recent)

	rates := c.TrailingRates()
	got, ok := rates["P1"].Get()
	if !ok {
		t.Fatalf("expected a valid rate surviving the dt filter")
	}
	if got != 6.0 {
		t.Fatalf("expected the stalled-gap pair discarded, leaving 6.0, got %v", got)
	}
}

func TestTrailingMeanAndMax(t *testing.T) {
	base := time.Unix(0, 0)
	c := NewTrailingCache(10, time.Second)
	for i, v := range []float64{1, 2, 3, 100} {
		c.Push(mkSnapshot(base, time.Duration(i)*time.Second, "W1", v))
	}
	c.SetFieldThreshold("W1", 30) // raw mean is 26.5; this keeps 1,2,3 and drops the 100 outlier

	mean := c.TrailingMean("W1", 4)
	got, ok := mean.Get()
	if !ok {
		t.Fatalf("expected a mean")
	}
	// raw mean = 26.5, the threshold of 30 set above drops the 100 outlier, leaving mean(1,2,3)=2
	if got != 2 {
		t.Fatalf("expected outlier-filtered mean 2, got %v", got)
	}

	max := c.TrailingMax("W1", 4)
	gotMax, ok := max.Get()
	if !ok || gotMax != 100 {
		t.Fatalf("expected raw max 100 (unfiltered), got %v ok=%v", gotMax, ok)
	}
}
