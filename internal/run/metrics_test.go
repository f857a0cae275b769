package run

import "testing"

// ~1 km of samples heading north at a steady 5:00 min/km.
func kmTrace(startMs int64) Trace {
	trace := Trace{}
	for i := 0; i <= 10; i++ {
		trace = append(trace, GpsSample{
			Lat:         37.7749 + float64(i)*0.0009, // ~100 m per step
			Lng:         -122.4194,
			TimestampMs: startMs + int64(i)*30_000, // 30 s per 100 m
		})
	}
	return trace
}

func TestDistanceEmptyAndSingle(t *testing.T) {
	if d := Distance(nil); d != 0 {
		t.Fatalf("nil trace distance: %v", d)
	}
	if d := Distance(Trace{{Lat: 1, Lng: 1}}); d != 0 {
		t.Fatalf("single sample distance: %v", d)
	}
}

func TestStationaryTrace(t *testing.T) {
	trace := Trace{
		{Lat: 37.7749, Lng: -122.4194, TimestampMs: 1000},
		{Lat: 37.7749, Lng: -122.4194, TimestampMs: 1000},
	}
	if d := Distance(trace); d != 0 {
		t.Fatalf("distance: %v", d)
	}
	if p := Pace(trace); p != NoPace {
		t.Fatalf("pace: %q", p)
	}
	if d := Duration(trace); d != 0 {
		t.Fatalf("duration: %v", d)
	}
}

func TestDistanceAndDuration(t *testing.T) {
	trace := kmTrace(0)
	d := Distance(trace)
	if d < 950 || d < 0 || d > 1050 {
		t.Fatalf("unexpected distance: %v", d)
	}
	if got := Duration(trace); got != 300 {
		t.Fatalf("duration: %v", got)
	}
}

func TestPaceSteadyRun(t *testing.T) {
	// ~1 km in 5 minutes -> pace close to 5:00
	p := Pace(kmTrace(0))
	if p != "5:00" && p != "4:59" && p != "5:01" {
		t.Fatalf("unexpected pace: %q", p)
	}
}

func TestPaceGuards(t *testing.T) {
	// under 10 m of movement
	short := Trace{
		{Lat: 37.7749, Lng: -122.4194, TimestampMs: 0},
		{Lat: 37.77494, Lng: -122.4194, TimestampMs: 60_000},
	}
	if p := Pace(short); p != NoPace {
		t.Fatalf("short distance pace: %q", p)
	}

	// under 6 s of elapsed time
	fast := Trace{
		{Lat: 37.7749, Lng: -122.4194, TimestampMs: 0},
		{Lat: 37.7759, Lng: -122.4194, TimestampMs: 3000},
	}
	if p := Pace(fast); p != NoPace {
		t.Fatalf("short duration pace: %q", p)
	}
}

func TestPaceClampsVerySlow(t *testing.T) {
	// ~111 m in 2 hours
	crawl := Trace{
		{Lat: 37.7749, Lng: -122.4194, TimestampMs: 0},
		{Lat: 37.7759, Lng: -122.4194, TimestampMs: 2 * 60 * 60 * 1000},
	}
	if p := Pace(crawl); p != VerySlowPace {
		t.Fatalf("expected clamp, got %q", p)
	}
}

func TestMetricsIdempotent(t *testing.T) {
	trace := kmTrace(42_000)
	first := Compute(trace)
	second := Compute(trace)
	if first != second {
		t.Fatalf("metrics drifted between calls: %+v vs %+v", first, second)
	}
}

func TestMaxSpeedKmh(t *testing.T) {
	// 100 m segments at 30 s each -> 12 km/h
	kmh, ok := MaxSpeedKmh(kmTrace(0))
	if !ok {
		t.Fatalf("expected speed data")
	}
	if kmh < 11 || kmh > 13 {
		t.Fatalf("unexpected max speed: %v", kmh)
	}
}

func TestMaxSpeedKmhNoData(t *testing.T) {
	if _, ok := MaxSpeedKmh(Trace{{Lat: 1, Lng: 1, TimestampMs: 0}}); ok {
		t.Fatalf("single sample should have no speed data")
	}

	same := Trace{
		{Lat: 37.7749, Lng: -122.4194, TimestampMs: 5000},
		{Lat: 37.7759, Lng: -122.4194, TimestampMs: 5000},
	}
	if _, ok := MaxSpeedKmh(same); ok {
		t.Fatalf("zero elapsed time should have no speed data")
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatDistance(850); got != "850 m" {
		t.Fatalf("format distance: %q", got)
	}
	if got := FormatDistance(5020); got != "5.02 km" {
		t.Fatalf("format distance: %q", got)
	}
	if got := FormatDuration(1215); got != "20:15" {
		t.Fatalf("format duration: %q", got)
	}
}
