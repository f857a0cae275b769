package run

// GpsSample is one point collected during a recorded run. Timestamps are
// unix milliseconds and must be non-decreasing within a trace.
type GpsSample struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// Trace is the ordered GPS samples from one recorded run. It is never
// mutated after submission, only read.
type Trace []GpsSample

// Metrics are derived from a trace and recomputable at any time; they are
// never a source of truth independent of the trace.
type Metrics struct {
	DistanceM   float64 `json:"distance_m"`
	DurationSec int64   `json:"duration_sec"`
	Pace        string  `json:"pace"`
}
