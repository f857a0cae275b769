package run

import (
	"fmt"
	"math"

	"github.com/dourian/RaceFi-sub000/internal/shared/geo"
)

// NoPace is returned while a trace is too short for a stable pace figure.
const NoPace = "--:--"

// VerySlowPace caps the displayed pace; anything above 30 min/km is
// numerically unstable at walking-pause speeds.
const VerySlowPace = "30:00+"

const (
	minPaceDistanceKm  = 0.01 // 10 m
	minPaceDurationMin = 0.1  // 6 s
	maxPaceMinPerKm    = 30
)

// Distance returns the total trace length in meters: the sum of pairwise
// great-circle distances between consecutive samples.
func Distance(trace Trace) float64 {
	if len(trace) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(trace); i++ {
		prev, curr := trace[i-1], trace[i]
		total += geo.HaversineM(prev.Lat, prev.Lng, curr.Lat, curr.Lng)
	}
	return total
}

// Duration returns the elapsed seconds between the first and last sample.
func Duration(trace Trace) int64 {
	if len(trace) < 2 {
		return 0
	}
	ms := trace[len(trace)-1].TimestampMs - trace[0].TimestampMs
	if ms < 0 {
		return 0
	}
	return ms / 1000
}

// Pace returns the average pace over the whole trace formatted M:SS per km.
// Traces under 10 m or 6 s yield NoPace, and paces above 30 min/km clamp to
// VerySlowPace.
func Pace(trace Trace) string {
	if len(trace) < 2 {
		return NoPace
	}

	distanceKm := Distance(trace) / 1000
	durationMin := float64(trace[len(trace)-1].TimestampMs-trace[0].TimestampMs) / (1000 * 60)

	if distanceKm < minPaceDistanceKm || durationMin < minPaceDurationMin {
		return NoPace
	}

	minPerKm := durationMin / distanceKm
	if minPerKm < 0 {
		return NoPace
	}

	minutes := int(math.Floor(minPerKm))
	seconds := int(math.Round((minPerKm - float64(minutes)) * 60))
	if seconds == 60 {
		minutes++
		seconds = 0
	}
	if minutes > maxPaceMinPerKm {
		return VerySlowPace
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// MaxSpeedKmh returns the largest instantaneous speed implied by consecutive
// samples. The second value is false when the trace carries no usable speed
// data (fewer than two samples or no forward time progression).
func MaxSpeedKmh(trace Trace) (float64, bool) {
	if len(trace) < 2 {
		return 0, false
	}
	maxKmh := 0.0
	measured := false
	for i := 1; i < len(trace); i++ {
		prev, curr := trace[i-1], trace[i]
		dtSec := float64(curr.TimestampMs-prev.TimestampMs) / 1000
		if dtSec <= 0 {
			continue
		}
		measured = true
		mps := geo.HaversineM(prev.Lat, prev.Lng, curr.Lat, curr.Lng) / dtSec
		if kmh := mps * 3.6; kmh > maxKmh {
			maxKmh = kmh
		}
	}
	return maxKmh, measured
}

// Compute derives all run metrics from a trace in one pass.
func Compute(trace Trace) Metrics {
	return Metrics{
		DistanceM:   Distance(trace),
		DurationSec: Duration(trace),
		Pace:        Pace(trace),
	}
}

// FormatDistance renders meters as "850 m" or "5.02 km".
func FormatDistance(meters float64) string {
	if meters >= 1000 {
		return fmt.Sprintf("%.2f km", meters/1000)
	}
	return fmt.Sprintf("%.0f m", meters)
}

// FormatDuration renders seconds as M:SS.
func FormatDuration(seconds int64) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
