package conformance

import (
	"context"
	"fmt"
	"log"

	"github.com/dourian/RaceFi-sub000/internal/run"
	"github.com/dourian/RaceFi-sub000/internal/shared/geo"
)

// Config carries the anti-cheat thresholds. Defaults mirror the comparison
// backend: 2% shape deviation, 10 m start/finish proximity, 25 km/h ceiling.
type Config struct {
	ThresholdRatio float64
	ProximityM     float64
	MaxSpeedKmh    float64
}

func DefaultConfig() Config {
	return Config{
		ThresholdRatio: 0.02,
		ProximityM:     10,
		MaxSpeedKmh:    25,
	}
}

// Checker decides whether a trace is an honest completion of a route.
// Verify is side-effect free and may be called repeatedly.
type Checker struct {
	cfg      Config
	comparer RouteComparer
}

func NewChecker(cfg Config, comparer RouteComparer) *Checker {
	if cfg.ThresholdRatio <= 0 {
		cfg.ThresholdRatio = DefaultConfig().ThresholdRatio
	}
	if cfg.ProximityM <= 0 {
		cfg.ProximityM = DefaultConfig().ProximityM
	}
	if cfg.MaxSpeedKmh <= 0 {
		cfg.MaxSpeedKmh = DefaultConfig().MaxSpeedKmh
	}
	if comparer == nil {
		comparer = HausdorffComparer{}
	}
	return &Checker{cfg: cfg, comparer: comparer}
}

// Verify runs the four checks in order against the route's encoded reference
// polyline. The overall verdict passes only when every check passes; a
// missing reference route or unreachable comparer fails the route check
// rather than skipping it.
func (c *Checker) Verify(ctx context.Context, trace run.Trace, referencePath string) Report {
	report := Report{
		Checks: []CheckResult{
			c.checkRouteMatch(ctx, trace, referencePath),
			c.checkStartProximity(trace, referencePath),
			c.checkFinishProximity(trace, referencePath),
			c.checkMaxSpeed(trace),
		},
	}

	report.Passed = true
	for _, check := range report.Checks {
		if check.State != StatePass {
			report.Passed = false
			break
		}
	}
	return report
}

func (c *Checker) checkRouteMatch(ctx context.Context, trace run.Trace, referencePath string) CheckResult {
	result := CheckResult{Name: CheckRouteMatch}
	if referencePath == "" {
		result.State = StateFail
		result.Detail = "challenge has no reference route"
		return result
	}
	if len(trace) < 2 {
		result.State = StateFail
		result.Detail = "trace too short to compare"
		return result
	}

	coords := make([][]float64, len(trace))
	for i, s := range trace {
		coords[i] = []float64{s.Lat, s.Lng}
	}

	match, err := c.comparer.Compare(ctx, EncodeTrace(coords), referencePath, c.cfg.ThresholdRatio)
	if err != nil {
		// Fail closed: an unreachable comparison backend is never a pass.
		log.Printf("route comparison unavailable: %v", err)
		result.State = StateFail
		result.Detail = "route comparison unavailable"
		return result
	}

	if match {
		result.State = StatePass
		result.Detail = fmt.Sprintf("shape deviation within %.0f%%", c.cfg.ThresholdRatio*100)
	} else {
		result.State = StateFail
		result.Detail = fmt.Sprintf("shape deviation exceeds %.0f%%", c.cfg.ThresholdRatio*100)
	}
	return result
}

func (c *Checker) checkStartProximity(trace run.Trace, referencePath string) CheckResult {
	return c.checkProximity(CheckStartProximity, "start", trace, referencePath, false)
}

func (c *Checker) checkFinishProximity(trace run.Trace, referencePath string) CheckResult {
	return c.checkProximity(CheckFinishProximity, "finish", trace, referencePath, true)
}

func (c *Checker) checkProximity(name, label string, trace run.Trace, referencePath string, last bool) CheckResult {
	result := CheckResult{Name: name}
	if referencePath == "" || len(trace) == 0 {
		result.State = StateFail
		result.Detail = "no reference point"
		return result
	}
	ref, err := decodePath(referencePath)
	if err != nil {
		result.State = StateFail
		result.Detail = "no reference point"
		return result
	}

	tracePoint := trace[0]
	refPoint := ref[0]
	if last {
		tracePoint = trace[len(trace)-1]
		refPoint = ref[len(ref)-1]
	}

	d := geo.HaversineM(tracePoint.Lat, tracePoint.Lng, refPoint[0], refPoint[1])
	result.Detail = fmt.Sprintf("%.1f m from %s", d, label)
	if d <= c.cfg.ProximityM {
		result.State = StatePass
	} else {
		result.State = StateFail
	}
	return result
}

func (c *Checker) checkMaxSpeed(trace run.Trace) CheckResult {
	result := CheckResult{Name: CheckMaxSpeed}
	kmh, ok := run.MaxSpeedKmh(trace)
	if !ok {
		// No speed data is not a pass.
		result.State = StateFail
		result.Detail = "no speed data"
		return result
	}

	result.Detail = fmt.Sprintf("%.1f km/h max", kmh)
	if kmh <= c.cfg.MaxSpeedKmh {
		result.State = StatePass
	} else {
		result.State = StateFail
	}
	return result
}
