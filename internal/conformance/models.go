package conformance

// CheckState is the tri-state outcome of one verification check, so the
// client can render progressive feedback while checks run in order.
type CheckState string

const (
	StatePending CheckState = "pending"
	StatePass    CheckState = "pass"
	StateFail    CheckState = "fail"
)

// Check names, in evaluation order.
const (
	CheckRouteMatch      = "route_match"
	CheckStartProximity  = "start_proximity"
	CheckFinishProximity = "finish_proximity"
	CheckMaxSpeed        = "max_speed"
)

// CheckResult is one check's verdict plus a human-readable annotation
// ("3.2 m from start", "40.1 km/h max").
type CheckResult struct {
	Name   string     `json:"name"`
	State  CheckState `json:"state"`
	Detail string     `json:"detail,omitempty"`
}

// Report is the full conformance verdict for one trace against one route.
// Passed is true only when all four checks pass.
type Report struct {
	Checks []CheckResult `json:"checks"`
	Passed bool          `json:"passed"`
}

// Check returns the result for a named check, or a pending placeholder.
func (r Report) Check(name string) CheckResult {
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	return CheckResult{Name: name, State: StatePending}
}

// FailedChecks lists the names of every failed check.
func (r Report) FailedChecks() []string {
	var failed []string
	for _, c := range r.Checks {
		if c.State == StateFail {
			failed = append(failed, c.Name)
		}
	}
	return failed
}
