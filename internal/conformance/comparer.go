package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/twpayne/go-polyline"
)

// RouteComparer decides whether two encoded polylines describe the same
// route shape. Implementations must treat any internal failure as an error,
// never a pass; the checker converts errors to failed checks.
type RouteComparer interface {
	Compare(ctx context.Context, candidate, reference string, thresholdRatio float64) (bool, error)
}

// HausdorffComparer compares polylines locally: the symmetric Hausdorff
// distance between the two point sets, normalized by the diagonal of their
// combined bounding box, must stay under the threshold ratio.
type HausdorffComparer struct{}

func (HausdorffComparer) Compare(_ context.Context, candidate, reference string, thresholdRatio float64) (bool, error) {
	a, err := decodePath(candidate)
	if err != nil {
		return false, fmt.Errorf("decode candidate: %w", err)
	}
	b, err := decodePath(reference)
	if err != nil {
		return false, fmt.Errorf("decode reference: %w", err)
	}

	diag := bboxDiagonal(a, b)
	if diag == 0 {
		return false, nil
	}
	return hausdorff(a, b)/diag < thresholdRatio, nil
}

// RemoteComparer delegates shape comparison to an external service. It is an
// untrusted dependency: timeouts and non-200 responses surface as errors.
type RemoteComparer struct {
	URL    string
	Client *http.Client
}

func NewRemoteComparer(url string, timeout time.Duration) *RemoteComparer {
	return &RemoteComparer{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (r *RemoteComparer) Compare(ctx context.Context, candidate, reference string, thresholdRatio float64) (bool, error) {
	if r.URL == "" {
		return false, errors.New("comparer url not configured")
	}

	body, err := json.Marshal(map[string]any{
		"polyline1":       candidate,
		"polyline2":       reference,
		"threshold_ratio": thresholdRatio,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("compare request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("compare service status %d", resp.StatusCode)
	}

	var match bool
	if err := json.NewDecoder(resp.Body).Decode(&match); err != nil {
		return false, fmt.Errorf("compare response: %w", err)
	}
	return match, nil
}

// EncodeTrace turns lat/lng pairs into a Google encoded polyline.
func EncodeTrace(coords [][]float64) string {
	return string(polyline.EncodeCoords(coords))
}

func decodePath(encoded string) ([][]float64, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	if len(coords) == 0 {
		return nil, errors.New("empty polyline")
	}
	return coords, nil
}

// hausdorff returns the symmetric Hausdorff distance between two point sets
// in raw coordinate space, matching how the comparison backend scores shape
// difference.
func hausdorff(a, b [][]float64) float64 {
	return math.Max(directedHausdorff(a, b), directedHausdorff(b, a))
}

func directedHausdorff(a, b [][]float64) float64 {
	worst := 0.0
	for _, p := range a {
		best := math.Inf(1)
		for _, q := range b {
			d := math.Hypot(p[0]-q[0], p[1]-q[1])
			if d < best {
				best = d
			}
		}
		if best > worst {
			worst = best
		}
	}
	return worst
}

func bboxDiagonal(sets ...[][]float64) float64 {
	minLat, minLng := math.Inf(1), math.Inf(1)
	maxLat, maxLng := math.Inf(-1), math.Inf(-1)
	for _, set := range sets {
		for _, p := range set {
			minLat = math.Min(minLat, p[0])
			maxLat = math.Max(maxLat, p[0])
			minLng = math.Min(minLng, p[1])
			maxLng = math.Max(maxLng, p[1])
		}
	}
	return math.Hypot(maxLat-minLat, maxLng-minLng)
}
