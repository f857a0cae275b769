package appclock

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestRealTimeByDefault(t *testing.T) {
	clock := New()
	now := clock.Now()
	if time.Since(now) > time.Second {
		t.Fatalf("expected wall clock time, got %v", now)
	}
}

func TestAdvanceAndSet(t *testing.T) {
	clock := New()
	before := time.Now()
	clock.Advance(48 * time.Hour)

	now := clock.Now()
	if now.Before(before.Add(47 * time.Hour)) {
		t.Fatalf("advance did not move time: %v", now)
	}

	// simulated time stands still until moved again
	if !clock.Now().Equal(now) {
		t.Fatalf("simulated time should not tick")
	}

	pinned := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock.SetTime(pinned)
	if !clock.Now().Equal(pinned) {
		t.Fatalf("set time: %v", clock.Now())
	}

	clock.AdvanceDays(2)
	clock.AdvanceHours(3)
	want := pinned.Add(51 * time.Hour)
	if !clock.Now().Equal(want) {
		t.Fatalf("advance days/hours: %v", clock.Now())
	}
}

func TestResetToRealTime(t *testing.T) {
	clock := New()
	clock.SetTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	clock.ResetToRealTime()
	if time.Since(clock.Now()) > time.Second {
		t.Fatalf("expected wall clock after reset: %v", clock.Now())
	}
}

func TestIsExpiredAndUntil(t *testing.T) {
	clock := New()
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	clock.SetTime(end.Add(-time.Hour))
	if clock.IsExpired(end) {
		t.Fatalf("not expired yet")
	}
	if got := clock.Until(end); got != time.Hour {
		t.Fatalf("until: %v", got)
	}

	clock.SetTime(end)
	if !clock.IsExpired(end) {
		t.Fatalf("now == endTime counts as expired")
	}
	if got := clock.Until(end); got != 0 {
		t.Fatalf("until at expiry: %v", got)
	}
}

func TestSubscribers(t *testing.T) {
	clock := New()
	var seen []time.Time
	id := clock.Subscribe(func(now time.Time) { seen = append(seen, now) })

	clock.SetTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	clock.Advance(time.Hour)
	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}

	clock.Unsubscribe(id)
	clock.Advance(time.Hour)
	if len(seen) != 2 {
		t.Fatalf("unsubscribed listener still notified")
	}
}

func TestClockHandlers(t *testing.T) {
	clock := New()
	app := fiber.New()
	RegisterRoutes(app.Group("/clock"), clock, func(c *fiber.Ctx) error { return c.Next() })

	body, _ := json.Marshal(fiber.Map{"days": 5})
	req := httptest.NewRequest(http.MethodPost, "/clock/advance", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("advance: %v %d", err, resp.StatusCode)
	}
	if time.Until(clock.Now()) < 4*24*time.Hour {
		t.Fatalf("clock did not advance: %v", clock.Now())
	}

	req = httptest.NewRequest(http.MethodPost, "/clock/advance", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty advance should 400, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodPost, "/clock/reset", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/clock/", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read: %d", resp.StatusCode)
	}
}
