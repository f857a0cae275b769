package appclock

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes exposes the demo/debug time controls. These mutate the
// shared clock, so they sit behind the auth middleware like every other
// mutating route.
func RegisterRoutes(r fiber.Router, clock *Clock, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"now": clock.Now()})
	})

	r.Post("/advance", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Days    int   `json:"days"`
			Hours   int   `json:"hours"`
			Seconds int64 `json:"seconds"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		d := time.Duration(body.Days)*24*time.Hour +
			time.Duration(body.Hours)*time.Hour +
			time.Duration(body.Seconds)*time.Second
		if d <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "nothing to advance")
		}
		clock.Advance(d)
		return c.JSON(fiber.Map{"now": clock.Now()})
	})

	r.Post("/set", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Time time.Time `json:"time"`
		}
		if err := c.BodyParser(&body); err != nil || body.Time.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "time required")
		}
		clock.SetTime(body.Time)
		return c.JSON(fiber.Map{"now": clock.Now()})
	})

	r.Post("/reset", authMiddleware, func(c *fiber.Ctx) error {
		clock.ResetToRealTime()
		return c.JSON(fiber.Map{"now": clock.Now()})
	})
}
