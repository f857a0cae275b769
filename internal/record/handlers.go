package record

import (
	"errors"

	"github.com/dourian/RaceFi-sub000/internal/challenge"
	"github.com/dourian/RaceFi-sub000/internal/run"

	"github.com/gofiber/fiber/v2"
)

type appendRequest struct {
	Samples []run.GpsSample `json:"samples"`
}

func RegisterRoutes(r fiber.Router, rec *Recorder, authMiddleware fiber.Handler) {
	r.Post("/:id/start", authMiddleware, func(c *fiber.Ctx) error {
		status, err := rec.Start(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return recordError(err)
		}
		return c.JSON(status)
	})

	r.Post("/:id/samples", authMiddleware, func(c *fiber.Ctx) error {
		var req appendRequest
		if err := c.BodyParser(&req); err != nil || len(req.Samples) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "samples required")
		}
		metrics, err := rec.Append(userID(c), c.Params("id"), req.Samples)
		if err != nil {
			return recordError(err)
		}
		return c.JSON(metrics)
	})

	r.Get("/:id/live", authMiddleware, func(c *fiber.Ctx) error {
		metrics, err := rec.Live(userID(c), c.Params("id"))
		if err != nil {
			return recordError(err)
		}
		return c.JSON(metrics)
	})

	r.Post("/:id/finish", authMiddleware, func(c *fiber.Ctx) error {
		status, err := rec.Finish(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			var conf *challenge.ConformanceError
			if errors.As(err, &conf) {
				return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
					"error":  conf.Error(),
					"checks": conf.Report.Checks,
				})
			}
			return recordError(err)
		}
		return c.JSON(status)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		rec.Abandon(userID(c), c.Params("id"))
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func recordError(err error) error {
	switch {
	case errors.Is(err, ErrNoActiveRecording):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, challenge.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, challenge.ErrNotJoined),
		errors.Is(err, challenge.ErrRunFinished),
		errors.Is(err, challenge.ErrChallengeEnded):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
