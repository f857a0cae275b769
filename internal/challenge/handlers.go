package challenge

import (
	"errors"
	"time"

	"github.com/dourian/RaceFi-sub000/internal/prize"
	"github.com/dourian/RaceFi-sub000/internal/run"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type createChallengeRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	EncodedPath     string          `json:"encoded_path"`
	Stake           decimal.Decimal `json:"stake"`
	MaxParticipants int             `json:"max_participants"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
}

type completeRunRequest struct {
	Trace run.Trace `json:"trace"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		challenges, err := svc.ListChallenges(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"challenges": challenges})
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		ch, err := svc.GetChallenge(c.Context(), c.Params("id"))
		if err != nil {
			return statusError(err)
		}
		pool, _ := prize.Pool(ch.Stake, ch.ParticipantCount)
		maxPool, _ := prize.MaxPotentialPool(ch.Stake, ch.MaxParticipants)
		return c.JSON(fiber.Map{
			"challenge":       ch,
			"prize_pool":      pool,
			"max_prize_pool":  maxPool,
			"remaining_slots": prize.RemainingSlots(ch.MaxParticipants, ch.ParticipantCount),
			"percent_full":    prize.PercentFull(ch.MaxParticipants, ch.ParticipantCount),
		})
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req createChallengeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		ch, err := svc.CreateChallenge(c.Context(), Challenge{
			Name:            req.Name,
			Description:     req.Description,
			EncodedPath:     req.EncodedPath,
			Stake:           req.Stake,
			MaxParticipants: req.MaxParticipants,
			StartTime:       req.StartTime,
			EndTime:         req.EndTime,
			CreatedBy:       userID(c),
		})
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(ch)
	})

	r.Post("/:id/join", authMiddleware, func(c *fiber.Ctx) error {
		status, err := svc.Join(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return statusError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(status)
	})

	r.Post("/:id/start", authMiddleware, func(c *fiber.Ctx) error {
		status, err := svc.StartRun(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return statusError(err)
		}
		return c.JSON(status)
	})

	r.Post("/:id/complete", authMiddleware, func(c *fiber.Ctx) error {
		var req completeRunRequest
		if err := c.BodyParser(&req); err != nil || len(req.Trace) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "trace required")
		}
		status, err := svc.CompleteRun(c.Context(), userID(c), c.Params("id"), req.Trace)
		if err != nil {
			var conf *ConformanceError
			if errors.As(err, &conf) {
				return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
					"error":  conf.Error(),
					"checks": conf.Report.Checks,
				})
			}
			return statusError(err)
		}
		return c.JSON(status)
	})

	r.Get("/:id/status", authMiddleware, func(c *fiber.Ctx) error {
		status, err := svc.GetStatus(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(status)
	})

	r.Delete("/:id/status", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Reset(c.Context(), userID(c), c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/status", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.ResetAll(c.Context(), userID(c)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotJoined),
		errors.Is(err, ErrRunFinished),
		errors.Is(err, ErrChallengeEnded):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrAlreadyJoined),
		errors.Is(err, ErrChallengeFull),
		errors.Is(err, ErrStakeRejected),
		errors.Is(err, prize.ErrInvalidStake):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
