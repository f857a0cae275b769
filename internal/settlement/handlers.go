package settlement

import (
	"errors"

	"github.com/dourian/RaceFi-sub000/internal/challenge"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/:id", authMiddleware, func(c *fiber.Ctx) error {
		result, err := svc.Settle(c.Context(), c.Params("id"))
		if err != nil {
			switch {
			case errors.Is(err, challenge.ErrNotFound):
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			case errors.Is(err, ErrChallengeNotExpired):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return c.JSON(result)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		results, err := svc.SettleDue(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"settled": results})
	})
}
