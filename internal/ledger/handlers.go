package ledger

import (
	"errors"
	"log"
	"strconv"

	"github.com/dourian/RaceFi-sub000/internal/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

func RegisterRoutes(r fiber.Router, svc *Service, payer *wallet.Client, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		balance, err := svc.Balance(c.Context(), userID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(balance)
	})

	r.Get("/transactions", authMiddleware, func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "10"))
		txs, err := svc.Transactions(c.Context(), userID(c), limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(txs)
	})

	r.Get("/challenges/:id/transactions", authMiddleware, func(c *fiber.Ctx) error {
		txs, err := svc.ChallengeTransactions(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(txs)
	})

	r.Post("/cashout", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Amount *decimal.Decimal `json:"amount"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}

		user := userID(c)
		tx, err := svc.CashOut(c.Context(), user, body.Amount)
		switch {
		case errors.Is(err, ErrNothingToCashOut), errors.Is(err, ErrInvalidAmount):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, ErrInsufficientBalance):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		// Hand the amount to the staking subsystem; the ledger entry stands
		// either way and a failed payout is retried out of band.
		if payer != nil {
			if err := payer.Payout(c.Context(), user, tx.Amount); err != nil {
				log.Printf("payout trigger failed for %s: %v", user, err)
			}
		}
		return c.Status(fiber.StatusCreated).JSON(tx)
	})
}

func userID(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_id").(string); ok {
		return v
	}
	return ""
}
