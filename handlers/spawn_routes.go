// handlers/spawn_routes.go
package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"dogpark-economy/middleware"
	"dogpark-economy/models"
	"dogpark-economy/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func setupSpawnRoutes(app *fiber.App, user, admin fiber.Router, userCtx fiber.Handler, svc Services, limiter *middleware.RateLimiter, log *zap.Logger) {
	// 🔓 map reads need no user context
	app.Get("/spawns/nearby", func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return badRequest(c, errors.New("lat and lng are required numbers"))
		}
		radius := 0.0
		if r := c.Query("radius"); r != "" {
			var err error
			if radius, err = strconv.ParseFloat(r, 64); err != nil {
				return badRequest(c, fmt.Errorf("invalid radius: %w", err))
			}
		}

		spawns, err := svc.Spawns.Nearby(c.UserContext(), lat, lng, radius)
		if errors.Is(err, services.ErrInvalidLocation) {
			return badRequest(c, err)
		}
		if err != nil {
			return serverError(c, log, "failed to list nearby spawns", err)
		}
		return c.JSON(fiber.Map{"spawns": spawns, "count": len(spawns)})
	})

	// 🔐 claiming is per user and rate limited
	claimChain := []fiber.Handler{userCtx}
	if limiter != nil {
		claimChain = append(claimChain, limiter.Handler())
	}
	claimChain = append(claimChain, func(c *fiber.Ctx) error {
		type Req struct {
			DogID *string `json:"dog_id" validate:"omitempty,max=64"`
		}
		var req Req
		if len(c.Body()) > 0 {
			if err := parseBody(c, &req); err != nil {
				return badRequest(c, err)
			}
		}

		res, err := svc.Claims.Claim(c.UserContext(), services.ClaimRequest{
			UserID:  middleware.UserID(c),
			DogID:   req.DogID,
			SpawnID: c.Params("id"),
		})
		if err != nil {
			return serverError(c, log, "claim failed", err)
		}
		return c.Status(statusFor(res.Code)).JSON(res)
	})
	app.Post("/spawns/:id/claim", claimChain...)

	user.Get("/balance", func(c *fiber.Ctx) error {
		b, err := svc.Ledger.Balance(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return serverError(c, log, "failed to get balance", err)
		}
		return c.JSON(b)
	})

	user.Get("/ledger", func(c *fiber.Ctx) error {
		page, err := svc.Ledger.History(c.UserContext(), middleware.UserID(c), c.QueryInt("page", 1), c.QueryInt("size", 20))
		if err != nil {
			return serverError(c, log, "failed to get ledger", err)
		}
		return c.JSON(page)
	})

	user.Post("/spend", func(c *fiber.Ctx) error {
		type Req struct {
			Amount int64  `json:"amount" validate:"required,min=1"`
			Reason string `json:"reason" validate:"required,max=255"`
			SKU    string `json:"sku" validate:"omitempty,max=64"`
		}
		var req Req
		if err := parseBody(c, &req); err != nil {
			return badRequest(c, err)
		}
		meta := models.LedgerMetadata{}
		if req.SKU != "" {
			meta.Extra = map[string]string{"sku": req.SKU}
		}

		entry, err := svc.Ledger.Spend(c.UserContext(), middleware.UserID(c), req.Amount, req.Reason, meta)
		if errors.Is(err, services.ErrInsufficientFunds) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			return serverError(c, log, "spend failed", err)
		}
		return c.JSON(entry)
	})

	admin.Post("/spawns/generate", func(c *fiber.Ctx) error {
		report := svc.Spawns.GenerateSpawns(c.UserContext())
		log.Info("🛠️ manual spawn generation", zap.String("admin_id", middleware.UserID(c)))
		return c.JSON(report)
	})
}
