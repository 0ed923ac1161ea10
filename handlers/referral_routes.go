// handlers/referral_routes.go
package handlers

import (
	"errors"
	"strings"

	"dogpark-economy/middleware"
	"dogpark-economy/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func setupReferralRoutes(app *fiber.App, user fiber.Router, userCtx fiber.Handler, svc Services, log *zap.Logger) {
	user.Post("/referral-code", func(c *fiber.Ctx) error {
		code, err := svc.Referrals.CreateCode(c.UserContext(), middleware.UserID(c))
		if errors.Is(err, services.ErrCodeGenerationExhausted) {
			log.Error("❌ referral code generation exhausted", zap.String("user_id", middleware.UserID(c)))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "could not generate a referral code, retry later"})
		}
		if err != nil {
			return serverError(c, log, "failed to create referral code", err)
		}
		return c.JSON(code)
	})

	// 🔓 anyone holding a link may preview it; the viewer is optional
	app.Get("/referral-codes/:code", func(c *fiber.Ctx) error {
		viewer := strings.TrimSpace(c.Get("X-User-ID"))
		res, err := svc.Referrals.ValidateCode(c.UserContext(), c.Params("code"), viewer)
		if err != nil {
			return serverError(c, log, "failed to validate referral code", err)
		}
		return c.JSON(res)
	})

	app.Post("/referrals/redeem", userCtx, func(c *fiber.Ctx) error {
		type Req struct {
			Code string `json:"code" validate:"required,min=4,max=16"`
		}
		var req Req
		if err := parseBody(c, &req); err != nil {
			return badRequest(c, err)
		}

		res, err := svc.Referrals.Redeem(c.UserContext(), middleware.UserID(c), req.Code)
		if err != nil {
			return serverError(c, log, "referral redemption failed", err)
		}
		return c.Status(statusFor(res.Code)).JSON(res)
	})
}
