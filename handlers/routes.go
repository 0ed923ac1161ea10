// handlers/routes.go
package handlers

import (
	"fmt"

	"dogpark-economy/middleware"
	"dogpark-economy/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Services bundles everything the HTTP surface calls into.
type Services struct {
	Spawns        *services.SpawnService
	Claims        *services.ClaimService
	Ledger        *services.LedgerService
	Progression   *services.ProgressionService
	Achievements  *services.AchievementService
	Referrals     *services.ReferralService
	Notifications *services.NotificationService
}

// Options tunes the HTTP surface.
type Options struct {
	ClaimLimiter *middleware.RateLimiter
	Clock        clockwork.Clock
	Log          *zap.Logger
}

var validate = validator.New()

// SetupRoutes registers every economy route on app. The caller is
// responsible for gateway auth.
//
// Routes under /user and /s/admin require the gateway's user context.
func SetupRoutes(app *fiber.App, svc Services, opts Options) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	userCtx := middleware.UserContextMiddleware(log)

	user := app.Group("/user", userCtx)
	admin := app.Group("/s/admin", userCtx, middleware.RequireRole("admin"))

	setupSpawnRoutes(app, user, admin, userCtx, svc, opts.ClaimLimiter, log)
	setupProgressionRoutes(user, admin, svc, log)
	setupReferralRoutes(app, user, userCtx, svc, log)
	setupNotificationRoutes(user, svc.Notifications, opts.Clock, log)
}

// parseBody decodes and validates the JSON body into dst.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func serverError(c *fiber.Ctx, log *zap.Logger, msg string, err error) error {
	log.Error("❌ "+msg, zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

// statusFor maps a business outcome to its HTTP status.
func statusFor(code services.Code) int {
	switch code {
	case services.CodeOK:
		return fiber.StatusOK
	case services.CodeNotFound:
		return fiber.StatusNotFound
	case services.CodeAlreadyCollected, services.CodeDuplicate:
		return fiber.StatusConflict
	case services.CodeExpired, services.CodeInactive, services.CodeExhausted:
		return fiber.StatusGone
	default:
		return fiber.StatusBadRequest
	}
}
