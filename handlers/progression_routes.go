// handlers/progression_routes.go
package handlers

import (
	"errors"

	"dogpark-economy/middleware"
	"dogpark-economy/models"
	"dogpark-economy/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func setupProgressionRoutes(user, admin fiber.Router, svc Services, log *zap.Logger) {
	user.Get("/progress", func(c *fiber.Ctx) error {
		view, err := svc.Progression.Progress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return serverError(c, log, "failed to get progress", err)
		}
		return c.JSON(view)
	})

	user.Get("/progress/history", func(c *fiber.Ctx) error {
		history, err := svc.Ledger.History(c.UserContext(), middleware.UserID(c), c.QueryInt("page", 1), c.QueryInt("size", 20))
		if err != nil {
			return serverError(c, log, "failed to get history", err)
		}
		return c.JSON(history)
	})

	user.Get("/progress/badges", func(c *fiber.Ctx) error {
		badges, err := svc.Achievements.ListBadges(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return serverError(c, log, "failed to get badges", err)
		}
		return c.JSON(badges)
	})

	user.Get("/achievements", func(c *fiber.Ctx) error {
		views, err := svc.Achievements.ListAchievements(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return serverError(c, log, "failed to get achievements", err)
		}
		return c.JSON(views)
	})

	user.Post("/achievements/check", func(c *fiber.Ctx) error {
		type Req struct {
			Trigger string `json:"trigger" validate:"max=64"`
		}
		var req Req
		if len(c.Body()) > 0 {
			if err := parseBody(c, &req); err != nil {
				return badRequest(c, err)
			}
		}
		granted := svc.Achievements.CheckAchievements(c.UserContext(), middleware.UserID(c), req.Trigger)
		if granted == nil {
			granted = []services.GrantedAchievement{}
		}
		return c.JSON(fiber.Map{"granted": granted})
	})

	user.Post("/experience", func(c *fiber.Ctx) error {
		type Req struct {
			Action   string            `json:"action" validate:"required,max=64"`
			Metadata map[string]string `json:"metadata"`
		}
		var req Req
		if err := parseBody(c, &req); err != nil {
			return badRequest(c, err)
		}

		res, err := svc.Progression.ReportActivity(c.UserContext(), middleware.UserID(c), req.Action, req.Metadata)
		if errors.Is(err, services.ErrUnknownAction) || errors.Is(err, services.ErrReservedAction) {
			return badRequest(c, err)
		}
		if err != nil {
			return serverError(c, log, "XP award failed", err)
		}
		return c.JSON(res)
	})

	admin.Post("/xp/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id" validate:"required,max=64"`
			XP     int64  `json:"xp" validate:"required,min=1"`
			Reason string `json:"reason" validate:"max=255"`
		}
		var req Req
		if err := parseBody(c, &req); err != nil {
			return badRequest(c, err)
		}
		if req.Reason == "" {
			req.Reason = "admin_grant"
		}

		meta := models.LedgerMetadata{Extra: map[string]string{"granted_by": middleware.UserID(c)}}
		res, err := svc.Progression.AwardExperience(c.UserContext(), req.UserID, req.XP, req.Reason, meta)
		if err != nil {
			return serverError(c, log, "XP award failed", err)
		}

		return c.JSON(fiber.Map{
			"message": "XP granted successfully",
			"result":  res,
		})
	})
}
