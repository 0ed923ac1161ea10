// handlers/notification_routes.go
package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dogpark-economy/middleware"
	"dogpark-economy/services"
	"dogpark-economy/store"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const streamPollInterval = 2 * time.Second

func setupNotificationRoutes(user fiber.Router, notifications *services.NotificationService, clock clockwork.Clock, log *zap.Logger) {
	user.Get("/notifications", func(c *fiber.Ctx) error {
		list, err := notifications.List(c.UserContext(), middleware.UserID(c), c.QueryInt("limit", 50))
		if err != nil {
			return serverError(c, log, "failed to list notifications", err)
		}
		return c.JSON(list)
	})

	user.Patch("/notifications/viewed", func(c *fiber.Ctx) error {
		n, err := notifications.MarkAllViewed(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return serverError(c, log, "failed to mark notifications viewed", err)
		}
		return c.JSON(fiber.Map{"updated": n})
	})

	user.Get("/notifications/stream", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			streamNotifications(w, notifications, userID, clock, log)
		})
		return nil
	})
}

// streamNotifications polls for rows newer than the stream start until the
// client goes away, which surfaces as a flush error.
func streamNotifications(w *bufio.Writer, notifications *services.NotificationService, userID string, clock clockwork.Clock, log *zap.Logger) {
	ctx := context.Background()
	ticker := clock.NewTicker(streamPollInterval)
	defer ticker.Stop()

	cursor := store.NotificationCursor{CreatedAt: clock.Now()}

	// initial keepalive
	w.WriteString(":\n\n")
	if err := w.Flush(); err != nil {
		return
	}

	for range ticker.Chan() {
		fresh, err := notifications.After(ctx, userID, cursor)
		if err != nil {
			log.Warn("⚠️ SSE query failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if len(fresh) == 0 {
			w.WriteString(":\n\n")
		}
		for _, n := range fresh {
			payload, _ := json.Marshal(n)
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
			cursor = store.NotificationCursor{CreatedAt: n.CreatedAt, ID: n.ID}
		}
		if err := w.Flush(); err != nil {
			// client disconnected
			return
		}
	}
}
