package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newApp(t *testing.T, handlers ...fiber.Handler) *fiber.App {
	t.Helper()
	app := fiber.New()
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": UserID(c), "roles": UserRoles(c)})
	})
	app.Get("/ping", handlers...)
	return app
}

func status(t *testing.T, app *fiber.App, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestGatewayAuth(t *testing.T) {
	app := newApp(t, GatewayAuthMiddleware("secret", zaptest.NewLogger(t)))

	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, nil))
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, map[string]string{"Authorization": "Bearer nope"}))
	assert.Equal(t, fiber.StatusOK, status(t, app, map[string]string{"Authorization": "Bearer secret"}))
	assert.Equal(t, fiber.StatusOK, status(t, app, map[string]string{"Authorization": "secret"}))
}

func TestUserContextAndRoles(t *testing.T) {
	app := newApp(t, UserContextMiddleware(zaptest.NewLogger(t)), RequireRole("admin"))

	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, nil))
	assert.Equal(t, fiber.StatusForbidden, status(t, app, map[string]string{"X-User-ID": "u1", "X-User-Roles": "walker"}))
	assert.Equal(t, fiber.StatusOK, status(t, app, map[string]string{"X-User-ID": "u1", "X-User-Roles": "walker, admin"}))
}

func TestRateLimiterPerUser(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, zaptest.NewLogger(t))
	app := newApp(t, UserContextMiddleware(nil), rl.Handler())
	alice := map[string]string{"X-User-ID": "alice"}

	assert.Equal(t, fiber.StatusOK, status(t, app, alice))
	assert.Equal(t, fiber.StatusOK, status(t, app, alice))
	assert.Equal(t, fiber.StatusTooManyRequests, status(t, app, alice))
	assert.Equal(t, fiber.StatusOK, status(t, app, map[string]string{"X-User-ID": "bob"}))
}
