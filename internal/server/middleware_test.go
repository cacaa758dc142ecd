package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"softspot/internal/config"
	"softspot/internal/models"
	"softspot/internal/outbox"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestServer_AdminRequired(t *testing.T) {
	s := &Server{admins: map[string]bool{"user_admin": true}}

	app := fiber.New()
	app.Get("/admin", func(c *fiber.Ctx) error {
		if id := c.Get("X-Test-User"); id != "" {
			c.Locals("userID", id)
		}
		return c.Next()
	}, s.AdminRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	tests := []struct {
		name           string
		userID         string
		expectedStatus int
	}{
		{"Admin", "user_admin", http.StatusOK},
		{"Regular User", "user_bob", http.StatusForbidden},
		{"Anonymous", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.userID != "" {
				req.Header.Set("X-Test-User", tt.userID)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestServer_ReadinessCheck(t *testing.T) {
	localDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, localDB.AutoMigrate(models.LocalModels()...))

	s := &Server{
		config:  &config.Config{RemoteMode: config.RemoteModeREST},
		localDB: localDB,
		box:     outbox.NewStore(localDB),
	}
	app := fiber.New()
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health/live", s.LivenessCheck)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["local"])
	assert.Equal(t, "unavailable", body.Checks["redis"])

	// Losing the local store takes the instance out of rotation.
	sqlDB, err := localDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
