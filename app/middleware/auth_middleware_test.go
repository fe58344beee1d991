package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/booster/app/dto"
	"github.com/amirphl/booster/app/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireScope(t *testing.T) {
	tokens, err := services.NewTokenService("test-secret", "booster", "booster-api", time.Hour)
	require.NoError(t, err)
	auth := NewAuthMiddleware(tokens)

	app := fiber.New()
	app.Get("/boost", auth.RequireScope(services.ScopeBoost), func(c fiber.Ctx) error {
		return c.SendString(c.Locals("service_name").(string))
	})

	worker, err := tokens.GenerateServiceToken("views-worker", []string{services.ScopeBoost})
	require.NoError(t, err)
	operator, err := tokens.GenerateServiceToken("ops", []string{services.ScopeAdmin})
	require.NoError(t, err)

	other, err := services.NewTokenService("other-secret", "booster", "booster-api", time.Hour)
	require.NoError(t, err)
	forged, err := other.GenerateServiceToken("views-worker", []string{services.ScopeBoost})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"Missing", "", http.StatusUnauthorized, "MISSING_AUTHORIZATION_HEADER"},
		{"NotBearer", "Basic abc", http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT"},
		{"Forged", "Bearer " + forged, http.StatusUnauthorized, "TOKEN_INVALID"},
		{"WrongScope", "Bearer " + operator, http.StatusForbidden, "INSUFFICIENT_SCOPE"},
		{"Valid", "Bearer " + worker, http.StatusOK, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/boost", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)

			if tc.code == "" {
				return
			}
			var body dto.APIResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			detail := body.Error.(map[string]any)
			assert.Equal(t, tc.code, detail["code"])
		})
	}
}
