package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsLabelsByRoutePattern(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/boosts/:id", func(c fiber.Ctx) error {
		return c.SendString(c.Params("id"))
	})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/boosts/:id", "200")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boosts/"+id, nil))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
	assert.Equal(t, 0.0, testutil.ToFloat64(httpInFlight))
}
