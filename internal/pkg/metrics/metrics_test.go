package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRoutePattern(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/locks/:token", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/metrics/prometheus", Handler())

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/locks/:token", "204"))
	for _, tok := range []string{"a", "b"} {
		_, err := app.Test(httptest.NewRequest("GET", "/locks/"+tok, nil))
		require.NoError(t, err)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/locks/:token", "204"))
	assert.Equal(t, before+2, after)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics/prometheus", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "tablefox_http_requests_total")
}
