package usercontext

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor(t *testing.T) {
	app := fiber.New()
	app.Get("/anon", func(c *fiber.Ctx) error {
		return c.SendString(Actor(c))
	})
	app.Get("/staff", func(c *fiber.Ctx) error {
		c.Locals(KeyStaffContext, StaffContext{Username: "maria", IsStaff: true})
		return c.SendString(Actor(c))
	})

	for path, want := range map[string]string{"/anon": AnonymousActor, "/staff": "staff:maria"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, want, string(body), path)
	}
}
