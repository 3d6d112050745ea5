package usercontext

import "github.com/gofiber/fiber/v2"

// Locals keys shared by the staff middleware and the handlers.
const (
	KeyStaffUser    = "staff_user"
	KeyStaffContext = "STAFF_CONTEXT"
)

// AnonymousActor is recorded when a write happens outside an authenticated
// staff request.
const AnonymousActor = "anonymous"

// StaffContext represents the authenticated operator of a request
type StaffContext struct {
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
}

// GetStaffContext retrieves the staff context from fiber context.
// Returns an anonymous context if none is set.
func GetStaffContext(c *fiber.Ctx) StaffContext {
	if sc, ok := c.Locals(KeyStaffContext).(StaffContext); ok {
		return sc
	}
	return StaffContext{}
}

// IsStaff checks if the request was authenticated as staff
func IsStaff(c *fiber.Ctx) bool {
	return GetStaffContext(c).IsStaff
}

// Actor is the name written to audit rows for this request.
func Actor(c *fiber.Ctx) string {
	sc := GetStaffContext(c)
	if !sc.IsStaff || sc.Username == "" {
		return AnonymousActor
	}
	return "staff:" + sc.Username
}
