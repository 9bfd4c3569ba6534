package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated caller, or "" when the request carried
// no token.
func UserID(c echo.Context) string {
	if s, ok := c.Get(ContextUserID).(string); ok {
		return s
	}
	return ""
}

// Role returns the authenticated caller's role claim.
func Role(c echo.Context) string {
	if s, ok := c.Get(ContextRole).(string); ok {
		return s
	}
	return ""
}

func currentUserID(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
