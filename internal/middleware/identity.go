package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderClientID names the caller for rate limiting. The API has no
// authentication, so the value is advisory only.
const HeaderClientID = "X-Client-ID"

const maxClientIDLen = 64

// clientID returns the caller supplied client id, or "anon".
func clientID(c echo.Context) string {
	v := strings.TrimSpace(c.Request().Header.Get(HeaderClientID))
	if v == "" {
		return "anon"
	}
	if len(v) > maxClientIDLen {
		v = v[:maxClientIDLen]
	}
	// keep keys one segment wide
	return strings.ReplaceAll(v, ":", "_")
}
