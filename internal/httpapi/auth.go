package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/crosslink/internal/auth"
)

// requireToken guards mutating endpoints with a bearer API token checked
// against the configured bcrypt hash. With no hash configured the write
// surface is disabled entirely rather than left open.
func (s *Server) requireToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.TrimSpace(s.opts.APITokenHash) == "" {
				return fail(c, http.StatusForbidden, "Write API is disabled: no API token configured", nil)
			}

			token, found := bearerToken(c)
			if !found || !auth.VerifyToken(token, s.opts.APITokenHash) {
				return fail(c, http.StatusUnauthorized, "Invalid or missing API token", nil)
			}
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, bool) {
	header := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
