package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
)

// AccessLog emits one structured "patient_access" line per request that
// touches a patient record. It complements the domain audit trail, which
// only records mutations.
func AccessLog(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			patientID := PatientIDFromPath(c.Request().URL.Path)
			if patientID == "" {
				return err
			}

			req := c.Request()
			ctx := req.Context()
			rid, _ := c.Get("request_id").(string)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			logger.Info().
				Str("type", "patient_access").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("patient_id", patientID).
				Str("action", methodToAction(req.Method)).
				Str("route", c.Path()).
				Int("status", status).
				Msg("patient_access")

			return err
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// PatientIDFromPath returns the PAT- identifier in /api/v1/patients/<id>/...
// paths, or "" when the path does not address a patient.
func PatientIDFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/patients/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	if !strings.HasPrefix(id, "PAT-") {
		return ""
	}
	return id
}
