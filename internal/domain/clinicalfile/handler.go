package clinicalfile

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	readGroup.GET("/patients/:id/clinical-file", h.Get)

	writeGroup := api.Group("", auth.RequireRole(auth.RolePhysician))
	writeGroup.PATCH("/patients/:id/clinical-file/:section", h.UpdateSection)
	writeGroup.POST("/patients/:id/clinical-file/suggestions", h.RequestSuggestions)
	writeGroup.POST("/patients/:id/clinical-file/suggestions/:key/accept", h.Accept)
	writeGroup.DELETE("/patients/:id/clinical-file/suggestions/:key", h.Reject)
	writeGroup.POST("/patients/:id/clinical-file/summary", h.Summarize)
	writeGroup.POST("/patients/:id/clinical-file/follow-up", h.FollowUp)
	writeGroup.POST("/patients/:id/clinical-file/refresh", h.Refresh)
}

func (h *Handler) Get(c echo.Context) error {
	cf, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cf)
}

func (h *Handler) UpdateSection(c echo.Context) error {
	var values map[string]json.RawMessage
	if err := c.Bind(&values); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cf, err := h.svc.UpdateSection(c.Request().Context(), c.Param("id"), c.Param("section"), values)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cf)
}

func (h *Handler) Accept(c echo.Context) error {
	cf, err := h.svc.AcceptAISuggestion(c.Request().Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cf)
}

func (h *Handler) Reject(c echo.Context) error {
	cf, err := h.svc.RejectAISuggestion(c.Request().Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cf)
}

func (h *Handler) RequestSuggestions(c echo.Context) error {
	out, err := h.svc.RequestSuggestions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Summarize(c echo.Context) error {
	out, err := h.svc.SummarizeFile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) FollowUp(c echo.Context) error {
	var body struct {
		Field string `json:"field"`
		Seed  string `json:"seed"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.FollowUpQuestions(c.Request().Context(), c.Param("id"), body.Field, body.Seed)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Refresh(c echo.Context) error {
	out, err := h.svc.RefreshInsights(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}
