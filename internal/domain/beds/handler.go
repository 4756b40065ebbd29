package beds

import (
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
	staffGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleIntake))
	staffGroup.GET("/beds", h.List)
	staffGroup.GET("/beds/:bedId", h.Get)
	staffGroup.POST("/beds/:bedId/assign", h.Assign)
	staffGroup.POST("/beds/:bedId/release", h.Release)
	staffGroup.POST("/beds/:bedId/ready", h.MarkReady)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/beds", h.Create)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := h.svc.CreateBed(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handler) List(c echo.Context) error {
	status := Status(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}
	docs, err := h.svc.ListBeds(c.Request().Context(), c.QueryParam("ward"), status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) Get(c echo.Context) error {
	doc, err := h.svc.GetBed(c.Request().Context(), c.Param("bedId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Assign(c echo.Context) error {
	var body struct {
		PatientID string `json:"patientId"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}
	doc, err := h.svc.AssignBed(c.Request().Context(), c.Param("bedId"), body.PatientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Release(c echo.Context) error {
	doc, err := h.svc.ReleaseBed(c.Request().Context(), c.Param("bedId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) MarkReady(c echo.Context) error {
	doc, err := h.svc.MarkReady(c.Request().Context(), c.Param("bedId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, doc)
}
