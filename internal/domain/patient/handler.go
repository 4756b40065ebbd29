package patient

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
	"github.com/DejaVu2364/MedflowAG-sub001/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleIntake))
	readGroup.GET("/patients", h.List)
	readGroup.GET("/patients/:id", h.Get)
	readGroup.GET("/patients/:id/sync", h.GetSyncStatus)
	readGroup.GET("/sync-status", h.ListSyncStatus)

	intakeGroup := api.Group("", auth.RequireRole(auth.RoleIntake, auth.RoleNurse, auth.RolePhysician))
	intakeGroup.POST("/patients", h.Register)
	intakeGroup.PATCH("/patients/:id", h.UpdateDemographics)
	intakeGroup.DELETE("/patients/:id/sync/error", h.DismissSyncError)
	intakeGroup.POST("/patients/:id/sync/retry", h.Resync)

	clinicalGroup := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RolePhysician))
	clinicalGroup.PUT("/patients/:id/triage", h.SetTriage)
	clinicalGroup.POST("/patients/:id/handover", h.GenerateHandover)

	physicianGroup := api.Group("", auth.RequireRole(auth.RolePhysician))
	physicianGroup.POST("/patients/:id/start-treatment", h.StartTreatment)
	physicianGroup.PUT("/patients/:id/problems", h.SetActiveProblems)
	physicianGroup.POST("/patients/:id/overview", h.GenerateOverview)
	physicianGroup.POST("/patients/:id/discharge", h.Discharge)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) List(c echo.Context) error {
	status := Status(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}
	items := h.svc.List(c.Request().Context(), status)
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateDemographics(c echo.Context) error {
	var patch DemographicsPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateDemographics(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SetTriage(c echo.Context) error {
	var in TriageInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.SetTriage(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) StartTreatment(c echo.Context) error {
	p, err := h.svc.StartTreatment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SetActiveProblems(c echo.Context) error {
	var body struct {
		Problems []string `json:"problems"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.SetActiveProblems(c.Request().Context(), c.Param("id"), body.Problems)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GenerateHandover(c echo.Context) error {
	out, err := h.svc.GenerateHandover(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GenerateOverview(c echo.Context) error {
	out, err := h.svc.GenerateOverview(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Discharge(c echo.Context) error {
	var in DischargeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.Discharge(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetSyncStatus(c echo.Context) error {
	st, err := h.svc.SyncStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListSyncStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.UnsyncedStatuses(c.Request().Context()))
}

func (h *Handler) DismissSyncError(c echo.Context) error {
	if err := h.svc.DismissSyncError(c.Request().Context(), c.Param("id")); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Resync(c echo.Context) error {
	if err := h.svc.Resync(c.Request().Context(), c.Param("id")); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusAccepted)
}
