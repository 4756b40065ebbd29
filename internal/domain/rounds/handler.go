package rounds

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
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	readGroup.GET("/patients/:id/rounds", h.List)
	readGroup.GET("/patients/:id/rounds/:roundId", h.Get)

	writeGroup := api.Group("", auth.RequireRole(auth.RolePhysician))
	writeGroup.POST("/patients/:id/rounds", h.CreateDraft)
	writeGroup.PATCH("/patients/:id/rounds/:roundId", h.UpdateDraft)
	writeGroup.POST("/patients/:id/rounds/:roundId/sign", h.SignOff)
	writeGroup.POST("/patients/:id/rounds/:roundId/cross-check", h.CrossCheck)
}

func (h *Handler) CreateDraft(c echo.Context) error {
	r, err := h.svc.CreateDraftRound(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	r, err := h.svc.Get(c.Request().Context(), c.Param("id"), c.Param("roundId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateDraft(c echo.Context) error {
	var patch RoundPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.UpdateDraftRound(c.Request().Context(), c.Param("id"), c.Param("roundId"), patch)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) SignOff(c echo.Context) error {
	r, err := h.svc.SignOffRound(c.Request().Context(), c.Param("id"), c.Param("roundId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CrossCheck(c echo.Context) error {
	res, err := h.svc.CrossCheckRound(c.Request().Context(), c.Param("id"), c.Param("roundId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}
