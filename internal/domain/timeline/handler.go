package timeline

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
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
	g := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	g.GET("/patients/:id/timeline", h.List)
	g.POST("/patients/:id/timeline/notes", h.AddNote)
	g.POST("/patients/:id/timeline/checklists", h.AddChecklist)
	g.POST("/patients/:id/timeline/soap", h.AddSOAP)
	g.POST("/patients/:id/timeline/checklists/:eventId/items/:itemId/toggle", h.Toggle)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.Param("id"), patient.EventType(c.QueryParam("type")))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddNote(c echo.Context) error {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev, err := h.svc.AddNote(c.Request().Context(), c.Param("id"), body.Text)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, ev)
}

func (h *Handler) AddChecklist(c echo.Context) error {
	var body struct {
		Title string   `json:"title"`
		Items []string `json:"items"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev, err := h.svc.AddChecklist(c.Request().Context(), c.Param("id"), body.Title, body.Items)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, ev)
}

func (h *Handler) AddSOAP(c echo.Context) error {
	var note patient.SOAPNote
	if err := c.Bind(&note); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev, err := h.svc.AddSOAPNote(c.Request().Context(), c.Param("id"), note)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, ev)
}

func (h *Handler) Toggle(c echo.Context) error {
	ev, err := h.svc.ToggleChecklistItem(c.Request().Context(), c.Param("id"), c.Param("eventId"), c.Param("itemId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ev)
}
