package orders

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
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	readGroup.GET("/patients/:id/orders", h.List)
	readGroup.GET("/patients/:id/orders/:orderId", h.Get)
	// Nurses move sent orders through in_progress and completed.
	readGroup.PATCH("/patients/:id/orders/:orderId", h.Update)

	writeGroup := api.Group("", auth.RequireRole(auth.RolePhysician))
	writeGroup.POST("/patients/:id/orders", h.Add)
	writeGroup.POST("/patients/:id/orders/accept", h.AcceptAI)
	writeGroup.POST("/patients/:id/orders/send-drafts", h.SendDrafts)
	writeGroup.POST("/patients/:id/orders/suggest", h.Suggest)
}

func (h *Handler) Add(c echo.Context) error {
	var in AddOrderInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.AddOrder(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) List(c echo.Context) error {
	f := ListFilter{
		Status:   patient.OrderStatus(c.QueryParam("status")),
		Category: patient.OrderCategory(c.QueryParam("category")),
	}
	items, err := h.svc.ListOrders(c.Request().Context(), c.Param("id"), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []patient.Order{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	o, err := h.svc.GetOrder(c.Request().Context(), c.Param("id"), c.Param("orderId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Update(c echo.Context) error {
	var patch OrderPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.UpdateOrder(c.Request().Context(), c.Param("id"), c.Param("orderId"), patch)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) AcceptAI(c echo.Context) error {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.AcceptAIOrders(c.Request().Context(), c.Param("id"), body.IDs)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) SendDrafts(c echo.Context) error {
	var body struct {
		Category patient.OrderCategory `json:"category"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.SendAllDrafts(c.Request().Context(), c.Param("id"), body.Category)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Suggest(c echo.Context) error {
	res, err := h.svc.SuggestOrders(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}
