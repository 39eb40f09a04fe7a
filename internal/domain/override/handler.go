package override

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/medsafety/internal/platform/auth"
	"github.com/ehr/medsafety/pkg/pagination"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse", "pharmacist"))
	read.GET("/overrides/active", h.GetActive)
	read.GET("/patients/:id/overrides", h.ListByPatient)

	write := api.Group("", auth.RequireRole("admin", "physician"))
	write.POST("/overrides", h.Create)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// The authorizing provider is whoever is signed in.
	req.ProviderID = auth.UserIDFromContext(c.Request().Context())

	o, err := h.mgr.CreateOverride(c.Request().Context(), req)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetActive(c echo.Context) error {
	interactionID, err := uuid.Parse(c.QueryParam("interaction_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid interaction_id")
	}
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	o, err := h.mgr.IsActiveOverride(c.Request().Context(), interactionID, patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if o == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active override")
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.mgr.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
