package administration

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/medsafety/internal/domain/medication"
	"github.com/ehr/medsafety/internal/platform/auth"
)

type Handler struct {
	verifier  *Verifier
	scheduler *Scheduler
}

func NewHandler(verifier *Verifier, scheduler *Scheduler) *Handler {
	return &Handler{verifier: verifier, scheduler: scheduler}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse", "pharmacist"))
	read.GET("/patients/:id/schedule", h.GetSchedule)
	read.GET("/patients/:id/due", h.GetDue)

	bedside := api.Group("/administrations", auth.RequireRole("admin", "nurse", "physician"))
	bedside.POST("/verify", h.Verify)
	bedside.POST("", h.Record)
	bedside.POST("/skip", h.Skip)
}

type recordRequest struct {
	VerifyRequest
	Site *string `json:"site,omitempty"`
}

// Verify runs the five-rights check without recording anything.
func (h *Handler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ver, err := h.verifier.Verify(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ver)
}

// Record verifies the scan and, only when it passes, writes the record.
// A rejected attempt answers 422 with the verification.
func (h *Handler) Record(c echo.Context) error {
	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	ver, err := h.verifier.Verify(ctx, req.VerifyRequest)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ver.Verified() {
		return c.JSON(http.StatusUnprocessableEntity, ver)
	}
	res, err := h.verifier.RecordAdministration(ctx, ver, auth.UserIDFromContext(ctx), req.Site)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Skip(c echo.Context) error {
	var req SkipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	res, err := h.verifier.RecordSkippedAdministration(ctx, req, auth.UserIDFromContext(ctx))
	switch {
	case errors.Is(err, ErrReasonRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, medication.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetSchedule(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	days := 1
	if v := c.QueryParam("days"); v != "" {
		if days, err = strconv.Atoi(v); err != nil || days < 1 || days > MaxScheduleDays {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and "+strconv.Itoa(MaxScheduleDays))
		}
	}
	sched, err := h.scheduler.GenerateSchedule(c.Request().Context(), patientID, days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *Handler) GetDue(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	items, err := h.scheduler.DueNow(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
