package interaction

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/medsafety/internal/domain/medication"
	"github.com/ehr/medsafety/internal/platform/auth"
)

type Handler struct {
	checker *Checker
}

func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/interactions", auth.RequireRole("admin", "physician", "nurse", "pharmacist"))
	g.POST("/drug-drug", h.CheckDrugDrug)
	g.POST("/drug-allergy", h.CheckDrugAllergy)
	g.POST("/drug-condition", h.CheckDrugCondition)
	g.POST("/drug-lab", h.CheckDrugLab)
	g.POST("/batch", h.BatchCheck)
	g.GET("/rules", h.RuleStats)
}

type drugDrugRequest struct {
	MedicationAID uuid.UUID `json:"medication_a_id"`
	MedicationBID uuid.UUID `json:"medication_b_id"`
	PatientID     uuid.UUID `json:"patient_id"`
}

type patientCheckRequest struct {
	MedicationID uuid.UUID `json:"medication_id"`
	PatientID    uuid.UUID `json:"patient_id"`
}

type batchRequest struct {
	MedicationIDs []uuid.UUID `json:"medication_ids"`
	PatientID     uuid.UUID   `json:"patient_id"`
}

func checkError(err error) error {
	if errors.Is(err, medication.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) CheckDrugDrug(c echo.Context) error {
	var req drugDrugRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.MedicationAID == uuid.Nil || req.MedicationBID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "medication_a_id and medication_b_id are required")
	}
	res, err := h.checker.CheckDrugDrug(c.Request().Context(), req.MedicationAID, req.MedicationBID, req.PatientID)
	if err != nil {
		return checkError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type patientCheck func(ctx context.Context, medID, patientID uuid.UUID) (*Result, error)

func (h *Handler) patientCheck(c echo.Context, check patientCheck) error {
	var req patientCheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.MedicationID == uuid.Nil || req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "medication_id and patient_id are required")
	}
	res, err := check(c.Request().Context(), req.MedicationID, req.PatientID)
	if err != nil {
		return checkError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CheckDrugAllergy(c echo.Context) error {
	return h.patientCheck(c, h.checker.CheckDrugAllergy)
}

func (h *Handler) CheckDrugCondition(c echo.Context) error {
	return h.patientCheck(c, h.checker.CheckDrugCondition)
}

func (h *Handler) CheckDrugLab(c echo.Context) error {
	return h.patientCheck(c, h.checker.CheckDrugLab)
}

// MaxBatchSize keeps the pairwise step bounded to a realistic medication list.
const MaxBatchSize = 50

func (h *Handler) BatchCheck(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	if len(req.MedicationIDs) > MaxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest, "too many medications")
	}
	res, err := h.checker.BatchCheck(c.Request().Context(), req.MedicationIDs, req.PatientID)
	if err != nil {
		return checkError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RuleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.checker.Rules().Stats())
}
