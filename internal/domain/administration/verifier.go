package administration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/medsafety/internal/domain/interaction"
	"github.com/ehr/medsafety/internal/domain/medication"
	"github.com/ehr/medsafety/internal/platform/audit"
	"github.com/ehr/medsafety/internal/platform/barcode"
	"github.com/ehr/medsafety/internal/platform/metrics"
	"github.com/ehr/medsafety/internal/platform/tracing"
)

// BatchChecker is satisfied by *interaction.Checker.
type BatchChecker interface {
	BatchCheck(ctx context.Context, medIDs []uuid.UUID, patientID uuid.UUID) (*interaction.BatchResult, error)
}

// TxRunner runs fn in one transaction. Repositories called with the
// context passed to fn join it.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Verifier runs the five-rights check and writes administration records.
// Nothing is persisted by Verify; a record only exists after an explicit
// RecordAdministration or RecordSkippedAdministration call.
type Verifier struct {
	rxs       medication.PrescriptionRepository
	meds      medication.MedicationRepository
	admins    medication.AdministrationRepository
	batch     BatchChecker
	scheduler *Scheduler
	recorder  *audit.Recorder
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	tracer    trace.Tracer
	tx        TxRunner
	now       func() time.Time
}

func NewVerifier(rxs medication.PrescriptionRepository, meds medication.MedicationRepository,
	admins medication.AdministrationRepository, batch BatchChecker, scheduler *Scheduler,
	recorder *audit.Recorder, logger zerolog.Logger) *Verifier {
	return &Verifier{
		rxs:       rxs,
		meds:      meds,
		admins:    admins,
		batch:     batch,
		scheduler: scheduler,
		recorder:  recorder,
		logger:    logger,
		tracer:    tracing.Tracer(),
		tx:        noTx,
		now:       time.Now,
	}
}

func (v *Verifier) WithMetrics(m *metrics.Metrics) *Verifier {
	v.metrics = m
	return v
}

// WithClock sets the clock used for timestamps. Right-time follows the
// scheduler's clock.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) WithTx(tx TxRunner) *Verifier {
	v.tx = tx
	return v
}

func doseWithinTolerance(prescribed, given float64) bool {
	if prescribed <= 0 || given < 0 {
		return false
	}
	return math.Abs(prescribed-given)/prescribed <= DoseTolerance+doseEpsilon
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Verify decodes the scans, loads the order and evaluates the five rights.
// When they all pass, the order's medication and the patient's other due
// medications go through a batch interaction check; a severe,
// non-overridden interaction rejects the attempt. Rejections are returned
// as values; the error is only set for collaborator failures.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*Verification, error) {
	ctx, span := v.tracer.Start(ctx, "administration.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("prescription.id", req.PrescriptionID.String()))

	res := &Verification{
		ID:             uuid.New(),
		PrescriptionID: req.PrescriptionID,
		DoseValue:      req.DoseValue,
		DoseUnit:       strings.TrimSpace(req.DoseUnit),
		Route:          strings.TrimSpace(req.Route),
		VerifiedAt:     v.now(),
	}

	patientID := barcode.DecodePatient(req.PatientBarcode)
	scanned := barcode.DecodeMedication(req.MedicationBarcode)
	res.PatientID, res.MedicationID = patientID, scanned.ID
	res.Lot, res.ScannedExpiry = scanned.Lot, scanned.Expiry
	if patientID == uuid.Nil || scanned.ID == uuid.Nil {
		return v.reject(ctx, span, res, ReasonInvalidBarcode), nil
	}

	rx, err := v.rxs.GetByID(ctx, req.PrescriptionID)
	if errors.Is(err, medication.ErrNotFound) {
		return v.reject(ctx, span, res, ReasonPrescriptionNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load prescription: %w", err)
	}
	med, err := v.meds.GetByID(ctx, rx.MedicationID)
	if errors.Is(err, medication.ErrNotFound) {
		return v.reject(ctx, span, res, ReasonMedicationNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load medication: %w", err)
	}
	res.MedicationName = med.Name
	if res.DoseUnit == "" {
		res.DoseUnit = rx.DoseUnit
	}

	rights := Rights{
		Patient:    rx.PatientID == patientID,
		Medication: rx.MedicationID == scanned.ID,
		Dose:       doseWithinTolerance(rx.DoseValue, req.DoseValue) && sameText(res.DoseUnit, rx.DoseUnit),
		Route:      sameText(req.Route, rx.Route),
		Time:       v.scheduler.IsDue(rx),
	}
	res.Rights = &rights
	if !rights.AllPassed() {
		return v.reject(ctx, span, res, ReasonRightsFailed), nil
	}

	medIDs, err := v.currentMedications(ctx, rx)
	if err != nil {
		return nil, err
	}
	batch, err := v.batch.BatchCheck(ctx, medIDs, rx.PatientID)
	if err != nil {
		return nil, fmt.Errorf("interaction check: %w", err)
	}
	res.Interactions = batch
	res.AuditDegraded = batch.AuditDegraded
	if batch.HasSevereInteractions {
		return v.reject(ctx, span, res, ReasonSevereInteraction), nil
	}

	res.Outcome = OutcomeVerified
	span.SetAttributes(attribute.String("verification.outcome", string(res.Outcome)))
	v.metrics.RecordVerification(string(res.Outcome), "")
	if !v.recorder.Record(ctx, audit.EventAdministrationVerified, "MedicationAdministration", res.ID.String(),
		v.auditDetail(res), audit.SeverityInfo) {
		res.AuditDegraded = true
	}
	v.logger.Info().
		Str("verification_id", res.ID.String()).
		Str("prescription_id", res.PrescriptionID.String()).
		Msg("administration verified")
	return res, nil
}

// currentMedications is the order's medication followed by the patient's
// other due medications, without duplicates.
func (v *Verifier) currentMedications(ctx context.Context, rx *medication.Prescription) ([]uuid.UUID, error) {
	others, err := v.rxs.ListByPatient(ctx, rx.PatientID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	ids := []uuid.UUID{rx.MedicationID}
	seen := map[uuid.UUID]bool{rx.MedicationID: true}
	for _, o := range others {
		if o.ID == rx.ID || seen[o.MedicationID] || !v.scheduler.IsDue(o) {
			continue
		}
		seen[o.MedicationID] = true
		ids = append(ids, o.MedicationID)
	}
	return ids, nil
}

func (v *Verifier) auditDetail(res *Verification) map[string]interface{} {
	d := map[string]interface{}{
		"outcome":         string(res.Outcome),
		"prescription_id": res.PrescriptionID.String(),
		"patient_id":      res.PatientID.String(),
		"medication_id":   res.MedicationID.String(),
		"dose_value":      res.DoseValue,
		"dose_unit":       res.DoseUnit,
		"route":           res.Route,
	}
	if res.Reason != "" {
		d["reason"] = res.Reason
	}
	if res.Rights != nil {
		d["rights"] = *res.Rights
	}
	if res.Lot != "" {
		d["lot"] = res.Lot
	}
	if res.ScannedExpiry != nil {
		d["scanned_expiry"] = res.ScannedExpiry.Format("2006-01-02")
	}
	if res.Interactions != nil {
		d["interaction_count"] = res.Interactions.InteractionCount
	}
	return d
}

func (v *Verifier) reject(ctx context.Context, span trace.Span, res *Verification, reason string) *Verification {
	res.Outcome = OutcomeRejected
	res.Reason = reason
	span.SetAttributes(
		attribute.String("verification.outcome", string(res.Outcome)),
		attribute.String("verification.reason", reason),
	)
	v.metrics.RecordVerification(string(res.Outcome), reason)

	event, severity := audit.EventAdministrationRejected, audit.SeverityWarning
	level := zerolog.InfoLevel
	if reason == ReasonSevereInteraction {
		event, severity = audit.EventSafetyBlock, audit.SeverityCritical
		level = zerolog.WarnLevel
		v.metrics.RecordSafetyBlock()
	}
	if !v.recorder.Record(ctx, event, "MedicationAdministration", res.ID.String(), v.auditDetail(res), severity) {
		res.AuditDegraded = true
	}
	v.logger.WithLevel(level).
		Str("verification_id", res.ID.String()).
		Str("prescription_id", res.PrescriptionID.String()).
		Str("reason", reason).
		Msg("administration rejected")
	return res
}

// RecordAdministration writes a completed record for a verified attempt
// and closes the order once enough doses have been given. The record and
// the status change share one transaction.
func (v *Verifier) RecordAdministration(ctx context.Context, ver *Verification, performerID string, site *string) (*RecordResult, error) {
	if !ver.Verified() {
		return nil, ErrNotVerified
	}
	if strings.TrimSpace(performerID) == "" {
		return nil, fmt.Errorf("performer is required")
	}
	now := v.now()
	dose, unit, route := ver.DoseValue, ver.DoseUnit, ver.Route
	rec := &medication.Administration{
		ID:                 uuid.New(),
		PatientID:          ver.PatientID,
		MedicationID:       ver.MedicationID,
		PrescriptionID:     ver.PrescriptionID,
		PerformerID:        performerID,
		DoseValue:          &dose,
		DoseUnit:           &unit,
		Route:              &route,
		Status:             medication.AdminCompleted,
		Site:               site,
		VerificationMethod: medication.VerifiedByBarcode,
		AdministeredAt:     now,
		CreatedAt:          now,
	}
	out := &RecordResult{Administration: rec}

	err := v.tx(ctx, func(ctx context.Context) error {
		if err := v.admins.Create(ctx, rec); err != nil {
			return fmt.Errorf("save administration: %w", err)
		}
		rx, err := v.rxs.GetByID(ctx, ver.PrescriptionID)
		if err != nil {
			return fmt.Errorf("load prescription: %w", err)
		}
		done, err := v.scheduler.ShouldComplete(ctx, rx)
		if err != nil {
			return err
		}
		if done && rx.Status != medication.StatusCompleted {
			if err := v.rxs.UpdateStatus(ctx, rx.ID, medication.StatusCompleted); err != nil {
				return fmt.Errorf("complete prescription: %w", err)
			}
			out.PrescriptionCompleted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	v.metrics.RecordAdministration(rec.Status)
	if !v.recorder.Record(ctx, audit.EventAdministrationRecorded, "MedicationAdministration", rec.ID.String(),
		map[string]interface{}{
			"verification_id": ver.ID.String(),
			"prescription_id": rec.PrescriptionID.String(),
			"patient_id":      rec.PatientID.String(),
			"medication_id":   rec.MedicationID.String(),
			"performer_id":    rec.PerformerID,
			"dose_value":      dose,
			"dose_unit":       unit,
			"route":           route,
		}, audit.SeverityInfo) {
		out.AuditDegraded = true
	}
	if out.PrescriptionCompleted {
		if !v.recorder.Record(ctx, audit.EventPrescriptionCompleted, "MedicationRequest", rec.PrescriptionID.String(),
			map[string]interface{}{"administration_id": rec.ID.String()}, audit.SeverityInfo) {
			out.AuditDegraded = true
		}
	}
	v.logger.Info().
		Str("administration_id", rec.ID.String()).
		Str("prescription_id", rec.PrescriptionID.String()).
		Bool("prescription_completed", out.PrescriptionCompleted).
		Msg("administration recorded")
	return out, nil
}

// RecordSkippedAdministration writes a not-done record. It does not re-run
// the five rights.
func (v *Verifier) RecordSkippedAdministration(ctx context.Context, req SkipRequest, performerID string) (*RecordResult, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if strings.TrimSpace(performerID) == "" {
		return nil, fmt.Errorf("performer is required")
	}
	rx, err := v.rxs.GetByID(ctx, req.PrescriptionID)
	if err != nil {
		return nil, fmt.Errorf("load prescription: %w", err)
	}
	now := v.now()
	rec := &medication.Administration{
		ID:                 uuid.New(),
		PatientID:          rx.PatientID,
		MedicationID:       rx.MedicationID,
		PrescriptionID:     rx.ID,
		PerformerID:        performerID,
		Status:             medication.AdminNotDone,
		StatusReason:       &reason,
		VerificationMethod: medication.VerifiedByBarcode,
		AdministeredAt:     now,
		CreatedAt:          now,
	}
	if err := v.admins.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("save administration: %w", err)
	}

	out := &RecordResult{Administration: rec}
	v.metrics.RecordAdministration(rec.Status)
	if !v.recorder.Record(ctx, audit.EventAdministrationSkipped, "MedicationAdministration", rec.ID.String(),
		map[string]interface{}{
			"prescription_id": rec.PrescriptionID.String(),
			"patient_id":      rec.PatientID.String(),
			"performer_id":    rec.PerformerID,
			"reason":          reason,
		}, audit.SeverityWarning) {
		out.AuditDegraded = true
	}
	v.logger.Info().
		Str("administration_id", rec.ID.String()).
		Str("prescription_id", rec.PrescriptionID.String()).
		Str("reason", reason).
		Msg("administration skipped")
	return out, nil
}
