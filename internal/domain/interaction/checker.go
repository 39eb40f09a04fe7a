package interaction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/medsafety/internal/domain/clinical"
	"github.com/ehr/medsafety/internal/domain/medication"
	"github.com/ehr/medsafety/internal/domain/override"
	"github.com/ehr/medsafety/internal/platform/audit"
	"github.com/ehr/medsafety/internal/platform/metrics"
	"github.com/ehr/medsafety/internal/platform/tracing"
)

// DefaultLabWindow bounds how far back abnormal lab results are considered.
const DefaultLabWindow = 30 * 24 * time.Hour

// MedicationLookup returns medication.ErrNotFound for unknown ids.
type MedicationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*medication.Medication, error)
}

// OverrideLookup is satisfied by *override.Manager.
type OverrideLookup interface {
	Lookup(ctx context.Context, interactionID, patientID uuid.UUID) (override.Lookup, error)
}

// Checker runs the four interaction checks against an immutable RuleSet.
// It holds no mutable state and is safe for concurrent use.
type Checker struct {
	rules       *RuleSet
	meds        MedicationLookup
	patients    clinical.ContextRepository
	overrides   OverrideLookup
	recorder    *audit.Recorder
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	tracer      trace.Tracer
	labWindow   time.Duration
	concurrency int
	now         func() time.Time
}

func NewChecker(rules *RuleSet, meds MedicationLookup, ctxRepo clinical.ContextRepository,
	overrides OverrideLookup, recorder *audit.Recorder, logger zerolog.Logger) *Checker {
	return &Checker{
		rules:       rules,
		meds:        meds,
		patients:    ctxRepo,
		overrides:   overrides,
		recorder:    recorder,
		logger:      logger,
		tracer:      tracing.Tracer(),
		labWindow:   DefaultLabWindow,
		concurrency: DefaultBatchConcurrency,
		now:         time.Now,
	}
}

func (c *Checker) WithMetrics(m *metrics.Metrics) *Checker {
	c.metrics = m
	return c
}

func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

func (c *Checker) WithLabWindow(d time.Duration) *Checker {
	if d > 0 {
		c.labWindow = d
	}
	return c
}

// WithConcurrency bounds the number of checks a batch runs at once.
func (c *Checker) WithConcurrency(n int) *Checker {
	if n > 0 {
		c.concurrency = n
	}
	return c
}

func (c *Checker) Rules() *RuleSet { return c.rules }

func (c *Checker) medication(ctx context.Context, id uuid.UUID) (*medication.Medication, error) {
	m, err := c.meds.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("medication %s: %w", id, err)
	}
	return m, nil
}

func newResult(kind Kind, m *medication.Medication, patientID uuid.UUID) *Result {
	r := &Result{Kind: kind, MedicationID: m.ID, MedicationName: m.Name}
	if patientID != uuid.Nil {
		pid := patientID
		r.PatientID = &pid
	}
	return r
}

// CheckDrugDrug looks up the highest-severity rule for the unordered pair.
// patientID may be uuid.Nil; when set, an active override for the matched
// rule and patient marks the result overridden.
func (c *Checker) CheckDrugDrug(ctx context.Context, medA, medB, patientID uuid.UUID) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "interaction.CheckDrugDrug")
	defer span.End()

	a, err := c.medication(ctx, medA)
	if err != nil {
		return nil, spanError(span, err)
	}
	b, err := c.medication(ctx, medB)
	if err != nil {
		return nil, spanError(span, err)
	}

	res := newResult(KindDrugDrug, a, patientID)
	otherID := b.ID
	res.OtherMedicationID = &otherID
	res.OtherMedicationName = b.Name

	if rule, ok := c.rules.DrugDrug(a, b); ok {
		id := rule.ID
		res.HasInteraction = true
		res.InteractionID = &id
		res.Severity = rule.Severity
		res.Description = rule.Description
		res.Reference = rule.Reference

		if patientID != uuid.Nil && c.overrides != nil {
			if err := c.applyOverride(ctx, res, patientID); err != nil {
				return nil, spanError(span, err)
			}
		}
	}

	c.finish(ctx, span, res)
	return res, nil
}

func (c *Checker) applyOverride(ctx context.Context, res *Result, patientID uuid.UUID) error {
	lookup, err := c.overrides.Lookup(ctx, *res.InteractionID, patientID)
	if err != nil {
		return fmt.Errorf("override lookup: %w", err)
	}
	c.metrics.RecordOverrideLookup(string(lookup.Status))

	switch lookup.Status {
	case override.LookupActive:
		o := lookup.Override
		oid, exp := o.ID, o.ExpiresAt
		res.IsOverridden = true
		res.OverrideID = &oid
		res.OverrideReason = o.Reason
		res.OverrideExpiresAt = &exp
		c.logger.Warn().
			Str("interaction_id", res.InteractionID.String()).
			Str("patient_id", patientID.String()).
			Str("override_id", oid.String()).
			Msg("interaction override applied")
		if !c.recorder.Record(ctx, audit.EventOverrideApplied, "InteractionOverride", oid.String(),
			map[string]interface{}{
				"interaction_id": res.InteractionID.String(),
				"patient_id":     patientID.String(),
				"severity":       string(res.Severity),
				"reason":         o.Reason,
				"expires_at":     exp,
			}, audit.SeverityWarning) {
			res.AuditDegraded = true
		}
	case override.LookupExpired:
		// Only an expired override is on file: ignore it, but make it visible.
		o := lookup.Override
		oid := o.ID
		res.ExpiredOverrideID = &oid
		c.logger.Warn().
			Str("interaction_id", res.InteractionID.String()).
			Str("patient_id", patientID.String()).
			Str("override_id", oid.String()).
			Time("expired_at", o.ExpiresAt).
			Msg("expired interaction override ignored")
		if !c.recorder.Record(ctx, audit.EventOverrideExpired, "InteractionOverride", oid.String(),
			map[string]interface{}{
				"interaction_id": res.InteractionID.String(),
				"patient_id":     patientID.String(),
				"severity":       string(res.Severity),
				"expired_at":     o.ExpiresAt,
			}, audit.SeverityWarning) {
			res.AuditDegraded = true
		}
	}
	return nil
}

// CheckDrugAllergy matches an allergen naming the medication first, then
// an allergen naming a drug class that contains it. Severity comes from the
// allergy record.
func (c *Checker) CheckDrugAllergy(ctx context.Context, medID, patientID uuid.UUID) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "interaction.CheckDrugAllergy")
	defer span.End()

	m, err := c.medication(ctx, medID)
	if err != nil {
		return nil, spanError(span, err)
	}
	allergies, err := c.patients.ActiveAllergies(ctx, patientID)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("load allergies: %w", err))
	}

	res := newResult(KindDrugAllergy, m, patientID)
	match := func(a *clinical.Allergy, class string) {
		aid := a.ID
		res.HasInteraction = true
		res.AllergyID = &aid
		res.Allergen = a.Allergen
		res.AllergyClass = class
		res.Severity = ParseSeverity(a.Severity)
		if a.Reaction != nil {
			res.Reaction = *a.Reaction
		}
		if class != "" {
			res.Description = fmt.Sprintf("%s is a member of the %s class", m.Name, class)
		} else {
			res.Description = fmt.Sprintf("patient is allergic to %s", a.Allergen)
		}
	}

	found := false
	for _, a := range allergies {
		if strings.EqualFold(strings.TrimSpace(a.Allergen), m.Name) {
			match(a, "")
			found = true
			break
		}
	}
	if !found {
		for _, a := range allergies {
			if cls, ok := c.rules.AllergyClass(a.Allergen); ok && cls.contains(m.Name) {
				match(a, cls.Name)
				break
			}
		}
	}

	c.finish(ctx, span, res)
	return res, nil
}

// CheckDrugCondition returns the first rule matching an active condition.
func (c *Checker) CheckDrugCondition(ctx context.Context, medID, patientID uuid.UUID) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "interaction.CheckDrugCondition")
	defer span.End()

	m, err := c.medication(ctx, medID)
	if err != nil {
		return nil, spanError(span, err)
	}
	conditions, err := c.patients.ActiveConditions(ctx, patientID)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("load conditions: %w", err))
	}

	res := newResult(KindDrugCondition, m, patientID)
	for _, cond := range conditions {
		rule, ok := c.rules.ConditionRule(m.Name, cond.Code)
		if !ok {
			continue
		}
		id := rule.ID
		res.HasInteraction = true
		res.InteractionID = &id
		res.Severity = rule.Severity
		res.Description = rule.Description
		res.Reference = rule.Reference
		res.ConditionCode = cond.Code
		res.ConditionName = cond.Name
		if res.ConditionName == "" {
			res.ConditionName = rule.ConditionName
		}
		break
	}

	c.finish(ctx, span, res)
	return res, nil
}

// CheckDrugLab walks abnormal results inside the lab window, most recent
// first, and returns the first one a rule matches.
func (c *Checker) CheckDrugLab(ctx context.Context, medID, patientID uuid.UUID) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "interaction.CheckDrugLab")
	defer span.End()

	m, err := c.medication(ctx, medID)
	if err != nil {
		return nil, spanError(span, err)
	}
	since := c.now().Add(-c.labWindow)
	labs, err := c.patients.RecentAbnormalLabs(ctx, patientID, since)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("load labs: %w", err))
	}
	recent := make([]*clinical.LabResult, 0, len(labs))
	for _, l := range labs {
		if l.IsAbnormal() && !l.CollectedAt.Before(since) {
			recent = append(recent, l)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CollectedAt.After(recent[j].CollectedAt) })

	res := newResult(KindDrugLab, m, patientID)
	for _, l := range recent {
		rule, ok := c.rules.LabRule(m.Name, l.Code, l.AbnormalFlag)
		if !ok {
			continue
		}
		id, lid, at := rule.ID, l.ID, l.CollectedAt
		res.HasInteraction = true
		res.InteractionID = &id
		res.Severity = rule.Severity
		res.Description = rule.Description
		res.Reference = rule.Reference
		res.LabResultID = &lid
		res.LabCode = l.Code
		res.AbnormalFlag = l.AbnormalFlag
		res.LabCollectedAt = &at
		break
	}

	c.finish(ctx, span, res)
	return res, nil
}

func auditSeverity(r *Result) audit.Severity {
	switch {
	case !r.HasInteraction:
		return audit.SeverityInfo
	case r.Blocking():
		return audit.SeverityCritical
	}
	return audit.SeverityWarning
}

// finish audits, counts and logs a completed check.
func (c *Checker) finish(ctx context.Context, span trace.Span, res *Result) {
	outcome := res.outcome()
	span.SetAttributes(
		attribute.String("interaction.kind", string(res.Kind)),
		attribute.String("interaction.outcome", outcome),
		attribute.String("medication.id", res.MedicationID.String()),
	)
	if res.HasInteraction {
		span.SetAttributes(attribute.String("interaction.severity", string(res.Severity)))
	}

	detail := map[string]interface{}{
		"kind":            string(res.Kind),
		"medication_id":   res.MedicationID.String(),
		"has_interaction": res.HasInteraction,
		"is_overridden":   res.IsOverridden,
	}
	if res.PatientID != nil {
		detail["patient_id"] = res.PatientID.String()
	}
	if res.OtherMedicationID != nil {
		detail["other_medication_id"] = res.OtherMedicationID.String()
	}
	if res.HasInteraction {
		detail["severity"] = string(res.Severity)
	}
	resourceID := res.MedicationID.String()
	if res.InteractionID != nil {
		resourceID = res.InteractionID.String()
	}
	if !c.recorder.Record(ctx, audit.EventInteractionCheck, "Interaction", resourceID, detail, auditSeverity(res)) {
		res.AuditDegraded = true
	}
	c.metrics.RecordCheck(string(res.Kind), outcome)

	c.logger.Debug().
		Str("kind", string(res.Kind)).
		Str("medication_id", res.MedicationID.String()).
		Str("outcome", outcome).
		Str("severity", string(res.Severity)).
		Msg("interaction check")
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
