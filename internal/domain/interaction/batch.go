package interaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds concurrent checks within one batch.
const DefaultBatchConcurrency = 8

type pair struct{ i, j int }

// BatchCheck runs every pairwise drug-drug check and the allergy, condition
// and lab checks for each medication. Checks run concurrently, but each one
// writes into its own slot so the output order always follows medIDs.
// Any collaborator failure fails the whole batch.
func (c *Checker) BatchCheck(ctx context.Context, medIDs []uuid.UUID, patientID uuid.UUID) (*BatchResult, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "interaction.BatchCheck")
	defer span.End()
	span.SetAttributes(
		attribute.String("patient.id", patientID.String()),
		attribute.Int("batch.size", len(medIDs)),
	)

	var pairs []pair
	for i := 0; i < len(medIDs); i++ {
		for j := i + 1; j < len(medIDs); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	drugDrug := make([]*Result, len(pairs))
	allergy := make([]*Result, len(medIDs))
	condition := make([]*Result, len(medIDs))
	lab := make([]*Result, len(medIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for k, p := range pairs {
		k, p := k, p
		g.Go(func() (err error) {
			drugDrug[k], err = c.CheckDrugDrug(gctx, medIDs[p.i], medIDs[p.j], patientID)
			return err
		})
	}
	for i, id := range medIDs {
		i, id := i, id
		g.Go(func() (err error) {
			allergy[i], err = c.CheckDrugAllergy(gctx, id, patientID)
			return err
		})
		g.Go(func() (err error) {
			condition[i], err = c.CheckDrugCondition(gctx, id, patientID)
			return err
		})
		g.Go(func() (err error) {
			lab[i], err = c.CheckDrugLab(gctx, id, patientID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, spanError(span, err)
	}

	out := &BatchResult{
		PatientID:     patientID,
		MedicationIDs: append([]uuid.UUID{}, medIDs...),
		DrugDrug:      []*Result{},
		DrugAllergy:   []*Result{},
		DrugCondition: []*Result{},
		DrugLab:       []*Result{},
	}
	for _, r := range drugDrug {
		out.AuditDegraded = out.AuditDegraded || r.AuditDegraded
		// Overridden interactions stay out of the report that drives blocking.
		if r.HasInteraction && !r.IsOverridden {
			out.DrugDrug = append(out.DrugDrug, r)
		}
	}
	collect := func(dst *[]*Result, src []*Result) {
		for _, r := range src {
			out.AuditDegraded = out.AuditDegraded || r.AuditDegraded
			if r.HasInteraction {
				*dst = append(*dst, r)
			}
		}
	}
	collect(&out.DrugAllergy, allergy)
	collect(&out.DrugCondition, condition)
	collect(&out.DrugLab, lab)

	for _, r := range out.All() {
		if r.Severity.IsSevere() {
			out.HasSevereInteractions = true
			break
		}
	}
	out.InteractionCount = len(out.DrugDrug) + len(out.DrugAllergy) + len(out.DrugCondition) + len(out.DrugLab)

	span.SetAttributes(
		attribute.Int("batch.interactions", out.InteractionCount),
		attribute.Bool("batch.has_severe", out.HasSevereInteractions),
	)
	c.metrics.RecordBatch(time.Since(start))
	c.logger.Debug().
		Str("patient_id", patientID.String()).
		Int("medications", len(medIDs)).
		Int("interactions", out.InteractionCount).
		Bool("has_severe", out.HasSevereInteractions).
		Msg("batch interaction check")
	return out, nil
}
