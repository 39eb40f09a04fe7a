package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medsafety/internal/domain/medication"
	"github.com/ehr/medsafety/internal/platform/db"
)

// globalPool is the migrated test database, initialised once in TestMain.
var globalPool *pgxpool.Pool

// TestMain uses MEDSAFETY_TEST_DATABASE_URL when set and otherwise starts a
// throwaway container. Without either the suite is skipped.
func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv("MEDSAFETY_TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" {
		if !dockerAvailable() {
			fmt.Fprintln(os.Stderr, "skipping integration tests: no MEDSAFETY_TEST_DATABASE_URL and no docker")
			os.Exit(0)
		}
		var err error
		connStr, cleanup, err = startPostgresContainer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
			os.Exit(1)
		}
	}

	pool, err := db.NewPool(ctx, connStr, 10, 1)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

func createTestMedication(t *testing.T, ctx context.Context, name string) *medication.Medication {
	t.Helper()
	m := &medication.Medication{Name: name}
	if err := medication.NewMedicationRepoPG(globalPool).Create(ctx, m); err != nil {
		t.Fatalf("create medication %s: %v", name, err)
	}
	return m
}

func createTestPrescription(t *testing.T, ctx context.Context, patientID uuid.UUID, med *medication.Medication, frequency string) *medication.Prescription {
	t.Helper()
	p := &medication.Prescription{
		PatientID:    patientID,
		MedicationID: med.ID,
		DoseValue:    500,
		DoseUnit:     "mg",
		Frequency:    frequency,
		Route:        "PO",
		Quantity:     1,
		Status:       medication.StatusActive,
		Priority:     "routine",
		DateWritten:  time.Now().Add(-24 * time.Hour),
	}
	if err := medication.NewPrescriptionRepoPG(globalPool).Create(ctx, p); err != nil {
		t.Fatalf("create prescription: %v", err)
	}
	return p
}

func ptrStr(s string) *string { return &s }
