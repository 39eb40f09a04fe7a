package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type mockContextRepo struct {
	allergies  []*Allergy
	conditions []*Condition
	labs       []*LabResult
	since      time.Time
	err        error
}

func (m *mockContextRepo) ActiveAllergies(_ context.Context, _ uuid.UUID) ([]*Allergy, error) {
	return m.allergies, m.err
}

func (m *mockContextRepo) ActiveConditions(_ context.Context, _ uuid.UUID) ([]*Condition, error) {
	return m.conditions, nil
}

func (m *mockContextRepo) RecentAbnormalLabs(_ context.Context, _ uuid.UUID, since time.Time) ([]*LabResult, error) {
	m.since = since
	return m.labs, nil
}

func TestLabResult_IsAbnormal(t *testing.T) {
	tests := []struct {
		flag string
		want bool
	}{
		{"H", true},
		{"LL", true},
		{"a", true},
		{"N", false},
		{" n ", false},
		{"", false},
	}
	for _, tt := range tests {
		l := LabResult{AbnormalFlag: tt.flag}
		if got := l.IsAbnormal(); got != tt.want {
			t.Errorf("IsAbnormal(%q) = %v, want %v", tt.flag, got, tt.want)
		}
	}
}

func TestSnapshot_UsesLabWindow(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	repo := &mockContextRepo{
		allergies: []*Allergy{{Allergen: "Penicillins", Severity: "severe", Active: true}},
		labs:      []*LabResult{{Code: "2160-0", AbnormalFlag: "H", CollectedAt: now.Add(-time.Hour)}},
	}
	svc := NewService(repo, 30*24*time.Hour).WithClock(func() time.Time { return now })

	snap, err := svc.Snapshot(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantSince := now.Add(-30 * 24 * time.Hour)
	if !repo.since.Equal(wantSince) || !snap.Since.Equal(wantSince) {
		t.Errorf("expected lab window to start at %v, got %v", wantSince, repo.since)
	}
	if len(snap.Allergies) != 1 || len(snap.Labs) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestSnapshot_PropagatesErrors(t *testing.T) {
	svc := NewService(&mockContextRepo{err: errors.New("db down")}, time.Hour)
	if _, err := svc.Snapshot(context.Background(), uuid.New()); err == nil {
		t.Error("expected collaborator failure to propagate")
	}
}

func TestHandler_GetSnapshot(t *testing.T) {
	h := NewHandler(NewService(&mockContextRepo{
		conditions: []*Condition{{Code: "N18.4", Name: "CKD stage 4", Active: true}},
	}, time.Hour))
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetSnapshot(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var snap Snapshot
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if len(snap.Conditions) != 1 || snap.Conditions[0].Code != "N18.4" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	if err := h.GetSnapshot(c); err == nil {
		t.Error("expected error for invalid id")
	}
}
