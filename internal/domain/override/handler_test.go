package override

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/medsafety/internal/platform/auth"
)

func TestHandler_Create(t *testing.T) {
	mgr, repo, _, _ := newTestManager()
	h := NewHandler(mgr)
	e := echo.New()

	iid, pid := uuid.New(), uuid.New()
	body := `{"interaction_id":"` + iid.String() + `","patient_id":"` + pid.String() + `","reason":"monitored","duration_days":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/overrides", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), "dr-grey", []string{"physician"}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var o Override
	json.Unmarshal(rec.Body.Bytes(), &o)
	if o.ProviderID != "dr-grey" {
		t.Errorf("expected provider from identity, got %q", o.ProviderID)
	}
	if len(repo.overrides) != 1 {
		t.Error("expected override to be stored")
	}
}

func TestHandler_Create_ValidationError(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	h := NewHandler(mgr)
	e := echo.New()

	body := `{"interaction_id":"` + uuid.New().String() + `","patient_id":"` + uuid.New().String() + `","duration_days":2}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), "dr-grey", []string{"physician"}))
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Create(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing reason, got %v", err)
	}
}

func TestHandler_GetActive(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	h := NewHandler(mgr)
	e := echo.New()
	r := validRequest()

	get := func() error {
		req := httptest.NewRequest(http.MethodGet,
			"/?interaction_id="+r.InteractionID.String()+"&patient_id="+r.PatientID.String(), nil)
		return h.GetActive(e.NewContext(req, httptest.NewRecorder()))
	}

	err := get()
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before creation, got %v", err)
	}
	mgr.CreateOverride(context.Background(), r)
	if err := get(); err != nil {
		t.Errorf("expected active override, got %v", err)
	}
}

func TestHandler_GetActive_BadQuery(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	h := NewHandler(mgr)
	req := httptest.NewRequest(http.MethodGet, "/?interaction_id=nope", nil)
	err := h.GetActive(echo.New().NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListByPatient(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	h := NewHandler(mgr)
	r := validRequest()
	mgr.CreateOverride(context.Background(), r)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(r.PatientID.String())
	if err := h.ListByPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1 override, got %d", resp.Total)
	}
}
