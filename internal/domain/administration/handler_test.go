package administration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/medsafety/internal/domain/medication"
	"github.com/ehr/medsafety/internal/platform/auth"
)

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(string(b)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req.WithContext(auth.WithIdentity(req.Context(), "nurse-1", []string{"nurse"}))
}

func TestHandler_Verify(t *testing.T) {
	f := newVerifyFixture()
	h := NewHandler(f.verifier, f.sched)
	rx := f.addRx(uuid.New(), "Amoxicillin", "tid")

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(jsonRequest(t, http.MethodPost, "/api/v1/administrations/verify", request(rx)), rec)
	if err := h.Verify(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var ver Verification
	json.Unmarshal(rec.Body.Bytes(), &ver)
	if ver.Outcome != OutcomeVerified || ver.Rights == nil || !ver.Rights.AllPassed() {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if len(f.admins.items) != 0 {
		t.Error("verify endpoint must not record")
	}
}

func TestHandler_Record(t *testing.T) {
	f := newVerifyFixture()
	h := NewHandler(f.verifier, f.sched)
	rx := f.addRx(uuid.New(), "Amoxicillin", "tid")
	site := "deltoid"

	rec := httptest.NewRecorder()
	body := recordRequest{VerifyRequest: request(rx), Site: &site}
	c := echo.New().NewContext(jsonRequest(t, http.MethodPost, "/api/v1/administrations", body), rec)
	if err := h.Record(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res RecordResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Administration == nil || res.Administration.PerformerID != "nurse-1" || !res.PrescriptionCompleted {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if len(f.admins.items) != 1 {
		t.Errorf("expected one record, got %d", len(f.admins.items))
	}
}

func TestHandler_Record_Rejected(t *testing.T) {
	f := newVerifyFixture()
	h := NewHandler(f.verifier, f.sched)
	rx := f.addRx(uuid.New(), "Amoxicillin", "tid")
	req := request(rx)
	req.Route = "IV"

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(jsonRequest(t, http.MethodPost, "/api/v1/administrations", recordRequest{VerifyRequest: req}), rec)
	if err := h.Record(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
	var ver Verification
	json.Unmarshal(rec.Body.Bytes(), &ver)
	if ver.Reason != ReasonRightsFailed {
		t.Errorf("expected rights-failed, got %q", ver.Reason)
	}
	if len(f.admins.items) != 0 {
		t.Error("rejected attempt must not be recorded")
	}
}

func TestHandler_Skip(t *testing.T) {
	f := newVerifyFixture()
	h := NewHandler(f.verifier, f.sched)
	rx := f.addRx(uuid.New(), "Amoxicillin", "tid")

	tests := []struct {
		name string
		body SkipRequest
		code int
	}{
		{"missing reason", SkipRequest{PrescriptionID: rx.ID}, http.StatusBadRequest},
		{"unknown order", SkipRequest{PrescriptionID: uuid.New(), Reason: "refused"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := echo.New().NewContext(jsonRequest(t, http.MethodPost, "/", tt.body), httptest.NewRecorder())
			err := h.Skip(c)
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != tt.code {
				t.Errorf("expected %d, got %v", tt.code, err)
			}
		})
	}

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(jsonRequest(t, http.MethodPost, "/", SkipRequest{PrescriptionID: rx.ID, Reason: "refused"}), rec)
	if err := h.Skip(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if len(f.admins.items) != 1 || f.admins.items[0].Status != medication.AdminNotDone {
		t.Error("expected a not-done record")
	}
}

func TestHandler_GetSchedule(t *testing.T) {
	f := newVerifyFixture()
	h := NewHandler(f.verifier, f.sched)
	pid := uuid.New()
	f.addRx(pid, "Amoxicillin", "twice daily")

	get := func(id, days string) (*httptest.ResponseRecorder, error) {
		target := "/?days=" + days
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		c := echo.New().NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(id)
		return rec, h.GetSchedule(c)
	}

	for _, days := range []string{"0", "32", "abc"} {
		_, err := get(pid.String(), days)
		if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
			t.Errorf("days=%s: expected 400, got %v", days, err)
		}
	}
	if _, err := get("not-a-uuid", "1"); err == nil {
		t.Error("expected 400 for bad patient id")
	}

	rec, err := get(pid.String(), "3")
	if err != nil {
		t.Fatal(err)
	}
	var sched Schedule
	json.Unmarshal(rec.Body.Bytes(), &sched)
	if len(sched.Days) != 3 || len(sched.Days[0].Hours) != 2 {
		t.Errorf("unexpected schedule %s", rec.Body.String())
	}
}

func TestHandler_GetDue(t *testing.T) {
	f := newVerifyFixture()
	h := NewHandler(f.verifier, f.sched)
	pid := uuid.New()
	f.addRx(pid, "Amoxicillin", "qid")

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(pid.String())
	if err := h.GetDue(c); err != nil {
		t.Fatal(err)
	}
	var items []DueItem
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || len(items[0].Slots) != 4 {
		t.Errorf("unexpected due list %s", rec.Body.String())
	}
}
