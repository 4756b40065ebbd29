package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandler_ListForPatient(t *testing.T) {
	svc := newTestService()
	_ = svc.Record(context.Background(), NewEntry(nurse, "PAT-7", "vitals.recorded", EntityVitals, "V1", nil))
	_ = svc.Record(context.Background(), NewEntry(nurse, "PAT-8", "vitals.recorded", EntityVitals, "V2", nil))
	h := NewHandler(svc)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("PAT-7")

	if err := h.ListForPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Entry `json:"data"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Data[0].EntityID != "V1" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHandler_List_BadSince(t *testing.T) {
	h := NewHandler(newTestService())
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?since=yesterday", nil), httptest.NewRecorder())

	err := h.List(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
