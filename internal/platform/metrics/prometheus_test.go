package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_UsesRouteTemplate(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/patients/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/patients/:id", "404"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients/PAT-1", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/patients/:id", "404"))
	if after-before != 1 {
		t.Errorf("expected one request counted under the route template, got %v", after-before)
	}
}

func TestRecorders(t *testing.T) {
	okBefore := testutil.ToFloat64(patientMutations.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(patientMutations.WithLabelValues("error"))
	RecordMutation(nil)
	RecordMutation(errors.New("boom"))
	if testutil.ToFloat64(patientMutations.WithLabelValues("ok"))-okBefore != 1 ||
		testutil.ToFloat64(patientMutations.WithLabelValues("error"))-errBefore != 1 {
		t.Error("expected one ok and one error mutation")
	}

	SetPersistBacklog(3)
	if got := testutil.ToFloat64(persistBacklog); got != 3 {
		t.Errorf("expected backlog 3, got %v", got)
	}

	before := testutil.ToFloat64(bedCompensations)
	RecordBedCompensation()
	if testutil.ToFloat64(bedCompensations)-before != 1 {
		t.Error("expected compensation counted")
	}

	RecordAICall("summarize", nil, 10*time.Millisecond)
	if testutil.ToFloat64(aiRequests.WithLabelValues("summarize", "ok")) < 1 {
		t.Error("expected ai call counted")
	}
}

func TestHandler_Exposes(t *testing.T) {
	RecordAuditEntry("order.created")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "medflow_audit_entries_total") {
		t.Error("expected audit counter in scrape output")
	}
}
