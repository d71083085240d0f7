package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveCompileDuration(150 * time.Millisecond)
	pr.ObserveLoadDuration(5 * time.Millisecond)
	pr.IncBuildOutcome(BuildCompiled)
	pr.IncBuildOutcome(BuildCoalesced)
	pr.IncBuildOutcome(BuildCoalesced)
	pr.SetBundleSize(2048, 12)
	pr.IncSyncPhase("pull", ResultFailed)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
		switch mf.GetName() {
		case "sitebuilder_rebuild_requests_total":
			for _, m := range mf.GetMetric() {
				if m.GetLabel()[0].GetValue() == string(BuildCoalesced) && m.GetCounter().GetValue() != 2 {
					t.Fatalf("coalesced = %v, want 2", m.GetCounter().GetValue())
				}
			}
		case "sitebuilder_bundle_inputs":
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 12 {
				t.Fatalf("inputs = %v, want 12", got)
			}
		}
	}
	for _, name := range []string{"sitebuilder_compile_duration_seconds", "sitebuilder_bundle_bytes", "sitebuilder_sync_phases_total"} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncSyncPhase("push", ResultSuccess)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sitebuilder_sync_phases_total") {
		t.Fatalf("metrics body missing sync counter:\n%s", rec.Body.String())
	}
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncBuildOutcome(BuildFailed)
	r.SetBundleSize(1, 1)
}
