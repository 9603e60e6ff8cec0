package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTenantResolution("ok")
	c.RecordTenantResolution("ok")
	c.RecordTenantResolution("not_found")
	c.RecordAuthFailure("invalid_token")
	c.RecordScopeDenial()
	c.RecordPoolCreated()
	c.RecordPoolEvicted()
	c.RecordHTTPStatus(200)
	c.RecordRequestDuration(30 * time.Millisecond)

	if got := testutil.ToFloat64(c.tenantResolutions.WithLabelValues("ok")); got != 2 {
		t.Errorf("tenant_resolutions{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.tenantResolutions.WithLabelValues("not_found")); got != 1 {
		t.Errorf("tenant_resolutions{not_found} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.authFailures.WithLabelValues("invalid_token")); got != 1 {
		t.Errorf("auth_failures{invalid_token} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.scopeDenials); got != 1 {
		t.Errorf("scope_denials = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.poolCreated); got != 1 {
		t.Errorf("pool_created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 1 {
		t.Errorf("http_status{200} = %v, want 1", got)
	}
}

func TestHandler_ExposesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordScopeDenial()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "fleetman_scope_denials_total 1") {
		t.Errorf("exposition should contain scope denial counter:\n%s", body)
	}
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering the same metrics twice should panic")
		}
	}()
	NewCollector(reg)
}
