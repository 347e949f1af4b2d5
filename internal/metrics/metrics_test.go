package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, gatherer prometheus.Gatherer) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(gatherer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCollector_RecordsAndExposes(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)
	c.RecordRequestDuration(15 * time.Millisecond)
	c.RecordLoginSuccess("google")
	c.RecordLoginFailure("INVALID_CREDENTIAL")
	c.RecordRosterSync(42)
	c.RecordUpload("photo", 2048)

	body := scrape(t, registry)

	tests := []string{
		`hispanet_http_status_total{status_code="200"} 2`,
		`hispanet_http_status_total{status_code="404"} 1`,
		`hispanet_login_success_total{method="google"} 1`,
		`hispanet_login_fail_total{code="INVALID_CREDENTIAL"} 1`,
		`hispanet_roster_sync_total 1`,
		`hispanet_roster_users 42`,
		`hispanet_uploads_total{kind="photo"} 1`,
		`hispanet_upload_bytes_total 2048`,
	}

	for _, want := range tests {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestCollector_RosterUsersGaugeTracksLatest(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordRosterSync(50)
	c.RecordRosterSync(47) // 減ることもある（名簿から外れた場合）

	body := scrape(t, registry)
	if !strings.Contains(body, "hispanet_roster_users 47") {
		t.Error("gauge should track the latest sync count")
	}
	if !strings.Contains(body, "hispanet_roster_sync_total 2") {
		t.Error("sync counter should accumulate")
	}
}
