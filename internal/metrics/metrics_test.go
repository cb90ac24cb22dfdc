package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily は指定名のメトリクスファミリーを返す。見つからない場合はnil。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// counterByLabels はラベル値の組に対応するカウンタ値を返す。
func counterByLabels(mf *dto.MetricFamily) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		var parts []string
		for _, l := range m.GetLabel() {
			parts = append(parts, l.GetValue())
		}
		out[strings.Join(parts, ",")] = m.GetCounter().GetValue()
	}
	return out
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordLedgerCall_CountsAndObserves は台帳呼び出しのカウンタとヒストグラムが記録されることを検証する。
func TestRecordLedgerCall_CountsAndObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLedgerCall("vote", "ok", 100*time.Millisecond)
	c.RecordLedgerCall("vote", "rule_violation", 2*time.Second)
	c.RecordLedgerCall("getUser", "ok", 10*time.Millisecond)

	mf := findMetricFamily(t, reg, "evote_ledger_calls_total")
	if mf == nil {
		t.Fatal("evote_ledger_calls_total metric not found")
	}
	got := counterByLabels(mf)
	if got["vote,ok"] != 1 || got["vote,rule_violation"] != 1 || got["getUser,ok"] != 1 {
		t.Errorf("ledger_calls_total = %v", got)
	}

	hist := findMetricFamily(t, reg, "evote_ledger_call_duration_seconds")
	if hist == nil {
		t.Fatal("evote_ledger_call_duration_seconds metric not found")
	}
	for _, m := range hist.GetMetric() {
		if m.GetLabel()[0].GetValue() != "vote" {
			continue
		}
		h := m.GetHistogram()
		if h.GetSampleCount() != 2 {
			t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
		}
		// 合計は0.1 + 2.0 = 2.1秒
		if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
			t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
		}
	}
}

// TestRecordOutcomes_IncrementsCounters は業務操作の結果カウンタが増加することを検証する。
func TestRecordOutcomes_IncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVote("ok")
	c.RecordVote("ok")
	c.RecordVote("error")
	c.RecordRegistration("ok")
	c.RecordLogin("error")
	c.RecordCandidateAdmitted("ok")

	tests := []struct {
		name  string
		label string
		want  float64
	}{
		{"evote_votes_total", "ok", 2},
		{"evote_votes_total", "error", 1},
		{"evote_registrations_total", "ok", 1},
		{"evote_logins_total", "error", 1},
		{"evote_candidates_admitted_total", "ok", 1},
	}
	for _, tt := range tests {
		mf := findMetricFamily(t, reg, tt.name)
		if mf == nil {
			t.Errorf("%s metric not found", tt.name)
			continue
		}
		if got := counterByLabels(mf)[tt.label]; got != tt.want {
			t.Errorf("%s{outcome=%s} = %v, want %v", tt.name, tt.label, got, tt.want)
		}
	}
}

// TestRecordUpload_CountsFilesAndBytes はアップロード数とバイト数が記録されることを検証する。
func TestRecordUpload_CountsFilesAndBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpload("images", 100)
	c.RecordUpload("docs", 50)

	uploads := findMetricFamily(t, reg, "evote_uploads_total")
	if uploads == nil {
		t.Fatal("evote_uploads_total metric not found")
	}
	got := counterByLabels(uploads)
	if got["images"] != 1 || got["docs"] != 1 {
		t.Errorf("uploads_total = %v", got)
	}

	bytes := findMetricFamily(t, reg, "evote_upload_bytes_total")
	if bytes == nil {
		t.Fatal("evote_upload_bytes_total metric not found")
	}
	if v := bytes.GetMetric()[0].GetCounter().GetValue(); v != 150 {
		t.Errorf("upload_bytes_total = %v, want 150", v)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスがラベル付きで記録されることを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)

	mf := findMetricFamily(t, reg, "evote_http_status_total")
	if mf == nil {
		t.Fatal("evote_http_status_total metric not found")
	}
	got := counterByLabels(mf)
	if len(got) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(got))
	}
	if got["200"] != 2 {
		t.Errorf("http_status_total{status_code=200} = %v, want 2", got["200"])
	}
	if got["409"] != 1 {
		t.Errorf("http_status_total{status_code=409} = %v, want 1", got["409"])
	}
}

// TestRecordSessionsPurged_AddsCount は削除セッション数が加算されることを検証する。
func TestRecordSessionsPurged_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsPurged(3)
	c.RecordSessionsPurged(0)
	c.RecordSessionsPurged(4)

	mf := findMetricFamily(t, reg, "evote_sessions_purged_total")
	if mf == nil {
		t.Fatal("evote_sessions_purged_total metric not found")
	}
	if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 7 {
		t.Errorf("sessions_purged_total = %v, want 7", v)
	}
}

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != "ok" {
		t.Errorf("Outcome(nil) = %q, want ok", got)
	}
	if got := Outcome(errors.New("boom")); got != "error" {
		t.Errorf("Outcome(err) = %q, want error", got)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLedgerCall("vote", "ok", 500*time.Millisecond)
	c.RecordVote("ok")
	c.RecordHTTPStatus(200)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	for _, metric := range []string{
		"evote_ledger_calls_total",
		"evote_ledger_call_duration_seconds",
		"evote_votes_total",
		"evote_http_status_total",
	} {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordVote("ok")
	c2.RecordVote("ok")
	c2.RecordVote("ok")

	v1 := counterByLabels(findMetricFamily(t, reg1, "evote_votes_total"))["ok"]
	v2 := counterByLabels(findMetricFamily(t, reg2, "evote_votes_total"))["ok"]
	if v1 != 1 {
		t.Errorf("reg1 votes = %v, want 1", v1)
	}
	if v2 != 2 {
		t.Errorf("reg2 votes = %v, want 2", v2)
	}
}
