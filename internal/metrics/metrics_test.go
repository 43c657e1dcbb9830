package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// counterValue はレジストリから指定カウンタの現在値を取り出すヘルパー。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestIncPresign_IncrementsCounter はpresignカウンタが増加することを検証する。
func TestIncPresign_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.IncPresign()
	c.IncPresign()

	if val := counterValue(t, reg, "medivox_presign_total"); val != 2 {
		t.Errorf("presign_total = %v, want 2", val)
	}
}

// TestIncChunkUpload_IncrementsCounter はチャンクアップロードカウンタが増加することを検証する。
func TestIncChunkUpload_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.IncChunkUpload()

	if val := counterValue(t, reg, "medivox_chunk_upload_total"); val != 1 {
		t.Errorf("chunk_upload_total = %v, want 1", val)
	}
}

// TestIncUploadFail_IncrementsCounter はアップロード失敗カウンタが増加することを検証する。
func TestIncUploadFail_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.IncUploadFail()
	c.IncUploadFail()
	c.IncUploadFail()

	if val := counterValue(t, reg, "medivox_upload_fail_total"); val != 3 {
		t.Errorf("upload_fail_total = %v, want 3", val)
	}
}

// TestIncSessionCompleted_IncrementsCounter はセッション完了カウンタが増加することを検証する。
func TestIncSessionCompleted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.IncSessionCompleted()

	if val := counterValue(t, reg, "medivox_sessions_completed_total"); val != 1 {
		t.Errorf("sessions_completed_total = %v, want 1", val)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "medivox_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
					}
				case "404":
					if val != 1 {
						t.Errorf("http_status_total{status_code=404} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("medivox_http_status_total metric not found")
	}
}

// TestObserveUploadPushLatency_ObservesHistogram は押し出しレイテンシのヒストグラムに値が記録されることを検証する。
func TestObserveUploadPushLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveUploadPushLatency(0.1)
	c.ObserveUploadPushLatency(2.0)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "medivox_upload_push_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("medivox_upload_push_latency_seconds metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.IncPresign()
	c.IncChunkUpload()
	c.IncUploadFail()
	c.RecordHTTPStatus(200)
	c.ObserveUploadPushLatency(0.5)

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

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"medivox_presign_total",
		"medivox_chunk_upload_total",
		"medivox_upload_fail_total",
		"medivox_http_status_total",
		"medivox_upload_push_latency_seconds",
	}

	for _, metric := range expectedMetrics {
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

	c1.IncPresign()
	c2.IncPresign()
	c2.IncPresign()

	if val := counterValue(t, reg1, "medivox_presign_total"); val != 1 {
		t.Errorf("reg1 presign = %v, want 1", val)
	}
	if val := counterValue(t, reg2, "medivox_presign_total"); val != 2 {
		t.Errorf("reg2 presign = %v, want 2", val)
	}
}
