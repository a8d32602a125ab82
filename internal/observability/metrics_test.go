package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	// Get metrics instance
	m := GetMetrics()

	// Test that metrics are initialized
	if m.ItemsCollected == nil {
		t.Error("ItemsCollected metric not initialized")
	}
	if m.ModelCalls == nil {
		t.Error("ModelCalls metric not initialized")
	}
	if m.RunsTotal == nil {
		t.Error("RunsTotal metric not initialized")
	}

	// Test incrementing counters
	m.RunsTotal.Inc()
	if testutil.ToFloat64(m.RunsTotal) != 1 {
		t.Errorf("expected RunsTotal to be 1, got %f", testutil.ToFloat64(m.RunsTotal))
	}

	m.ItemsFresh.Inc()
	if testutil.ToFloat64(m.ItemsFresh) != 1 {
		t.Errorf("expected ItemsFresh to be 1, got %f", testutil.ToFloat64(m.ItemsFresh))
	}

	// Test counter vecs
	m.ItemsCollected.WithLabelValues("CVE").Add(12)
	m.ItemsCollected.WithLabelValues("NEWS").Inc()

	cveCount := testutil.ToFloat64(m.ItemsCollected.WithLabelValues("CVE"))
	if cveCount != 12 {
		t.Errorf("expected CVE collected to be 12, got %f", cveCount)
	}

	newsCount := testutil.ToFloat64(m.ItemsCollected.WithLabelValues("NEWS"))
	if newsCount != 1 {
		t.Errorf("expected NEWS collected to be 1, got %f", newsCount)
	}

	m.Classifications.WithLabelValues("model").Inc()
	m.Classifications.WithLabelValues("fallback").Add(3)

	fallbackCount := testutil.ToFloat64(m.Classifications.WithLabelValues("fallback"))
	if fallbackCount != 3 {
		t.Errorf("expected fallback classifications to be 3, got %f", fallbackCount)
	}
}

func TestMetricsSingleton(t *testing.T) {
	// Verify that GetMetrics returns the same instance
	m1 := GetMetrics()
	m2 := GetMetrics()

	if m1 != m2 {
		t.Error("GetMetrics should return the same instance")
	}
}

func TestHistograms(t *testing.T) {
	m := GetMetrics()

	// Observe some durations
	m.ModelCallDuration.Observe(0.8)
	m.ModelCallDuration.Observe(4.2)
	m.StageDuration.WithLabelValues("SCORING").Observe(0.02)

	// Verify histograms exist and can be observed
	// Note: We can't easily verify count with testutil for histograms
	// Just verify it doesn't panic
	if m.ModelCallDuration == nil {
		t.Error("ModelCallDuration histogram not initialized")
	}
	if m.StageDuration == nil {
		t.Error("StageDuration histogram not initialized")
	}
}
