package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eotel/go-machinist/model"
)

func TestCollectRuntimeMetrics(t *testing.T) {
	required := map[string]bool{
		"Alloc":     false,
		"GCSys":     false,
		"HeapAlloc": false,
		"PollCount": false,
	}

	metrics := CollectRuntimeMetrics()
	for _, m := range metrics {
		require.Equal(t, RuntimeNamespace, m.Namespace)
		if _, ok := required[m.Name]; ok {
			required[m.Name] = true
		}
	}
	for name, found := range required {
		require.True(t, found, "required metric %s not found", name)
	}

	poll1 := value(metrics, "PollCount")
	poll2 := value(CollectRuntimeMetrics(), "PollCount")
	require.Equal(t, poll1+1, poll2, "PollCount should increment by 1")
}

func TestResetPollCount(t *testing.T) {
	ResetPollCount()
	require.Equal(t, 1.0, value(CollectRuntimeMetrics(), "PollCount"))
}

func TestCollectHostMetrics_Smoke(t *testing.T) {
	metrics, err := CollectHostMetrics(context.Background(), t.TempDir())
	if err != nil {
		t.Logf("partial host metrics: %v", err)
	}

	seen := map[string]struct{}{}
	for _, m := range metrics {
		_, dup := seen[m.Name]
		require.False(t, dup, "duplicate metric %s", m.Name)
		seen[m.Name] = struct{}{}
		require.Equal(t, HostNamespace, m.Namespace)
	}
}

func value(metrics []model.Metric, name string) float64 {
	for _, m := range metrics {
		if m.Name == name {
			return m.DataPoint.Value
		}
	}
	return -1
}
