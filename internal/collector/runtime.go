// Package collector samples the metrics the agent reports.
package collector

import (
	"runtime"
	"sync/atomic"

	"github.com/Eotel/go-machinist/model"
)

const (
	RuntimeNamespace = "runtime"
	HostNamespace    = "host"
)

var pollCount atomic.Int64

// CollectRuntimeMetrics reads Go memory statistics of the current process.
func CollectRuntimeMetrics() []model.Metric {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	n := pollCount.Add(1)

	gauges := []struct {
		name  string
		value float64
	}{
		{"Alloc", float64(m.Alloc)},
		{"TotalAlloc", float64(m.TotalAlloc)},
		{"Sys", float64(m.Sys)},
		{"Mallocs", float64(m.Mallocs)},
		{"Frees", float64(m.Frees)},
		{"HeapAlloc", float64(m.HeapAlloc)},
		{"HeapInuse", float64(m.HeapInuse)},
		{"HeapObjects", float64(m.HeapObjects)},
		{"StackInuse", float64(m.StackInuse)},
		{"GCSys", float64(m.GCSys)},
		{"NumGC", float64(m.NumGC)},
		{"PauseTotalNs", float64(m.PauseTotalNs)},
		{"GCCPUFraction", m.GCCPUFraction},
		{"NumGoroutine", float64(runtime.NumGoroutine())},
		{"PollCount", float64(n)},
	}

	res := make([]model.Metric, 0, len(gauges))
	for _, g := range gauges {
		res = append(res, model.NewMetric(g.name, g.value).WithNamespace(RuntimeNamespace))
	}
	return res
}

// ResetPollCount restarts the PollCount sequence.
func ResetPollCount() {
	pollCount.Store(0)
}
