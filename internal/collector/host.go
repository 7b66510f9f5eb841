package collector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/Eotel/go-machinist/model"
)

// CollectHostMetrics reads CPU, load, memory, disk and uptime figures.
// Sources that fail are skipped; their errors are joined into the result
// error while the remaining metrics are still returned.
func CollectHostMetrics(ctx context.Context, diskPath string) ([]model.Metric, error) {
	var (
		res  []model.Metric
		errs []error
	)
	add := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
		res = append(res, model.NewMetric(name, v).WithNamespace(HostNamespace))
	}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else if len(pct) > 0 {
		add("cpu_percent", pct[0])
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("load: %w", err))
	} else {
		add("load1", avg.Load1)
		add("load5", avg.Load5)
		add("load15", avg.Load15)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		add("memory_total", float64(vm.Total))
		add("memory_used", float64(vm.Used))
		add("memory_used_percent", vm.UsedPercent)
	}

	if sw, err := mem.SwapMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("swap: %w", err))
	} else if sw.Total > 0 {
		add("swap_used_percent", sw.UsedPercent)
	}

	if diskPath != "" {
		if du, err := disk.UsageWithContext(ctx, diskPath); err != nil {
			errs = append(errs, fmt.Errorf("disk %s: %w", diskPath, err))
		} else {
			add("disk_used_percent", du.UsedPercent)
			add("disk_free", float64(du.Free))
		}
	}

	if up, err := host.UptimeWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("uptime: %w", err))
	} else {
		add("uptime", float64(up))
	}

	return res, errors.Join(errs...)
}
