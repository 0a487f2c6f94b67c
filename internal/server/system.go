package server

import (
	"net/http"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/taqastore/storefront/internal/httputil"
)

// system reports host and process statistics for operators. Every probe is
// best effort: a failing collector becomes an "error" field instead of
// failing the whole response.
func (h *handler) system(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}

	if hostInfo, err := host.InfoWithContext(ctx); err != nil {
		info["host"] = map[string]interface{}{"error": err.Error()}
	} else {
		info["host"] = map[string]interface{}{
			"hostname":       hostInfo.Hostname,
			"os":             hostInfo.OS,
			"platform":       hostInfo.Platform,
			"kernel_version": hostInfo.KernelVersion,
			"uptime_seconds": hostInfo.Uptime,
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		info["memory"] = map[string]interface{}{"error": err.Error()}
	} else {
		info["memory"] = map[string]interface{}{
			"total_bytes":     vm.Total,
			"available_bytes": vm.Available,
			"used_percent":    vm.UsedPercent,
		}
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err != nil {
		info["cpu"] = map[string]interface{}{"error": err.Error()}
	} else {
		cpuInfo := map[string]interface{}{"cores": cores}
		if avg, err := load.AvgWithContext(ctx); err == nil {
			cpuInfo["load1"] = avg.Load1
			cpuInfo["load5"] = avg.Load5
			cpuInfo["load15"] = avg.Load15
		}
		info["cpu"] = cpuInfo
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	info["process"] = map[string]interface{}{
		"heap_alloc_bytes": stats.HeapAlloc,
		"num_gc":           stats.NumGC,
	}

	httputil.WriteJSON(w, http.StatusOK, info)
}
