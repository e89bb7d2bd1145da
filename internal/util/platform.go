package util

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo describes the machine sourcequery runs on. Fields gopsutil
// cannot read are left at their runtime defaults.
type HostInfo struct {
	Hostname    string `json:"hostname"`
	OS          string `json:"os"`
	Arch        string `json:"arch"`
	CPUModel    string `json:"cpu_model"`
	CPUCores    int    `json:"cpu_cores"`
	MemoryBytes uint64 `json:"memory_bytes"`
	Uptime      uint64 `json:"uptime_sec"`
}

// GetHostInfo gathers static host details.
func GetHostInfo(ctx context.Context) HostInfo {
	info := HostInfo{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
	}
	info.Hostname, _ = os.Hostname()

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.OS = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
		info.Uptime = h.Uptime
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryBytes = vm.Total
	}
	return info
}

// Usage is a used/free reading of one resource in bytes.
type Usage struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage reads usage of the filesystem holding path.
func DiskUsage(ctx context.Context, path string) (Usage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return Usage{}, fmt.Errorf("disk usage of %s: %w", path, err)
	}
	return Usage{TotalBytes: u.Total, UsedBytes: u.Used, FreeBytes: u.Free, UsedPercent: u.UsedPercent}, nil
}

// HostLoad is a point-in-time reading of CPU, memory and disk.
type HostLoad struct {
	CPUPercent float64 `json:"cpu_percent"`
	Memory     *Usage  `json:"memory,omitempty"`
	Disk       *Usage  `json:"disk,omitempty"`
}

// GetHostLoad samples CPU over interval and reads memory and, when diskPath
// is set, disk usage. Readings that fail are omitted.
func GetHostLoad(ctx context.Context, interval time.Duration, diskPath string) HostLoad {
	var load HostLoad

	if pct, err := cpu.PercentWithContext(ctx, interval, false); err == nil && len(pct) > 0 {
		load.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		load.Memory = &Usage{
			TotalBytes:  vm.Total,
			UsedBytes:   vm.Used,
			FreeBytes:   vm.Available,
			UsedPercent: vm.UsedPercent,
		}
	}
	if diskPath != "" {
		if u, err := DiskUsage(ctx, diskPath); err == nil {
			load.Disk = &u
		}
	}
	return load
}
