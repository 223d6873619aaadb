package server

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
)

// HostStats describes the machine the sync process runs on.
type HostStats struct {
	Hostname    string    `json:"hostname"`
	OS          string    `json:"os"`
	UptimeSec   uint64    `json:"uptime_sec"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemUsage    float64   `json:"mem_usage"`
	DiskUsage   float64   `json:"disk_usage"`
	RxBytes     int64     `json:"rx_bytes"` // bytes/s since last snapshot
	TxBytes     int64     `json:"tx_bytes"` // bytes/s since last snapshot
	Goroutines  int       `json:"goroutines"`
	CollectedAt time.Time `json:"collected_at"`
}

// hostCollector gathers HostStats. Errors from individual probes leave the
// field zero; the status page is best effort.
type hostCollector struct {
	mu          sync.Mutex
	prevRx      uint64
	prevTx      uint64
	prevTime    time.Time
	initialized bool
}

func (c *hostCollector) Collect(ctx context.Context) HostStats {
	snap := HostStats{
		OS:          runtime.GOOS,
		Goroutines:  runtime.NumGoroutine(),
		CollectedAt: time.Now(),
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Hostname = info.Hostname
		snap.UptimeSec = info.Uptime
		if info.Platform != "" {
			snap.OS = info.Platform
			if info.PlatformVersion != "" {
				snap.OS = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
			}
		}
	}

	// zero interval compares against the previous call
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		snap.CPUUsage = pcts[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemUsage = vm.UsedPercent
	}
	if usage, err := disk.UsageWithContext(ctx, rootPath()); err == nil {
		snap.DiskUsage = usage.UsedPercent
	}

	snap.RxBytes, snap.TxBytes = c.netBandwidth(ctx)
	return snap
}

func rootPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

// netBandwidth computes bytes/s since the last call from IOCounters deltas.
func (c *hostCollector) netBandwidth(ctx context.Context) (rxBps, txBps int64) {
	stats, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil || len(stats) == 0 {
		return 0, 0
	}
	now := time.Now()
	curRx := stats[0].BytesRecv
	curTx := stats[0].BytesSent

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized && curRx >= c.prevRx && curTx >= c.prevTx {
		if dt := now.Sub(c.prevTime).Seconds(); dt > 0 {
			rxBps = int64(float64(curRx-c.prevRx) / dt)
			txBps = int64(float64(curTx-c.prevTx) / dt)
		}
	}

	c.prevRx = curRx
	c.prevTx = curTx
	c.prevTime = now
	c.initialized = true
	return rxBps, txBps
}
