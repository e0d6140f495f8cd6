package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"hoststatus/internal/domain"
	"hoststatus/internal/summarizer"
)

const (
	defaultDiskPath   = "/"
	cpuSampleInterval = time.Second
	unavailableValue  = "unavailable"
	bytesInGigabyte   = 1 << 30
	secondsInHour     = 3600
)

// SystemStats reads host telemetry. The default implementation uses gopsutil.
type SystemStats interface {
	Host(ctx context.Context) (*host.InfoStat, error)
	CPUInfo(ctx context.Context) ([]cpu.InfoStat, error)
	CPUCount(ctx context.Context) (int, error)
	CPUPercent(ctx context.Context, interval time.Duration) ([]float64, error)
	Memory(ctx context.Context) (*mem.VirtualMemoryStat, error)
	Disk(ctx context.Context, path string) (*disk.UsageStat, error)
}

type gopsutilStats struct{}

func (gopsutilStats) Host(ctx context.Context) (*host.InfoStat, error) {
	return host.InfoWithContext(ctx)
}

func (gopsutilStats) CPUInfo(ctx context.Context) ([]cpu.InfoStat, error) {
	return cpu.InfoWithContext(ctx)
}

func (gopsutilStats) CPUCount(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

func (gopsutilStats) CPUPercent(ctx context.Context, interval time.Duration) ([]float64, error) {
	return cpu.PercentWithContext(ctx, interval, false)
}

func (gopsutilStats) Memory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (gopsutilStats) Disk(ctx context.Context, path string) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, path)
}

// SystemCollector builds the host telemetry snapshot.
type SystemCollector struct {
	stats    SystemStats
	diskPath string
	log      *slog.Logger
}

type SystemOption func(*SystemCollector)

func WithSystemStats(stats SystemStats) SystemOption {
	return func(c *SystemCollector) {
		if stats != nil {
			c.stats = stats
		}
	}
}

func WithDiskPath(path string) SystemOption {
	return func(c *SystemCollector) {
		if strings.TrimSpace(path) != "" {
			c.diskPath = path
		}
	}
}

func NewSystemCollector(log *slog.Logger, opts ...SystemOption) *SystemCollector {
	c := &SystemCollector{
		stats:    gopsutilStats{},
		diskPath: defaultDiskPath,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect reads every field in a fixed order. A field that cannot be read is
// reported as unavailable instead of failing the whole snapshot.
func (c *SystemCollector) Collect(ctx context.Context) (summarizer.Input, error) {
	var snapshot domain.Snapshot

	hostInfo, hostErr := c.stats.Host(ctx)
	c.warn(ctx, "host", hostErr)

	snapshot.Add("OS", c.value(hostErr, func() string { return formatOS(hostInfo) }))
	snapshot.Add("Hostname", c.value(hostErr, func() string { return hostInfo.Hostname }))
	snapshot.Add("Uptime", c.value(hostErr, func() string {
		return fmt.Sprintf("%.1f hours", float64(hostInfo.Uptime)/secondsInHour)
	}))

	cpuInfo, cpuInfoErr := c.stats.CPUInfo(ctx)
	c.warn(ctx, "cpuInfo", cpuInfoErr)
	cores, coresErr := c.stats.CPUCount(ctx)
	c.warn(ctx, "cpuCount", coresErr)

	snapshot.Add("CPU", formatCPU(cpuInfo, cpuInfoErr, cores, coresErr))

	percent, percentErr := c.stats.CPUPercent(ctx, cpuSampleInterval)
	if percentErr == nil && len(percent) == 0 {
		percentErr = errors.New("no CPU samples")
	}
	c.warn(ctx, "cpuPercent", percentErr)

	snapshot.Add("CPU Usage", c.value(percentErr, func() string { return formatPercent(percent[0]) }))

	memory, memErr := c.stats.Memory(ctx)
	c.warn(ctx, "memory", memErr)

	snapshot.Add("Memory", c.value(memErr, func() string { return formatGigabytes(memory.Total) }))
	snapshot.Add("Memory Usage", c.value(memErr, func() string { return formatPercent(memory.UsedPercent) }))

	usage, diskErr := c.stats.Disk(ctx, c.diskPath)
	c.warn(ctx, "disk", diskErr)

	snapshot.Add("Disk", c.value(diskErr, func() string { return formatGigabytes(usage.Total) }))
	snapshot.Add("Disk Usage", c.value(diskErr, func() string { return formatPercent(usage.UsedPercent) }))

	if err := ctx.Err(); err != nil {
		return summarizer.Input{}, fmt.Errorf("collect system snapshot: %w", err)
	}

	c.log.InfoContext(ctx, "System snapshot is collected",
		"fieldCount", snapshot.Len(),
		"diskPath", c.diskPath)

	return summarizer.Input{Snapshot: snapshot}, nil
}

func (c *SystemCollector) value(err error, format func() string) string {
	if err != nil {
		return unavailableValue
	}
	return format()
}

func (c *SystemCollector) warn(ctx context.Context, source string, err error) {
	if err == nil {
		return
	}

	c.log.WarnContext(ctx, "Failed to read system stat",
		"error", err,
		"source", source)
}

func formatOS(info *host.InfoStat) string {
	name := strings.TrimSpace(strings.Join([]string{info.Platform, info.PlatformVersion}, " "))
	if name == "" {
		name = info.OS
	}

	details := make([]string, 0, 2)
	if info.OS != "" && info.OS != name {
		details = append(details, info.OS)
	}
	if info.KernelVersion != "" {
		details = append(details, "kernel "+info.KernelVersion)
	}
	if info.KernelArch != "" {
		details = append(details, info.KernelArch)
	}

	if len(details) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(details, ", "))
}

func formatCPU(info []cpu.InfoStat, infoErr error, cores int, coresErr error) string {
	model := ""
	if infoErr == nil && len(info) > 0 {
		model = strings.TrimSpace(info[0].ModelName)
	}

	switch {
	case model != "" && coresErr == nil:
		return fmt.Sprintf("%s (%d cores)", model, cores)
	case model != "":
		return model
	case coresErr == nil:
		return fmt.Sprintf("%d cores", cores)
	default:
		return unavailableValue
	}
}

func formatGigabytes(bytes uint64) string {
	return fmt.Sprintf("%.2f GB", float64(bytes)/bytesInGigabyte)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
