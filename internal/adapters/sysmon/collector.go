package sysmon

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
	"github.com/halnode/rtl-bridge/internal/ingest"
)

// cpuTempSensorPrefixes are the hwmon sensor names that report the CPU
// package temperature across common boards (Intel, AMD, Raspberry Pi).
var cpuTempSensorPrefixes = []string{"coretemp", "k10temp", "cpu_thermal", "cpu-thermal"}

// Sink receives system measurements from the collector.
// Satisfied by *ingest.Queue.
type Sink interface {
	TryEnqueue(ev ingest.RawEvent) bool
}

// Logger defines the logging interface used by the collector.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Collector periodically samples host health and feeds it into the
// event pipeline as system-channel events. The bridge thereby monitors
// itself with the same machinery it uses for sensors, and the readings
// surface in Home Assistant as diagnostic entities.
type Collector struct {
	cfg      config.SystemMonConfig
	sink     Sink
	logger   Logger
	diskPath string
}

// NewCollector creates a system monitor sampling at the configured
// interval.
func NewCollector(cfg config.SystemMonConfig, sink Sink) *Collector {
	return &Collector{
		cfg:      cfg,
		sink:     sink,
		logger:   noopLogger{},
		diskPath: "/",
	}
}

// SetLogger sets the logger for the collector.
func (c *Collector) SetLogger(logger Logger) {
	c.logger = logger
}

// Run samples immediately and then on every interval tick until the
// context is cancelled.
func (c *Collector) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.Interval) * time.Second

	c.sample()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("system monitor stopped")
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *Collector) sample() {
	fields := c.collect()
	if len(fields) == 0 {
		return
	}

	ev := ingest.RawEvent{
		Channel:    ingest.ChannelSystem,
		Fields:     fields,
		ReceivedAt: time.Now(),
	}
	if !c.sink.TryEnqueue(ev) {
		c.logger.Warn("event queue full, shedding system sample")
	}
}

// collect gathers whatever host metrics are readable. Individual probe
// failures drop that field rather than the whole sample; a headless
// box without temperature sensors still reports CPU and memory.
func (c *Collector) collect() map[string]any {
	fields := make(map[string]any, 6)

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		fields["cpu_percent"] = round2(percents[0])
	} else if err != nil {
		c.logger.Debug("cpu sample failed", "error", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		fields["memory_percent"] = round2(vm.UsedPercent)
	} else {
		c.logger.Debug("memory sample failed", "error", err)
	}

	if du, err := disk.Usage(c.diskPath); err == nil {
		fields["disk_percent"] = round2(du.UsedPercent)
	} else {
		c.logger.Debug("disk sample failed", "error", err)
	}

	if uptime, err := host.Uptime(); err == nil {
		fields["uptime_s"] = float64(uptime)
	} else {
		c.logger.Debug("uptime sample failed", "error", err)
	}

	if temp, ok := cpuTemperature(); ok {
		fields["cpu_temperature"] = round2(temp)
	}

	return fields
}

// cpuTemperature finds the CPU package temperature among the host's
// sensors, if any.
func cpuTemperature() (float64, bool) {
	sensors, err := host.SensorsTemperatures()
	if err != nil {
		return 0, false
	}
	for _, s := range sensors {
		for _, prefix := range cpuTempSensorPrefixes {
			if strings.HasPrefix(s.SensorKey, prefix) && s.Temperature > 0 {
				return s.Temperature, true
			}
		}
	}
	return 0, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
