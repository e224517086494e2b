package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/collector"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/config"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/core"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/storage"
)

type daemon struct {
	cfg    *config.Config
	core   *core.Core
	store  *storage.DB
	logger *slog.Logger

	power  *collector.PowerTracker
	screen *collector.ScreenTracker
	procs  *collector.ProcessCollector

	powerLog   *slog.Logger
	screenLog  *slog.Logger
	processLog *slog.Logger
	sleepLog   *slog.Logger

	// collectMu and hookMu serialize collection and hook log consumption
	// between the tick and wake paths.
	collectMu sync.Mutex
	hookMu    sync.Mutex
}

func newDaemon(cfg *config.Config, c *core.Core, store *storage.DB, logger *slog.Logger) *daemon {
	return &daemon{
		cfg:        cfg,
		core:       c,
		store:      store,
		logger:     logger,
		power:      collector.NewPowerTracker(c),
		screen:     collector.NewScreenTracker(c),
		procs:      collector.NewProcessCollector(int32(cfg.Collection.MinUID)),
		powerLog:   logger.With("topic", "power"),
		screenLog:  logger.With("topic", "screen"),
		processLog: logger.With("topic", "process"),
		sleepLog:   logger.With("topic", "sleep"),
	}
}

// start primes the gate from the current power and screen state, then
// credits any sleep periods logged while the daemon was not running.
func (d *daemon) start() {
	d.collect()
	d.importHookLog()
}

func (d *daemon) collectLoop(ctx context.Context) error {
	interval := time.Duration(d.cfg.Collection.IntervalSeconds) * time.Second
	jump := time.Duration(d.cfg.Collection.WallClockJumpThresholdSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTick := time.Now().Round(0) // Strip monotonic so Sub uses wall clock across suspend
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := time.Now().Round(0)
			if gap := now.Sub(lastTick); gap > interval+jump {
				d.logger.Info("wall-clock jump detected, re-reading hook log", "gap_secs", int(gap.Seconds()))
				d.importHookLog()
			}
			lastTick = now
			d.collect()
		}
	}
}

func (d *daemon) collect() {
	d.collectMu.Lock()
	defer d.collectMu.Unlock()

	if ps, err := collector.CollectPowerSource(); err == nil {
		if d.power.Apply(*ps) {
			d.powerLog.Info("power source changed",
				"on_battery", ps.OnBattery(),
				"status", ps.Status,
				"capacity_pct", ps.CapacityPct)
		}
	} else {
		d.powerLog.Debug("collect failed", "err", err)
	}

	if s, err := collector.CollectBacklight(); err == nil {
		d.screenLog.Debug("sample", "screen_on", s.ScreenOn(), "level", s.Level())
		d.screen.Apply(*s)
	} else {
		d.screenLog.Debug("collect failed", "err", err)
	}

	samples, err := d.procs.Collect()
	if err != nil {
		d.processLog.Debug("collect failed", "err", err)
		return
	}
	var total int64
	for _, s := range samples {
		total += s.TimeMs
		d.processLog.Debug("uid cpu", "uid", s.UID, "ticks", s.Ticks, "time_ms", s.TimeMs)
	}
	d.processLog.Info("sample", "uids", len(samples), "time_ms", total)
	collector.CreditCPU(d.core, samples)
}

func (d *daemon) computeLoop(ctx context.Context) error {
	compute := time.NewTicker(time.Duration(d.cfg.Collection.ComputeIntervalSeconds) * time.Second)
	defer compute.Stop()
	save := time.NewTicker(time.Duration(d.cfg.Collection.SaveIntervalSeconds) * time.Second)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-compute.C:
			d.core.ComputePower()
			d.recordHistory(time.Now().Unix())
		case <-save.C:
			d.core.SaveBatteryStatsData()
		}
	}
}

// recordHistory stores the current breakdown as consumption samples.
func (d *daemon) recordHistory(ts int64) {
	infos := d.core.GetBatteryStats()
	samples := make([]storage.PartSample, 0, len(infos))
	for _, info := range infos {
		samples = append(samples, storage.PartSample{
			Timestamp: ts,
			Category:  info.Category.String(),
			UID:       int(info.UID),
			PowerMah:  info.PowerMah,
		})
	}
	if err := d.store.InsertPartSamples(samples); err != nil {
		d.logger.Error("store consumption samples", "err", err, "topic", "persist")
	}
}

func (d *daemon) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(d.cfg.Cleanup.IntervalHours) * time.Hour)
	defer ticker.Stop()

	d.cleanup()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.cleanup()
		}
	}
}

func (d *daemon) cleanup() {
	cutoff := time.Now().AddDate(0, 0, -d.cfg.Cleanup.RetentionDays).Unix()
	deleted, err := d.store.DeleteOlderThan(cutoff)
	if err != nil {
		d.logger.Error("cleanup", "err", err, "topic", "cleanup")
		return
	}
	d.logger.Info("cleanup", "deleted_rows", deleted, "cutoff", cutoff, "topic", "cleanup")
}

func (d *daemon) sleepLoop(ctx context.Context) error {
	mon, err := collector.NewSleepMonitor(d.sleepLog)
	if err != nil {
		d.logger.Warn("sleep monitor unavailable", "err", err)
		<-ctx.Done()
		return nil
	}
	defer mon.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-mon.Sleep():
			d.sleepLog.Info("preparing for sleep, saving stats")
			d.core.ComputePower()
			d.core.SaveBatteryStatsData()
		case <-mon.Wake():
			d.sleepLog.Info("wake signal received, re-reading hook log")
			d.collect()
			d.importHookLog()
		}
	}
}

// importHookLog stores new power state events from the hook log and
// credits their sleep time. Events already stored are not credited again.
func (d *daemon) importHookLog() {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()

	events := collector.ConsumeHookLog(d.sleepLog, time.Now(), d.cfg.Storage.StateLogPath)
	if len(events) == 0 {
		d.sleepLog.Debug("no new power state events in hook log")
		return
	}
	var fresh []collector.PowerStateEvent
	for _, evt := range events {
		inserted, err := d.store.InsertPowerStateEvent(evt)
		if err != nil {
			d.logger.Error("store power state event", "err", err)
			continue
		}
		if !inserted {
			continue
		}
		fresh = append(fresh, evt)
		d.sleepLog.Info("imported power state event",
			"type", evt.Type,
			"start", evt.StartTime,
			"end", evt.EndTime,
			"suspend_secs", evt.SuspendSecs,
			"hibernate_secs", evt.HibernateSecs)
	}
	if ms := collector.CreditSleep(d.core, fresh); ms > 0 {
		d.sleepLog.Info("credited sleep time", "ms", ms)
	}
}
