package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/accounting"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/config"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/core"
	dbussvc "github.com/cptspacemanspiff/gnome-battery-stats/internal/dbus"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/logging"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/profile"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/storage"
)

const defaultConfigPath = "/etc/battery-stats/config.toml"

func main() {
	configPath := pflag.StringP("config", "c", defaultConfigPath, "path to the TOML configuration file")
	verbose := pflag.BoolP("verbose", "v", false, "enable all verbose logging (equivalent to --log=all)")
	logFlag := pflag.String("log", "", "comma-separated log topics: power,screen,process,sleep,profile,persist,cleanup (or 'all')")
	resetDB := pflag.Bool("reset-db", false, "delete the database and start fresh")
	dump := pflag.Bool("dump", false, "print the saved statistics and exit")
	pflag.Parse()

	cfg, cfgErr := loadConfig(*configPath)
	if cfg == nil {
		slog.Error("load config", "path", *configPath, "err", cfgErr)
		os.Exit(1)
	}

	topics := logging.ParseTopics(append(cfg.Log.Topics, *logFlag)...)
	if *verbose {
		topics["all"] = true
	}
	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			slog.Error("create log dir", "err", err)
			os.Exit(1)
		}
		file := logging.NewFileWriter(cfg.Log.File)
		defer file.Close()
		out = io.MultiWriter(os.Stderr, file)
	}
	logger := logging.New(out, topics)
	if cfgErr != nil {
		logger.Info("using default config", "path", *configPath, "reason", cfgErr)
	}

	dbPath := cfg.Storage.DBPath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("create data dir", "err", err)
		os.Exit(1)
	}

	if *resetDB {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
				logger.Error("delete database", "err", err)
				os.Exit(1)
			}
		}
		logger.Info("database deleted", "path", dbPath)
		return
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	profiles := profile.NewHolder(logger)
	profiles.Init(cfg.Profile.Path)

	stats := core.New(accounting.NewGate(), profiles, store, logger)
	stats.LoadBatteryStatsData()

	if *dump {
		stats.ComputePower()
		profiles.Get().DumpInfo(os.Stdout)
		stats.DumpInfo(os.Stdout)
		return
	}

	svc := dbussvc.NewService(stats, store)
	conn, err := svc.Export()
	if err != nil {
		logger.Error("export dbus service", "err", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("D-Bus service registered", "name", dbussvc.BusName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := newDaemon(cfg, stats, store, logger)
	d.start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.collectLoop(ctx) })
	g.Go(func() error { return d.computeLoop(ctx) })
	g.Go(func() error { return d.cleanupLoop(ctx) })
	g.Go(func() error { return d.sleepLoop(ctx) })
	if cfg.Profile.Watch {
		g.Go(func() error {
			if err := profiles.Watch(ctx, cfg.Profile.Path); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("profile watch stopped", "err", err, "topic", "profile")
			}
			return nil
		})
	}

	logger.Info("battery-stats-daemon started", "interval_secs", cfg.Collection.IntervalSeconds)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon stopped", "err", err)
	}

	logger.Info("shutting down")
	stats.ComputePower()
	stats.SaveBatteryStatsData()
}

// loadConfig reads path, falling back to defaults when it does not exist.
// A nil config means the file exists but is invalid.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		return config.DefaultConfig(), err
	}
	return nil, err
}
