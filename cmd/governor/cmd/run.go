package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ocs-lab/governor/internal/bus"
	"github.com/ocs-lab/governor/internal/config"
	"github.com/ocs-lab/governor/internal/device"
	"github.com/ocs-lab/governor/internal/engine"
	"github.com/ocs-lab/governor/internal/logging"
	"github.com/ocs-lab/governor/internal/metrics"
	"github.com/ocs-lab/governor/internal/registry"
)

// httpShutdownGrace bounds how long the HTTP server and bus get to drain
// in-flight requests/events before shutdown proceeds unconditionally.
const httpShutdownGrace = 5 * time.Second

func run(cmd *cobra.Command, args []string) error {
	// configPaths comes straight from pflag.StringArrayVar: viper's
	// binding of repeated flags to a string slice is inconsistent across
	// flag value types, so the CLI-parsed slice is authoritative here
	// rather than round-tripping through viper.GetStringSlice.
	paths := configPaths
	if len(paths) == 0 {
		return fmt.Errorf("at least one --config is required")
	}
	doCheckConfig := viper.GetBool("check-config")

	stores, err := loadStores(paths, !doCheckConfig)
	if err != nil {
		if doCheckConfig {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return err
	}

	if doCheckConfig {
		fmt.Println("config ok")
		os.Exit(0)
	}

	logger := logging.New(logging.Config{
		Level:    viper.GetString("log-level"),
		Format:   viper.GetString("log-format"),
		Output:   outputMode(viper.GetString("log-file")),
		Filename: viper.GetString("log-file"),
		MaxSize:  100,
		MaxAge:   28,
		Compress: true,
	})

	var sync map[string][]string
	if syncFile := viper.GetString("sync"); syncFile != "" {
		sync, err = config.LoadSyncFile(syncFile)
		if err != nil {
			return fmt.Errorf("load sync file: %w", err)
		}
	}

	procPrefix := viper.GetString("prefix")
	m := metrics.New("governor")
	reg := registry.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, store := range stores {
		cfg := store.Config()
		faults := make(chan device.FaultEvent, 64)
		devices, err := device.BuildAll(cfg.Devices, faults)
		if err != nil {
			return fmt.Errorf("build devices for %s: %w", cfg.Name, err)
		}
		e := engine.New(cfg, devices, faults, store, logger, m)
		if err := reg.Register(cfg.Name, e); err != nil {
			return fmt.Errorf("register governor %s: %w", cfg.Name, err)
		}
	}

	b := bus.New(logger, m)
	adapter := registry.NewAdapter(reg, b, procPrefix, sync, logger)
	adapter.SetKillFunc(func() { os.Exit(0) })

	for _, name := range reg.Names() {
		e, _ := reg.Engine(name)
		e.SetObserver(adapter)
		e.Start(ctx)
	}

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("start bus: %w", err)
	}
	adapter.Start(ctx)

	if watchPath := viper.GetString("sync"); watchPath != "" {
		watcher, err := config.NewSyncWatcher(watchPath, logger)
		if err != nil {
			logger.Warn("sync file watcher disabled", "error", err)
		} else {
			go watcher.Watch(ctx, adapter.ReplaceSync)
		}
	}

	router := bus.NewHTTPServer(b, reg, adapter, logger)
	server := &http.Server{Addr: viper.GetString("http-addr"), Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	logger.Info("governor started", "governors", reg.Names(), "http_addr", viper.GetString("http-addr"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownGrace)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	adapter.Stop()
	for _, name := range reg.Names() {
		if e, ok := reg.Engine(name); ok {
			e.Stop()
		}
	}
	b.Stop(shutdownCtx)
	return nil
}

func loadStores(paths []string, requireTransitions bool) ([]*config.Store, error) {
	stores := make([]*config.Store, 0, len(paths))
	for _, path := range paths {
		store, err := config.Load(path, requireTransitions)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return stores, nil
}

func outputMode(logFile string) string {
	if logFile != "" {
		return "file"
	}
	return "stdout"
}
