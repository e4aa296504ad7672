package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"calconv/internal/config"
	"calconv/internal/ics"
	appLog "calconv/internal/log"
	"calconv/internal/refresh"
	"calconv/internal/service"
	"calconv/internal/web"
)

const version = "1.0.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	debug      bool
	converter  string
	convertURL string
}

func main() {
	flags := parseFlags()

	// A missing .env file is fine; explicit environment always wins.
	if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Error("failed to load env file", err, "path", flags.envFile)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()

	// CLI --listen overrides config and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	level, ok := appLog.ParseLevel(conf.LogLevel)
	if !ok {
		appLog.Warn("unknown log level; using INFO", "log_level", conf.LogLevel)
	}
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	fetcher := ics.NewFetcher(conf.CacheDir, conf.FetchTimeout)
	svc := service.New(fetcher, service.ConvertersFromConfig(conf))

	if flags.convertURL != "" {
		os.Exit(runOnce(svc, flags.converter, flags.convertURL))
	}

	appLog.Info("calconv starting",
		"version", version,
		"listen", conf.Listen,
		"converters", svc.Names(),
		"cache_dir", conf.CacheDir,
		"fetch_timeout", conf.FetchTimeout,
		"prefetch_count", len(conf.Prefetch),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if conf.Refresh != "" && len(conf.Prefetch) > 0 {
		sources := make([]ics.Source, 0, len(conf.Prefetch))
		for _, p := range conf.Prefetch {
			sources = append(sources, ics.Source{ID: p.Converter, URL: p.URL})
		}
		sched, err := refresh.New(conf.Refresh, fetcher, sources)
		if err != nil {
			appLog.Error("failed to create prefetch scheduler", err)
			os.Exit(1)
		}
		if err := sched.Start(ctx); err != nil {
			appLog.Error("failed to start prefetch scheduler", err)
			os.Exit(1)
		}
		defer sched.Stop()
		go sched.RunOnce(ctx)
	}

	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, svc).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Conversions wait on the upstream fetch.
		WriteTimeout: conf.FetchTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		appLog.Error("HTTP server error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
	appLog.Info("calconv exiting")
}

// runOnce converts a single feed to stdout and returns the exit code.
func runOnce(svc *service.Service, converter, url string) int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	out, err := svc.Convert(ctx, converter, url)
	if err != nil {
		appLog.Error("conversion failed", err, "converter", converter, "url", appLog.RedactURL(url), "kind", service.KindOf(err))
		return 1
	}
	fmt.Print(out)
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config/calconv.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Path to an optional env file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&cfg.converter, "c", "somtoday", "Converter used with -convert")
	flag.StringVar(&cfg.convertURL, "convert", "", "Convert one calendar URL to stdout and exit")

	flag.Parse()

	return cfg
}
