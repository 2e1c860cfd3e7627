package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"epgviewer/core"
	"epgviewer/internal/cache"
	"epgviewer/internal/mirror"
	"epgviewer/internal/tracing"
)

var (
	configDir    = flag.String("config", "", "config/data directory (default: $HOME/.epgviewer)")
	port         = flag.String("port", "", "HTTP listen port (default: from settings, or $PORT, 3333)")
	debug        = flag.Int("debug", 0, "debug level [0-3]")
	otelExporter = flag.String("otel-exporter", "", "OTel exporter: stdout, otlp, otlp-http, none (default: none)")
	version      = flag.Bool("version", false, "show version and exit")
	h            = flag.Bool("h", false, "show help")
)

func main() {
	if err := run(); err != nil {
		log.Fatalln(err)
	}
}

func run() error {
	flag.Parse()

	if *h {
		flag.Usage()
		return nil
	}
	if *version {
		fmt.Printf("%s %s\n", core.System.Name, core.System.Version)
		return nil
	}

	core.System.Debug = *debug

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exporterType := tracing.ExporterType(*otelExporter)
	if exporterType == "" {
		exporterType = tracing.ExporterType(os.Getenv("OTEL_EXPORTER_TYPE"))
	}
	if exporterType == "" {
		exporterType = tracing.ExporterTypeNone
	}
	otelShutdown, err := tracing.SetupOTelSDK(ctx, exporterType)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		err = errors.Join(err, otelShutdown(context.Background()))
	}()

	if err := core.Bootstrap(*configDir, false); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	settings, err := core.LoadSettingsStore(core.System.File.Settings)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	snap := settings.Snapshot()

	addr := ":" + snap.Settings.Port
	if envPort := os.Getenv("PORT"); envPort != "" {
		addr = ":" + envPort
	}
	if *port != "" {
		addr = ":" + *port
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	mirrorStore := mirror.New(core.System.VFS, core.System.Folder.Mirror, httpClient, snap.Settings.UserAgent, func(msg string) { fmt.Println("[mirror]", msg) })
	mirrorStore.SetRetention(mirror.RetentionPolicy{
		MaxAge:  time.Duration(snap.Settings.HistoryRetentionDays) * 24 * time.Hour,
		KeepMax: snap.Settings.KeepMaxSnapshots,
	})

	scheduleCache := cache.New(core.System.VFS, core.System.Folder.Schedules, func(msg string) { fmt.Println("[cache]", msg) })
	prewarm := core.NewPrewarmScheduler(mirrorStore, core.System.Folder.Exports)

	server := core.NewServer(settings, mirrorStore, scheduleCache, prewarm)

	return server.Run(ctx, addr)
}
