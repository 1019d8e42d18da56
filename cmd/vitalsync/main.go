// Vitalsync is a daemon that pulls vital readings from a wearable gateway
// into a local cache, serves merged views to listeners, and reconciles the
// cache against the vitals backend.
//
// Usage:
//
//	vitalsync setup                      # interactive first-run wizard
//	vitalsync daemon [--config <path>]   # start polling + gateway event listener
//	vitalsync sync-once [--config ...]   # single sync pass then exit
//	vitalsync history --vital <type>     # show the cached daily series
//	vitalsync status                     # show config, cache, and device state
//	vitalsync logout                     # wipe the local cache
//	vitalsync version                    # print version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njoerd114/vitalsync/internal/config"
	"github.com/njoerd114/vitalsync/internal/device"
	"github.com/njoerd114/vitalsync/internal/model"
	"github.com/njoerd114/vitalsync/internal/remote"
	"github.com/njoerd114/vitalsync/internal/setup"
	"github.com/njoerd114/vitalsync/internal/sleep"
	"github.com/njoerd114/vitalsync/internal/store"
	syncp "github.com/njoerd114/vitalsync/internal/sync"
	"github.com/njoerd114/vitalsync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "setup":
		return runSetup()
	case "daemon":
		return runSync(os.Args[2:], true)
	case "sync-once":
		return runSync(os.Args[2:], false)
	case "history":
		return runHistory(os.Args[2:])
	case "status":
		return runStatus()
	case "logout":
		return runLogout(os.Args[2:])
	case "version":
		fmt.Println("vitalsync", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q — run 'vitalsync' for usage", cmd)
	}
}

// printUsage shows help and suggests setup if no config exists.
func printUsage() error {
	cfgPath, _ := config.DefaultPath()
	_, cfgErr := os.Stat(cfgPath)

	fmt.Fprintln(os.Stderr, "vitalsync — sync wearable vitals with your backend")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  vitalsync setup                      Interactive first-run wizard")
	fmt.Fprintln(os.Stderr, "  vitalsync daemon [--config ...]      Run as continuous daemon")
	fmt.Fprintln(os.Stderr, "  vitalsync sync-once [--config ...]   Single sync pass then exit")
	fmt.Fprintln(os.Stderr, "  vitalsync history --vital <type>     Show the cached daily series")
	fmt.Fprintln(os.Stderr, "  vitalsync status                     Show config, cache, and device state")
	fmt.Fprintln(os.Stderr, "  vitalsync logout                     Wipe the local cache")
	fmt.Fprintln(os.Stderr, "  vitalsync version                    Print version")
	fmt.Fprintln(os.Stderr, "")

	if cfgErr != nil {
		fmt.Fprintln(os.Stderr, "No config file found. Run 'vitalsync setup' to get started.")
	}

	os.Exit(1)
	return nil // unreachable
}

// --- Subcommands -------------------------------------------------------------

// runSetup launches the interactive setup wizard.
func runSetup() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	wiz := setup.NewWizard(os.Stdin, os.Stdout, logger)
	return wiz.Run(ctx)
}

// runSync handles both "daemon" and "sync-once" subcommands.
func runSync(args []string, daemon bool) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	vitalName := fs.String("vital", "", "sync only this vital type (sync-once only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *vitalName != "" && daemon {
		return fmt.Errorf("--vital is only supported with sync-once")
	}

	return startSync(*cfgPath, *verbose, daemon, model.VitalType(*vitalName))
}

// logListener logs sync results. The daemon has no UI; anything that wants
// live data (a widget, a menu bar app) registers its own Listener.
type logListener struct {
	log *slog.Logger
}

func (l *logListener) OnLocalDataReady(vital model.VitalType, readings []model.Reading) {
	l.log.Info("local data ready", "vital", vital, "readings", len(readings))
}

func (l *logListener) OnRemoteReconciled(vital model.VitalType, readings []model.Reading) {
	l.log.Info("remote reconciled", "vital", vital, "readings", len(readings))
}

func (l *logListener) OnSyncFailed(vital model.VitalType, reason string) {
	l.log.Warn("sync failed", "vital", vital, "reason", reason)
}

// startSync is the shared implementation for daemon and sync-once modes. A
// non-empty only restricts a sync-once pass to that single vital.
func startSync(cfgPath string, verbose, daemon bool, only model.VitalType) error {
	// --- Logger --------------------------------------------------------------

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// --- Config --------------------------------------------------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}
	vitals := cfg.EnabledVitals()
	logger.Info("config loaded",
		"backend_url", cfg.BackendURL,
		"gateway_url", cfg.GatewayURL,
		"poll_interval", cfg.PollInterval,
		"vitals", len(vitals),
	)

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	// --- Local cache ---------------------------------------------------------

	dbPath, err := store.DefaultDBPath()
	if err != nil {
		return fmt.Errorf("resolving cache path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening cache at %q: %w", dbPath, err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("closing cache", "error", closeErr)
		}
	}()
	logger.Info("cache opened", "path", dbPath)

	// --- Adapters ------------------------------------------------------------

	gateway := device.NewAdapter(cfg.GatewayURL, logger)
	backend := remote.NewClient(cfg.BackendURL, cfg.BackendToken, cfg.UserID, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	logger.Info("pinging backend…", "url", cfg.BackendURL)
	if err := backend.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to backend at %q: %w\n\nCheck backend_url and backend_token in your config file", cfg.BackendURL, err)
	}
	logger.Info("backend reachable")

	// --- First-run backfill --------------------------------------------------

	backfill := syncp.NewBackfill(st, backend, logger)
	if _, err := backfill.Run(ctx, vitals); err != nil {
		// Backfill is best effort: a fresh install without network still
		// syncs from the device.
		logger.Warn("history backfill failed", "error", err)
	}

	// --- Sync engine ---------------------------------------------------------

	dispatch := syncp.NewDispatcher()
	defer dispatch.Close()

	listener := &logListener{log: logger}
	coordinators := make([]*syncp.Coordinator, 0, len(vitals))
	for _, v := range vitals {
		coordinators = append(coordinators,
			syncp.NewCoordinator(model.ProfileFor(v), gateway, gateway, st, backend, listener, dispatch, logger))
	}
	engine := syncp.NewEngine(coordinators, gateway, cfg.PollInterval, dispatch, logger)

	// --- Dispatch mode -------------------------------------------------------

	if !daemon {
		if only != "" {
			if !only.Valid() {
				return fmt.Errorf("unknown vital type %q", only)
			}
			logger.Info("running single sync pass", "vital", only)
			res, ok := engine.SyncVital(ctx, only)
			if !ok {
				return fmt.Errorf("vital %q is not enabled in the config", only)
			}
			logger.Info("sync complete", "status", res.Status, "saved", res.Saved, "uploaded", res.Uploaded)
			if res.Status == syncp.StatusFailed {
				return fmt.Errorf("syncing %s: %s", only, res.Reason)
			}
			return nil
		}
		logger.Info("running single sync pass")
		stats := engine.SyncAll(ctx)
		logger.Info("sync complete",
			"synced", stats.Synced,
			"empty", stats.Empty,
			"failed", stats.Failed,
			"saved", stats.Saved,
			"uploads", stats.Uploads,
		)
		if stats.Failed > 0 {
			return fmt.Errorf("%d vital(s) failed to sync", stats.Failed)
		}
		return nil
	}

	logger.Info("daemon starting", "poll_interval", cfg.PollInterval)
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync engine: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// printSeriesListener renders daily series deliveries to stdout. The second
// delivery (after remote reconciliation) overwrites the first.
type printSeriesListener struct {
	unit string
}

func (p *printSeriesListener) OnSeriesReady(vital model.VitalType, series []model.DailyAggregate) {
	if len(series) == 0 {
		fmt.Printf("  no data for %s\n", vital)
		return
	}
	for _, day := range series {
		if day.Value2 != 0 {
			fmt.Printf("  %s  %g/%g %s\n", day.Date, day.Value, day.Value2, p.unit)
		} else {
			fmt.Printf("  %s  %g %s\n", day.Date, day.Value, p.unit)
		}
	}
}

// runHistory prints the cached daily series for one vital, refreshed from
// the backend when reachable.
func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	vitalName := fs.String("vital", "heart_rate", "vital type to show")
	days := fs.Int("days", 7, "number of days to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	vital := model.VitalType(*vitalName)
	if !vital.Valid() {
		return fmt.Errorf("unknown vital type %q", *vitalName)
	}
	if *days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", *cfgPath, err)
	}

	dbPath, err := store.DefaultDBPath()
	if err != nil {
		return fmt.Errorf("resolving cache path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening cache at %q: %w", dbPath, err)
	}
	defer func() { _ = st.Close() }()

	backend := remote.NewClient(cfg.BackendURL, cfg.BackendToken, cfg.UserID, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -(*days - 1))

	// Sleep gets its own rendering: stitched sessions with day statistics
	// instead of a bare aggregate series.
	if vital == model.VitalSleep {
		return printSleepHistory(ctx, st, from, to)
	}

	dispatch := syncp.NewDispatcher()
	reconciler := syncp.NewDailyReconciler(st, backend, dispatch, logger)

	fmt.Printf("%s — last %d day(s)\n", vital, *days)
	reconciler.Load(ctx, vital, from.Format(model.DateLayout), to.Format(model.DateLayout),
		&printSeriesListener{unit: model.ProfileFor(vital).Unit})
	reconciler.Wait()
	dispatch.Close()
	return nil
}

// printSleepHistory renders one stitched session summary per cached day.
func printSleepHistory(ctx context.Context, st *store.Store, from, to time.Time) error {
	fmt.Printf("sleep — %s to %s\n", from.Format(model.DateLayout), to.Format(model.DateLayout))

	found := false
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(model.DateLayout)
		readings, err := st.GetDay(ctx, model.VitalSleep, date)
		if err != nil {
			return fmt.Errorf("reading sleep for %s: %w", date, err)
		}

		session, stats, ok := sleep.BuildDay(readings)
		if !ok {
			continue
		}
		found = true
		fmt.Printf("  %s  %dh%02dm asleep, %dm awake, score %d, efficiency %d%% (%d segments)\n",
			date,
			stats.TotalSleepMinutes/60, stats.TotalSleepMinutes%60,
			stats.AwakeMinutes,
			stats.Score, stats.Efficiency,
			len(session.Segments),
		)
	}
	if !found {
		fmt.Println("  no data")
	}
	return nil
}

// runStatus prints the current configuration, cache, and device state.
func runStatus() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfgPath, _ := config.DefaultPath()
	dbPath, _ := store.DefaultDBPath()

	fmt.Println("vitalsync Status")
	fmt.Println("────────────────")

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); err == nil {
		loaded, loadErr := config.Load(cfgPath)
		if loadErr == nil {
			cfg = loaded
			fmt.Printf("  Config:    %s ✓\n", cfgPath)
			fmt.Printf("  Backend:   %s (user %s)\n", cfg.BackendURL, cfg.UserID)
			fmt.Printf("  Gateway:   %s\n", cfg.GatewayURL)
			fmt.Printf("  Vitals:    %d type(s)\n", len(cfg.EnabledVitals()))
			fmt.Printf("  Poll:      %s\n", cfg.PollInterval)
		} else {
			fmt.Printf("  Config:    %s (invalid: %v)\n", cfgPath, loadErr)
		}
	} else {
		fmt.Printf("  Config:    not found (%s)\n", cfgPath)
	}

	if info, err := os.Stat(dbPath); err == nil {
		fmt.Printf("  Cache:     %s (%s)\n", dbPath, humanSize(info.Size()))
	} else {
		fmt.Printf("  Cache:     not found\n")
	}

	if cfg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		connected, err := setup.ProbeGateway(ctx, cfg.GatewayURL, slog.Default())
		switch {
		case err != nil:
			fmt.Printf("  Device:    gateway unreachable (%v)\n", err)
		case connected:
			fmt.Printf("  Device:    connected\n")
		default:
			fmt.Printf("  Device:    not connected\n")
		}
	}

	return nil
}

// runLogout wipes the local cache. Config is kept.
func runLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	yes := fs.Bool("yes", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*yes {
		p := setup.NewPrompter(os.Stdin, os.Stdout)
		if !p.Confirm("Wipe all locally cached readings?", false) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	dbPath, err := store.DefaultDBPath()
	if err != nil {
		return fmt.Errorf("resolving cache path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening cache at %q: %w", dbPath, err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Reset(context.Background()); err != nil {
		return fmt.Errorf("wiping cache: %w", err)
	}
	fmt.Println("✓ Local cache wiped.")
	return nil
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
