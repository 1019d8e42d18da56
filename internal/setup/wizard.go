package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/vitalsync/internal/config"
	"github.com/njoerd114/vitalsync/internal/model"
)

// Wizard guides the user through first-run configuration.
type Wizard struct {
	prompt *Prompter
	logger *slog.Logger
	w      io.Writer
}

// NewWizard creates a Wizard wired to the given I/O and logger.
func NewWizard(r io.Reader, w io.Writer, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt: NewPrompter(r, w),
		logger: logger,
		w:      w,
	}
}

// Run executes the interactive setup wizard. It walks the user through
// backend credentials, the gateway connection, vital selection, and config
// file creation.
func (wiz *Wizard) Run(ctx context.Context) error {
	fmt.Fprintf(wiz.w, "\nWelcome to vitalsync Setup!\n")
	fmt.Fprintf(wiz.w, "This wizard will help you configure vitalsync.\n\n")

	// Check for existing config.
	cfgPath, err := config.DefaultPath()
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return nil
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: Backend connection.
	fmt.Fprintf(wiz.w, "Step 1/4 — Backend Connection\n")

	backendURL := wiz.prompt.String("Backend URL", "https://vitals.example.com")
	backendToken := wiz.prompt.Secret("Access token")
	userID := wiz.prompt.String("User ID", "")

	fmt.Fprintf(wiz.w, "  Connecting to backend...")
	if err := PingBackend(ctx, backendURL, backendToken); err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return fmt.Errorf("cannot reach backend: %w\n\n  Check the URL and token, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ✓\n\n")

	// Step 2: Wearable gateway.
	fmt.Fprintf(wiz.w, "Step 2/4 — Wearable Gateway\n")

	gatewayURL := wiz.prompt.String("Gateway URL", "http://localhost:8720")

	fmt.Fprintf(wiz.w, "  Checking gateway...")
	connected, gwErr := ProbeGateway(ctx, gatewayURL, wiz.logger)
	switch {
	case gwErr != nil:
		fmt.Fprintf(wiz.w, " ✗\n")
		if !wiz.prompt.Confirm("Gateway unreachable — continue anyway?", false) {
			return fmt.Errorf("gateway check failed: %w", gwErr)
		}
	case !connected:
		fmt.Fprintf(wiz.w, " ✓ (no device linked yet)\n")
	default:
		fmt.Fprintf(wiz.w, " ✓ device linked\n")
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 3: Vitals and poll interval.
	fmt.Fprintf(wiz.w, "Step 3/4 — Vitals\n")

	vitals, err := wiz.selectVitals()
	if err != nil {
		return err
	}

	pollStr := wiz.prompt.String("How often to poll the device? (15s–30m)", "1m")
	pollInterval, parseErr := time.ParseDuration(pollStr)
	if parseErr != nil {
		pollInterval = time.Minute
		fmt.Fprintf(wiz.w, "  (invalid duration, using default 1m)\n")
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 4: Write config.
	fmt.Fprintf(wiz.w, "Step 4/4 — Save Configuration\n")

	cfg := &config.Config{
		BackendURL:   backendURL,
		BackendToken: backendToken,
		UserID:       userID,
		GatewayURL:   gatewayURL,
		PollInterval: pollInterval,
		Vitals:       vitals,
	}

	if err := cfg.Write(cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", cfgPath)

	fmt.Fprintf(wiz.w, "Setup complete!\n")
	fmt.Fprintf(wiz.w, "  Run the daemon with:  vitalsync daemon\n")
	fmt.Fprintf(wiz.w, "  Sync once with:       vitalsync sync-once\n")
	fmt.Fprintf(wiz.w, "  Check status with:    vitalsync status\n\n")

	return nil
}

// selectVitals lets the user pick the vitals to sync. An all-of-them choice
// is stored as an empty list so newly supported types join automatically.
func (wiz *Wizard) selectVitals() ([]model.VitalType, error) {
	all := model.AllVitals()
	options := make([]string, len(all))
	for i, v := range all {
		options[i] = string(v)
	}

	indices, err := wiz.prompt.MultiSelect("Which vitals should be synced?", options)
	if err != nil {
		return nil, fmt.Errorf("selecting vitals: %w", err)
	}

	if len(indices) == len(all) {
		return nil, nil
	}

	vitals := make([]model.VitalType, 0, len(indices))
	for _, idx := range indices {
		vitals = append(vitals, all[idx])
	}
	fmt.Fprintf(wiz.w, "  ✓ Syncing %d vital(s)\n\n", len(vitals))
	return vitals, nil
}
