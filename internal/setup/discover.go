package setup

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/njoerd114/vitalsync/internal/device"
)

// PingBackend verifies connectivity with the vitals backend using the given
// URL and token. Returns nil on success.
func PingBackend(ctx context.Context, backendURL, token string) error {
	endpoint := strings.TrimRight(backendURL, "/") + "/api/v1/ping"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", backendURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid access token (HTTP 401)")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected HTTP %d from %s", resp.StatusCode, backendURL)
	}
	return nil
}

// ProbeGateway checks that the wearable gateway is reachable and reports
// whether a device is currently linked.
func ProbeGateway(ctx context.Context, gatewayURL string, logger *slog.Logger) (connected bool, err error) {
	adapter := device.NewAdapter(gatewayURL, logger)
	connected, err = adapter.Connected(ctx)
	if err != nil {
		return false, fmt.Errorf("reaching gateway at %s: %w", gatewayURL, err)
	}
	return connected, nil
}
