// Package tracker fires impression beacons for winning documents. Firing is
// deliberately best-effort: the tracker never raises, and per-URL outcomes
// are reported in its return value for the pipeline to record as metadata.
package tracker

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vastio/vastfetch/internal/macro"
	"github.com/vastio/vastfetch/internal/metrics"
	"github.com/vastio/vastfetch/internal/parser"
	"github.com/vastio/vastfetch/internal/vast"
)

const defaultBeaconTimeout = 3 * time.Second

// Tracker fires beacons over the shared pooled HTTP client.
type Tracker struct {
	client  *http.Client
	clock   vast.Clock
	logger  *zap.Logger
	timeout time.Duration
}

// New builds a Tracker. A zero timeout falls back to 3s per beacon.
func New(client *http.Client, clock vast.Clock, logger *zap.Logger, timeout time.Duration) *Tracker {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultBeaconTimeout
	}
	return &Tracker{client: client, clock: clock, logger: logger, timeout: timeout}
}

// Fire sends one GET per impression URL, expanding macros first. It never
// returns an error; the outcome map carries fired/failed counts plus a
// per-URL status.
func (t *Tracker) Fire(ctx context.Context, parsed map[string]any, sourceID string) map[string]any {
	urls, _ := parsed[parser.KeyImpressions].([]string)
	outcomes := make(map[string]string, len(urls))
	fired, failed := 0, 0

	values := macro.Values{Timestamp: t.clock.Now()}
	if media, ok := parsed[parser.KeyMediaFiles].([]map[string]any); ok && len(media) > 0 {
		values.AssetURI, _ = media[0]["url"].(string)
	}

	for _, rawURL := range urls {
		expanded := macro.Expand(rawURL, values)
		if err := t.fireOne(ctx, expanded); err != nil {
			failed++
			outcomes[rawURL] = err.Error()
			metrics.ObserveBeacon("failed")
			t.logger.Debug("beacon failed",
				zap.String("source", sourceID),
				zap.String("url", rawURL),
				zap.Error(err),
			)
			continue
		}
		fired++
		outcomes[rawURL] = "fired"
		metrics.ObserveBeacon("fired")
	}

	return map[string]any{
		"source":   sourceID,
		"fired":    fired,
		"failed":   failed,
		"outcomes": outcomes,
	}
}

func (t *Tracker) fireOne(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return &vast.StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return nil
}
