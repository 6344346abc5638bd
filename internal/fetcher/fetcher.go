// Package fetcher executes fetch strategies over normalized upstreams:
// per-source retry, the three concurrency modes, and the fallback cascade.
package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vastio/vastfetch/internal/metrics"
	"github.com/vastio/vastfetch/internal/upstream"
	"github.com/vastio/vastfetch/internal/vast"
)

// Fetcher runs multi-source fetches over a shared pooled HTTP client. It
// holds no per-fetch state; concurrent calls are independent.
type Fetcher struct {
	client *http.Client
	clock  vast.Clock
	logger *zap.Logger
}

// New builds a Fetcher. The client is shared by reference with every HTTP
// upstream the fetcher normalizes.
func New(client *http.Client, clock vast.Clock, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Transport: upstream.NewTransport()}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, clock: clock, logger: logger}
}

// outcome is the terminal state of one source after its retry loop.
type outcome struct {
	index      int
	identifier string
	text       string
	attempts   int
	err        error
}

// FetchSingle normalizes one source and runs its retry loop.
func (f *Fetcher) FetchSingle(ctx context.Context, source vast.Source, params, headers map[string]string, strategy vast.FetchStrategy) (vast.FetchResult, error) {
	up, err := upstream.Normalize(source, f.normalizeOptions(params, headers))
	if err != nil {
		return vast.NewFetchResult(), err
	}

	start := f.clock.Now()
	oc := f.fetchUpstream(ctx, 0, up, strategy)

	result := vast.NewFetchResult()
	result.Metadata[vast.MetaSourceCount] = 1
	result.Metadata[vast.MetaElapsedMS] = f.clock.Now().Sub(start).Milliseconds()
	result.Metadata[vast.MetaAttempt] = oc.attempts
	if oc.err != nil {
		result.AddError(oc.identifier, vast.PhaseFetch, oc.err)
		return result, nil
	}
	result.Success = true
	result.SourceURL = oc.identifier
	result.RawResponse = oc.text
	return result, nil
}

// FetchAll normalizes every source and dispatches on the strategy mode.
// The returned error is non-nil only for configuration misuse; expected
// failures are aggregated inside the result.
func (f *Fetcher) FetchAll(ctx context.Context, sources []vast.Source, params, headers map[string]string, strategy vast.FetchStrategy) (vast.FetchResult, error) {
	if len(sources) == 0 {
		return vast.NewFetchResult(), vast.NewConfigError("sources list is empty")
	}
	if !strategy.Mode.Valid() {
		return vast.NewFetchResult(), vast.NewConfigError("unknown fetch mode %q", strategy.Mode)
	}
	upstreams, err := upstream.NormalizeAll(sources, f.normalizeOptions(params, headers))
	if err != nil {
		return vast.NewFetchResult(), err
	}

	metrics.FetchStarted()
	defer metrics.FetchFinished()
	start := f.clock.Now()

	var result vast.FetchResult
	switch strategy.Mode {
	case vast.ModeParallel:
		result = f.fetchParallel(ctx, upstreams, strategy)
	case vast.ModeSequential:
		result = f.fetchSequential(ctx, upstreams, strategy)
	case vast.ModeRace:
		result = f.fetchRace(ctx, upstreams, strategy)
	}

	elapsed := f.clock.Now().Sub(start)
	result.Metadata[vast.MetaMode] = string(strategy.Mode)
	result.Metadata[vast.MetaSourceCount] = len(upstreams)
	result.Metadata[vast.MetaElapsedMS] = elapsed.Milliseconds()
	metrics.ObserveFetch(string(strategy.Mode), elapsed)

	f.logger.Debug("multi-source fetch complete",
		zap.String("mode", string(strategy.Mode)),
		zap.Int("sources", len(upstreams)),
		zap.Bool("success", result.Success),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// FetchWithFallbacks runs the strict two-tier cascade: fallbacks are
// attempted only when every primary source fails.
func (f *Fetcher) FetchWithFallbacks(ctx context.Context, sources, fallbacks []vast.Source, params, headers map[string]string, strategy vast.FetchStrategy) (vast.FetchResult, error) {
	primary, err := f.FetchAll(ctx, sources, params, headers, strategy)
	if err != nil {
		return primary, err
	}
	if primary.Success || len(fallbacks) == 0 {
		primary.Metadata[vast.MetaUsedFallback] = false
		return primary, nil
	}

	f.logger.Info("primary sources exhausted, cascading to fallbacks",
		zap.Int("primary_errors", len(primary.Errors)),
		zap.Int("fallbacks", len(fallbacks)),
	)
	metrics.ObserveFallback()

	secondary, err := f.FetchAll(ctx, fallbacks, params, headers, strategy)
	if err != nil {
		return secondary, err
	}
	merged := make([]vast.SourceError, 0, len(primary.Errors)+len(secondary.Errors))
	merged = append(merged, primary.Errors...)
	merged = append(merged, secondary.Errors...)
	secondary.Errors = merged
	secondary.Metadata[vast.MetaUsedFallback] = true
	return secondary, nil
}

// fetchUpstream runs the retry loop for one upstream: up to MaxRetries+1
// attempts, each bounded by PerSourceTimeout, with RetryDelay between
// attempts and none after the last. An empty or whitespace-only body is a
// failure: the protocol's "no ad" signal must not pass for success.
func (f *Fetcher) fetchUpstream(ctx context.Context, index int, up vast.Upstream, strategy vast.FetchStrategy) outcome {
	oc := outcome{index: index, identifier: up.Identifier()}
	maxAttempts := strategy.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		oc.attempts = attempt
		text, err := f.fetchOnce(ctx, up, strategy.PerSourceTimeout)
		if err == nil {
			oc.text = text
			oc.err = nil
			metrics.ObserveAttempt("success")
			return oc
		}
		oc.err = err
		metrics.ObserveAttempt(classifyAttempt(err))
		f.logger.Debug("source attempt failed",
			zap.String("source", oc.identifier),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			// the multi-source budget is spent; retrying cannot help
			return oc
		}
		if attempt < maxAttempts && strategy.RetryDelay > 0 {
			if !sleepCtx(ctx, strategy.RetryDelay) {
				return oc
			}
		}
	}
	return oc
}

func (f *Fetcher) fetchOnce(ctx context.Context, up vast.Upstream, perSourceTimeout time.Duration) (string, error) {
	attemptCtx := ctx
	if perSourceTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, perSourceTimeout)
		defer cancel()
	}
	text, err := up.Fetch(attemptCtx, nil, nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", vast.ErrEmptyResponse
	}
	return text, nil
}

func (f *Fetcher) normalizeOptions(params, headers map[string]string) upstream.NormalizeOptions {
	return upstream.NormalizeOptions{
		Params:  params,
		Headers: headers,
		Client:  f.client,
		Logger:  f.logger,
	}
}

// successResult fills the winning fields from oc on top of result.
func successResult(result *vast.FetchResult, oc outcome) {
	result.Success = true
	result.SourceURL = oc.identifier
	result.RawResponse = oc.text
	result.Metadata[vast.MetaAttempt] = oc.attempts
}

func classifyAttempt(err error) string {
	switch {
	case errors.Is(err, vast.ErrEmptyResponse):
		return "empty"
	case vast.IsTimeout(err):
		return "timeout"
	default:
		var statusErr *vast.StatusError
		if errors.As(err, &statusErr) {
			return "status"
		}
		return "error"
	}
}

// sleepCtx waits d, returning false if ctx finished first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// overallContext applies the whole-call budget when configured.
func overallContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
