// Package upstream implements the fetchable source abstraction: HTTP, local
// file, and mock upstreams, plus normalization of the three-way source union.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vastio/vastfetch/internal/vast"
)

// HTTPConfig captures everything an HTTP upstream owns: its base URL,
// params, headers, per-key encoding control, and an optional per-attempt
// timeout tighter than the strategy budget.
type HTTPConfig struct {
	URL      string
	Params   map[string]string
	Headers  map[string]string
	Encoding map[string]bool
	Timeout  time.Duration
}

// HTTP fetches a VAST document over HTTP GET. The client is the shared
// pooled transport, injected at construction and never mutated.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTP builds an HTTP upstream. A nil client falls back to a private
// client with the default pooled transport; a nil logger is replaced with a
// nop logger.
func NewHTTP(cfg HTTPConfig, client *http.Client, logger *zap.Logger) (*HTTP, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, vast.NewConfigError("http upstream requires a url")
	}
	if client == nil {
		client = &http.Client{Transport: NewTransport()}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{cfg: cfg, client: client, logger: logger}, nil
}

// Identifier returns the resolved URL including the upstream's own params.
func (u *HTTP) Identifier() string {
	resolved, err := u.resolveURL(nil)
	if err != nil {
		return u.cfg.URL
	}
	return resolved
}

// Fetch merges call-time extras on top of the base params/headers, performs
// the GET, and returns the decoded body. A status >= 400 is a StatusError;
// ctx cancellation aborts the request mid-flight.
func (u *HTTP) Fetch(ctx context.Context, extraParams, extraHeaders map[string]string) (string, error) {
	if u.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.Timeout)
		defer cancel()
	}

	resolved, err := u.resolveURL(extraParams)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	for key, value := range mergeMaps(u.cfg.Headers, extraHeaders) {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http fetch %s: %w", u.cfg.URL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			u.logger.Warn("close response body failed", zap.Error(cerr))
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &vast.StatusError{URL: u.cfg.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	u.logger.Debug("upstream fetch complete",
		zap.String("url", u.cfg.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return string(body), nil
}

// resolveURL appends merged params to the base URL. Keys flagged false in
// the encoding map are appended verbatim: some ad servers require literal
// macros like [CACHEBUSTER] in the query string.
func (u *HTTP) resolveURL(extraParams map[string]string) (string, error) {
	parsed, err := url.Parse(u.cfg.URL)
	if err != nil {
		return "", vast.NewConfigError("invalid upstream url %q: %v", u.cfg.URL, err)
	}

	params := mergeMaps(u.cfg.Params, extraParams)
	if len(params) == 0 {
		return parsed.String(), nil
	}

	encoded := parsed.Query()
	var raw []string
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if enc, ok := u.cfg.Encoding[key]; ok && !enc {
			raw = append(raw, key+"="+params[key])
			continue
		}
		encoded.Set(key, params[key])
	}

	query := encoded.Encode()
	if len(raw) > 0 {
		if query != "" {
			query += "&"
		}
		query += strings.Join(raw, "&")
	}
	parsed.RawQuery = query
	return parsed.String(), nil
}

func mergeMaps(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}

// NewTransport returns the pooled transport shared by all HTTP upstreams.
// Built once at startup, shared by reference, closed at shutdown.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
