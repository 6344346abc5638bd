package upstream

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vastio/vastfetch/internal/vast"
)

// NormalizeOptions carries the globals layered underneath source-specific
// settings, plus the shared transport handed to constructed HTTP upstreams.
type NormalizeOptions struct {
	Params  map[string]string
	Headers map[string]string
	Client  *http.Client
	Logger  *zap.Logger
}

// Normalize converts one member of the source union into an Upstream.
// A URL string becomes an HTTP upstream with the global params/headers. A
// record becomes an HTTP upstream whose own params/headers override the
// globals key by key. A prebuilt Upstream passes through unchanged. A
// record without a URL is a configuration error, never a silent default.
func Normalize(source vast.Source, opts NormalizeOptions) (vast.Upstream, error) {
	if up, ok := source.Prebuilt(); ok {
		return up, nil
	}

	if url, ok := source.URL(); ok {
		if looksLikeFile(url) {
			return NewFile(strings.TrimPrefix(url, "file://"))
		}
		return NewHTTP(HTTPConfig{
			URL:     url,
			Params:  copyMap(opts.Params),
			Headers: copyMap(opts.Headers),
		}, opts.Client, opts.Logger)
	}

	record, ok := source.Record()
	if !ok {
		return nil, vast.NewConfigError("source is empty: expected url, record, or upstream")
	}
	if strings.TrimSpace(record.URL) == "" {
		return nil, vast.NewConfigError("source record is missing a url")
	}
	if looksLikeFile(record.URL) {
		return NewFile(strings.TrimPrefix(record.URL, "file://"))
	}
	return NewHTTP(HTTPConfig{
		URL:      record.URL,
		Params:   layerMaps(opts.Params, record.Params),
		Headers:  layerMaps(opts.Headers, record.Headers),
		Encoding: record.Encoding,
		Timeout:  record.Timeout,
	}, opts.Client, opts.Logger)
}

// NormalizeAll normalizes a slice, failing on the first invalid source.
func NormalizeAll(sources []vast.Source, opts NormalizeOptions) ([]vast.Upstream, error) {
	upstreams := make([]vast.Upstream, 0, len(sources))
	for _, source := range sources {
		up, err := Normalize(source, opts)
		if err != nil {
			return nil, err
		}
		upstreams = append(upstreams, up)
	}
	return upstreams, nil
}

func looksLikeFile(url string) bool {
	return strings.HasPrefix(url, "file://")
}

// layerMaps puts specific on top of global: source-specific settings win.
func layerMaps(global, specific map[string]string) map[string]string {
	if len(global) == 0 && len(specific) == 0 {
		return nil
	}
	layered := make(map[string]string, len(global)+len(specific))
	for key, value := range global {
		layered[key] = value
	}
	for key, value := range specific {
		layered[key] = value
	}
	return layered
}

func copyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for key, value := range m {
		out[key] = value
	}
	return out
}
