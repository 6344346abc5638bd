package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vastio/vastfetch/internal/vast"
)

func TestHTTPFetchMergesParamsAndHeaders(t *testing.T) {
	t.Parallel()

	var gotQuery, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Get("X-Forwarded-For")
		_, _ = w.Write([]byte("<VAST/>"))
	}))
	defer srv.Close()

	up, err := NewHTTP(HTTPConfig{
		URL:     srv.URL,
		Params:  map[string]string{"w": "640", "h": "360"},
		Headers: map[string]string{"X-Forwarded-For": "10.0.0.1"},
	}, srv.Client(), nil)
	require.NoError(t, err)

	body, err := up.Fetch(context.Background(), map[string]string{"h": "480"}, map[string]string{"X-Forwarded-For": "10.0.0.2"})
	require.NoError(t, err)
	require.Equal(t, "<VAST/>", body)
	// call-time extras override the upstream's own values
	require.Equal(t, "h=480&w=640", gotQuery)
	require.Equal(t, "10.0.0.2", gotHeader)
}

func TestHTTPFetchRawEncodingKeys(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	up, err := NewHTTP(HTTPConfig{
		URL:      srv.URL,
		Params:   map[string]string{"cb": "[CACHEBUSTER]", "w": "640"},
		Encoding: map[string]bool{"cb": false},
	}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = up.Fetch(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "w=640&cb=[CACHEBUSTER]", gotQuery)
}

func TestHTTPFetchStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no ads", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	up, err := NewHTTP(HTTPConfig{URL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = up.Fetch(context.Background(), nil, nil)
	var statusErr *vast.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestHTTPFetchCanceledMidFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	up, err := NewHTTP(HTTPConfig{URL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, fetchErr := up.Fetch(ctx, nil, nil)
		done <- fetchErr
	}()

	<-started
	cancel()

	select {
	case fetchErr := <-done:
		require.Error(t, fetchErr)
		require.True(t, errors.Is(fetchErr, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not observe cancellation")
	}
}

func TestHTTPPerUpstreamTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
			_, _ = w.Write([]byte("late"))
		}
	}))
	defer srv.Close()

	up, err := NewHTTP(HTTPConfig{URL: srv.URL, Timeout: 20 * time.Millisecond}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = up.Fetch(context.Background(), nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPIdentifierIncludesParams(t *testing.T) {
	t.Parallel()

	up, err := NewHTTP(HTTPConfig{
		URL:    "https://ads.example.com/vast",
		Params: map[string]string{"zone": "preroll"},
	}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "https://ads.example.com/vast?zone=preroll", up.Identifier())
}

func TestNewHTTPRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewHTTP(HTTPConfig{}, nil, nil)
	require.True(t, vast.IsConfigError(err))
}
