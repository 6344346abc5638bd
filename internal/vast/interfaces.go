package vast

import (
	"context"
	"time"
)

// Upstream is a single fetchable ad source, independent of transport.
// Implementations merge call-time extras on top of their own base
// params/headers, perform the request, and return the decoded body.
// Transport failures (timeout, HTTP status, decode) surface as errors for
// the fetcher to interpret; cancellation of ctx must abort the request
// mid-flight.
type Upstream interface {
	Fetch(ctx context.Context, extraParams, extraHeaders map[string]string) (string, error)
	Identifier() string
}

// Parser turns a raw VAST document into a generic document map.
type Parser interface {
	Parse(raw string) (map[string]any, error)
}

// ParseFilter is a pure predicate over parsed documents. A missing field is
// a non-match, never an error.
type ParseFilter interface {
	Matches(parsed map[string]any) bool
}

// Tracker fires tracking beacons for the winning document. It never returns
// an error; per-URL outcomes are reported in the returned map.
type Tracker interface {
	Fire(ctx context.Context, parsed map[string]any, sourceID string) map[string]any
}

// ResultStore persists pipeline outcomes.
type ResultStore interface {
	SaveResult(ctx context.Context, record ResultRecord) error
	Close()
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
