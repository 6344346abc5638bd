package vast

import (
	"time"
)

// FetchMode selects the concurrency strategy for a multi-source fetch.
type FetchMode string

// Fetch modes accepted in strategy configuration.
const (
	ModeParallel   FetchMode = "parallel"
	ModeSequential FetchMode = "sequential"
	ModeRace       FetchMode = "race"
)

// Valid reports whether the mode is one of the supported strategies.
func (m FetchMode) Valid() bool {
	switch m {
	case ModeParallel, ModeSequential, ModeRace:
		return true
	}
	return false
}

// FetchStrategy is the immutable policy governing one multi-source fetch:
// concurrency mode, the two timeout budgets, and the retry discipline.
type FetchStrategy struct {
	Mode             FetchMode
	Timeout          time.Duration
	PerSourceTimeout time.Duration
	MaxRetries       int
	RetryDelay       time.Duration

	// StopOnFirstSuccess is accepted for config and wire compatibility but
	// is not a tuning knob: sequential always stops at the first success,
	// parallel always awaits every source, and race always takes the first
	// completion. The field's value never changes strategy behavior.
	StopOnFirstSuccess bool
}

// DefaultStrategy returns the strategy used when callers leave it unset.
func DefaultStrategy() FetchStrategy {
	return FetchStrategy{
		Mode:               ModeSequential,
		Timeout:            30 * time.Second,
		PerSourceTimeout:   10 * time.Second,
		MaxRetries:         0,
		RetryDelay:         time.Second,
		StopOnFirstSuccess: true,
	}
}

// SourceConfig is the record form of a source specification. Params and
// Headers layer on top of (override) the global ones configured on the
// FetchConfig. Encoding controls per-key URL encoding: a key mapped to
// false is appended to the query string verbatim.
type SourceConfig struct {
	URL      string            `json:"url" mapstructure:"url"`
	Params   map[string]string `json:"params,omitempty" mapstructure:"params"`
	Headers  map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Encoding map[string]bool   `json:"encoding,omitempty" mapstructure:"encoding"`
	Timeout  time.Duration     `json:"timeout,omitempty" mapstructure:"timeout"`
}

// Source is the tagged union of the three accepted source shapes: a bare
// URL string, a SourceConfig record, or an already-built Upstream. It is
// normalized exactly once, at Upstream construction.
type Source struct {
	url      string
	config   *SourceConfig
	upstream Upstream
}

// SourceURL wraps a bare URL string as a Source.
func SourceURL(url string) Source {
	return Source{url: url}
}

// SourceRecord wraps a SourceConfig as a Source.
func SourceRecord(cfg SourceConfig) Source {
	return Source{config: &cfg}
}

// SourceUpstream wraps an existing Upstream as a Source. Normalization
// passes it through untouched, so custom transports and test doubles reach
// the fetcher without special handling.
func SourceUpstream(up Upstream) Source {
	return Source{upstream: up}
}

// URL returns the bare URL string and whether this source carries one.
func (s Source) URL() (string, bool) {
	return s.url, s.url != ""
}

// Record returns the config record and whether this source carries one.
func (s Source) Record() (SourceConfig, bool) {
	if s.config == nil {
		return SourceConfig{}, false
	}
	return *s.config, true
}

// Prebuilt returns the wrapped Upstream and whether this source carries one.
func (s Source) Prebuilt() (Upstream, bool) {
	return s.upstream, s.upstream != nil
}

// FetchConfig is everything the orchestrator needs for one pipeline run.
type FetchConfig struct {
	Sources   []Source
	Fallbacks []Source
	Strategy  FetchStrategy
	Params    map[string]string
	Headers   map[string]string
	Filter    ParseFilter
	AutoTrack bool
}

// Phase identifies one pipeline stage for error attribution and events.
type Phase string

// Pipeline phases in execution order.
const (
	PhaseFetch  Phase = "fetch"
	PhaseParse  Phase = "parse"
	PhaseSelect Phase = "select"
	PhaseTrack  Phase = "track"
)

// SourceError records one failure during the pipeline, attributed to the
// source identifier and the phase that produced it.
type SourceError struct {
	Source string `json:"source"`
	Phase  Phase  `json:"phase"`
	Err    error  `json:"-"`
}

// Message returns the underlying error text, or "" when Err is nil.
func (e SourceError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Metadata keys populated on FetchResult.Metadata.
const (
	MetaElapsedMS       = "elapsedMs"
	MetaSourceCount     = "sourceCount"
	MetaMode            = "mode"
	MetaUsedFallback    = "usedFallback"
	MetaAttempt         = "attempt"
	MetaParsed          = "parsed"
	MetaTrackingOutcome = "trackingOutcome"
	MetaTrackingError   = "trackingError"
	MetaRequestID       = "requestId"
	MetaArchiveURI      = "archiveUri"
)

// FetchResult is the single outcome of one multi-source fetch, enriched in
// place by the later pipeline phases.
//
// Invariants: Success implies a non-empty RawResponse; a failed result has
// an empty RawResponse and nil ParsedData; Errors is append-only and may be
// non-empty even on success (partial failures before the winner).
type FetchResult struct {
	Success     bool           `json:"success"`
	SourceURL   string         `json:"sourceUrl,omitempty"`
	RawResponse string         `json:"rawResponse,omitempty"`
	ParsedData  map[string]any `json:"parsedData,omitempty"`
	Errors      []SourceError  `json:"errors,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

// NewFetchResult returns an empty failed result with initialized metadata.
func NewFetchResult() FetchResult {
	return FetchResult{Metadata: make(map[string]any)}
}

// AddError appends a failure entry. Existing entries are never overwritten.
func (r *FetchResult) AddError(source string, phase Phase, err error) {
	r.Errors = append(r.Errors, SourceError{Source: source, Phase: phase, Err: err})
}

// ResultRecord is the persisted form of one pipeline outcome.
type ResultRecord struct {
	ID           string
	RequestID    string
	SourceURL    string
	Success      bool
	Mode         FetchMode
	UsedFallback bool
	ElapsedMS    int64
	ErrorCount   int
	ArchiveURI   string
	CreatedAt    time.Time
}
