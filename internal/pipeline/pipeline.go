// Package pipeline drives one fetch request through the four phases:
// FETCH, PARSE, SELECT, and best-effort TRACK.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vastio/vastfetch/internal/events"
	"github.com/vastio/vastfetch/internal/fetcher"
	"github.com/vastio/vastfetch/internal/vast"
)

// Terminal states of one pipeline execution.
const (
	stateDone     = "done"
	stateFailed   = "failed"
	stateRejected = "rejected"
)

// Options wires the pipeline's collaborators. Fetcher, Parser, and Clock
// are required; everything else is optional and best-effort.
type Options struct {
	Fetcher   *fetcher.Fetcher
	Parser    vast.Parser
	Tracker   vast.Tracker
	Clock     vast.Clock
	IDs       vast.IDGenerator
	Hub       *events.Hub
	Store     vast.ResultStore
	Archive   vast.BlobStore
	Publisher vast.Publisher
	Topic     string
	Prefix    string
	Logger    *zap.Logger
}

// Pipeline owns the fetcher and coordinates the phase sequence. Each phase
// runs exactly once per call; retry belongs entirely to the fetcher.
type Pipeline struct {
	opts   Options
	logger *zap.Logger
}

// New builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("pipeline requires a fetcher")
	}
	if opts.Parser == nil {
		return nil, fmt.Errorf("pipeline requires a parser")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("pipeline requires a clock")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Prefix == "" {
		opts.Prefix = "creatives"
	}
	return &Pipeline{opts: opts, logger: opts.Logger}, nil
}

// ExecOption overrides config defaults for one call.
type ExecOption func(*execSettings)

type execSettings struct {
	filter       vast.ParseFilter
	autoTrack    bool
	autoTrackSet bool
}

// WithFilter overrides the config's parse filter for this call.
func WithFilter(f vast.ParseFilter) ExecOption {
	return func(s *execSettings) { s.filter = f }
}

// WithAutoTrack overrides the config's auto-track flag for this call.
func WithAutoTrack(enabled bool) ExecOption {
	return func(s *execSettings) {
		s.autoTrack = enabled
		s.autoTrackSet = true
	}
}

// Execute is the sole entry point: it runs FETCH through TRACK and returns
// one FetchResult. The error is non-nil only for configuration misuse;
// every expected failure mode lands in the result instead.
func (p *Pipeline) Execute(ctx context.Context, cfg vast.FetchConfig, opts ...ExecOption) (vast.FetchResult, error) {
	if len(cfg.Sources) == 0 {
		return vast.NewFetchResult(), vast.NewConfigError("sources list is empty")
	}

	settings := execSettings{filter: cfg.Filter, autoTrack: cfg.AutoTrack}
	for _, opt := range opts {
		opt(&settings)
	}

	requestID := p.newRequestID()
	start := p.opts.Clock.Now()

	// FETCH
	result, err := p.fetch(ctx, cfg)
	if err != nil {
		return result, err
	}
	result.Metadata[vast.MetaRequestID] = requestID
	p.emit(requestID, vast.PhaseFetch, result.SourceURL, result.Success, lastError(result))
	if !result.Success {
		p.finish(ctx, requestID, &result, stateFailed)
		return result, nil
	}

	// PARSE
	parsed, parseErr := p.opts.Parser.Parse(result.RawResponse)
	if parseErr != nil {
		raw := result.RawResponse
		result.Success = false
		result.RawResponse = ""
		result.AddError(result.SourceURL, vast.PhaseParse, parseErr)
		p.emit(requestID, vast.PhaseParse, result.SourceURL, false, parseErr.Error())
		p.archiveRejected(ctx, requestID, raw)
		p.finish(ctx, requestID, &result, stateFailed)
		return result, nil
	}
	result.ParsedData = parsed
	result.Metadata[vast.MetaParsed] = true
	p.emit(requestID, vast.PhaseParse, result.SourceURL, true, "")

	// SELECT
	if settings.filter != nil && !settings.filter.Matches(parsed) {
		result.Success = false
		result.RawResponse = ""
		result.ParsedData = nil
		rejection := fmt.Errorf("parsed document rejected by filter")
		result.AddError(result.SourceURL, vast.PhaseSelect, rejection)
		p.emit(requestID, vast.PhaseSelect, result.SourceURL, false, rejection.Error())
		p.finish(ctx, requestID, &result, stateRejected)
		return result, nil
	}
	p.emit(requestID, vast.PhaseSelect, result.SourceURL, true, "")

	// TRACK is best-effort: failures never flip success
	if settings.autoTrack && p.opts.Tracker != nil {
		outcome := p.opts.Tracker.Fire(ctx, parsed, result.SourceURL)
		result.Metadata[vast.MetaTrackingOutcome] = outcome
		if failed, ok := outcome["failed"].(int); ok && failed > 0 {
			result.Metadata[vast.MetaTrackingError] = fmt.Sprintf("%d beacon(s) failed", failed)
		}
		p.emit(requestID, vast.PhaseTrack, result.SourceURL, true, "")
	}

	p.finish(ctx, requestID, &result, stateDone)
	p.logger.Info("pipeline complete",
		zap.String("request_id", requestID),
		zap.String("source", result.SourceURL),
		zap.Duration("elapsed", p.opts.Clock.Now().Sub(start)),
	)
	return result, nil
}

func (p *Pipeline) fetch(ctx context.Context, cfg vast.FetchConfig) (vast.FetchResult, error) {
	if len(cfg.Fallbacks) > 0 {
		return p.opts.Fetcher.FetchWithFallbacks(ctx, cfg.Sources, cfg.Fallbacks, cfg.Params, cfg.Headers, cfg.Strategy)
	}
	return p.opts.Fetcher.FetchAll(ctx, cfg.Sources, cfg.Params, cfg.Headers, cfg.Strategy)
}

func (p *Pipeline) newRequestID() string {
	if p.opts.IDs == nil {
		return ""
	}
	id, err := p.opts.IDs.NewID()
	if err != nil {
		p.logger.Warn("request id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func (p *Pipeline) emit(requestID string, phase vast.Phase, source string, success bool, errText string) {
	if p.opts.Hub == nil {
		return
	}
	p.opts.Hub.Emit(events.Event{
		RequestID: requestID,
		Phase:     phase,
		Source:    source,
		Success:   success,
		Error:     errText,
		At:        p.opts.Clock.Now(),
	})
}

// finish persists and publishes the outcome. Everything here is
// best-effort: persistence problems are logged, never surfaced.
func (p *Pipeline) finish(ctx context.Context, requestID string, result *vast.FetchResult, state string) {
	if result.Success && p.opts.Archive != nil {
		path := fmt.Sprintf("%s/%s.xml", p.opts.Prefix, requestID)
		uri, err := p.opts.Archive.PutObject(ctx, path, "application/xml", []byte(result.RawResponse))
		if err != nil {
			p.logger.Warn("creative archive failed", zap.String("request_id", requestID), zap.Error(err))
		} else {
			result.Metadata[vast.MetaArchiveURI] = uri
		}
	}

	if p.opts.Store != nil {
		record := vast.ResultRecord{
			ID:         requestID,
			RequestID:  requestID,
			SourceURL:  result.SourceURL,
			Success:    result.Success,
			ErrorCount: len(result.Errors),
			CreatedAt:  p.opts.Clock.Now(),
		}
		if mode, ok := result.Metadata[vast.MetaMode].(string); ok {
			record.Mode = vast.FetchMode(mode)
		}
		if used, ok := result.Metadata[vast.MetaUsedFallback].(bool); ok {
			record.UsedFallback = used
		}
		if elapsed, ok := result.Metadata[vast.MetaElapsedMS].(int64); ok {
			record.ElapsedMS = elapsed
		}
		if uri, ok := result.Metadata[vast.MetaArchiveURI].(string); ok {
			record.ArchiveURI = uri
		}
		if err := p.opts.Store.SaveResult(ctx, record); err != nil {
			p.logger.Warn("result store save failed", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	if p.opts.Publisher != nil && p.opts.Topic != "" {
		payload := map[string]any{
			"request_id": requestID,
			"state":      state,
			"success":    result.Success,
			"source_url": result.SourceURL,
			"errors":     len(result.Errors),
		}
		if _, err := p.opts.Publisher.Publish(ctx, p.opts.Topic, payload); err != nil {
			p.logger.Warn("completion publish failed", zap.String("request_id", requestID), zap.Error(err))
		}
	}
}

// archiveRejected keeps unparseable payloads for offline debugging.
func (p *Pipeline) archiveRejected(ctx context.Context, requestID, raw string) {
	if p.opts.Archive == nil || raw == "" {
		return
	}
	path := fmt.Sprintf("%s/rejected/%s.xml", p.opts.Prefix, requestID)
	if _, err := p.opts.Archive.PutObject(ctx, path, "application/xml", []byte(raw)); err != nil {
		p.logger.Warn("rejected payload archive failed", zap.String("request_id", requestID), zap.Error(err))
	}
}

func lastError(result vast.FetchResult) string {
	if len(result.Errors) == 0 {
		return ""
	}
	return result.Errors[len(result.Errors)-1].Message()
}
