package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vastio/vastfetch/internal/clock/system"
	"github.com/vastio/vastfetch/internal/upstream"
	"github.com/vastio/vastfetch/internal/vast"
)

// flakyUpstream fails a configured number of times before succeeding.
type flakyUpstream struct {
	name     string
	fails    int
	response string
	calls    atomic.Int64
}

func (u *flakyUpstream) Identifier() string { return "mock://" + u.name }

func (u *flakyUpstream) Fetch(ctx context.Context, _, _ map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n := u.calls.Add(1)
	if n <= int64(u.fails) {
		return "", errors.New("transient upstream error")
	}
	return u.response, nil
}

func newTestFetcher() *Fetcher {
	return New(nil, system.New(), nil)
}

func strategy(mode vast.FetchMode) vast.FetchStrategy {
	return vast.FetchStrategy{
		Mode:             mode,
		Timeout:          5 * time.Second,
		PerSourceTimeout: 2 * time.Second,
	}
}

func TestFetchAllEmptySourcesIsConfigError(t *testing.T) {
	t.Parallel()

	f := newTestFetcher()
	for _, mode := range []vast.FetchMode{vast.ModeParallel, vast.ModeSequential, vast.ModeRace} {
		_, err := f.FetchAll(context.Background(), nil, nil, nil, strategy(mode))
		require.True(t, vast.IsConfigError(err), "mode %s", mode)
	}
}

func TestFetchAllUnknownModeIsConfigError(t *testing.T) {
	t.Parallel()

	f := newTestFetcher()
	_, err := f.FetchAll(context.Background(), []vast.Source{vast.SourceURL("https://a.example.com")}, nil, nil, vast.FetchStrategy{Mode: "turbo"})
	require.True(t, vast.IsConfigError(err))
}

func TestSequentialStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	first := upstream.NewMock("first", "").WithError(errors.New("down"))
	second := upstream.NewMock("second", "<VAST/>")
	third := upstream.NewMock("third", "<VAST/>")

	f := newTestFetcher()
	result, err := f.FetchAll(context.Background(), []vast.Source{
		vast.SourceUpstream(first),
		vast.SourceUpstream(second),
		vast.SourceUpstream(third),
	}, nil, nil, strategy(vast.ModeSequential))
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "mock://second", result.SourceURL)
	require.Len(t, result.Errors, 1)
	require.EqualValues(t, 0, third.Calls())
}

func TestSequentialIgnoresStopOnFirstSuccessFlag(t *testing.T) {
	t.Parallel()

	// The flag is carried for config and wire compatibility only; sequential
	// stops at the first success either way.
	for _, stop := range []bool{true, false} {
		first := upstream.NewMock("first", "<VAST/>")
		second := upstream.NewMock("second", "<VAST/>")

		s := strategy(vast.ModeSequential)
		s.StopOnFirstSuccess = stop

		f := newTestFetcher()
		result, err := f.FetchAll(context.Background(), []vast.Source{
			vast.SourceUpstream(first),
			vast.SourceUpstream(second),
		}, nil, nil, s)
		require.NoError(t, err)

		require.True(t, result.Success)
		require.Equal(t, "mock://first", result.SourceURL)
		require.Empty(t, result.Errors)
		require.EqualValues(t, 0, second.Calls())
	}
}

func TestSequentialThirdSourceWins(t *testing.T) {
	t.Parallel()

	first := upstream.NewMock("first", "").WithError(errors.New("down"))
	second := upstream.NewMock("second", "").WithError(errors.New("also down"))
	third := upstream.NewMock("third", "<VAST/>")

	f := newTestFetcher()
	result, err := f.FetchAll(context.Background(), []vast.Source{
		vast.SourceUpstream(first),
		vast.SourceUpstream(second),
		vast.SourceUpstream(third),
	}, nil, nil, strategy(vast.ModeSequential))
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "mock://third", result.SourceURL)
	require.Len(t, result.Errors, 2)
	require.Equal(t, "mock://first", result.Errors[0].Source)
	require.Equal(t, "mock://second", result.Errors[1].Source)
	require.EqualValues(t, 1, first.Calls())
	require.EqualValues(t, 1, second.Calls())
	require.EqualValues(t, 1, third.Calls())
}

func TestParallelHonorsListOrderNotCompletionOrder(t *testing.T) {
	t.Parallel()

	// B completes well before A; A must still win on list priority.
	a := upstream.NewMock("a", "<VAST>A</VAST>").WithDelay(80 * time.Millisecond)
	b := upstream.NewMock("b", "<VAST>B</VAST>")

	f := newTestFetcher()
	result, err := f.FetchAll(context.Background(), []vast.Source{
		vast.SourceUpstream(a),
		vast.SourceUpstream(b),
	}, nil, nil, strategy(vast.ModeParallel))
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "mock://a", result.SourceURL)
	require.Equal(t, "<VAST>A</VAST>", result.RawResponse)
}

func TestParallelAggregatesAllErrors(t *testing.T) {
	t.Parallel()

	a := upstream.NewMock("a", "").WithError(errors.New("down"))
	b := upstream.NewMock("b", "").WithError(errors.New("also down"))

	f := newTestFetcher()
	result, err := f.FetchAll(context.Background(), []vast.Source{
		vast.SourceUpstream(a),
		vast.SourceUpstream(b),
	}, nil, nil, strategy(vast.ModeParallel))
	require.NoError(t, err)

	require.False(t, result.Success)
	require.Empty(t, result.RawResponse)
	require.Len(t, result.Errors, 2)
	require.Equal(t, "mock://a", result.Errors[0].Source)
	require.Equal(t, "mock://b", result.Errors[1].Source)
}

func TestParallelOverallTimeoutSyntheticFailure(t *testing.T) {
	t.Parallel()

	slow := upstream.NewMock("slow", "<VAST/>").WithDelay(2 * time.Second)

	f := newTestFetcher()
	st := strategy(vast.ModeParallel)
	st.Timeout = 30 * time.Millisecond
	st.PerSourceTimeout = 5 * time.Second

	start := time.Now()
	result, err := f.FetchAll(context.Background(), []vast.Source{vast.SourceUpstream(slow)}, nil, nil, st)
	require.NoError(t, err)

	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	require.ErrorIs(t, result.Errors[0].Err, vast.ErrOverallTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestRaceReturnsFirstCompletion(t *testing.T) {
	t.Parallel()

	a := upstream.NewMock("a", "<VAST>A</VAST>").WithDelay(80 * time.Millisecond)
	b := upstream.NewMock("b", "<VAST>B</VAST>")

	f := newTestFetcher()
	result, err := f.FetchAll(context.Background(), []vast.Source{
		vast.SourceUpstream(a),
		vast.SourceUpstream(b),
	}, nil, nil, strategy(vast.ModeRace))
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "mock://b", result.SourceURL)
}

func TestRaceCancelsLosersImmediately(t *testing.T) {
	t.Parallel()

	winner := upstream.NewMock("winner", "<VAST/>")
	loser := upstream.NewMock("loser", "").
		WithDelay(100 * time.Millisecond).
		WithError(errors.New("down"))

	f := newTestFetcher()
	st := strategy(vast.ModeRace)
	st.MaxRetries = 3
	st.RetryDelay = time.Millisecond

	start := time.Now()
	result, err := f.FetchAll(context.Background(), []vast.Source{
		vast.SourceUpstream(loser),
		vast.SourceUpstream(winner),
	}, nil, nil, st)
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "mock://winner", result.SourceURL)
	require.Less(t, time.Since(start), 2*time.Second)

	// the loser's retry budget allowed 4 calls; cancellation must stop it
	// after the in-flight one
	time.Sleep(150 * time.Millisecond)
	require.EqualValues(t, 1, loser.Calls())
}

func TestRaceFoldsAllErrorsOnTotalFailure(t *testing.T) {
	t.Parallel()

	a := upstream.NewMock("a", "").WithError(errors.New("down"))
	b := upstream.NewMock("b", "").WithError(errors.New("also down"))

	f := newTestFetcher()
	result, err := f.FetchAll(context.Background(), []vast.Source{
		vast.SourceUpstream(a),
		vast.SourceUpstream(b),
	}, nil, nil, strategy(vast.ModeRace))
	require.NoError(t, err)

	require.False(t, result.Success)
	require.Len(t, result.Errors, 2)
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	flaky := &flakyUpstream{name: "flaky", fails: 2, response: "<VAST/>"}

	f := newTestFetcher()
	st := strategy(vast.ModeSequential)
	st.MaxRetries = 2
	st.RetryDelay = 0

	result, err := f.FetchAll(context.Background(), []vast.Source{vast.SourceUpstream(flaky)}, nil, nil, st)
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, 3, result.Metadata[vast.MetaAttempt])
	require.EqualValues(t, 3, flaky.calls.Load())
}

func TestRetryExhaustedRecordsFailure(t *testing.T) {
	t.Parallel()

	flaky := &flakyUpstream{name: "flaky", fails: 5, response: "<VAST/>"}

	f := newTestFetcher()
	st := strategy(vast.ModeSequential)
	st.MaxRetries = 2
	st.RetryDelay = 0

	result, err := f.FetchAll(context.Background(), []vast.Source{vast.SourceUpstream(flaky)}, nil, nil, st)
	require.NoError(t, err)

	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	require.EqualValues(t, 3, flaky.calls.Load())
}

func TestEmptyBodyTreatedAsFailure(t *testing.T) {
	t.Parallel()

	blank := upstream.NewMock("blank", "   \n\t")
	fallback := upstream.NewMock("fallback", "<VAST/>")

	f := newTestFetcher()
	result, err := f.FetchAll(context.Background(), []vast.Source{
		vast.SourceUpstream(blank),
		vast.SourceUpstream(fallback),
	}, nil, nil, strategy(vast.ModeSequential))
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "mock://fallback", result.SourceURL)
	require.Len(t, result.Errors, 1)
	require.ErrorIs(t, result.Errors[0].Err, vast.ErrEmptyResponse)
}

func TestFetchWithFallbacksCascades(t *testing.T) {
	t.Parallel()

	primary := upstream.NewMock("primary", "").WithError(errors.New("down"))
	fallback := upstream.NewMock("fallback", "<VAST/>")

	f := newTestFetcher()
	result, err := f.FetchWithFallbacks(context.Background(),
		[]vast.Source{vast.SourceUpstream(primary)},
		[]vast.Source{vast.SourceUpstream(fallback)},
		nil, nil, strategy(vast.ModeSequential))
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "mock://fallback", result.SourceURL)
	require.Equal(t, true, result.Metadata[vast.MetaUsedFallback])
	// primary's failure is preserved ahead of any fallback errors
	require.Len(t, result.Errors, 1)
	require.Equal(t, "mock://primary", result.Errors[0].Source)
}

func TestFetchWithFallbacksSkipsFallbackOnPrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := upstream.NewMock("primary", "<VAST/>")
	fallback := upstream.NewMock("fallback", "<VAST/>")

	f := newTestFetcher()
	result, err := f.FetchWithFallbacks(context.Background(),
		[]vast.Source{vast.SourceUpstream(primary)},
		[]vast.Source{vast.SourceUpstream(fallback)},
		nil, nil, strategy(vast.ModeSequential))
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "mock://primary", result.SourceURL)
	require.Equal(t, false, result.Metadata[vast.MetaUsedFallback])
	require.EqualValues(t, 0, fallback.Calls())
}

func TestFetchSingleReportsAttempts(t *testing.T) {
	t.Parallel()

	f := newTestFetcher()
	st := strategy(vast.ModeSequential)
	st.MaxRetries = 1
	st.RetryDelay = 0

	down := upstream.NewMock("down", "").WithError(errors.New("boom"))
	result, err := f.FetchSingle(context.Background(), vast.SourceUpstream(down), nil, nil, st)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, 2, result.Metadata[vast.MetaAttempt])
	require.EqualValues(t, 2, down.Calls())
}

func TestDeterministicAcrossRuns(t *testing.T) {
	t.Parallel()

	f := newTestFetcher()
	run := func() vast.FetchResult {
		a := upstream.NewMock("a", "").WithError(errors.New("down"))
		b := upstream.NewMock("b", "<VAST>B</VAST>")
		result, err := f.FetchAll(context.Background(), []vast.Source{
			vast.SourceUpstream(a),
			vast.SourceUpstream(b),
		}, nil, nil, strategy(vast.ModeParallel))
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()
	require.Equal(t, first.Success, second.Success)
	require.Equal(t, first.SourceURL, second.SourceURL)
	require.Equal(t, first.RawResponse, second.RawResponse)
}
