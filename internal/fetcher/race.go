package fetcher

import (
	"context"
	"fmt"

	"github.com/vastio/vastfetch/internal/vast"
)

// fetchRace launches every source concurrently and takes the first to
// complete successfully in real time, regardless of list order. The moment
// a winner lands, every other in-flight task is cancelled through its
// transport context so no request outlives the decision. If the earliest
// completions are failures, the rest are still awaited and their errors
// folded in before declaring total failure.
func (f *Fetcher) fetchRace(ctx context.Context, upstreams []vast.Upstream, strategy vast.FetchStrategy) vast.FetchResult {
	ctx, cancel := overallContext(ctx, strategy.Timeout)
	defer cancel()
	raceCtx, abortLosers := context.WithCancel(ctx)
	defer abortLosers()

	// buffered so losers finishing after the decision never block
	completions := make(chan outcome, len(upstreams))
	for i, up := range upstreams {
		go func(i int, up vast.Upstream) {
			completions <- f.fetchUpstream(raceCtx, i, up, strategy)
		}(i, up)
	}

	result := vast.NewFetchResult()
	for received := 0; received < len(upstreams); received++ {
		select {
		case oc := <-completions:
			if oc.err == nil {
				abortLosers()
				successResult(&result, oc)
				return result
			}
			result.AddError(oc.identifier, vast.PhaseFetch, oc.err)
		case <-ctx.Done():
			result.AddError("all", vast.PhaseFetch, fmt.Errorf("%w (budget %s)", vast.ErrOverallTimeout, strategy.Timeout))
			return result
		}
	}
	return result
}
