package fetcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/vastio/vastfetch/internal/vast"
)

// fetchParallel launches every source concurrently under the overall
// budget, awaits them all, and returns the first success in source-list
// order. The winner is decided by configured priority, not completion
// timing: a low-priority source finishing first never preempts a
// higher-priority one that also succeeds. Exiting on the first completion
// would silently turn this into race semantics.
func (f *Fetcher) fetchParallel(ctx context.Context, upstreams []vast.Upstream, strategy vast.FetchStrategy) vast.FetchResult {
	ctx, cancel := overallContext(ctx, strategy.Timeout)
	defer cancel()

	outcomes := make([]outcome, len(upstreams))
	var wg sync.WaitGroup
	for i, up := range upstreams {
		wg.Add(1)
		go func(i int, up vast.Upstream) {
			defer wg.Done()
			outcomes[i] = f.fetchUpstream(ctx, i, up, strategy)
		}(i, up)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		result := vast.NewFetchResult()
		result.AddError("all", vast.PhaseFetch, fmt.Errorf("%w (budget %s)", vast.ErrOverallTimeout, strategy.Timeout))
		return result
	}

	result := vast.NewFetchResult()
	winner := -1
	for i := range outcomes {
		if outcomes[i].err == nil {
			winner = i
			break
		}
	}
	if winner < 0 {
		for i := range outcomes {
			result.AddError(outcomes[i].identifier, vast.PhaseFetch, outcomes[i].err)
		}
		return result
	}
	for i := 0; i < winner; i++ {
		result.AddError(outcomes[i].identifier, vast.PhaseFetch, outcomes[i].err)
	}
	successResult(&result, outcomes[winner])
	return result
}
