package fetcher

import (
	"context"
	"fmt"

	"github.com/vastio/vastfetch/internal/vast"
)

// fetchSequential tries sources strictly in list order and stops at the
// first success. Errors from every source attempted before the winner are
// aggregated in order.
func (f *Fetcher) fetchSequential(ctx context.Context, upstreams []vast.Upstream, strategy vast.FetchStrategy) vast.FetchResult {
	ctx, cancel := overallContext(ctx, strategy.Timeout)
	defer cancel()

	result := vast.NewFetchResult()
	for i, up := range upstreams {
		if ctx.Err() != nil {
			result.AddError("all", vast.PhaseFetch, fmt.Errorf("%w (budget %s)", vast.ErrOverallTimeout, strategy.Timeout))
			return result
		}
		oc := f.fetchUpstream(ctx, i, up, strategy)
		if oc.err == nil {
			successResult(&result, oc)
			return result
		}
		result.AddError(oc.identifier, vast.PhaseFetch, oc.err)
	}
	return result
}
