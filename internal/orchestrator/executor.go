package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sleuth/internal/logging"
	"sleuth/internal/websearch"
)

// executeSearches fans one search call per query out concurrently and waits
// for every call to settle. Failures never cancel siblings: each outcome is
// recorded in order, success or not, so the caller can decide what a fully
// failed batch means for the phase it is in.
func (e *Engine) executeSearches(ctx context.Context, queries []string, sc SearchContext) []queryOutcome {
	outcomes := make([]queryOutcome, len(queries))
	perQuery := perQueryBudget(e.opts.TotalResultBudget, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			resp, err := e.searcher.Search(gctx, q, websearch.Options{
				Count:    perQuery,
				Language: sc.Language,
				Region:   sc.Region,
				SafeMode: e.opts.SafeMode,
			})
			outcomes[i] = queryOutcome{Query: q, Response: resp, Err: err}
			if err != nil {
				logging.SearchWarn("search failed for %q: %v", q, err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers always return nil

	return outcomes
}

// perQueryBudget divides the total result budget across queries, rounding up
// so a remainder never starves the last query.
func perQueryBudget(total, queries int) int {
	if queries <= 0 {
		return total
	}
	budget := (total + queries - 1) / queries
	if budget < 1 {
		budget = 1
	}
	return budget
}

// successfulOutcomes filters a settled batch down to the calls that produced
// a response.
func successfulOutcomes(outcomes []queryOutcome) []queryOutcome {
	ok := make([]queryOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil && o.Response != nil {
			ok = append(ok, o)
		}
	}
	return ok
}
