package gh

import (
	"context"
	"fmt"

	"github.com/ticketmill/drover/internal/types"
)

// Discover runs one discovery query for the filter. The query executes as a
// single round trip: the page ceiling IS the page, and a full page only
// produces a warning that more items may exist.
//
// Failure handling follows the taxonomy: a throttle propagates immediately
// as DiscoveryError{RateLimited: true} so the caller can fall back; any
// other failure gets exactly one retry at the reduced page size before
// surfacing.
func (c *Client) Discover(ctx context.Context, f types.Filter) ([]types.WorkItem, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	// Project boards are a single paged listing with no search endpoint
	// behind them; no pacing ceremony needed beyond the pre-call delay.
	if f.Mode == types.FilterProjectStatus {
		c.sleep(ctx, c.cfg.SearchDelay)
		items, err := c.projectItems(ctx, f)
		if err != nil {
			return nil, c.classify(err)
		}
		return items, nil
	}

	// Search endpoints are throttled far more aggressively than direct
	// per-repo listings, so the ceiling differs by query kind.
	pageSize := c.cfg.SearchPageSize
	if !f.Repo.IsZero() {
		pageSize = c.cfg.ListPageSize
	}

	items, err := c.discoverOnce(ctx, f, pageSize)
	if err == nil {
		return items, nil
	}
	if IsRateLimitError(err) {
		return nil, &DiscoveryError{RateLimited: true, Err: err}
	}

	// Transient-other: one bounded retry with a smaller page.
	c.Logf("discovery query failed (%v), retrying with page size %d", err, c.cfg.RetryPageSize)
	items, retryErr := c.discoverOnce(ctx, f, c.cfg.RetryPageSize)
	if retryErr != nil {
		return nil, c.classify(retryErr)
	}
	return items, nil
}

func (c *Client) discoverOnce(ctx context.Context, f types.Filter, pageSize int) ([]types.WorkItem, error) {
	// Fixed pre-call delay plus limiter pacing keeps steady-state usage
	// under the search throttle.
	c.sleep(ctx, c.cfg.SearchDelay)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		items []types.WorkItem
		err   error
	)
	if !f.Repo.IsZero() {
		items, err = c.listRepoIssues(ctx, f.Repo, f, pageSize)
	} else {
		items, err = c.searchIssues(ctx, f, pageSize)
	}
	if err != nil {
		return nil, err
	}

	if len(items) == pageSize {
		c.Logf("warning: discovery returned a full page (%d items); more may exist", pageSize)
	}

	c.sleep(ctx, c.cfg.PostSearchDelay)
	return items, nil
}

func (c *Client) classify(err error) error {
	if IsRateLimitError(err) {
		return &DiscoveryError{RateLimited: true, Err: err}
	}
	return &DiscoveryError{Err: err}
}

// DiscoverWithFallback wraps Discover with the per-repository fallback: when
// an organization- or user-wide search is throttled, enumerate the scope's
// repositories and run the narrower listing query against each, pausing
// between repositories. Per-repo failures are logged and skipped.
func (c *Client) DiscoverWithFallback(ctx context.Context, f types.Filter) (items []types.WorkItem, usedFallback bool, err error) {
	items, err = c.Discover(ctx, f)
	if err == nil {
		return items, false, nil
	}
	if !IsRateLimited(err) || f.Scope == "" || !f.Repo.IsZero() {
		return nil, false, err
	}

	c.Logf("search rate limited; falling back to per-repository enumeration of %s", f.Scope)
	repos, listErr := c.ListRepos(ctx, f.Scope)
	if listErr != nil {
		return nil, true, &DiscoveryError{Err: fmt.Errorf("fallback enumeration: %w", listErr)}
	}

	for _, repo := range repos {
		if ctx.Err() != nil {
			return items, true, ctx.Err()
		}
		c.sleep(ctx, c.cfg.FallbackDelay)

		repoItems, repoErr := c.listRepoIssues(ctx, repo, f, c.cfg.ListPageSize)
		if repoErr != nil {
			c.Logf("fallback: skipping %s: %v", repo, repoErr)
			continue
		}
		items = append(items, repoItems...)
	}
	return items, true, nil
}
