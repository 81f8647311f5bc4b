package gh

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ticketmill/drover/internal/types"
)

// LinkStatus describes the open, non-draft pull requests cross-referencing
// one issue. In the degraded per-issue fallback only the count is known.
type LinkStatus struct {
	OpenLinkCount int
	Links         []string
}

// BatchCheckLinks determines in bulk which issues already have an open
// resolution attached. Identifiers are grouped to respect GraphQL query
// complexity limits; each group is one aliased query. A failed group falls
// back to one lightweight query per issue in that group.
func (c *Client) BatchCheckLinks(ctx context.Context, repo types.RepoRef, numbers []int) (map[int]LinkStatus, error) {
	result := make(map[int]LinkStatus, len(numbers))

	for i, group := range batchNumbers(numbers, c.cfg.LinkBatchSize) {
		if i > 0 {
			c.sleep(ctx, c.cfg.LinkBatchDelay)
		}
		statuses, err := c.checkLinkGroup(ctx, repo, group)
		if err != nil {
			c.Logf("link batch query failed (%v); degrading to per-issue checks", err)
			statuses = c.checkLinksIndividually(ctx, repo, group)
		}
		for n, st := range statuses {
			result[n] = st
		}
	}
	return result, nil
}

// batchNumbers splits numbers into groups of at most size, preserving order.
func batchNumbers(numbers []int, size int) [][]int {
	if size <= 0 {
		size = 50
	}
	var groups [][]int
	for start := 0; start < len(numbers); start += size {
		end := start + size
		if end > len(numbers) {
			end = len(numbers)
		}
		groups = append(groups, numbers[start:end])
	}
	return groups
}

func (c *Client) checkLinkGroup(ctx context.Context, repo types.RepoRef, numbers []int) (map[int]LinkStatus, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "query { repository(owner: %q, name: %q) {", repo.Owner, repo.Name)
	for _, n := range numbers {
		fmt.Fprintf(&b, ` i%d: issue(number: %d) {
			timelineItems(itemTypes: CROSS_REFERENCED_EVENT, first: 20) {
				nodes { ... on CrossReferencedEvent {
					source { ... on PullRequest { url state isDraft } }
				} }
			}
		}`, n, n)
	}
	b.WriteString("} }")

	out, err := c.run.Run(ctx, "api", "graphql", "-f", "query="+b.String())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Repository map[string]struct {
				TimelineItems struct {
					Nodes []struct {
						Source struct {
							URL     string `json:"url"`
							State   string `json:"state"`
							IsDraft bool   `json:"isDraft"`
						} `json:"source"`
					} `json:"nodes"`
				} `json:"timelineItems"`
			} `json:"repository"`
		} `json:"data"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("parsing link batch response: %w", err)
	}

	statuses := make(map[int]LinkStatus, len(numbers))
	for _, n := range numbers {
		issue, ok := resp.Data.Repository[fmt.Sprintf("i%d", n)]
		if !ok {
			statuses[n] = LinkStatus{}
			continue
		}
		var st LinkStatus
		for _, node := range issue.TimelineItems.Nodes {
			src := node.Source
			if src.URL == "" || src.IsDraft || src.State != "OPEN" {
				continue
			}
			st.OpenLinkCount++
			st.Links = append(st.Links, src.URL)
		}
		statuses[n] = st
	}
	return statuses, nil
}

// checkLinksIndividually is the degraded path: one timeline fetch per issue,
// producing a count with no link details. Individual failures count as zero
// links rather than aborting the batch.
func (c *Client) checkLinksIndividually(ctx context.Context, repo types.RepoRef, numbers []int) map[int]LinkStatus {
	statuses := make(map[int]LinkStatus, len(numbers))
	for _, n := range numbers {
		path := fmt.Sprintf("repos/%s/%s/issues/%d/timeline", repo.Owner, repo.Name, n)
		out, err := c.run.Run(ctx, "api", path)
		if err != nil {
			c.Logf("link check for %s#%d failed: %v", repo, n, err)
			statuses[n] = LinkStatus{}
			continue
		}
		var events []struct {
			Event  string `json:"event"`
			Source struct {
				Issue struct {
					State       string          `json:"state"`
					PullRequest json.RawMessage `json:"pull_request"`
					Draft       bool            `json:"draft"`
				} `json:"issue"`
			} `json:"source"`
		}
		if err := json.Unmarshal(out, &events); err != nil {
			statuses[n] = LinkStatus{}
			continue
		}
		var count int
		for _, ev := range events {
			if ev.Event != "cross-referenced" {
				continue
			}
			iss := ev.Source.Issue
			if len(iss.PullRequest) > 0 && iss.State == "open" && !iss.Draft {
				count++
			}
		}
		statuses[n] = LinkStatus{OpenLinkCount: count}
	}
	return statuses
}
