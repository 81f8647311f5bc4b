package gh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketmill/drover/internal/types"
)

var testRepo = types.RepoRef{Owner: "octo-org", Name: "api"}

func TestBatchNumbers(t *testing.T) {
	groups := batchNumbers(intRange(1, 120), 50)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 50)
	assert.Len(t, groups[1], 50)
	assert.Len(t, groups[2], 20)

	assert.Empty(t, batchNumbers(nil, 50))
	assert.Len(t, batchNumbers(intRange(1, 50), 50), 1)
}

// 120 identifiers with batch size 50 must issue exactly 3 grouped queries.
func TestBatchCheckLinksIssuesThreeQueries(t *testing.T) {
	run := &fakeRunner{respond: func(args []string) ([]byte, error) {
		return []byte(`{"data":{"repository":{}}}`), nil
	}}
	c := newTestClient(run)

	statuses, err := c.BatchCheckLinks(context.Background(), testRepo, intRange(1, 120))
	require.NoError(t, err)
	assert.Len(t, statuses, 120)
	assert.Equal(t, 3, run.countCalls("api", "graphql"))
}

func TestBatchCheckLinksCountsOpenNonDraftPRs(t *testing.T) {
	resp := `{"data":{"repository":{
		"i1":{"timelineItems":{"nodes":[
			{"source":{"url":"https://github.com/octo-org/api/pull/90","state":"OPEN","isDraft":false}},
			{"source":{"url":"https://github.com/octo-org/api/pull/91","state":"OPEN","isDraft":true}},
			{"source":{"url":"https://github.com/octo-org/api/pull/92","state":"CLOSED","isDraft":false}},
			{"source":{}}
		]}},
		"i2":{"timelineItems":{"nodes":[]}}
	}}}`
	run := &fakeRunner{respond: func(args []string) ([]byte, error) {
		return []byte(resp), nil
	}}
	c := newTestClient(run)

	statuses, err := c.BatchCheckLinks(context.Background(), testRepo, []int{1, 2})
	require.NoError(t, err)

	// Draft and closed PRs don't count as open resolutions.
	assert.Equal(t, 1, statuses[1].OpenLinkCount)
	assert.Equal(t, []string{"https://github.com/octo-org/api/pull/90"}, statuses[1].Links)
	assert.Equal(t, 0, statuses[2].OpenLinkCount)
}

// A failed group query degrades to one lightweight query per issue,
// producing counts without link details.
func TestBatchFailureFallsBackPerIssue(t *testing.T) {
	run := &fakeRunner{respond: func(args []string) ([]byte, error) {
		if args[1] == "graphql" {
			return nil, errors.New("GraphQL: query complexity exceeded")
		}
		// Timeline fetch for a single issue.
		if strings.Contains(args[1], "/issues/1/") {
			return []byte(`[
				{"event":"cross-referenced","source":{"issue":{"state":"open","draft":false,"pull_request":{"url":"x"}}}},
				{"event":"cross-referenced","source":{"issue":{"state":"closed","pull_request":{"url":"y"}}}},
				{"event":"labeled"}
			]`), nil
		}
		return []byte(`[]`), nil
	}}
	c := newTestClient(run)

	statuses, err := c.BatchCheckLinks(context.Background(), testRepo, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, statuses[1].OpenLinkCount)
	assert.Nil(t, statuses[1].Links, "degraded path carries no link details")
	assert.Equal(t, 0, statuses[2].OpenLinkCount)

	assert.Equal(t, 1, run.countCalls("api", "graphql"))
	timelineCalls := 0
	for _, call := range run.calls {
		if call[0] == "api" && strings.Contains(call[1], "/timeline") {
			timelineCalls++
		}
	}
	assert.Equal(t, 2, timelineCalls)
}

// A failure on the individual fallback query yields a zero count, not an error.
func TestIndividualFallbackFailureIsZeroCount(t *testing.T) {
	run := &fakeRunner{respond: func(args []string) ([]byte, error) {
		if args[1] == "graphql" {
			return nil, errors.New("timeout")
		}
		return nil, fmt.Errorf("HTTP 404: not found")
	}}
	c := newTestClient(run)

	statuses, err := c.BatchCheckLinks(context.Background(), testRepo, []int{8})
	require.NoError(t, err)
	assert.Equal(t, 0, statuses[8].OpenLinkCount)
}

func intRange(lo, hi int) []int {
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}
