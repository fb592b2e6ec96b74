package orchestrator

import (
	"strings"

	"sleuth/internal/websearch"
)

// aggregator merges search batches into a single deduplicated, capped result
// set. Deduplication keys on normalized URL, so merging the same batch twice
// is a no-op.
type aggregator struct {
	items []websearch.Item
	seen  map[string]bool
	cap   int
}

func newAggregator(cap int) *aggregator {
	return &aggregator{seen: make(map[string]bool), cap: cap}
}

// normalizeURL lowercases the scheme-and-host portion and strips a trailing
// slash so trivially equivalent links collapse to one key.
func normalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimSuffix(u, "/")
	if i := strings.Index(u, "://"); i >= 0 {
		rest := u[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			u = strings.ToLower(u[:i+3]+rest[:j]) + rest[j:]
		} else {
			u = strings.ToLower(u)
		}
	}
	return u
}

// Merge folds a settled batch into the aggregate, preserving arrival order.
// Results past the cap are dropped.
func (a *aggregator) Merge(outcomes []queryOutcome) {
	for _, o := range outcomes {
		if o.Err != nil || o.Response == nil {
			continue
		}
		for _, item := range o.Response.Items {
			key := normalizeURL(item.Link)
			if key == "" || a.seen[key] {
				continue
			}
			a.seen[key] = true
			if len(a.items) < a.cap {
				a.items = append(a.items, item)
			}
		}
	}
}

// Items returns the aggregated results in arrival order.
func (a *aggregator) Items() []websearch.Item { return a.items }

// UniqueURLCount reports how many distinct URLs have been seen, including
// those dropped by the cap. The iteration controller compares this across
// merges, and the cap must not mask late growth.
func (a *aggregator) UniqueURLCount() int { return len(a.seen) }

// sourcesFromItems converts aggregated results into ranked answer sources.
func sourcesFromItems(items []websearch.Item) []Source {
	sources := make([]Source, len(items))
	for i, item := range items {
		sources[i] = Source{
			Title:      item.CleanTitle(),
			URL:        item.Link,
			Snippet:    item.CleanSnippet(),
			DisplayURL: item.DisplayLink,
			Rank:       i + 1,
		}
	}
	return sources
}
