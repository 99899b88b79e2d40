package dedup

import (
	"github.com/TobiSchelling/dealwatch/internal/collect"
	"github.com/TobiSchelling/dealwatch/internal/history"
)

// DefaultFloodCap limits notifications per run when no cap is configured.
const DefaultFloodCap = 5

// Result is the outcome of comparing a fetched feed with history.
type Result struct {
	// New holds the items to dispatch, oldest first.
	New []collect.FeedItem
	// History is the input history plus the ids of New, in dispatch order.
	// On an initialization run it holds every fetched thread instead.
	History []string
	// Initialized is set when history was empty and was seeded from the feed.
	Initialized bool
	// Dropped counts new items beyond the flood cap.
	Dropped int
}

// Engine computes feed diffs.
type Engine struct {
	floodCap   int
	maxHistory int
}

// NewEngine creates an engine. Non-positive values fall back to defaults.
func NewEngine(floodCap, maxHistory int) *Engine {
	if floodCap <= 0 {
		floodCap = DefaultFloodCap
	}
	if maxHistory <= 0 {
		maxHistory = history.DefaultMaxEntries
	}
	return &Engine{floodCap: floodCap, maxHistory: maxHistory}
}

// Compute selects the items of a newest-first feed whose thread is not in
// known. The whole feed is scanned because bumped threads interleave with
// new ones.
func (e *Engine) Compute(items []collect.FeedItem, known []string) Result {
	if len(known) == 0 {
		return e.initialize(items)
	}

	seen := make(map[string]struct{}, len(known)+len(items))
	for _, id := range known {
		seen[id] = struct{}{}
	}

	var selected []collect.FeedItem
	dropped := 0
	for _, item := range items {
		id := item.ThreadID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if len(selected) >= e.floodCap {
			dropped++
			continue
		}
		selected = append(selected, item)
	}

	dispatch := make([]collect.FeedItem, 0, len(selected))
	updated := make([]string, 0, len(known)+len(selected))
	updated = append(updated, known...)
	for i := len(selected) - 1; i >= 0; i-- {
		dispatch = append(dispatch, selected[i])
		updated = append(updated, selected[i].ThreadID())
	}

	return Result{New: dispatch, History: updated, Dropped: dropped}
}

// initialize records the whole feed, oldest first, without dispatching.
func (e *Engine) initialize(items []collect.FeedItem) Result {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		id := items[i].ThreadID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return Result{
		History:     history.Truncate(ids, e.maxHistory),
		Initialized: true,
	}
}
