package dedup

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/TobiSchelling/dealwatch/internal/collect"
)

func item(id string) collect.FeedItem {
	return collect.FeedItem{
		Title: "[Shop] deal " + id,
		Link:  "https://forums.example.com/viewtopic.php?t=" + id,
	}
}

func feed(ids ...string) []collect.FeedItem {
	items := make([]collect.FeedItem, len(ids))
	for i, id := range ids {
		items[i] = item(id)
	}
	return items
}

func threadIDs(items []collect.FeedItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ThreadID()
	}
	return ids
}

func TestComputeUnchangedFeedIsIdempotent(t *testing.T) {
	known := []string{"3", "2", "1"}
	res := NewEngine(5, 150).Compute(feed("1", "2", "3"), known)

	if len(res.New) != 0 {
		t.Errorf("expected no new items, got %v", threadIDs(res.New))
	}
	if !reflect.DeepEqual(res.History, known) {
		t.Errorf("expected history unchanged, got %v", res.History)
	}
	if res.Initialized {
		t.Error("did not expect an initialization run")
	}
}

func TestComputeToleratesBumps(t *testing.T) {
	// A(10) new, B(20) known and bumped, C(30) new
	res := NewEngine(5, 150).Compute(feed("10", "20", "30"), []string{"20"})

	if got := threadIDs(res.New); !reflect.DeepEqual(got, []string{"30", "10"}) {
		t.Errorf("expected dispatch order [30 10], got %v", got)
	}
	want := []string{"20", "30", "10"}
	if !reflect.DeepEqual(res.History, want) {
		t.Errorf("expected history %v, got %v", want, res.History)
	}
}

func TestComputeScansPastKnownItems(t *testing.T) {
	// A purely positional cursor would stop at "5".
	res := NewEngine(5, 150).Compute(feed("9", "5", "8", "4", "7"), []string{"5", "4"})
	if got := threadIDs(res.New); !reflect.DeepEqual(got, []string{"7", "8", "9"}) {
		t.Errorf("expected [7 8 9], got %v", got)
	}
}

func TestComputeFloodCap(t *testing.T) {
	ids := []string{"108", "107", "106", "105", "104", "103", "102", "101"}
	res := NewEngine(5, 150).Compute(feed(ids...), []string{"1"})

	if len(res.New) != 5 {
		t.Fatalf("expected 5 dispatched items, got %d", len(res.New))
	}
	if got := threadIDs(res.New); !reflect.DeepEqual(got, []string{"104", "105", "106", "107", "108"}) {
		t.Errorf("expected the 5 newest oldest-first, got %v", got)
	}
	if res.Dropped != 3 {
		t.Errorf("expected 3 dropped, got %d", res.Dropped)
	}
	want := []string{"1", "104", "105", "106", "107", "108"}
	if !reflect.DeepEqual(res.History, want) {
		t.Errorf("expected history %v, got %v", want, res.History)
	}
	for _, id := range []string{"101", "102", "103"} {
		for _, h := range res.History {
			if h == id {
				t.Errorf("dropped item %s must not be recorded", id)
			}
		}
	}
}

func TestComputeInitializationRun(t *testing.T) {
	res := NewEngine(5, 150).Compute(feed("3", "2", "1"), nil)

	if !res.Initialized {
		t.Fatal("expected initialization run")
	}
	if len(res.New) != 0 {
		t.Errorf("expected no notifications on init, got %d", len(res.New))
	}
	if !reflect.DeepEqual(res.History, []string{"1", "2", "3"}) {
		t.Errorf("expected every fetched id oldest-first, got %v", res.History)
	}
}

func TestComputeInitializationRespectsBound(t *testing.T) {
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", 100-i) // newest first
	}
	res := NewEngine(5, 4).Compute(feed(ids...), nil)

	want := []string{"97", "98", "99", "100"}
	if !reflect.DeepEqual(res.History, want) {
		t.Errorf("expected newest four threads oldest-first %v, got %v", want, res.History)
	}
}

func TestComputeDuplicateThreadInOneFetch(t *testing.T) {
	items := []collect.FeedItem{
		{Title: "[X] deal", Link: "https://f/viewtopic.php?t=50"},
		{Title: "[X] deal (updated)", Link: "https://f/viewtopic.php?t=50&start=20"},
	}
	res := NewEngine(5, 150).Compute(items, []string{"1"})
	if len(res.New) != 1 {
		t.Errorf("expected one dispatch for a duplicated thread, got %d", len(res.New))
	}
}

func TestComputeEmptyFeed(t *testing.T) {
	res := NewEngine(5, 150).Compute(nil, []string{"1"})
	if len(res.New) != 0 || !reflect.DeepEqual(res.History, []string{"1"}) {
		t.Errorf("unexpected result for empty feed: %+v", res)
	}
}

func TestNewEngineDefaults(t *testing.T) {
	e := NewEngine(0, 0)
	if e.floodCap != DefaultFloodCap || e.maxHistory != 150 {
		t.Errorf("unexpected defaults: %+v", e)
	}
}
