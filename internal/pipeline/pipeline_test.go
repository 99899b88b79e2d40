package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TobiSchelling/dealwatch/internal/collect"
	"github.com/TobiSchelling/dealwatch/internal/database"
	"github.com/TobiSchelling/dealwatch/internal/dedup"
	"github.com/TobiSchelling/dealwatch/internal/history"
	"github.com/TobiSchelling/dealwatch/internal/notify"
	"github.com/TobiSchelling/dealwatch/internal/triage"
)

type fakeSource struct {
	items []collect.FeedItem
	err   error
}

func (f *fakeSource) Fetch(context.Context) ([]collect.FeedItem, error) {
	return f.items, f.err
}

type memStore struct {
	ids   []string
	saves int
}

func (m *memStore) Load() history.LoadResult {
	if len(m.ids) == 0 {
		return history.LoadResult{Format: history.FormatEmpty}
	}
	return history.LoadResult{Format: history.FormatStructured, IDs: append([]string(nil), m.ids...)}
}

func (m *memStore) Save(ids []string) error {
	m.saves++
	m.ids = append([]string(nil), ids...)
	return nil
}

type fakeNotifier struct {
	sent   []notify.Message
	failOn map[string]bool
}

func (f *fakeNotifier) Notify(_ context.Context, msg notify.Message) error {
	f.sent = append(f.sent, msg)
	if f.failOn[msg.Click] {
		return errors.New("sink unavailable")
	}
	return nil
}

func link(id string) string {
	return "https://forums.example.com/viewtopic.php?t=" + id
}

func deal(id, title string) collect.FeedItem {
	return collect.FeedItem{Title: title, Link: link(id)}
}

type harness struct {
	source   *fakeSource
	store    *memStore
	notifier *fakeNotifier
	db       *database.DB
	pipe     *Pipeline
}

func newHarness(t *testing.T, items []collect.FeedItem, known []string) *harness {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := &harness{
		source:   &fakeSource{items: items},
		store:    &memStore{ids: known},
		notifier: &fakeNotifier{failOn: map[string]bool{}},
		db:       db,
	}
	h.pipe = NewWithDeps(Deps{
		Source: h.source,
		Store:  h.store,
		Engine: dedup.NewEngine(5, 150),
		Classifier: triage.NewClassifier(triage.Config{
			DefaultRetailer: "RFD",
			IgnoreKeywords:  []string{"sold out", "oos", "expired"},
			UrgentKeywords:  []string{"price error", "freebie", "100% off", "lava hot"},
			BaseTags:        []string{"money_with_wings", "canada"},
			UrgentTags:      []string{"rotating_light", "loudspeaker"},
		}),
		Dispatcher: notify.NewDispatcher(h.notifier, 0),
		Recorder:   db,
		Logger:     zap.NewNop(),
	})
	return h
}

func TestRunInitialization(t *testing.T) {
	h := newHarness(t, []collect.FeedItem{deal("3", "[A] c"), deal("2", "[A] b"), deal("1", "[A] a")}, nil)

	r := h.pipe.Run(context.Background())

	if !r.Initialized {
		t.Fatal("expected initialization run")
	}
	if len(h.notifier.sent) != 0 {
		t.Errorf("expected no notifications on init, got %d", len(h.notifier.sent))
	}
	if !reflect.DeepEqual(h.store.ids, []string{"1", "2", "3"}) {
		t.Errorf("expected all ids saved, got %v", h.store.ids)
	}

	runs, _ := h.db.GetRecentRuns(5)
	if len(runs) != 1 || !runs[0].Initialized {
		t.Errorf("expected one recorded init run, got %+v", runs)
	}
}

func TestRunDispatchesOldestFirstAndRecords(t *testing.T) {
	items := []collect.FeedItem{
		deal("30", "[BestBuy] price error on headphones"),
		deal("20", "[Costco] bumped old thread"),
		deal("10", "[Amazon] batteries"),
	}
	h := newHarness(t, items, []string{"20"})

	r := h.pipe.Run(context.Background())

	if r.Delivered != 2 || r.Failed != 0 || r.Suppressed != 0 {
		t.Errorf("unexpected counters %+v", r)
	}
	if len(h.notifier.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(h.notifier.sent))
	}
	if h.notifier.sent[0].Click != link("10") || h.notifier.sent[1].Click != link("30") {
		t.Errorf("expected oldest first, got %s then %s", h.notifier.sent[0].Click, h.notifier.sent[1].Click)
	}
	urgent := h.notifier.sent[1]
	if urgent.Title != "URGENT: Deal @ BestBuy" || urgent.Priority != triage.PriorityUrgent {
		t.Errorf("unexpected urgent message %+v", urgent)
	}
	if !reflect.DeepEqual(h.store.ids, []string{"20", "10", "30"}) {
		t.Errorf("unexpected saved history %v", h.store.ids)
	}

	deliveries, _ := h.db.GetRecentDeliveries(10)
	if len(deliveries) != 2 {
		t.Errorf("expected 2 recorded deliveries, got %d", len(deliveries))
	}
}

func TestRunSuppressedStillMarkedSeen(t *testing.T) {
	items := []collect.FeedItem{
		deal("11", "[Walmart] PRICE ERROR tv - sold out"),
		deal("10", "[Amazon] batteries"),
	}
	h := newHarness(t, items, []string{"1"})

	r := h.pipe.Run(context.Background())

	if r.Suppressed != 1 || r.Delivered != 1 {
		t.Errorf("unexpected counters %+v", r)
	}
	for _, m := range h.notifier.sent {
		if m.Click == link("11") {
			t.Error("suppressed item must not be sent")
		}
	}
	if !reflect.DeepEqual(h.store.ids, []string{"1", "10", "11"}) {
		t.Errorf("suppressed item should be recorded in history, got %v", h.store.ids)
	}

	deliveries, _ := h.db.GetRecentDeliveries(10)
	statuses := map[string]string{}
	for _, d := range deliveries {
		statuses[d.ThreadID] = d.Status
	}
	if statuses["11"] != "suppressed" || statuses["10"] != "delivered" {
		t.Errorf("unexpected recorded statuses %v", statuses)
	}
}

func TestRunDeliveryFailureDoesNotStopRun(t *testing.T) {
	items := []collect.FeedItem{deal("12", "[A] c"), deal("11", "[A] b"), deal("10", "[A] a")}
	h := newHarness(t, items, []string{"1"})
	h.notifier.failOn[link("11")] = true

	r := h.pipe.Run(context.Background())

	if r.Failed != 1 || r.Delivered != 2 {
		t.Errorf("unexpected counters %+v", r)
	}
	if len(h.notifier.sent) != 3 {
		t.Errorf("expected all 3 attempted, got %d", len(h.notifier.sent))
	}
	if !reflect.DeepEqual(h.store.ids, []string{"1", "10", "11", "12"}) {
		t.Errorf("failed item should still be marked seen, got %v", h.store.ids)
	}
}

func TestRunFloodCap(t *testing.T) {
	var items []collect.FeedItem
	for i := 108; i >= 101; i-- {
		items = append(items, deal(fmt.Sprint(i), "[A] deal"))
	}
	h := newHarness(t, items, []string{"1"})

	r := h.pipe.Run(context.Background())

	if len(h.notifier.sent) != 5 || r.Dropped != 3 {
		t.Errorf("expected 5 sent and 3 dropped, got %d sent, %d dropped", len(h.notifier.sent), r.Dropped)
	}
	if len(h.store.ids) != 6 {
		t.Errorf("expected 6 history entries, got %v", h.store.ids)
	}
}

func TestRunUnchangedFeedDoesNotSave(t *testing.T) {
	h := newHarness(t, []collect.FeedItem{deal("2", "[A] b"), deal("1", "[A] a")}, []string{"1", "2"})

	r := h.pipe.Run(context.Background())

	if r.New != 0 || len(h.notifier.sent) != 0 {
		t.Errorf("expected nothing new, got %+v", r)
	}
	if h.store.saves != 0 {
		t.Errorf("expected no save for an unchanged feed, got %d", h.store.saves)
	}
}

func TestRunEmptyFeedIsNoop(t *testing.T) {
	h := newHarness(t, nil, nil)

	r := h.pipe.Run(context.Background())

	if r.Initialized || h.store.saves != 0 {
		t.Errorf("empty feed must not initialize history, got %+v", r)
	}
}

func TestRunFetchErrorIsNoop(t *testing.T) {
	h := newHarness(t, nil, []string{"1"})
	h.source.err = errors.New("dns failure")

	r := h.pipe.Run(context.Background())

	if len(r.Steps) != 1 || r.Steps[0].Err == nil {
		t.Errorf("expected a single failed fetch step, got %+v", r.Steps)
	}
	if h.store.saves != 0 {
		t.Error("history must not be touched after a fetch failure")
	}
}

func TestDryRun(t *testing.T) {
	h := newHarness(t, []collect.FeedItem{deal("11", "[A] new"), deal("1", "[A] old")}, []string{"1"})

	r := h.pipe.DryRun(context.Background())

	if !r.DryRun || r.New != 1 {
		t.Errorf("unexpected dry run result %+v", r)
	}
	if len(h.notifier.sent) != 0 || h.store.saves != 0 {
		t.Error("dry run must not notify or save")
	}
	runs, _ := h.db.GetRecentRuns(5)
	if len(runs) != 0 {
		t.Error("dry run must not record runs")
	}
}

func TestRunWithoutRecorder(t *testing.T) {
	store := &memStore{ids: []string{"1"}}
	n := &fakeNotifier{}
	p := NewWithDeps(Deps{
		Source:     &fakeSource{items: []collect.FeedItem{deal("2", "[A] b")}},
		Store:      store,
		Engine:     dedup.NewEngine(5, 150),
		Classifier: triage.NewClassifier(triage.Config{DefaultRetailer: "RFD"}),
		Dispatcher: notify.NewDispatcher(n, 0),
	})

	r := p.Run(context.Background())
	if r.Delivered != 1 || len(store.ids) != 2 {
		t.Errorf("unexpected result without recorder %+v", r)
	}
}

func TestRunLogsSeedingOnEmptyHistory(t *testing.T) {
	h := newHarness(t, []collect.FeedItem{deal("1", "[A] a")}, nil)
	core, logs := observer.New(zap.InfoLevel)
	h.pipe.logger = zap.New(core)

	h.pipe.Run(context.Background())

	if logs.FilterMessage("no history yet, seeding from current feed").Len() != 1 {
		t.Errorf("expected seeding log line, got %v", logs.All())
	}
}

func TestResultFieldsIncludeFloodDrops(t *testing.T) {
	ids := []string{"9", "8", "7", "6", "5", "4", "3"}
	items := make([]collect.FeedItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, deal(id, "[A] deal "+id))
	}
	h := newHarness(t, items, []string{"1"})

	r := h.pipe.Run(context.Background())
	if r.Dropped != 2 {
		t.Fatalf("expected 2 dropped by flood cap, got %d", r.Dropped)
	}

	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("check complete", r.Fields()...)

	ctx := logs.All()[0].ContextMap()
	if ctx["dropped"] != int64(2) {
		t.Errorf("expected dropped=2 in summary fields, got %v", ctx["dropped"])
	}
	if ctx["sent"] != int64(5) {
		t.Errorf("expected sent=5 in summary fields, got %v", ctx["sent"])
	}
}
