package collect

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// FeedItem represents one entry of the fetched feed.
type FeedItem struct {
	Title     string
	Link      string
	GUID      string
	Published *time.Time
}

// ThreadID returns the dedup key for the item.
func (it FeedItem) ThreadID() string {
	return ExtractThreadID(it.Link)
}

// FeedSource fetches a single RSS/Atom feed.
type FeedSource struct {
	url    string
	parser *gofeed.Parser
	logger *zap.Logger
}

// NewFeedSource creates a feed source for url. A zero timeout means 20s.
func NewFeedSource(url, userAgent string, timeout time.Duration, logger *zap.Logger) *FeedSource {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: timeout}
	return &FeedSource{url: url, parser: parser, logger: logger}
}

// Fetch returns the feed entries in feed order (newest first).
func (fs *FeedSource) Fetch(ctx context.Context) ([]FeedItem, error) {
	feed, err := fs.parser.ParseURLWithContext(fs.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", fs.url, err)
	}

	items := make([]FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		entry, ok := parseItem(item)
		if !ok {
			continue
		}
		items = append(items, entry)
	}

	fs.logger.Debug("parsed feed",
		zap.String("url", fs.url),
		zap.Int("entries", len(feed.Items)),
		zap.Int("usable", len(items)))
	return items, nil
}

func parseItem(item *gofeed.Item) (FeedItem, bool) {
	if item == nil {
		return FeedItem{}, false
	}

	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		return FeedItem{}, false
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}

	return FeedItem{
		Title:     strings.TrimSpace(item.Title),
		Link:      link,
		GUID:      item.GUID,
		Published: published,
	}, true
}
