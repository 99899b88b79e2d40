package triage

import (
	"regexp"
	"strings"
)

// Priority follows the ntfy 1..5 scale.
type Priority int

const (
	PriorityMin    Priority = 1
	PriorityLow    Priority = 2
	PriorityNormal Priority = 3
	PriorityHigh   Priority = 4
	PriorityUrgent Priority = 5
)

func (p Priority) String() string {
	switch p {
	case PriorityMin:
		return "min"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

const urgentPrefix = "URGENT: "

var retailerPattern = regexp.MustCompile(`^\[(.*?)\]`)

// Config holds the keyword sets and labels used to classify titles.
type Config struct {
	DefaultRetailer string
	IgnoreKeywords  []string
	UrgentKeywords  []string
	BaseTags        []string
	UrgentTags      []string
}

// Result is the classification of one title.
type Result struct {
	Retailer string
	Priority Priority
	Tags     []string
	Suppress bool
	// Keyword is the ignore keyword when Suppress is set, otherwise the
	// urgent keyword that matched, if any.
	Keyword string
}

// Urgent reports whether an urgent keyword matched.
func (r Result) Urgent() bool {
	return r.Priority == PriorityUrgent
}

// Header is the notification title, e.g. "URGENT: Deal @ BestBuy".
func (r Result) Header() string {
	header := "Deal @ " + r.Retailer
	if r.Urgent() {
		header = urgentPrefix + header
	}
	return header
}

// Classifier maps deal titles to notification metadata.
type Classifier struct {
	defaultRetailer string
	ignore          []string
	urgent          []string
	baseTags        []string
	urgentTags      []string
}

// NewClassifier creates a classifier. Keywords are matched case-insensitively.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{
		defaultRetailer: cfg.DefaultRetailer,
		ignore:          lowerAll(cfg.IgnoreKeywords),
		urgent:          lowerAll(cfg.UrgentKeywords),
		baseTags:        cfg.BaseTags,
		urgentTags:      cfg.UrgentTags,
	}
}

// Classify extracts the retailer and decides suppression and urgency.
// Ignore keywords take precedence over urgent keywords.
func (c *Classifier) Classify(title string) Result {
	r := Result{
		Retailer: c.retailer(title),
		Priority: PriorityNormal,
	}

	lower := strings.ToLower(title)
	if kw, ok := firstMatch(lower, c.ignore); ok {
		r.Suppress = true
		r.Keyword = kw
		return r
	}

	tags := make([]string, 0, len(c.baseTags)+len(c.urgentTags))
	tags = append(tags, c.baseTags...)
	if kw, ok := firstMatch(lower, c.urgent); ok {
		r.Priority = PriorityUrgent
		r.Keyword = kw
		tags = append(tags, c.urgentTags...)
	}
	r.Tags = tags
	return r
}

func (c *Classifier) retailer(title string) string {
	if m := retailerPattern.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	return c.defaultRetailer
}

func firstMatch(lowerTitle string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lowerTitle, kw) {
			return kw, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
