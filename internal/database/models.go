package database

// Run summarizes one check of the feed.
type Run struct {
	ID          string
	StartedAt   *string
	Fetched     int
	NewItems    int
	Delivered   int
	Failed      int
	Suppressed  int
	Dropped     int
	Initialized bool
}

// Delivery records what happened to one new feed item.
type Delivery struct {
	ID        int64
	RunID     string
	ThreadID  string
	Title     string
	Link      string
	Retailer  *string
	Priority  int
	Status    string // "delivered", "failed", "suppressed" or "skipped"
	Error     *string
	Keyword   *string
	CreatedAt *string
}

// Stats contains aggregate delivery log statistics.
type Stats struct {
	Runs           int
	InitRuns       int
	Delivered      int
	Failed         int
	Suppressed     int
	UrgentSent     int
	LastRunStarted *string
}
