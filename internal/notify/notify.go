package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/dealwatch/internal/collect"
	"github.com/TobiSchelling/dealwatch/internal/triage"
)

// Message is one push request.
type Message struct {
	Title    string
	Priority triage.Priority
	Tags     []string
	Click    string
	Body     string
}

// NewMessage builds the push request for a classified feed item.
func NewMessage(item collect.FeedItem, class triage.Result) Message {
	return Message{
		Title:    class.Header(),
		Priority: class.Priority,
		Tags:     class.Tags,
		Click:    item.Link,
		Body:     item.Title + "\n" + item.Link,
	}
}

// Notifier delivers a message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Ntfy publishes to a single ntfy topic URL.
type Ntfy struct {
	url    string
	token  string
	client *http.Client
}

// NewNtfy creates a publisher for topicURL. If tokenEnv names a non-empty
// environment variable, its value is sent as a bearer token.
func NewNtfy(topicURL, tokenEnv string, timeout time.Duration) *Ntfy {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	var token string
	if tokenEnv != "" {
		token = os.Getenv(tokenEnv)
	}
	return &Ntfy{
		url:    topicURL,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify POSTs the message body with ntfy headers.
func (n *Ntfy) Notify(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Title", msg.Title)
	req.Header.Set("Priority", strconv.Itoa(int(msg.Priority)))
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Click != "" {
		req.Header.Set("Click", msg.Click)
	}
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to ntfy: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}
