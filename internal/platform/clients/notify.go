package clients

import (
	"context"
	"net/url"
	"time"
)

// Notifier publishes registry events on one topic of the notification broker.
type Notifier struct {
	caller
	topic string
}

// NewNotifier returns a publisher on topic.
func NewNotifier(baseURL, topic string, timeout time.Duration) *Notifier {
	return &Notifier{caller: newCaller("notify", baseURL, timeout), topic: topic}
}

// Publish sends payload with the given subject.
func (n *Notifier) Publish(ctx context.Context, subject string, payload any) error {
	path := "/v1/topics/" + url.PathEscape(n.topic) + "/publish?" + url.Values{"subject": {subject}}.Encode()
	return n.post(ctx, path, payload, nil)
}
