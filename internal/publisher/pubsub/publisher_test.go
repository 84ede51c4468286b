package pubsub

import (
	"context"
	"sort"
	"testing"
)

func TestPublishWithoutTopicFails(t *testing.T) {
	t.Parallel()

	pub := New(nil)
	if _, err := pub.Publish(context.Background(), "events", map[string]string{"k": "v"}); err == nil {
		t.Fatal("expected error when topic is not configured")
	}
}

func TestPubsubCarrier(t *testing.T) {
	t.Parallel()

	carrier := &pubsubCarrier{attrs: make(map[string]string)}
	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("site", "example")

	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("unexpected carrier value: %q", got)
	}
	keys := carrier.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "site" || keys[1] != "traceparent" {
		t.Fatalf("unexpected carrier keys: %v", keys)
	}
}
