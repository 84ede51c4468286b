// Package pubsub provides a crawl queue backed by Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
)

// Config identifies the topic/subscription pair used for task dispatch.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
	// Buffer is the capacity of the local delivery channel fed by the
	// subscription receiver.
	Buffer int
}

// Queue implements crawler.Queue on a Pub/Sub topic and subscription.
// Enqueue publishes the item as JSON; Dequeue hands out items received by a
// background subscriber goroutine.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	items  chan crawler.QueueItem
	log    *zap.Logger

	recvCancel context.CancelFunc
	recvDone   sync.WaitGroup
	closeOnce  sync.Once
}

// New connects to Pub/Sub, verifies the topic exists, and starts receiving.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Queue, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		closeClient(client, log)
		return nil, fmt.Errorf("check topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		closeClient(client, log)
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	q := &Queue{
		client: client,
		topic:  topic,
		items:  make(chan crawler.QueueItem, buffer),
		log:    log,
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	q.recvCancel = cancel
	q.recvDone.Add(1)
	go q.receive(recvCtx, client.Subscription(cfg.SubscriptionID))

	return q, nil
}

// Enqueue publishes the item and waits for the server acknowledgement so a
// successful return means the task is durably queued.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"task_id": item.TaskID,
			"site_id": item.SiteID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish queue item: %w", err)
	}
	return nil
}

// Dequeue returns the next received item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.items:
		if !ok {
			return crawler.QueueItem{}, fmt.Errorf("queue closed")
		}
		return item, nil
	}
}

func (q *Queue) receive(ctx context.Context, sub *pubsub.Subscription) {
	defer q.recvDone.Done()
	err := sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		var item crawler.QueueItem
		if err := json.Unmarshal(msg.Data, &item); err != nil {
			q.log.Warn("dropping malformed queue message",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			msg.Ack()
			return
		}
		select {
		case q.items <- item:
			msg.Ack()
		case <-msgCtx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		q.log.Error("pubsub receive stopped", zap.Error(err))
	}
}

// Close stops the receiver, flushes pending publishes, and closes the client.
func (q *Queue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		q.recvCancel()
		q.recvDone.Wait()
		close(q.items)
		q.topic.Stop()
		if cerr := q.client.Close(); cerr != nil {
			err = fmt.Errorf("close pubsub client: %w", cerr)
		}
	})
	return err
}

func closeClient(client *pubsub.Client, log *zap.Logger) {
	if err := client.Close(); err != nil {
		log.Warn("failed to close pubsub client", zap.Error(err))
	}
}
