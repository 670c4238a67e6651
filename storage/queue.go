package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"todo-api/domain"
)

const queueAlreadyExists = "QueueAlreadyExists"

// QueuePublisher sends todo change events to an Azure Storage queue.
type QueuePublisher struct {
	queue *azqueue.QueueClient
}

// NewQueuePublisher creates a publisher for the named queue.
func NewQueuePublisher(connStr, queueName string) (*QueuePublisher, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 30,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, fmt.Errorf("queue client: %w", err)
	}
	return &QueuePublisher{queue: q}, nil
}

// EnsureQueue creates the queue if it does not exist yet.
func (p *QueuePublisher) EnsureQueue(ctx context.Context) error {
	_, err := p.queue.Create(ctx, nil)
	if err != nil && !isQueueAlreadyExists(err) {
		return fmt.Errorf("create queue: %w", err)
	}
	return nil
}

// Publish enqueues a single event as a JSON message.
func (p *QueuePublisher) Publish(ctx context.Context, ev domain.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if _, err := p.queue.EnqueueMessage(ctx, data, nil); err != nil {
		return fmt.Errorf("enqueue event %s: %w", ev.ID, err)
	}
	return nil
}

func encodeEvent(ev domain.Event) (string, error) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return string(data), nil
}

func isQueueAlreadyExists(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == queueAlreadyExists
}
