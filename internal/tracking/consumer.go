package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Consumer drains the tracking queue into the event log. Messages that can
// never succeed (malformed, unknown recipient) are deleted; other failures
// are left on the queue for redelivery.
type Consumer struct {
	client       sqsAPI
	queueURL     string
	ingester     Ingester
	waitSeconds  int32
	errorBackoff time.Duration

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewConsumer creates a consumer for queueURL.
func NewConsumer(client *sqs.Client, queueURL string, ingester Ingester) *Consumer {
	return newConsumer(client, queueURL, ingester)
}

func newConsumer(client sqsAPI, queueURL string, ingester Ingester) *Consumer {
	return &Consumer{
		client:       client,
		queueURL:     queueURL,
		ingester:     ingester,
		waitSeconds:  20,
		errorBackoff: 5 * time.Second,
		done:         make(chan struct{}),
	}
}

// Start begins polling in the background until Stop or ctx is done.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.poll(ctx)
	}()
	logger.Info("tracking consumer started", "queue", c.queueURL)
}

// Stop ends polling and waits for the in-flight batch.
func (c *Consumer) Stop() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		n, err := c.ReceiveBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("tracking receive failed", "error", err)
			select {
			case <-time.After(c.errorBackoff):
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		if n > 0 {
			logger.Debug("tracking batch processed", "messages", n)
		}
	}
}

// ReceiveBatch pulls and processes one batch, returning the number of
// messages received.
func (c *Consumer) ReceiveBatch(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitSeconds,
	})
	if err != nil {
		return 0, err
	}
	for _, msg := range out.Messages {
		if c.handle(ctx, aws.ToString(msg.Body)) {
			c.deleteMessage(ctx, msg.ReceiptHandle)
		}
	}
	return len(out.Messages), nil
}

// handle reports whether the message is finished with.
func (c *Consumer) handle(ctx context.Context, body string) bool {
	var in domain.EventInput
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		logger.Warn("dropping unreadable tracking message", "error", err)
		return true
	}
	_, err := c.ingester.Ingest(ctx, in)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrMalformedEvent), errors.Is(err, domain.ErrUnknownRecipient):
		logger.Warn("dropping tracking event", "campaign_id", in.CampaignID, "email", in.Email, "event_type", in.Type, "error", err)
		return true
	default:
		logger.Error("tracking ingest failed, leaving for redelivery", "campaign_id", in.CampaignID, "error", err)
		return false
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Error("sqs delete failed", "error", err)
	}
}
