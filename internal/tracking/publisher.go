package tracking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/events"
)

// Publisher hands a notification to the event log.
type Publisher interface {
	Publish(ctx context.Context, in domain.EventInput) error
}

// Ingester is the subset of events.Ingestor used here.
type Ingester interface {
	Ingest(ctx context.Context, in domain.EventInput) (events.Result, error)
}

// sqsAPI is the subset of the SQS client used by the publisher and consumer.
type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// SQSPublisher enqueues notifications for a Consumer to ingest.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher creates a publisher on queueURL.
func NewSQSPublisher(client *sqs.Client, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// Publish serializes in and sends it to the queue.
func (p *SQSPublisher) Publish(ctx context.Context, in domain.EventInput) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal tracking event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// DirectPublisher ingests synchronously. Used when no queue is configured.
type DirectPublisher struct {
	ingester Ingester
}

// NewDirectPublisher wraps an ingester.
func NewDirectPublisher(ingester Ingester) *DirectPublisher {
	return &DirectPublisher{ingester: ingester}
}

// Publish ingests in immediately.
func (p *DirectPublisher) Publish(ctx context.Context, in domain.EventInput) error {
	_, err := p.ingester.Ingest(ctx, in)
	return err
}
