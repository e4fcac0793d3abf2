package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/events"
)

type fakeSQS struct {
	mu       sync.Mutex
	sent     []string
	inbox    []types.Message
	deleted  []string
	recvErr  error
	received int
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String(fmt.Sprintf("m-%d", len(f.sent)))}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received++
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	msgs := f.inbox
	f.inbox = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type scriptedIngester struct {
	mu   sync.Mutex
	seen []domain.EventInput
	errs map[string]error
}

func (s *scriptedIngester) Ingest(_ context.Context, in domain.EventInput) (events.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, in)
	return events.Result{}, s.errs[in.Email]
}

func message(t *testing.T, handle string, in domain.EventInput) types.Message {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)
	return types.Message{Body: aws.String(string(body)), ReceiptHandle: aws.String(handle)}
}

func TestSQSPublisher_Publish(t *testing.T) {
	client := &fakeSQS{}
	pub := &SQSPublisher{client: client, queueURL: "https://sqs.test/q"}

	in := domain.EventInput{CampaignID: "c1", Email: "ann@example.com", Type: domain.EventOpened}
	require.NoError(t, pub.Publish(context.Background(), in))

	require.Len(t, client.sent, 1)
	var got domain.EventInput
	require.NoError(t, json.Unmarshal([]byte(client.sent[0]), &got))
	assert.Equal(t, in.CampaignID, got.CampaignID)
	assert.Equal(t, in.Type, got.Type)
}

func TestConsumer_ReceiveBatch(t *testing.T) {
	client := &fakeSQS{}
	ing := &scriptedIngester{errs: map[string]error{
		"bad@example.com":   fmt.Errorf("x: %w", domain.ErrMalformedEvent),
		"ghost@example.com": fmt.Errorf("x: %w", domain.ErrUnknownRecipient),
		"flaky@example.com": errors.New("db down"),
	}}
	client.inbox = []types.Message{
		message(t, "h-ok", domain.EventInput{CampaignID: "c1", Email: "ann@example.com", Type: domain.EventOpened}),
		message(t, "h-bad", domain.EventInput{CampaignID: "c1", Email: "bad@example.com", Type: domain.EventClicked}),
		message(t, "h-ghost", domain.EventInput{CampaignID: "c1", Email: "ghost@example.com", Type: domain.EventOpened}),
		message(t, "h-flaky", domain.EventInput{CampaignID: "c1", Email: "flaky@example.com", Type: domain.EventOpened}),
		{Body: aws.String("{not json"), ReceiptHandle: aws.String("h-junk")},
	}

	c := newConsumer(client, "https://sqs.test/q", ing)
	n, err := c.ReceiveBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, ing.seen, 4)
	assert.ElementsMatch(t, []string{"h-ok", "h-bad", "h-ghost", "h-junk"}, client.deleted)
}

func TestConsumer_StartStop(t *testing.T) {
	client := &fakeSQS{recvErr: errors.New("throttled")}
	c := newConsumer(client, "https://sqs.test/q", &scriptedIngester{})
	c.errorBackoff = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	c.Stop()
	c.Stop()

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.GreaterOrEqual(t, client.received, 0)
}

func TestDirectPublisher(t *testing.T) {
	ing := &scriptedIngester{errs: map[string]error{"ghost@example.com": domain.ErrUnknownRecipient}}
	pub := NewDirectPublisher(ing)

	assert.NoError(t, pub.Publish(context.Background(), domain.EventInput{Email: "ann@example.com"}))
	assert.ErrorIs(t, pub.Publish(context.Background(), domain.EventInput{Email: "ghost@example.com"}), domain.ErrUnknownRecipient)
}
