package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// sesAPI is the slice of the SES v2 client the transport uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport sends through Amazon SES v2. Every message is tagged with
// campaign_id so SNS notifications can be mapped back to the campaign.
type SESTransport struct {
	client           sesAPI
	configurationSet string
}

// NewSESTransport creates an SES transport. Static credentials are used
// when both keys are set; otherwise the default AWS chain applies.
func NewSESTransport(ctx context.Context, cfg config.SESConfig) (*SESTransport, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newSESTransport(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet), nil
}

func newSESTransport(client sesAPI, configurationSet string) *SESTransport {
	return &SESTransport{client: client, configurationSet: configurationSet}
}

func (s *SESTransport) Name() string { return "ses" }

// Send delivers a single email through SES.
func (s *SESTransport) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}

	headers := make([]types.MessageHeader, 0, len(msg.Headers))
	for name, value := range msg.Headers {
		headers = append(headers, types.MessageHeader{Name: aws.String(name), Value: aws.String(value)})
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
				},
				Headers: headers,
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, classifySESError(err)
	}

	messageID := aws.ToString(out.MessageId)
	logger.Debug("ses accepted message", "campaign_id", msg.CampaignID, "email", msg.Email, "message_id", messageID)
	return &domain.SendResult{MessageID: messageID, Transport: "ses", SentAt: time.Now().UTC()}, nil
}

// permanentSESCodes never succeed on retry for the same message.
var permanentSESCodes = map[string]bool{
	"MessageRejected":                    true,
	"MailFromDomainNotVerifiedException": true,
	"AccountSuspendedException":          true,
	"SendingPausedException":             true,
	"BadRequestException":                true,
	"NotFoundException":                  true,
}

func classifySESError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if permanentSESCodes[code] {
			return domain.Rejected(code, err)
		}
		return domain.Unavailable(code, err)
	}
	return domain.Unavailable("", err)
}
