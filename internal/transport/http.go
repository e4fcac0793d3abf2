package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/retry"
)

// HTTPTransport posts messages to a generic JSON send API. Retries are left
// to the pipeline; this only classifies each response.
type HTTPTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPTransport creates an HTTP transport. A nil client uses one with a
// 30s timeout; the pipeline's per-call timeout normally fires first.
func NewHTTPTransport(endpoint, apiKey string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (t *HTTPTransport) Name() string { return "http" }

type httpSendRequest struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
	Tags    map[string]string `json:"tags"`
}

type httpSendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send posts one message.
func (t *HTTPTransport) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}
	payload, err := json.Marshal(httpSendRequest{
		From:    from,
		To:      msg.Email,
		Subject: msg.Subject,
		HTML:    msg.HTMLBody,
		Headers: msg.Headers,
		Tags:    map[string]string{"campaign_id": msg.CampaignID},
	})
	if err != nil {
		return nil, domain.Rejected("encode", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Rejected("request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, domain.Unavailable("network", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed httpSendResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &domain.SendResult{MessageID: parsed.ID, Transport: "http", SentAt: time.Now().UTC()}, nil
	}

	code := strconv.Itoa(resp.StatusCode)
	cause := fmt.Errorf("send API returned %d: %s", resp.StatusCode, parsed.Message)
	if retry.IsRetryableStatus(resp.StatusCode) {
		return nil, domain.Unavailable(code, cause)
	}
	return nil, domain.Rejected(code, cause)
}
