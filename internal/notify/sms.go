package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/glowdesk/salon-platform/pkg/logging"
)

// SMSSender sends text messages to clients.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

const telnyxDefaultBaseURL = "https://api.telnyx.com/v2"

// TelnyxConfig controls the Telnyx SMS client.
type TelnyxConfig struct {
	APIKey     string
	FromNumber string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// TelnyxSender sends SMS through the Telnyx messages endpoint.
type TelnyxSender struct {
	apiKey     string
	fromNumber string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTelnyxSender creates a configured sender with sane defaults.
func NewTelnyxSender(cfg TelnyxConfig, logger *logging.Logger) (*TelnyxSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("notify: telnyx API key is required")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, errors.New("notify: telnyx from number is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = telnyxDefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:     cfg.APIKey,
		fromNumber: cfg.FromNumber,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type telnyxMessageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type telnyxMessageResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// SendSMS posts one outbound message.
func (s *TelnyxSender) SendSMS(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(telnyxMessageRequest{
		From: s.fromNumber,
		To:   to,
		Text: body,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal telnyx request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build telnyx request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("telnyx send failed", "error", err, "to", to)
		return fmt.Errorf("notify: telnyx send failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 400 {
		var parsed telnyxMessageResponse
		_ = json.Unmarshal(respBody, &parsed)
		detail := ""
		if len(parsed.Errors) > 0 {
			detail = parsed.Errors[0].Detail
		}
		s.logger.Error("telnyx returned error status", "status", resp.StatusCode, "detail", detail, "to", to)
		return fmt.Errorf("notify: telnyx returned status %d", resp.StatusCode)
	}

	var parsed telnyxMessageResponse
	_ = json.Unmarshal(respBody, &parsed)
	s.logger.Info("sms sent via telnyx", "to", to, "message_id", parsed.Data.ID)
	return nil
}

var _ SMSSender = (*TelnyxSender)(nil)

// StubSMSSender logs instead of sending, for tests and disabled environments.
type StubSMSSender struct {
	logger *logging.Logger
}

// NewStubSMSSender creates a stub SMS sender.
func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

// SendSMS logs the message but doesn't actually send it.
func (s *StubSMSSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info("stub sms sender: would send sms", "to", to, "chars", len(body))
	return nil
}
