package prodflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Notifier is a one-way outbound port. Failures never affect the outcome of
// the command that triggered the push: callers log and move on.
type Notifier interface {
	Push(ctx context.Context, destination, text string) error
}

type NoopNotifier struct{}

func (NoopNotifier) Push(ctx context.Context, destination, text string) error {
	return nil
}

type LineNotifierOptions struct {
	BaseURL       string
	TokenProvider AccessTokenProvider
	HTTPClient    *http.Client
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
}

type HTTPLineNotifier struct {
	baseURL       string
	tokenProvider AccessTokenProvider
	httpClient    *http.Client
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

func NewHTTPLineNotifier(opts LineNotifierOptions) *HTTPLineNotifier {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.line.me"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &HTTPLineNotifier{
		baseURL:       baseURL,
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
	}
}

func (n *HTTPLineNotifier) Push(ctx context.Context, destination, text string) error {
	if n == nil {
		return fmt.Errorf("line notifier is nil")
	}
	if strings.TrimSpace(destination) == "" {
		return fmt.Errorf("%w: notification destination is empty", ErrInvalidInput)
	}
	tokenProvider := n.tokenProvider
	if tokenProvider == nil {
		return fmt.Errorf("line token provider is required")
	}
	token, err := tokenProvider(ctx)
	if err != nil {
		return err
	}
	payload := struct {
		To       string `json:"to"`
		Messages []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"messages"`
	}{To: destination}
	payload.Messages = append(payload.Messages, struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "text", Text: text})
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	requestURL := n.baseURL + "/v2/bot/message/push"

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(bodyBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			if attempt < n.maxRetries {
				if waitErr := sleepContext(ctx, n.retryDelay(attempt+1)); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return nil
		}
		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < n.maxRetries {
			if waitErr := sleepContext(ctx, n.retryDelay(attempt+1)); waitErr != nil {
				return waitErr
			}
			continue
		}
		return fmt.Errorf("line push failed: status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}

func (n *HTTPLineNotifier) retryDelay(attempt int) time.Duration {
	delay := n.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= n.maxDelay {
			return n.maxDelay
		}
	}
	if delay > n.maxDelay {
		return n.maxDelay
	}
	return delay
}
