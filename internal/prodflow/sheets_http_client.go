package prodflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type CellWrite struct {
	Range string
	Value string
}

// SheetClient is the boundary to the tabular store. Range addressing is
// "<record>!<column><row>:<column><row>". No transactional guarantees exist
// across separate calls.
type SheetClient interface {
	ReadRange(ctx context.Context, storeID, rangeSpec string) ([][]string, error)
	WriteCell(ctx context.Context, storeID, rangeSpec, value string) error
	BatchWrite(ctx context.Context, storeID string, writes []CellWrite) error
}

type AccessTokenProvider func(ctx context.Context) (string, error)

type SheetsHTTPClientOptions struct {
	BaseURL       string
	TokenProvider AccessTokenProvider
	HTTPClient    *http.Client
	UserAgent     string
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
}

type HTTPSheetClient struct {
	baseURL       string
	tokenProvider AccessTokenProvider
	httpClient    *http.Client
	userAgent     string
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

func NewHTTPSheetClient(opts SheetsHTTPClientOptions) *HTTPSheetClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://sheets.googleapis.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &HTTPSheetClient{
		baseURL:       baseURL,
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		userAgent:     strings.TrimSpace(opts.UserAgent),
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
	}
}

type valueRangeBody struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values"`
}

func (c *HTTPSheetClient) ReadRange(ctx context.Context, storeID, rangeSpec string) ([][]string, error) {
	path := fmt.Sprintf("/v4/spreadsheets/%s/values/%s", url.PathEscape(storeID), url.PathEscape(rangeSpec))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Values [][]any `json:"values"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(parsed.Values))
	for _, row := range parsed.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, cellString(cell))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func (c *HTTPSheetClient) WriteCell(ctx context.Context, storeID, rangeSpec, value string) error {
	path := fmt.Sprintf("/v4/spreadsheets/%s/values/%s?valueInputOption=USER_ENTERED", url.PathEscape(storeID), url.PathEscape(rangeSpec))
	payload := valueRangeBody{Values: [][]string{{value}}}
	_, err := c.do(ctx, http.MethodPut, path, payload)
	return err
}

func (c *HTTPSheetClient) BatchWrite(ctx context.Context, storeID string, writes []CellWrite) error {
	if len(writes) == 0 {
		return nil
	}
	path := fmt.Sprintf("/v4/spreadsheets/%s/values:batchUpdate", url.PathEscape(storeID))
	data := make([]valueRangeBody, 0, len(writes))
	for _, write := range writes {
		data = append(data, valueRangeBody{Range: write.Range, Values: [][]string{{write.Value}}})
	}
	payload := struct {
		ValueInputOption string           `json:"valueInputOption"`
		Data             []valueRangeBody `json:"data"`
	}{ValueInputOption: "USER_ENTERED", Data: data}
	_, err := c.do(ctx, http.MethodPost, path, payload)
	return err
}

func (c *HTTPSheetClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("sheet http client is nil")
	}
	tokenProvider := c.tokenProvider
	if tokenProvider == nil {
		return nil, fmt.Errorf("sheet token provider is required")
	}
	token, err := tokenProvider(ctx)
	if err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("sheet access token is empty")
	}
	var bodyBytes []byte
	if payload != nil {
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	requestURL := c.baseURL + path

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return respBody, nil
		}
		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}
		return nil, sheetAPIError(resp.StatusCode, respBody)
	}
}

func (c *HTTPSheetClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func sheetAPIError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var parsed struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && strings.TrimSpace(parsed.Error.Message) != "" {
		if parsed.Error.Status != "" {
			return fmt.Errorf("sheet call failed: status=%d code=%s message=%s", status, parsed.Error.Status, parsed.Error.Message)
		}
		return fmt.Errorf("sheet call failed: status=%d message=%s", status, parsed.Error.Message)
	}
	return fmt.Errorf("sheet call failed: status=%d message=%s", status, message)
}

func cellString(cell any) string {
	switch typed := cell.(type) {
	case string:
		return typed
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
