package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrAlreadyAcknowledged is returned when an interaction callback races a
// prior response to the same interaction.
var ErrAlreadyAcknowledged = errors.New("discord: interaction already acknowledged")

const errCodeAlreadyAcknowledged = 40060

type ClientOptions struct {
	BaseURL    string
	BotToken   string
	AppID      string
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client is a minimal REST client for the chat platform API, covering only
// the calls the workflow engine needs.
type Client struct {
	baseURL    string
	botToken   string
	appID      string
	httpClient *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://discord.com/api/v10"
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
		baseDelay = 250 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		botToken:   strings.TrimSpace(opts.BotToken),
		appID:      strings.TrimSpace(opts.AppID),
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// CreateThread starts a public thread directly on a channel. Threads
// auto-archive after a week of inactivity.
func (c *Client) CreateThread(ctx context.Context, channelID, name string) (string, error) {
	payload := struct {
		Name                string `json:"name"`
		Type                int    `json:"type"`
		AutoArchiveDuration int    `json:"auto_archive_duration"`
	}{Name: name, Type: ChannelTypePublicThread, AutoArchiveDuration: 10080}
	body, err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/threads", payload)
	if err != nil {
		return "", err
	}
	var channel Channel
	if err := json.Unmarshal(body, &channel); err != nil {
		return "", err
	}
	if channel.ID == "" {
		return "", fmt.Errorf("discord: thread create response has no id")
	}
	return channel.ID, nil
}

func (c *Client) CreateMessage(ctx context.Context, channelID, content string) error {
	payload := struct {
		Content string `json:"content"`
	}{Content: content}
	_, err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", payload)
	return err
}

func (c *Client) CreateComponentMessage(ctx context.Context, channelID, content string, rows []ComponentRow) error {
	payload := struct {
		Content    string         `json:"content,omitempty"`
		Components []ComponentRow `json:"components"`
	}{Content: content, Components: rows}
	_, err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", payload)
	return err
}

// GetChannel fetches channel metadata, used to resolve a thread's parent.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	body, err := c.do(ctx, http.MethodGet, "/channels/"+channelID, nil)
	if err != nil {
		return nil, err
	}
	var channel Channel
	if err := json.Unmarshal(body, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func (c *Client) respondInteraction(ctx context.Context, interactionID, token string, response interactionResponse) error {
	path := "/interactions/" + interactionID + "/" + token + "/callback"
	_, err := c.do(ctx, http.MethodPost, path, response)
	return err
}

func (c *Client) RespondPong(ctx context.Context, interactionID, token string) error {
	return c.respondInteraction(ctx, interactionID, token, interactionResponse{Type: interactionResponsePong})
}

func (c *Client) RespondMessage(ctx context.Context, interactionID, token, content string, ephemeral bool) error {
	data := &interactionResponseData{Content: content, Components: []ComponentRow{}}
	if ephemeral {
		data.Flags = MessageFlagEphemeral
	}
	return c.respondInteraction(ctx, interactionID, token, interactionResponse{Type: interactionResponseMessage, Data: data})
}

// RespondDeferred acknowledges within the callback window; the visible
// reply follows later through EditOriginalResponse.
func (c *Client) RespondDeferred(ctx context.Context, interactionID, token string, ephemeral bool) error {
	data := &interactionResponseData{Components: []ComponentRow{}}
	if ephemeral {
		data.Flags = MessageFlagEphemeral
	}
	return c.respondInteraction(ctx, interactionID, token, interactionResponse{Type: interactionResponseDeferredMessage, Data: data})
}

// EditOriginalResponse fills in the reply of a previously deferred
// interaction.
func (c *Client) EditOriginalResponse(ctx context.Context, token, content string) error {
	if c.appID == "" {
		return fmt.Errorf("discord: application id is required to edit the original response")
	}
	payload := struct {
		Content string `json:"content"`
	}{Content: content}
	_, err := c.do(ctx, http.MethodPatch, "/webhooks/"+c.appID+"/"+token+"/messages/@original", payload)
	return err
}

func (c *Client) RespondUpdate(ctx context.Context, interactionID, token, content string) error {
	// Components are cleared so a consumed select cannot be re-submitted.
	data := &interactionResponseData{Content: content, Components: []ComponentRow{}}
	return c.respondInteraction(ctx, interactionID, token, interactionResponse{Type: interactionResponseUpdate, Data: data})
}

func (c *Client) RespondModal(ctx context.Context, interactionID, token, customID, title string, rows []ComponentRow) error {
	data := &interactionResponseData{CustomID: customID, Title: title, Components: rows}
	return c.respondInteraction(ctx, interactionID, token, interactionResponse{Type: interactionResponseModal, Data: data})
}

// RegisterGuildCommands overwrites the guild's command set in one call.
func (c *Client) RegisterGuildCommands(ctx context.Context, guildID string, commands []ApplicationCommand) error {
	if c.appID == "" {
		return fmt.Errorf("discord: application id is required to register commands")
	}
	path := "/applications/" + c.appID + "/guilds/" + guildID + "/commands"
	_, err := c.do(ctx, http.MethodPut, path, commands)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("discord client is nil")
	}
	if c.botToken == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	var bodyBytes []byte
	if payload != nil {
		var err error
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
		req.Header.Set("Authorization", "Bot "+c.botToken)
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
		return nil, apiError(resp.StatusCode, respBody)
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
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

func apiError(status int, body []byte) error {
	var parsed struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Code == errCodeAlreadyAcknowledged {
			return ErrAlreadyAcknowledged
		}
		if strings.TrimSpace(parsed.Message) != "" {
			return fmt.Errorf("discord call failed: status=%d code=%d message=%s", status, parsed.Code, parsed.Message)
		}
	}
	return fmt.Errorf("discord call failed: status=%d message=%s", status, strings.TrimSpace(string(body)))
}

// Retry-After comes back in seconds, sometimes fractional.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
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
