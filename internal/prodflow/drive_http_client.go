package prodflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const driveFolderMIMEType = "application/vnd.google-apps.folder"

type DriveHTTPClientOptions struct {
	BaseURL       string
	UploadBaseURL string
	TokenProvider AccessTokenProvider
	HTTPClient    *http.Client
	UserAgent     string
}

// HTTPDriveClient talks to the file-archive API over REST. Uploads stream
// the source transfer URL straight into a multipart request body.
type HTTPDriveClient struct {
	baseURL       string
	uploadBaseURL string
	tokenProvider AccessTokenProvider
	httpClient    *http.Client
	userAgent     string
}

func NewHTTPDriveClient(opts DriveHTTPClientOptions) *HTTPDriveClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://www.googleapis.com"
	}
	uploadBaseURL := strings.TrimRight(strings.TrimSpace(opts.UploadBaseURL), "/")
	if uploadBaseURL == "" {
		uploadBaseURL = "https://www.googleapis.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &HTTPDriveClient{
		baseURL:       baseURL,
		uploadBaseURL: uploadBaseURL,
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		userAgent:     strings.TrimSpace(opts.UserAgent),
	}
}

func (c *HTTPDriveClient) FindFolder(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf("mimeType='%s' and name='%s' and '%s' in parents and trashed=false",
		driveFolderMIMEType, escapeDriveQueryValue(name), escapeDriveQueryValue(parentID))
	path := "/drive/v3/files?q=" + url.QueryEscape(query) + "&fields=" + url.QueryEscape("files(id,name)")
	body, err := c.doJSON(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Files) == 0 {
		return "", nil
	}
	return parsed.Files[0].ID, nil
}

func (c *HTTPDriveClient) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	payload := struct {
		Name     string   `json:"name"`
		MIMEType string   `json:"mimeType"`
		Parents  []string `json:"parents"`
	}{Name: name, MIMEType: driveFolderMIMEType, Parents: []string{parentID}}
	body, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/drive/v3/files", payload)
	if err != nil {
		return "", err
	}
	return parseDriveFileID(body)
}

func (c *HTTPDriveClient) UploadFromURL(ctx context.Context, folderID, name, sourceURL string) (string, error) {
	sourceReq, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}
	sourceResp, err := c.httpClient.Do(sourceReq)
	if err != nil {
		return "", fmt.Errorf("fetch source %s: %w", sourceURL, err)
	}
	defer sourceResp.Body.Close()
	if sourceResp.StatusCode < 200 || sourceResp.StatusCode > 299 {
		return "", fmt.Errorf("fetch source %s: status=%d", sourceURL, sourceResp.StatusCode)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	pipeReader, pipeWriter := io.Pipe()
	writer := multipart.NewWriter(pipeWriter)
	go func() {
		metadata := struct {
			Name    string   `json:"name"`
			Parents []string `json:"parents"`
		}{Name: name, Parents: []string{folderID}}
		metadataBytes, err := json.Marshal(metadata)
		if err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
		metadataHeader := textproto.MIMEHeader{}
		metadataHeader.Set("Content-Type", "application/json; charset=UTF-8")
		part, err := writer.CreatePart(metadataHeader)
		if err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
		if _, err := part.Write(metadataBytes); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
		mediaHeader := textproto.MIMEHeader{}
		mediaHeader.Set("Content-Type", "application/octet-stream")
		media, err := writer.CreatePart(mediaHeader)
		if err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
		if _, err := io.Copy(media, sourceResp.Body); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
		pipeWriter.CloseWithError(writer.Close())
	}()

	uploadURL := c.uploadBaseURL + "/upload/drive/v3/files?uploadType=multipart&fields=id"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pipeReader)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", driveAPIError(resp.StatusCode, respBody)
	}
	return parseDriveFileID(respBody)
}

func (c *HTTPDriveClient) doJSON(ctx context.Context, method, requestURL string, payload any) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("drive http client is nil")
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, driveAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *HTTPDriveClient) accessToken(ctx context.Context) (string, error) {
	if c.tokenProvider == nil {
		return "", fmt.Errorf("drive token provider is required")
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("drive access token is empty")
	}
	return token, nil
}

func parseDriveFileID(body []byte) (string, error) {
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("drive response has no file id")
	}
	return parsed.ID, nil
}

func driveAPIError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && strings.TrimSpace(parsed.Error.Message) != "" {
		message = parsed.Error.Message
	}
	return fmt.Errorf("drive call failed: status=%d message=%s", status, message)
}

func escapeDriveQueryValue(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}
