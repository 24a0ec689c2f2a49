package worldlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"instaroom/internal/config"
)

// Client is a thin World Labs Marble API client. Conversion orchestration
// lives in convert.go; this file is request plumbing only.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
	log          *zap.Logger
}

// NewClient builds a client from config. A missing API key is a fatal
// configuration error, surfaced here at first use.
func NewClient(cfg config.WorldLabsConfig, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("worldlabs: API key not configured (set WORLDLABS_API_KEY)")
	}
	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		log:          log.Named("worldlabs"),
	}, nil
}

// doJSON issues an authenticated JSON request and decodes the response into
// out. Non-2xx statuses and transport failures come back as network-kind
// errors.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindNetwork, Err: fmt.Errorf("encode request: %w", err)}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Kind:    KindNetwork,
			Code:    resp.Status,
			Message: truncate(string(data), 300),
		}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Kind: KindNetwork, Err: fmt.Errorf("decode %s response: %w", path, err)}
		}
	}
	return nil
}

// uploadImage registers a media asset and PUTs the image bytes to the signed
// URL, returning the asset ID for use in a generation request.
func (c *Client) uploadImage(ctx context.Context, data []byte, fileName string) (string, error) {
	var prep prepareUploadResponse
	err := c.doJSON(ctx, http.MethodPost, "/media-assets:prepare_upload",
		map[string]string{"file_name": fileName}, &prep)
	if err != nil {
		return "", err
	}
	if prep.UploadInfo.UploadURL == "" {
		return "", &Error{Kind: KindService, Message: "prepare_upload returned no upload URL"}
	}

	method := prep.UploadInfo.UploadMethod
	if method == "" {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, prep.UploadInfo.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", &Error{Kind: KindNetwork, Err: err}
	}
	for k, v := range prep.UploadInfo.RequiredHeaders {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "image/png")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Kind: KindNetwork, Code: resp.Status, Message: "image upload rejected"}
	}

	c.log.Debug("uploaded media asset",
		zap.String("asset_id", prep.MediaAsset.MediaAssetID),
		zap.Int("bytes", len(data)))
	return prep.MediaAsset.MediaAssetID, nil
}

func (c *Client) generateWorld(ctx context.Context, req generateWorldRequest) (string, error) {
	var resp generateWorldResponse
	if err := c.doJSON(ctx, http.MethodPost, "/worlds:generate", req, &resp); err != nil {
		return "", err
	}
	if resp.OperationID == "" {
		return "", &Error{Kind: KindService, Message: "generate returned no operation id"}
	}
	return resp.OperationID, nil
}

func (c *Client) getOperation(ctx context.Context, operationID string) (operationStatus, error) {
	var status operationStatus
	err := c.doJSON(ctx, http.MethodGet, "/operations/"+operationID, nil, &status)
	return status, err
}

func (c *Client) getWorld(ctx context.Context, worldID string) (world, error) {
	var w world
	err := c.doJSON(ctx, http.MethodGet, "/worlds/"+worldID, nil, &w)
	return w, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
