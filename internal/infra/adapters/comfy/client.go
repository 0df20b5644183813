package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"comfy-gateway/internal/config"
	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/domain/model"
	"comfy-gateway/internal/domain/ports/adapter"
	"comfy-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.GenerationBackend = (*Client)(nil)

// Client talks to a ComfyUI server over its HTTP API. There is no retry: a
// transport failure is returned to the caller as is.
type Client struct {
	base *url.URL
	http *http.Client
	log  *zerolog.Logger
}

// NewClient accepts either "host:port" or a full http(s) URL.
func NewClient(cfg config.ComfyConfig, logger *zerolog.Logger) (*Client, error) {
	base, err := ParseServerURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "ComfyClient").Str("server", base.Host).Logger()
	return &Client{
		base: base,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  &l,
	}, nil
}

func ParseServerURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty comfy server url", domain.ErrInvalidArgument)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: bad comfy server url %q", domain.ErrInvalidArgument, raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do executes req and records metrics under label. Transport errors and 5xx
// responses become ErrBackendUnavailable; the caller owns resp.Body.
func (c *Client) do(req *http.Request, label string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		metrics.ObserveComfyRequest(label, latency, false)
		c.log.Error().Err(err).Str("endpoint", label).Msg("comfy request failed")
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrBackendUnavailable, label, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		metrics.ObserveComfyRequest(label, latency, false)
		c.log.Error().Int("status", resp.StatusCode).Str("endpoint", label).Msg("comfy server error")
		return nil, fmt.Errorf("%w: %s returned %d: %s", domain.ErrBackendUnavailable, label, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	metrics.ObserveComfyRequest(label, latency, resp.StatusCode < http.StatusBadRequest)
	return resp, nil
}

type queueResponse struct {
	PromptID   string          `json:"prompt_id"`
	Number     int             `json:"number"`
	NodeErrors json.RawMessage `json:"node_errors"`
}

type promptError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
	NodeErrors json.RawMessage `json:"node_errors"`
}

// QueuePrompt posts {client_id, prompt, image?} to /prompt.
func (c *Client) QueuePrompt(ctx context.Context, pr model.PromptRequest) (string, error) {
	body, err := json.Marshal(pr)
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/prompt", nil), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, "/prompt")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read /prompt response: %v", domain.ErrBackendUnavailable, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var perr promptError
		if json.Unmarshal(raw, &perr) == nil && perr.Error.Message != "" {
			return "", fmt.Errorf("%w: prompt rejected (%s): %s %s", domain.ErrProtocol, perr.Error.Type, perr.Error.Message, perr.Error.Details)
		}
		return "", fmt.Errorf("%w: /prompt returned %d", domain.ErrProtocol, resp.StatusCode)
	}

	var qr queueResponse
	if err := json.Unmarshal(raw, &qr); err != nil {
		return "", fmt.Errorf("%w: decode /prompt response: %v", domain.ErrProtocol, err)
	}
	if qr.PromptID == "" {
		return "", fmt.Errorf("%w: /prompt response has no prompt_id", domain.ErrProtocol)
	}
	c.log.Debug().Str("prompt_id", qr.PromptID).Int("number", qr.Number).Msg("prompt queued")
	return qr.PromptID, nil
}

// History fetches /history/{id}. An unknown id yields found=false.
func (c *Client) History(ctx context.Context, promptID string) (*model.HistoryEntry, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/history/"+url.PathEscape(promptID), nil), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.do(req, "/history")
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, false, fmt.Errorf("%w: /history returned %d", domain.ErrProtocol, resp.StatusCode)
	}

	history := map[string]*model.HistoryEntry{}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, false, fmt.Errorf("%w: %w: history of %s: %v", domain.ErrProtocol, domain.ErrParse, promptID, err)
	}
	entry, ok := history[promptID]
	if !ok || entry == nil {
		return nil, false, nil
	}
	return entry, true, nil
}

// ViewImage downloads one file through /view.
func (c *Client) ViewImage(ctx context.Context, img model.ImageDescriptor) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", img.Filename)
	q.Set("subfolder", img.Subfolder)
	q.Set("type", string(img.Type))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/view", q), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, "/view")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: image %s", domain.ErrNotFound, img.Filename)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: /view returned %d", domain.ErrProtocol, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read /view body: %v", domain.ErrBackendUnavailable, err)
	}
	return b, nil
}

// UploadImage pushes an input image via multipart /upload/image.
func (c *Client) UploadImage(ctx context.Context, r io.Reader, p adapter.UploadParams) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", p.Name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy upload: %w", err)
	}
	imgType := p.Type
	if imgType == "" {
		imgType = model.ImageTypeInput
	}
	_ = w.WriteField("type", string(imgType))
	_ = w.WriteField("overwrite", strconv.FormatBool(p.Overwrite))
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload/image", nil), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.do(req, "/upload/image")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: /upload/image returned %d", domain.ErrProtocol, resp.StatusCode)
	}

	var out struct {
		Name      string `json:"name"`
		Subfolder string `json:"subfolder"`
		Type      string `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode upload response: %v", domain.ErrProtocol, err)
	}
	if out.Name == "" {
		return "", fmt.Errorf("%w: upload response has no name", domain.ErrProtocol)
	}
	return out.Name, nil
}

// Ping checks /system_stats.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/system_stats", nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, "/system_stats")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: /system_stats returned %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

// IsBackendError reports whether err came from talking to the backend.
func IsBackendError(err error) bool {
	return errors.Is(err, domain.ErrBackendUnavailable) || errors.Is(err, domain.ErrProtocol)
}
