package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"bazaar/internal/media"
	"bazaar/internal/models"

	"github.com/c-pro/geche"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout    = 15 * time.Second
	DefaultSummaryTTL = 30 * time.Second
	maxErrorBody      = 1024

	messagesPath      = "/api/chat/messages"
	conversationsPath = "/api/chat/conversations"
	mediaPath         = "/api/chat/media"
)

var ErrUnauthorized = errors.New("unauthorized")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case models.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// TokenSource provides the bearer token of the current session.
type TokenSource interface {
	Token() (string, error)
}

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	SummaryTTL        time.Duration
	MaxImageDimension int
}

// Client talks to the marketplace chat REST API.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	tokens  TokenSource
	limiter *rate.Limiter
	maxDim  int
	log     *slog.Logger

	// Conversation lists keyed by the token they were fetched with.
	summaries geche.Geche[string, []models.Conversation]
}

// New creates a client. ctx bounds the lifetime of the summary cache
// cleanup goroutine.
func New(ctx context.Context, cfg Config, tokens TokenSource, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}
	if tokens == nil {
		return nil, errors.New("api client needs a token source")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = DefaultSummaryTTL
	}
	if cfg.MaxImageDimension == 0 {
		cfg.MaxImageDimension = media.DefaultMaxDimension
	}
	if log == nil {
		log = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}

	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		baseURL:   base,
		tokens:    tokens,
		limiter:   limiter,
		maxDim:    cfg.MaxImageDimension,
		log:       log,
		summaries: geche.NewMapTTLCache[string, []models.Conversation](ctx, cfg.SummaryTTL, time.Minute),
	}, nil
}

// Messages returns the history of the conversation with peerID about
// threadID, oldest first.
func (c *Client) Messages(ctx context.Context, threadID, peerID string) ([]models.Message, error) {
	q := url.Values{}
	q.Set("advertId", threadID)
	q.Set("otherUserId", peerID)

	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, messagesPath, q, nil, "", &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].Status == "" {
			msgs[i].Status = models.StatusSent
		}
	}
	return msgs, nil
}

// Conversations returns the conversation list. Results are cached for
// the summary TTL.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("auth token: %w", err)
	}
	if cached, err := c.summaries.Get(token); err == nil {
		return cached, nil
	}

	var convs []models.Conversation
	if err := c.do(ctx, http.MethodGet, conversationsPath, nil, nil, "", &convs); err != nil {
		return nil, err
	}
	c.summaries.Set(token, convs)
	return convs, nil
}

// StartConversation opens (or returns the existing) conversation with
// peerID about threadID.
func (c *Client) StartConversation(ctx context.Context, threadID, peerID string) (models.Conversation, error) {
	body, err := json.Marshal(struct {
		ThreadID string `json:"advertId"`
		PeerID   string `json:"otherUserId"`
	}{threadID, peerID})
	if err != nil {
		return models.Conversation{}, err
	}

	var conv models.Conversation
	if err := c.do(ctx, http.MethodPost, conversationsPath, nil, bytes.NewReader(body), "application/json", &conv); err != nil {
		return models.Conversation{}, err
	}
	c.invalidateSummaries()
	return conv, nil
}

func (c *Client) invalidateSummaries() {
	token, err := c.tokens.Token()
	if err != nil {
		return
	}
	if err := c.summaries.Del(token); err != nil {
		c.log.Debug("failed to drop cached conversations", "error", err)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadMedia sends an attachment and returns the message the server
// created for it.
func (c *Client) UploadMedia(ctx context.Context, up models.MediaUpload) (models.Message, error) {
	att, err := media.Prepare(up.FileName, up.Data, c.maxDim)
	if err != nil {
		return models.Message{}, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("advertId", up.ThreadID); err != nil {
		return models.Message{}, err
	}
	if err := mw.WriteField("receiverId", up.ReceiverID); err != nil {
		return models.Message{}, err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(att.Name)))
	h.Set("Content-Type", att.MimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := part.Write(att.Data); err != nil {
		return models.Message{}, err
	}
	if err := mw.Close(); err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	if err := c.do(ctx, http.MethodPost, mediaPath, nil, &buf, mw.FormDataContentType(), &msg); err != nil {
		return models.Message{}, err
	}
	c.log.Debug("media uploaded", "name", att.Name, "type", att.MimeType, "bytes", len(att.Data))
	return msg, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("auth token: %w", err)
	}

	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
