// Package client talks to the booking core over its REST transport. Bookings
// and Professionals satisfy the same interfaces as the in-process services, so
// front-ends can switch between a shared store and a remote backend.
package client

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

	"fixora/internal/config"
	"fixora/internal/service"
	"fixora/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultAPIKeyHeader = "x-api-key"

// errTransport marks failures that never produced an answer from the backend:
// network errors, 5xx responses and undecodable bodies.
var errTransport = errors.New("remote backend unavailable")

type Client struct {
	baseURL    string
	apiKey     string
	keyHeader  string
	httpClient *http.Client
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

func New(cfg config.ClientConfig, logger *zerolog.Logger) *Client {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	clientLogger := logger.With().Str("component", "rest_client").Logger()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	keyHeader := cfg.HeaderAPIKey
	if keyHeader == "" {
		keyHeader = defaultAPIKeyHeader
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		keyHeader:  keyHeader,
		httpClient: &http.Client{Timeout: timeout},
		logger:     &clientLogger,
	}
}

// UseRedisCache enables caching of professional lookups.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) Bookings() *Bookings {
	return &Bookings{c: c}
}

func (c *Client) Professionals() *Professionals {
	return &Professionals{c: c}
}

type wireError struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Fields  []service.FieldError   `json:"fields"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", errTransport, path, err)
	}
	return nil
}

// decodeError turns an error response back into the service error it was
// rendered from. Anything the caller cannot act on is a transport error.
func decodeError(resp *http.Response) error {
	var we wireError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&we)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		if len(we.Error.Fields) > 0 {
			return &service.ValidationError{Fields: we.Error.Fields}
		}
		return &service.ValidationError{Fields: []service.FieldError{{Field: "request", Reason: we.Error.Message}}}
	case http.StatusNotFound:
		return service.ErrNotFound
	case http.StatusForbidden:
		if we.Error.Code == "forbidden" {
			return service.ErrForbidden
		}
	case http.StatusConflict:
		if we.Error.Code == "invalid_transition" {
			from, _ := we.Error.Details["from"].(string)
			to, _ := we.Error.Details["to"].(string)
			return &service.InvalidTransitionError{From: from, To: to}
		}
		return store.ErrConflict
	}
	return fmt.Errorf("%w: http %d %s", errTransport, resp.StatusCode, we.Error.Message)
}

// normalize logs transport failures and swallows them. Errors the backend
// answered with are handed back to the caller.
func (c *Client) normalize(op string, err error) error {
	if err == nil || !errors.Is(err, errTransport) {
		return err
	}
	c.logger.Warn().Err(err).Str("op", op).Msg("Remote call failed")
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func (c *Client) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}
