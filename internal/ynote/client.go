package ynote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/imroc/req/v3"
	"github.com/notesync/notesync/internal/utils"
	"github.com/notesync/notesync/internal/version"
)

const (
	DefaultBaseURL   = "https://note.youdao.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = "20-S"
	DefaultRetries   = 3
	DefaultPageSize  = 200

	apiPrefix = "/yws/api/personal"
)

// Config is the configuration for the Client
type Config struct {
	BaseURL   string        // BaseURL is required
	Session   *Session      // Session is required
	Timeout   time.Duration // Timeout per request, 0 means DefaultTimeout
	RateLimit string        // RateLimit in limiter format ("20-S"), empty disables
	Retries   int           // Retries on network errors, negative disables
	PageSize  int           // PageSize for directory listing
	DeviceID  string        // DeviceID is derived from the machine id when empty
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if c.Session == nil || len(c.Session.Cookies) == 0 {
		return ErrNoCookies
	}
	if c.Session.CSTK == "" {
		return ErrNoCSTK
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.DeviceID == "" {
		c.DeviceID = deviceID()
	}
	return nil
}

// Client talks to the note web API on behalf of one session.
type Client struct {
	client   *req.Client
	session  *Session
	limiter  *rateLimiter
	pageSize int
	deviceID string
}

func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limiter, err := newRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	client := req.C().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetUserAgent(version.UserAgent()).
		SetCommonCookies(cfg.Session.Cookies...).
		SetCommonQueryParam("keyfrom", "web").
		SetCommonQueryParam("cstk", cfg.Session.CSTK).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if cfg.Retries > 0 {
		client.SetCommonRetryCount(cfg.Retries).
			SetCommonRetryFixedInterval(1 * time.Second).
			SetCommonRetryCondition(func(resp *req.Response, err error) bool {
				return err != nil || resp.GetStatusCode() >= 500
			}).
			SetCommonRetryHook(func(resp *req.Response, err error) {
				slog.Debug("ynote retry", "status", resp.GetStatusCode(), "error", err)
			})
	}

	if limiter != nil {
		client.OnBeforeRequest(func(_ *req.Client, r *req.Request) error {
			return limiter.Wait(r.Context())
		})
	}

	slog.Debug("ynote session", "cookies", len(cfg.Session.Cookies), "cstk", utils.MaskSecret(cfg.Session.CSTK))

	return &Client{
		client:   client,
		session:  cfg.Session,
		limiter:  limiter,
		pageSize: cfg.PageSize,
		deviceID: cfg.DeviceID,
	}, nil
}

func (c *Client) request(ctx context.Context) *req.Request {
	return c.client.R().SetContext(ctx)
}

// form returns the form fields every write carries.
func (c *Client) form(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["cstk"] = c.session.CSTK
	return out
}

func decode[T any](resp *req.Response, operation string) (*T, error) {
	var v T
	if err := jsonUnmarshal(resp.Bytes(), &v); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", operation, ErrFormat, err)
	}
	return &v, nil
}

func deviceID() string {
	id, err := machineid.ProtectedID(version.AppName)
	if err != nil || len(id) < 16 {
		return "0123456789abcdef"
	}
	return id[:16]
}
