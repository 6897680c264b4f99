package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	logx "eventpush/pkg/logx"
)

const (
	endpointPath   = "/wp-json/im/v1/update-event"
	defaultTimeout = 15 * time.Second
	maxDetailBytes = 2048
)

// Reason classifies a push outcome.
type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonNotConfigured Reason = "not_configured"
	ReasonTransport     Reason = "transport"
	ReasonStatus        Reason = "status"
)

// Result is the outcome of one push. It never carries a Go error: every
// failure is described by Reason and Detail.
type Result struct {
	OK     bool
	Detail string
	Status int
	Reason Reason
}

type Config struct {
	BaseURL     string
	User        string
	AppPassword string
	PageID      int
	Timeout     time.Duration
}

// Configured reports whether all push settings are present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" &&
		strings.TrimSpace(c.User) != "" &&
		c.AppPassword != "" &&
		c.PageID != 0
}

// Endpoint returns the full push URL for BaseURL.
func (c Config) Endpoint() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + endpointPath
}

type payload struct {
	PageID   int     `json:"page_id"`
	Value    string  `json:"value"`
	Deadline *string `json:"deadline,omitempty"`
}

// Client pushes event text to WordPress. Config can be swapped at runtime.
type Client struct {
	mu   sync.RWMutex
	cfg  Config
	http *http.Client
	log  logx.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport. The per-request timeout still comes from Config.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func NewClient(cfg Config, log logx.Logger, opts ...Option) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{cfg: cfg, http: &http.Client{}, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply replaces credentials/target. In-flight pushes keep the old values.
func (c *Client) Apply(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *Client) Configured() bool { return c.Config().Configured() }

// Publish sends text (and deadline when non-empty) to the configured page.
// Success means the endpoint answered 2xx.
func (c *Client) Publish(ctx context.Context, text string, deadline *string) Result {
	cfg := c.Config()
	if !cfg.Configured() {
		return Result{Detail: "not configured", Reason: ReasonNotConfigured}
	}

	p := payload{PageID: cfg.PageID, Value: text}
	if deadline != nil && *deadline != "" {
		d := *deadline
		p.Deadline = &d
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Result{Detail: fmt.Sprintf("encode payload: %v", err), Reason: ReasonTransport}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := cfg.Endpoint()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Detail: fmt.Sprintf("build request: %v", err), Reason: ReasonTransport}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(cfg.User, cfg.AppPassword)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("wordpress push transport error", logx.String("url", url), logx.Err(err))
		return Result{Detail: err.Error(), Reason: ReasonTransport}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes+1))
	respText := truncate(string(raw), maxDetailBytes)
	if err != nil && respText == "" {
		respText = fmt.Sprintf("read body: %v", err)
	}

	c.log.Debug("wordpress push",
		logx.String("url", url),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{
			Detail: fmt.Sprintf("http %d: %s", resp.StatusCode, respText),
			Status: resp.StatusCode,
			Reason: ReasonStatus,
		}
	}
	return Result{OK: true, Detail: respText, Status: resp.StatusCode, Reason: ReasonOK}
}

// truncate cuts s to at most maxN bytes without splitting a UTF-8 sequence.
func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	n := max(maxN-3, 0)
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
