package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	logx "eventpush/pkg/logx"
)

type captured struct {
	method, path, user, pass, contentType string
	body                                  map[string]any
}

func newWordPress(t *testing.T, status int, respBody string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.user, got.pass, _ = r.BasicAuth()
		got.contentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got.body)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestPublishSuccessWithoutDeadline(t *testing.T) {
	t.Parallel()
	srv, got := newWordPress(t, http.StatusOK, `{"updated":true}`)

	c := NewClient(Config{BaseURL: srv.URL + "/", User: "u", AppPassword: "p", PageID: 7}, logx.Nop())
	res := c.Publish(context.Background(), "Doors open 18:00", nil)

	if !res.OK || res.Reason != ReasonOK || res.Status != 200 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Detail != `{"updated":true}` {
		t.Fatalf("detail=%q", res.Detail)
	}
	if got.method != http.MethodPost || got.path != "/wp-json/im/v1/update-event" {
		t.Fatalf("request line: %s %s", got.method, got.path)
	}
	if got.user != "u" || got.pass != "p" {
		t.Fatalf("basic auth: %q/%q", got.user, got.pass)
	}
	if got.contentType != "application/json" {
		t.Fatalf("content type %q", got.contentType)
	}
	if got.body["page_id"].(float64) != 7 || got.body["value"] != "Doors open 18:00" {
		t.Fatalf("body: %v", got.body)
	}
	if _, ok := got.body["deadline"]; ok {
		t.Fatalf("deadline key must be omitted: %v", got.body)
	}
}

func TestPublishDeadlineHandling(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		deadline *string
		wantKey  bool
	}{
		{name: "nil", deadline: nil, wantKey: false},
		{name: "empty", deadline: ptr(""), wantKey: false},
		{name: "set", deadline: ptr("2024-06-01"), wantKey: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv, got := newWordPress(t, http.StatusCreated, "")
			c := NewClient(Config{BaseURL: srv.URL, User: "u", AppPassword: "p", PageID: 1}, logx.Nop())
			if res := c.Publish(context.Background(), "x", tc.deadline); !res.OK {
				t.Fatalf("201 should be success: %+v", res)
			}
			v, ok := got.body["deadline"]
			if ok != tc.wantKey {
				t.Fatalf("deadline present=%v want %v (%v)", ok, tc.wantKey, got.body)
			}
			if ok && v != *tc.deadline {
				t.Fatalf("deadline=%v", v)
			}
		})
	}
}

func TestPublishNon2xx(t *testing.T) {
	t.Parallel()
	srv, _ := newWordPress(t, http.StatusInternalServerError, "boom")

	c := NewClient(Config{BaseURL: srv.URL, User: "u", AppPassword: "p", PageID: 1}, logx.Nop())
	res := c.Publish(context.Background(), "x", nil)
	if res.OK || res.Reason != ReasonStatus || res.Status != 500 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Detail != "http 500: boom" {
		t.Fatalf("detail=%q", res.Detail)
	}
}

func TestPublishNotConfiguredMakesNoRequest(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	t.Cleanup(srv.Close)

	cases := []Config{
		{User: "u", AppPassword: "p", PageID: 1},
		{BaseURL: srv.URL, AppPassword: "p", PageID: 1},
		{BaseURL: srv.URL, User: "u", PageID: 1},
		{BaseURL: srv.URL, User: "u", AppPassword: "p"},
	}
	for i, cfg := range cases {
		res := NewClient(cfg, logx.Nop()).Publish(context.Background(), "x", nil)
		if res.OK || res.Reason != ReasonNotConfigured || res.Detail != "not configured" {
			t.Fatalf("case %d: %+v", i, res)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no network calls, got %d", hits.Load())
	}
}

func TestPublishTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewClient(Config{BaseURL: srv.URL, User: "u", AppPassword: "p", PageID: 1, Timeout: 50 * time.Millisecond}, logx.Nop())
	res := c.Publish(context.Background(), "x", nil)
	if res.OK || res.Reason != ReasonTransport {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Detail, "deadline exceeded") {
		t.Fatalf("detail=%q", res.Detail)
	}
}

func TestApplySwapsCredentials(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{}, logx.Nop())
	if c.Configured() {
		t.Fatal("empty config should not be configured")
	}
	c.Apply(Config{BaseURL: "https://example.org", User: "u", AppPassword: "p", PageID: 3})
	if !c.Configured() {
		t.Fatal("expected configured after Apply")
	}
	if got := c.Config().Endpoint(); got != "https://example.org/wp-json/im/v1/update-event" {
		t.Fatalf("endpoint=%q", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{in: "short", max: 10, want: "short"},
		{in: "abcdefghij", max: 8, want: "abcde..."},
		{in: "ab€€€", max: 7, want: "ab..."},
		{in: "€€€€", max: 9, want: "€€..."},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.max)
		if got != tc.want || !utf8.ValidString(got) || len(got) > tc.max {
			t.Fatalf("truncate(%q, %d)=%q want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestPublishNon2xxMultibyteBody(t *testing.T) {
	t.Parallel()
	srv, _ := newWordPress(t, http.StatusBadGateway, strings.Repeat("ż", maxDetailBytes))

	c := NewClient(Config{BaseURL: srv.URL, User: "u", AppPassword: "p", PageID: 1}, logx.Nop())
	res := c.Publish(context.Background(), "x", nil)
	if res.OK || res.Reason != ReasonStatus {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !utf8.ValidString(res.Detail) {
		t.Fatalf("detail is not valid UTF-8: %q", res.Detail[len(res.Detail)-8:])
	}
}

func ptr(s string) *string { return &s }
