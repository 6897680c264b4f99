package config

import (
	"strings"
	"testing"
	"time"
)

func TestDecodeStrictYAML(t *testing.T) {
	t.Parallel()

	var cfg Config
	src := "wordpress:\n  url: https://example.org\n  page_id: 9\nadmin:\n  cors_origins: [\"https://a.example\"]\n"
	if err := decodeStrict("cfg.yml", []byte(src), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.WordPress.URL != "https://example.org" || cfg.WordPress.PageID != 9 || len(cfg.Admin.CORSOrigins) != 1 {
		t.Fatalf("decoded: %+v", cfg)
	}

	if err := decodeStrict("cfg.yaml", []byte("wordpress:\n  urll: x\n"), &Config{}); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("unknown yaml key: %v", err)
	}
	if err := decodeStrict("cfg.yaml", []byte("1: x\n"), &Config{}); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("numeric yaml key: %v", err)
	}
	if err := decodeStrict("cfg.json", []byte("  null "), &Config{}); err != nil {
		t.Fatalf("null document: %v", err)
	}
}

func TestParseDurationHelpers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		def     time.Duration
		want    time.Duration
		wantErr string
	}{
		{raw: "", def: time.Minute, want: time.Minute},
		{raw: "0s", def: time.Minute, want: time.Minute},
		{raw: " 5s ", def: time.Minute, want: 5 * time.Second},
		{raw: "-1s", wantErr: "negative"},
		{raw: "soon", wantErr: "x.y"},
	}
	for _, tc := range cases {
		got, err := ParseDurationOrDefault("x.y", tc.raw, tc.def)
		if tc.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("%q: err=%v want %q", tc.raw, err, tc.wantErr)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %v err=%v", tc.raw, got, err)
		}
	}
}
