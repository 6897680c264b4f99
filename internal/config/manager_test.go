package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	EnvWPURL, EnvWPUser, EnvWPAppPassword, EnvEventPageID, EnvAdminPassword,
	EnvCheckInterval, EnvDatabasePath, EnvAdminAddr, EnvLogLevel,
	EnvTelegramToken, EnvTelegramChatID,
}

// unsetEnv removes the eventpush keys for the duration of the test.
func unsetEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseMissingFileUsesDefaults(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()

	cfg, err := NewConfigManager(filepath.Join(dir, "missing.yaml"), "").Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "events.db" {
		t.Fatalf("storage defaults: %+v", cfg.Storage)
	}
	if cfg.Dispatcher.Interval != "1m0s" {
		t.Fatalf("interval default: %q", cfg.Dispatcher.Interval)
	}
	if cfg.Admin.Password != "adminpass" || cfg.Admin.Addr != ":5000" {
		t.Fatalf("admin defaults: %+v", cfg.Admin)
	}
	if cfg.WordPress.PageID != 0 {
		t.Fatalf("page id default: %d", cfg.WordPress.PageID)
	}
	if !cfg.Logging.Console {
		t.Fatalf("console logging should default on")
	}
}

func TestParseYAMLAndEnvOverride(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
wordpress:
  url: https://file.example
  user: editor
  app_password: file-secret
  page_id: 12
dispatcher:
  interval: 30s
  timezone: UTC
admin:
  password: from-file
`)
	t.Setenv(EnvWPURL, "https://env.example")
	t.Setenv(EnvEventPageID, "42")
	t.Setenv(EnvCheckInterval, "5")

	cfg, err := NewConfigManager(path, "").Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.WordPress.URL != "https://env.example" {
		t.Fatalf("env should override url, got %q", cfg.WordPress.URL)
	}
	if cfg.WordPress.User != "editor" || cfg.WordPress.AppPassword != "file-secret" {
		t.Fatalf("file values lost: %+v", cfg.WordPress)
	}
	if cfg.WordPress.PageID != 42 {
		t.Fatalf("page id: %d", cfg.WordPress.PageID)
	}
	if cfg.Dispatcher.Interval != "5s" {
		t.Fatalf("interval: %q", cfg.Dispatcher.Interval)
	}
	if cfg.Admin.Password != "from-file" {
		t.Fatalf("admin password: %q", cfg.Admin.Password)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("location: %v %v", loc, err)
	}
}

func TestParseRejectsUnknownFieldsAndBadValues(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()

	cases := []struct {
		name    string
		file    string
		content string
		env     map[string]string
		wantErr string
	}{
		{name: "unknown field", file: "a.json", content: `{"wordpress":{"urll":"x"}}`, wantErr: "unknown field"},
		{name: "trailing data", file: "b.json", content: `{} {}`, wantErr: "trailing data"},
		{name: "bad interval", file: "c.json", content: `{"dispatcher":{"interval":"soon"}}`, wantErr: "dispatcher.interval"},
		{name: "bad timezone", file: "d.json", content: `{"dispatcher":{"timezone":"Mars/Olympus"}}`, wantErr: "dispatcher.timezone"},
		{name: "bad driver", file: "e.json", content: `{"storage":{"driver":"oracle"}}`, wantErr: "storage.driver"},
		{name: "bad page id env", file: "f.json", content: `{}`, env: map[string]string{EnvEventPageID: "abc"}, wantErr: EnvEventPageID},
		{name: "zero interval env", file: "g.json", content: `{}`, env: map[string]string{EnvCheckInterval: "0"}, wantErr: EnvCheckInterval},
		{name: "bad schedule", file: "h.json", content: `{"housekeeping":{"schedule":"every day"}}`, wantErr: "housekeeping.schedule"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, dir, tc.file, tc.content)
			_, err := NewConfigManager(path, "").Parse()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDotEnvLayering(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "WP_USER=dotenv-user\nWP_APP_PASSWORD=dotenv-pass\nADMIN_PASSWORD=dotenv-admin\n")
	t.Setenv(EnvAdminPassword, "real-env-admin")

	cfg, err := NewConfigManager("", envFile).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.WordPress.User != "dotenv-user" || cfg.WordPress.AppPassword != "dotenv-pass" {
		t.Fatalf(".env values not applied: %+v", cfg.WordPress)
	}
	if cfg.Admin.Password != "real-env-admin" {
		t.Fatalf("process env should win over .env, got %q", cfg.Admin.Password)
	}
}

func TestReloadPublishesOnlyOnChange(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"dispatcher":{"interval":"10s"}}`)

	m := NewConfigManager(path, "")
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	t.Cleanup(func() { m.Unsubscribe(ch) })

	ctx := context.Background()
	published, err := m.Reload(ctx)
	if err != nil || published {
		t.Fatalf("unchanged reload: published=%v err=%v", published, err)
	}

	writeFile(t, dir, "config.json", `{"dispatcher":{"interval":"20s"}}`)
	published, err = m.Reload(ctx)
	if err != nil || !published {
		t.Fatalf("changed reload: published=%v err=%v", published, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Dispatcher.Interval != "20s" {
			t.Fatalf("published interval %q", cfg.Dispatcher.Interval)
		}
	case <-time.After(time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Dispatcher.Interval != "20s" {
		t.Fatalf("Get not updated")
	}
}

func TestReloadValidatorRejects(t *testing.T) {
	unsetEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{}`)
	m := NewConfigManager(path, "")
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.WordPress.PageID == 13 {
			return os.ErrInvalid
		}
		return nil
	})
	writeFile(t, dir, "config.json", `{"wordpress":{"page_id":13}}`)
	if _, err := m.Reload(context.Background()); err == nil {
		t.Fatal("expected validator rejection")
	}
	if m.Get().WordPress.PageID != 0 {
		t.Fatalf("rejected config must not be committed")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	oldCfg := &Config{WordPress: WordPressConfig{AppPassword: "old-secret"}, Admin: AdminConfig{Password: "a"}}
	newCfg := &Config{WordPress: WordPressConfig{AppPassword: "new-secret"}, Admin: AdminConfig{Password: "b"}}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "admin,wordpress" {
		t.Fatalf("changed=%v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if got := RestartRequired(oldCfg, newCfg); len(got) != 0 {
		t.Fatalf("restart required: %v", got)
	}
	newCfg.Storage.Path = "other.db"
	if got := RestartRequired(oldCfg, newCfg); len(got) != 1 || got[0] != "storage" {
		t.Fatalf("restart required: %v", got)
	}
}
