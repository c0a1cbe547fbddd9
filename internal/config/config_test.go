package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
telegram:
  token: "123:abc"
  poll_timeout: "15s"
  archive_chat_id: -100123

logging:
  level: debug
  console: true

album:
  quiet_period: "3s"
  max_group_size: 8

delivery:
  retry_max: 5
  archive_retry_base: "1s"

maintenance:
  prune_schedule: "*/15 * * * *"
  prune_idle_after: "30m"
`

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, validConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ArchiveChatID != -100123 {
		t.Fatalf("archive_chat_id = %d", cfg.Telegram.ArchiveChatID)
	}
	if cfg.Album.MaxGroupSize != 8 {
		t.Fatalf("max_group_size = %d", cfg.Album.MaxGroupSize)
	}
	if cfg.Delivery.RetryMax != 5 {
		t.Fatalf("retry_max = %d", cfg.Delivery.RetryMax)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, `
telegram:
  token: "123:abc"
  tokne_typo: "oops"
`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestParseValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing token",
			body: "telegram:\n  poll_timeout: \"10s\"\n",
			want: "telegram.token",
		},
		{
			name: "group size above platform ceiling",
			body: "telegram:\n  token: \"t\"\nalbum:\n  max_group_size: 11\n",
			want: "max_group_size",
		},
		{
			name: "negative retry",
			body: "telegram:\n  token: \"t\"\ndelivery:\n  retry_max: -1\n",
			want: "retry_max",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeConfig(t, tt.body))
			_, err := m.Parse()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "  2s "); err != nil || d != 2*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("album.quiet_period", "soon"); err == nil {
		t.Fatal("expected parse error")
	} else if !strings.Contains(err.Error(), "album.quiet_period") {
		t.Fatalf("error lacks field path: %v", err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected negative-duration error")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", 2*time.Second); err != nil || d != 2*time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "500ms", 2*time.Second); err != nil || d != 500*time.Millisecond {
		t.Fatalf("explicit: got %v, %v", d, err)
	}
}

func TestSubscribePublishDropOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Telegram: TelegramConfig{Token: "first"}}
	second := &Config{Telegram: TelegramConfig{Token: "second"}}
	m.publish(first)
	m.publish(second) // buffer full: first is dropped

	got := <-ch
	if got.Telegram.Token != "second" {
		t.Fatalf("subscriber saw %q, want newest config", got.Telegram.Token)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra publish: %+v", extra)
	default:
	}
}

func TestWatchReloadsOnRewrite(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, validConfig)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Give the watcher a moment to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(validConfig, "retry_max: 5", "retry_max: 2", 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-ch:
		if cfg.Delivery.RetryMax != 2 {
			t.Fatalf("reloaded retry_max = %d, want 2", cfg.Delivery.RetryMax)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
	if got := m.Get().Delivery.RetryMax; got != 2 {
		t.Fatalf("committed retry_max = %d, want 2", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestWatchRejectsInvalidWithoutCommit(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, validConfig)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("telegram:\n  token: \"\"\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-ch:
		t.Fatalf("invalid config published: %+v", cfg)
	case <-time.After(time.Second):
	}
	if got := m.Get().Telegram.Token; got != "123:abc" {
		t.Fatalf("committed token = %q, want previous value preserved", got)
	}

	cancel()
	<-done
}
