package irc

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Server: " irc.example.net "}.WithDefaults()
	if cfg.Server != "irc.example.net" {
		t.Fatalf("expected trimmed server, got %q", cfg.Server)
	}
	if cfg.Port != DefaultPort || cfg.Nick != DefaultNick {
		t.Fatalf("unexpected defaults: port=%d nick=%q", cfg.Port, cfg.Nick)
	}
	if cfg.User != DefaultNick || cfg.RealName != DefaultNick {
		t.Fatalf("expected user and realname from nick, got %q %q", cfg.User, cfg.RealName)
	}
	if cfg.QuitTimeout != 2*time.Second || cfg.FloodBurst != 5 {
		t.Fatalf("unexpected timing defaults: %+v", cfg)
	}

	tlsCfg := Config{Server: "irc.example.net", TLS: TLSConfig{Enabled: true}}.WithDefaults()
	if tlsCfg.Port != DefaultTLSPort {
		t.Fatalf("expected tls port %d, got %d", DefaultTLSPort, tlsCfg.Port)
	}

	explicit := Config{Server: "irc.example.net", Port: 7000, TLS: TLSConfig{Enabled: true}, Nick: "piper", User: "pipe"}.WithDefaults()
	if explicit.Port != 7000 || explicit.User != "pipe" || explicit.RealName != "piper" {
		t.Fatalf("explicit values overwritten: %+v", explicit)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing server", Config{Nick: "a", Port: 6667}, ErrServerRequired},
		{"missing nick", Config{Server: "s", Port: 6667}, ErrNickRequired},
		{"bad nick", Config{Server: "s", Nick: "two words", Port: 6667}, ErrNickRequired},
		{"port too large", Config{Server: "s", Nick: "a", Port: 70000}, ErrInvalidPort},
		{"ok", Config{Server: "s", Nick: "a", Port: 6667}, nil},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestConfigAddress(t *testing.T) {
	if got := (Config{Server: "::1", Port: 6697}).Address(); got != "[::1]:6697" {
		t.Fatalf("unexpected address: %q", got)
	}
}

func TestRetryDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := RetryDelay(cfg, i+1, nil); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}

	if got := RetryDelay(BackoffConfig{}, 3, nil); got != 0 {
		t.Fatalf("expected zero delay without initial delay, got %v", got)
	}

	cfg.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for attempt := 2; attempt < 6; attempt++ {
		got := RetryDelay(cfg, attempt, rng)
		if got < 50*time.Millisecond || got > 450*time.Millisecond {
			t.Fatalf("attempt %d: jittered delay out of range: %v", attempt, got)
		}
	}
}

func TestRetryableDialErrors(t *testing.T) {
	retry := []error{
		&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
		io.EOF,
		&net.DNSError{Err: "server misbehaving", Name: "irc.example.net", IsTemporary: true},
	}
	for _, err := range retry {
		if !retryable(err) {
			t.Fatalf("%v: expected retry", err)
		}
	}

	final := []error{
		context.Canceled,
		fmt.Errorf("dial: %w", context.DeadlineExceeded),
		x509.UnknownAuthorityError{},
		x509.HostnameError{Host: "irc.example.net", Certificate: &x509.Certificate{}},
		&net.DNSError{Err: "no such host", Name: "irc.invalid", IsNotFound: true},
	}
	for _, err := range final {
		if retryable(err) {
			t.Fatalf("%v: expected no retry", err)
		}
	}
}
