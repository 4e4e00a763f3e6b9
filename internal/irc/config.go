package irc

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort    = 6667
	DefaultTLSPort = 6697
	DefaultNick    = "hashpipe"
)

var (
	ErrServerRequired = errors.New("irc: server required")
	ErrNickRequired   = errors.New("irc: nick required")
	ErrInvalidPort    = errors.New("irc: invalid port")
)

// BackoffConfig defines connect retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
	ServerName         string
	CAFile             string
}

// Config describes one client connection.
type Config struct {
	Server   string
	Port     int
	TLS      TLSConfig
	Nick     string
	User     string
	RealName string
	Password string
	// Channels are joined once the server finishes the MOTD.
	Channels []string

	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	QuitTimeout        time.Duration
	MaxConnectAttempts int
	MaxNickAttempts    int
	Backoff            BackoffConfig

	// Outbound flood control: FloodBurst lines at once, then one per
	// FloodInterval.
	FloodBurst    int
	FloodInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Nick:               DefaultNick,
		ConnectTimeout:     10 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       15 * time.Second,
		QuitTimeout:        2 * time.Second,
		MaxConnectAttempts: 3,
		MaxNickAttempts:    5,
		Backoff: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     10 * time.Second,
			Jitter:       true,
		},
		FloodBurst:    5,
		FloodInterval: 500 * time.Millisecond,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Server = strings.TrimSpace(c.Server)
	c.Nick = strings.TrimSpace(c.Nick)
	if c.Nick == "" {
		c.Nick = def.Nick
	}
	if strings.TrimSpace(c.User) == "" {
		c.User = c.Nick
	}
	if strings.TrimSpace(c.RealName) == "" {
		c.RealName = c.Nick
	}
	if c.Port == 0 {
		c.Port = DefaultPort
		if c.TLS.Enabled {
			c.Port = DefaultTLSPort
		}
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.QuitTimeout <= 0 {
		c.QuitTimeout = def.QuitTimeout
	}
	if c.MaxNickAttempts <= 0 {
		c.MaxNickAttempts = def.MaxNickAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	if c.FloodBurst <= 0 {
		c.FloodBurst = def.FloodBurst
	}
	if c.FloodInterval < 0 {
		c.FloodInterval = 0
	}
	return c
}

func (c Config) Validate() error {
	if c.Server == "" {
		return ErrServerRequired
	}
	if c.Nick == "" || strings.ContainsAny(c.Nick, " ,*?!@") {
		return fmt.Errorf("%w: %q", ErrNickRequired, c.Nick)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	return nil
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}
