package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrClosed          = errors.New("irc: connection closed")
	ErrNickUnavailable = errors.New("irc: no usable nickname")
)

type closeWriter interface {
	CloseWrite() error
}

// Client is one live server connection. Sends are safe from any goroutine;
// ReadMessage must be driven by a single reader.
type Client struct {
	cfg     Config
	conn    net.Conn
	reader  *bufio.Reader
	limiter *rate.Limiter

	writeMu sync.Mutex

	nickMu sync.RWMutex
	nick   string

	registered   atomic.Bool
	joined       atomic.Bool
	closed       atomic.Bool
	nickAttempts int

	closeOnce sync.Once
	eofOnce   sync.Once
	eof       chan struct{}
}

// Dial connects to the configured server, retrying with backoff.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		conn, err := dial(ctx, cfg)
		if err == nil {
			log.Info().Str("addr", cfg.Address()).Bool("tls", cfg.TLS.Enabled).Int("attempt", attempt).Msg("irc.Dial connected")
			return newClient(conn, cfg), nil
		}
		log.Warn().Str("addr", cfg.Address()).Int("attempt", attempt).Err(err).Msg("irc.Dial failed")
		if !retryable(err) || (cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts) {
			return nil, fmt.Errorf("irc: dial %s: %w", cfg.Address(), err)
		}
		timer := time.NewTimer(RetryDelay(cfg.Backoff, attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, cfg Config) *Client {
	return newClient(conn, cfg.WithDefaults())
}

func newClient(conn net.Conn, cfg Config) *Client {
	limit := rate.Inf
	if cfg.FloodInterval > 0 {
		limit = rate.Every(cfg.FloodInterval)
	}
	return &Client{
		cfg:     cfg,
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 4096),
		limiter: rate.NewLimiter(limit, cfg.FloodBurst),
		nick:    cfg.Nick,
		eof:     make(chan struct{}),
	}
}

func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, err
	}
	if !cfg.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := clientTLSConfig(cfg)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

func clientTLSConfig(cfg Config) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		ServerName:         cfg.Server,
	}
	if name := strings.TrimSpace(cfg.TLS.ServerName); name != "" {
		out.ServerName = name
	}
	if caPath := strings.TrimSpace(cfg.TLS.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("irc: parse tls ca bundle: %s", caPath)
		}
		out.RootCAs = pool
	}
	return out, nil
}

// Nick is the nickname the server currently knows us by.
func (c *Client) Nick() string {
	c.nickMu.RLock()
	defer c.nickMu.RUnlock()
	return c.nick
}

func (c *Client) setNick(nick string) {
	if nick == "" {
		return
	}
	c.nickMu.Lock()
	c.nick = nick
	c.nickMu.Unlock()
}

// Identify starts connection registration.
func (c *Client) Identify() error {
	if c.cfg.Password != "" {
		if err := c.write(NewMessage("PASS", c.cfg.Password)); err != nil {
			return err
		}
	}
	if err := c.write(NewMessage("NICK", c.Nick())); err != nil {
		return err
	}
	return c.write(NewMessage("USER", c.cfg.User, "0", "*", c.cfg.RealName))
}

// ReadMessage blocks for the next inbound message. Keepalive, nickname
// retries and channel joins are handled before the message is returned.
// A line that does not parse yields ErrMalformedLine and the stream stays
// usable; any other error is terminal.
func (c *Client) ReadMessage() (Message, error) {
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			c.eofOnce.Do(func() { close(c.eof) })
			if c.closed.Load() && !errors.Is(err, io.EOF) {
				return Message{}, fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return Message{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		msg, err := ParseLine(line)
		if err != nil {
			return Message{Raw: line}, err
		}
		if err := c.handle(msg); err != nil {
			return msg, err
		}
		return msg, nil
	}
}

func (c *Client) handle(msg Message) error {
	switch msg.Command {
	case "PING":
		return c.write(NewMessage("PONG", msg.Params...))
	case RPL_WELCOME:
		c.setNick(msg.Param(0))
		c.registered.Store(true)
	case ERR_ERRONEUSNICKNAME:
		if !c.registered.Load() {
			return fmt.Errorf("%w: %q rejected by server", ErrNickUnavailable, c.Nick())
		}
	case ERR_NICKNAMEINUSE, ERR_NICKCOLLISION, ERR_UNAVAILRESOURCE:
		if c.registered.Load() {
			return nil
		}
		c.nickAttempts++
		if c.nickAttempts > c.cfg.MaxNickAttempts {
			return fmt.Errorf("%w: %s after %d attempts", ErrNickUnavailable, c.cfg.Nick, c.nickAttempts-1)
		}
		next := c.Nick() + "_"
		log.Debug().Str("nick", next).Str("numeric", msg.Command).Msg("irc.Client nickname rejected, retrying")
		c.setNick(next)
		return c.write(NewMessage("NICK", next))
	case "NICK":
		if strings.EqualFold(msg.SourceNick(), c.Nick()) {
			c.setNick(msg.Param(0))
		}
	case RPL_ENDOFMOTD, ERR_NOMOTD:
		if c.joined.CompareAndSwap(false, true) {
			return c.joinChannels()
		}
	}
	return nil
}

func (c *Client) joinChannels() error {
	for _, channel := range c.cfg.Channels {
		if err := c.Send(NewMessage("JOIN", channel)); err != nil {
			return err
		}
		log.Debug().Str("channel", channel).Msg("irc.Client join requested")
	}
	return nil
}

// Send writes one message, waiting on flood control first.
func (c *Client) Send(msg Message) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.limiter.Wait(context.Background()); err != nil {
		return err
	}
	return c.write(msg)
}

// SendTo sends text as a PRIVMSG to target.
func (c *Client) SendTo(target, text string) error {
	return c.Send(NewMessage("PRIVMSG", target, text))
}

func (c *Client) write(msg Message) error {
	line, err := msg.Wire()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if _, err := io.WriteString(c.conn, line); err != nil {
		return err
	}
	log.Trace().Str("line", strings.TrimRight(line, "\r\n")).Msg("irc.Client sent")
	return nil
}

// Disconnect sends QUIT and closes the connection. Only the first call has
// any effect. The socket is closed once the server hangs up or QuitTimeout
// passes, whichever comes first.
func (c *Client) Disconnect(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		quitErr := c.write(NewMessage("QUIT", reason))
		if cw, ok := c.conn.(closeWriter); ok && quitErr == nil {
			_ = cw.CloseWrite()
		}
		if quitErr == nil {
			timer := time.NewTimer(c.cfg.QuitTimeout)
			select {
			case <-c.eof:
			case <-timer.C:
			}
			timer.Stop()
		}
		err = errors.Join(quitErr, c.conn.Close())
		if errors.Is(err, net.ErrClosed) {
			err = quitErr
		}
	})
	return err
}
