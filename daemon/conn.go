// Package daemon implements the g15daemon client protocol: a textual
// greeting handshake followed by single-byte commands with fixed-size binary
// responses over a local TCP socket.
//
// g15daemon restarts are a normal part of its ecosystem, so the client never
// gives up on a lost connection: Connect retries indefinitely at a fixed
// interval. All multi-byte payloads are little-endian.
package daemon

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/g15tools/g15keys/internal/log"
)

var (
	// ErrBadGreeting means the peer is not a g15daemon. Never retried.
	ErrBadGreeting = errors.New("daemon: unexpected greeting")
	// ErrDisconnected means the connection dropped unexpectedly.
	ErrDisconnected = errors.New("daemon: connection lost")
	// ErrClosed means the connection was closed locally on purpose.
	ErrClosed = errors.New("daemon: connection closed")
)

// Config controls how the client reaches the daemon.
type Config struct {
	Addr          string        `help:"g15daemon address" default:"localhost:15550" env:"G15KEYS_DAEMON_ADDR"`
	DialTimeout   time.Duration `help:"Timeout for a single connection attempt" default:"3s"`
	RetryInterval time.Duration `help:"Delay between reconnection attempts" default:"10s"`
}

func defaultConfig() Config {
	return Config{
		Addr:          DefaultAddr,
		DialTimeout:   3 * time.Second,
		RetryInterval: DefaultRetryInterval,
	}
}

// Conn owns the socket to the daemon. It is driven from a single goroutine
// except for Close, which may be called concurrently to unblock a read.
type Conn struct {
	cfg        Config
	screenType string
	logger     *slog.Logger
	raw        log.RawLogger

	mu      sync.Mutex
	conn    net.Conn
	closing atomic.Bool
}

// New creates an unconnected Conn registering with the given screen type tag
// (one of ScreenText, ScreenWBMP, ScreenG15R, ScreenPixel).
func New(cfg *Config, screenType string, logger *slog.Logger, raw log.RawLogger) *Conn {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
		if c.Addr == "" {
			c.Addr = DefaultAddr
		}
		if c.RetryInterval <= 0 {
			c.RetryInterval = DefaultRetryInterval
		}
	}
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	return &Conn{cfg: c, screenType: screenType, logger: logger, raw: raw}
}

// Dial performs a single connection attempt: TCP connect, 16-byte greeting
// check, 4-byte screen-type registration. A wrong greeting returns
// ErrBadGreeting and must be treated as fatal.
func (c *Conn) Dial(ctx context.Context) error {
	d := &net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			c.logger.Warn("failed to set TCP_NODELAY", "error", err)
		}
	}

	greeting := make([]byte, len(Greeting))
	if _, err := io.ReadFull(conn, greeting); err != nil {
		conn.Close()
		return fmt.Errorf("read greeting: %w", err)
	}
	c.raw.Log(false, greeting)
	if string(greeting) != Greeting {
		conn.Close()
		return fmt.Errorf("%w: %q", ErrBadGreeting, greeting)
	}

	tag := []byte(c.screenType)
	c.raw.Log(true, tag)
	if _, err := conn.Write(tag); err != nil {
		conn.Close()
		return fmt.Errorf("register screen type: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Connect dials until it succeeds, waiting RetryInterval between attempts.
// It returns early only on context cancellation, local close, or a greeting
// mismatch (a peer speaking another protocol won't start speaking ours).
func (c *Conn) Connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if c.closing.Load() {
			return ErrClosed
		}
		err := c.Dial(ctx)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("daemon connection established", "attempts", attempt)
			}
			return nil
		}
		if errors.Is(err, ErrBadGreeting) {
			return err
		}
		c.logger.Warn("daemon unreachable, retrying", "addr", c.cfg.Addr, "error", err, "retry_in", c.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryInterval):
		}
	}
}

// Cmd sends a single command byte, packing val into the opcode's low bits
// where the opcode carries one. Query opcodes block for their fixed-size
// response: OpGetKeystate yields the 32-bit key state, the boolean queries
// yield 0 or 1 (the wire value is ASCII-offset by 48). Transport failures
// come back as ErrDisconnected, or ErrClosed during an intentional shutdown.
func (c *Conn) Cmd(op Opcode, val uint8) (uint32, error) {
	packet := byte(op)
	if max := maxValue(op); max >= 0 {
		if int(val) > max {
			return 0, fmt.Errorf("daemon: value %d out of range for opcode %#02x", val, byte(op))
		}
		packet |= val
	}

	conn := c.current()
	if conn == nil {
		return 0, ErrDisconnected
	}
	c.raw.Log(true, []byte{packet})
	if _, err := conn.Write([]byte{packet}); err != nil {
		return 0, c.transportErr()
	}

	switch op {
	case OpGetKeystate:
		buf, err := c.recv(4)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(buf), nil
	case OpIsForeground, OpIsUserSelected:
		buf, err := c.recv(2)
		if err != nil {
			return 0, err
		}
		return uint32(binary.LittleEndian.Uint16(buf)) - 48, nil
	}
	return 0, nil
}

// WaitKey blocks until the daemon pushes the next 4-byte key-state snapshot.
func (c *Conn) WaitKey() (uint32, error) {
	buf, err := c.recv(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// Close marks the connection as intentionally closing and closes the socket.
// Any blocked read unblocks with ErrClosed.
func (c *Conn) Close() error {
	c.closing.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Conn) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Conn) recv(n int) ([]byte, error) {
	conn := c.current()
	if conn == nil {
		return nil, ErrDisconnected
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, c.transportErr()
	}
	c.raw.Log(false, buf)
	return buf, nil
}

func (c *Conn) transportErr() error {
	if c.closing.Load() {
		return ErrClosed
	}
	return ErrDisconnected
}
