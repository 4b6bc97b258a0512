package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// ValkeyProvider implements Provider over one lazily (re)established connection.
// Commands are serialised; the engine writes state once per resolution.
type ValkeyProvider struct {
	cfg ValkeyConfig

	mu   sync.Mutex
	conn *respConn
}

// NewValkeyProvider creates a Provider and pings the server so bad
// credentials or addresses fail at startup.
func NewValkeyProvider(ctx context.Context, cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	normalise(&cfg)
	p := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	r, err := p.do(ctx, "PING")
	if err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	if r.kind != kindSimple || string(r.data) != "PONG" {
		_ = p.Close()
		return nil, fmt.Errorf("unexpected PING response: %s", r.data)
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := p.do(ctx, "GET", []byte(key))
	if err != nil {
		return nil, err
	}
	switch r.kind {
	case kindNil:
		return nil, ErrCacheMiss
	case kindBulk:
		return r.data, nil
	}
	return nil, fmt.Errorf("unexpected reply %q for GET", r.kind)
}

// Set stores bytes with the provided TTL; a non-positive ttl persists.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := [][]byte{[]byte(key), value}
	if ttl > 0 {
		args = append(args, []byte("PX"), strconv.AppendInt(nil, ttl.Milliseconds(), 10))
	}
	r, err := p.do(ctx, "SET", args...)
	if err != nil {
		return err
	}
	if !r.ok() {
		return fmt.Errorf("unexpected SET response: %s", r.data)
	}
	return nil
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, "DEL", []byte(key))
	return err
}

// Close drops the connection. The provider redials on next use.
func (p *ValkeyProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reset()
}

func (p *ValkeyProvider) do(ctx context.Context, command string, args ...[]byte) (reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	full := append([][]byte{[]byte(command)}, args...)
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return reply{}, err
		}
		if attempt > 0 {
			if !wait(ctx, backoff(attempt-1)) {
				return reply{}, ctx.Err()
			}
		}
		if p.conn == nil {
			conn, err := p.connect(ctx)
			if err != nil {
				lastErr = err
				if retryable(err) {
					continue
				}
				return reply{}, err
			}
			p.conn = conn
		}

		r, err := p.conn.roundTrip(full...)
		if err == nil {
			return r, nil
		}
		var serverErr ServerError
		if errors.As(err, &serverErr) {
			return reply{}, err
		}
		// The connection state is unknown after a transport error.
		_ = p.reset()
		lastErr = err
	}
	return reply{}, lastErr
}

func (p *ValkeyProvider) connect(ctx context.Context) (*respConn, error) {
	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		td := tls.Dialer{NetDialer: &dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: hostOf(p.cfg.Addr)}}
		conn, err = td.DialContext(ctx, "tcp", p.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}

	rc := newRespConn(conn, p.cfg.ReadTimeout, p.cfg.WriteTimeout)
	if err := p.handshake(rc); err != nil {
		_ = rc.close()
		return nil, err
	}
	return rc, nil
}

func (p *ValkeyProvider) handshake(rc *respConn) error {
	if p.cfg.Password != "" {
		args := [][]byte{[]byte("AUTH")}
		if p.cfg.Username != "" {
			args = append(args, []byte(p.cfg.Username))
		}
		args = append(args, []byte(p.cfg.Password))
		r, err := rc.roundTrip(args...)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		if !r.ok() {
			return fmt.Errorf("auth failed: %s", r.data)
		}
	}
	if p.cfg.DB > 0 {
		r, err := rc.roundTrip([]byte("SELECT"), []byte(strconv.Itoa(p.cfg.DB)))
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}
		if !r.ok() {
			return fmt.Errorf("select failed: %s", r.data)
		}
	}
	return nil
}

func (p *ValkeyProvider) reset() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.close()
	p.conn = nil
	return err
}

func normalise(cfg *ValkeyConfig) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 25 * time.Millisecond
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func retryable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
