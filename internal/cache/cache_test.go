package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeValkey is a minimal RESP2 server supporting the commands the provider sends.
type fakeValkey struct {
	ln       net.Listener
	password string

	mu    sync.Mutex
	data  map[string][]byte
	conns map[net.Conn]struct{}
	cmds  []string
	wg    sync.WaitGroup
}

func startFakeValkey(t *testing.T, password string) *fakeValkey {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeValkey{ln: ln, password: password, data: map[string][]byte{}, conns: map[net.Conn]struct{}{}}
	f.wg.Add(1)
	go f.serve()
	t.Cleanup(f.stop)
	return f
}

func (f *fakeValkey) addr() string { return f.ln.Addr().String() }

func (f *fakeValkey) serve() {
	defer f.wg.Done()
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns[conn] = struct{}{}
		f.mu.Unlock()
		f.wg.Add(1)
		go f.handle(conn)
	}
}

func (f *fakeValkey) stop() {
	_ = f.ln.Close()
	f.mu.Lock()
	for c := range f.conns {
		_ = c.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// dropConnections closes every accepted connection, simulating a server restart.
func (f *fakeValkey) dropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.conns {
		_ = c.Close()
		delete(f.conns, c)
	}
}

func (f *fakeValkey) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeValkey) handle(conn net.Conn) {
	defer f.wg.Done()
	defer conn.Close()
	r := bufio.NewReader(conn)
	authed := f.password == ""
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		cmd := strings.ToUpper(string(args[0]))
		f.mu.Lock()
		f.cmds = append(f.cmds, cmd)
		var out string
		switch {
		case cmd == "AUTH":
			if string(args[len(args)-1]) == f.password {
				authed = true
				out = "+OK\r\n"
			} else {
				out = "-WRONGPASS invalid password\r\n"
			}
		case !authed:
			out = "-NOAUTH Authentication required\r\n"
		case cmd == "PING":
			out = "+PONG\r\n"
		case cmd == "SELECT":
			out = "+OK\r\n"
		case cmd == "SET":
			f.data[string(args[1])] = append([]byte(nil), args[2]...)
			out = "+OK\r\n"
		case cmd == "GET":
			if v, ok := f.data[string(args[1])]; ok {
				out = fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
			} else {
				out = "$-1\r\n"
			}
		case cmd == "DEL":
			_, ok := f.data[string(args[1])]
			delete(f.data, string(args[1]))
			n := 0
			if ok {
				n = 1
			}
			out = fmt.Sprintf(":%d\r\n", n)
		default:
			out = "-ERR unknown command\r\n"
		}
		f.mu.Unlock()
		if _, err := io.WriteString(conn, out); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([][]byte, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(header, "*") {
		return nil, errors.New("expected array")
	}
	n, err := strconv.Atoi(strings.TrimSpace(header[1:]))
	if err != nil {
		return nil, err
	}
	args := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		lenLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(lenLine[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, buf[:size])
	}
	return args, nil
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	srv := startFakeValkey(t, "")
	ctx := context.Background()
	p, err := NewValkeyProvider(ctx, ValkeyConfig{Addr: srv.addr(), DB: 2})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer p.Close()

	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	payload := []byte("binary\r\nsafe\x00value")
	if err := p.Set(ctx, "k", payload, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "k")
	if err != nil || string(got) != string(payload) {
		t.Fatalf("get returned %q, %v", got, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}

	cmds := srv.commands()
	if cmds[0] != "SELECT" || cmds[1] != "PING" {
		t.Fatalf("expected SELECT handshake before PING, got %v", cmds)
	}
}

func TestValkeyProviderAuth(t *testing.T) {
	srv := startFakeValkey(t, "s3cret")
	ctx := context.Background()

	if _, err := NewValkeyProvider(ctx, ValkeyConfig{Addr: srv.addr(), Password: "wrong"}); err == nil {
		t.Fatalf("expected auth failure")
	}
	p, err := NewValkeyProvider(ctx, ValkeyConfig{Addr: srv.addr(), Username: "remedy", Password: "s3cret"})
	if err != nil {
		t.Fatalf("auth with correct password: %v", err)
	}
	_ = p.Close()
}

func TestValkeyProviderReconnects(t *testing.T) {
	srv := startFakeValkey(t, "")
	ctx := context.Background()
	p, err := NewValkeyProvider(ctx, ValkeyConfig{Addr: srv.addr(), MaxRetries: 3})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer p.Close()

	srv.dropConnections()
	if err := p.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set after drop should reconnect: %v", err)
	}
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(context.Background(), ValkeyConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryProvider()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	value := []byte("abc")
	if err := m.Set(ctx, "short", value, time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = m.Set(ctx, "forever", []byte("x"), 0)
	value[0] = 'z'

	got, err := m.Get(ctx, "short")
	if err != nil || string(got) != "abc" {
		t.Fatalf("expected stored copy, got %q, %v", got, err)
	}

	now = now.Add(time.Second)
	if _, err := m.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
	if _, err := m.Get(ctx, "forever"); err != nil {
		t.Fatalf("zero ttl must not expire: %v", err)
	}
	_ = m.Del(ctx, "forever")
	if _, err := m.Get(ctx, "forever"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete")
	}
}

func TestNoopProvider(t *testing.T) {
	var p Provider = NoopProvider{}
	_ = p.Set(context.Background(), "k", []byte("v"), 0)
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("noop provider must always miss")
	}
}
