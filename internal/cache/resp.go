package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// replyKind enumerates the RESP2 reply types the provider understands.
type replyKind byte

const (
	kindSimple  replyKind = '+'
	kindError   replyKind = '-'
	kindInteger replyKind = ':'
	kindBulk    replyKind = '$'
	kindNil     replyKind = '_'
)

type reply struct {
	kind replyKind
	data []byte
}

func (r reply) ok() bool {
	return r.kind == kindSimple && string(r.data) == "OK"
}

// ServerError is an error reply sent by the server. It is not retried.
type ServerError string

func (e ServerError) Error() string { return "valkey: " + string(e) }

// respConn frames RESP2 commands over a single connection.
type respConn struct {
	conn         net.Conn
	r            *bufio.Reader
	w            *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newRespConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *respConn {
	return &respConn{
		conn:         conn,
		r:            bufio.NewReader(conn),
		w:            bufio.NewWriter(conn),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (c *respConn) close() error { return c.conn.Close() }

// roundTrip writes one command and reads its reply.
func (c *respConn) roundTrip(args ...[]byte) (reply, error) {
	if err := c.write(args); err != nil {
		return reply{}, err
	}
	return c.read()
}

func (c *respConn) write(args [][]byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, '\r', '\n')
	for _, arg := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, arg...)
		buf = append(buf, '\r', '\n')
	}
	if _, err := c.w.Write(buf); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *respConn) read() (reply, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return reply{}, err
	}
	prefix, err := c.r.ReadByte()
	if err != nil {
		return reply{}, err
	}
	line, err := c.line()
	if err != nil {
		return reply{}, err
	}

	switch replyKind(prefix) {
	case kindSimple, kindInteger:
		return reply{kind: replyKind(prefix), data: line}, nil
	case kindError:
		return reply{}, ServerError(line)
	case kindBulk:
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return reply{}, fmt.Errorf("bulk length %q: %w", line, err)
		}
		if size < 0 {
			return reply{kind: kindNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(c.r, buf); err != nil {
			return reply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return reply{}, errors.New("invalid bulk termination")
		}
		return reply{kind: kindBulk, data: buf[:size]}, nil
	default:
		return reply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (c *respConn) line() ([]byte, error) {
	line, err := c.r.ReadSlice('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, errors.New("invalid line termination")
	}
	return append([]byte(nil), line[:len(line)-2]...), nil
}
