package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// lineStream is the byte transport a connection runs over: one IRC line in,
// one IRC line out. Implementations are not goroutine-safe per direction;
// the connection serializes writes and owns the single read loop.
type lineStream interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
}

const dialTimeout = 15 * time.Second

// ---------------------------------------------------------------------------
// TCP / TLS
// ---------------------------------------------------------------------------

type tcpStream struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func dialTCP(ctx context.Context, addr string, useTLS bool) (lineStream, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if useTLS {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		tlsConn := tls.Client(conn, &tls.Config{ServerName: host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake %s: %w", addr, err)
		}
		conn = tlsConn
	}
	return newTCPStream(conn), nil
}

func newTCPStream(conn net.Conn) *tcpStream {
	return &tcpStream{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
}

func (s *tcpStream) ReadLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *tcpStream) WriteLine(line string) error {
	if !strings.HasSuffix(line, "\r\n") {
		line += "\r\n"
	}
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *tcpStream) Close() error { return s.conn.Close() }

// ---------------------------------------------------------------------------
// WebSocket (IRC-over-WebSocket gateways)
// ---------------------------------------------------------------------------

// wsStream speaks the webircgateway framing: each text message carries one
// or more IRC lines without the trailing CRLF.
type wsStream struct {
	conn    *websocket.Conn
	pending []string
}

func dialWS(ctx context.Context, url string) (lineStream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsStream{conn: conn}, nil
}

func (s *wsStream) ReadLine() (string, error) {
	for len(s.pending) == 0 {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if line != "" {
				s.pending = append(s.pending, line)
			}
		}
	}
	line := s.pending[0]
	s.pending = s.pending[1:]
	return line, nil
}

func (s *wsStream) WriteLine(line string) error {
	line = strings.TrimRight(line, "\r\n")
	return s.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (s *wsStream) Close() error { return s.conn.Close() }
