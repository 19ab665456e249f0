package ircconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// WebSocketSubprotocol is the IRCv3 WebSocket text subprotocol.
const WebSocketSubprotocol = "text.ircv3.net"

// Default ports for schemes that omit one.
const (
	defaultPlainPort = "6667"
	defaultTLSPort   = "6697"
)

// maxLineLength bounds a single inbound line including IRCv3 tags.
const maxLineLength = 8192 + 512

// transport moves whole IRC lines. Implementations strip and append the
// CRLF terminator themselves.
type transport interface {
	ReadLine(ctx context.Context) (string, error)
	WriteLine(ctx context.Context, line string) error
	Close() error
}

// dialTransport opens the transport selected by rawURL's scheme.
func dialTransport(ctx context.Context, rawURL string, dialTimeout time.Duration, insecure bool) (transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ircconn: parsing server URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "irc":
		return dialTCP(ctx, hostPort(u, defaultPlainPort), nil, dialTimeout)
	case "ircs":
		cfg := &tls.Config{
			ServerName:         u.Hostname(),
			InsecureSkipVerify: insecure, //nolint:gosec // opt-in for self-signed test networks
			MinVersion:         tls.VersionTLS12,
		}

		return dialTCP(ctx, hostPort(u, defaultTLSPort), cfg, dialTimeout)
	case "ws", "wss":
		return dialWebSocket(ctx, u.String(), dialTimeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func hostPort(u *url.URL, defaultPort string) string {
	if u.Port() != "" {
		return u.Host
	}

	return net.JoinHostPort(u.Hostname(), defaultPort)
}

// tcpTransport carries CRLF-delimited lines over a stream connection.
type tcpTransport struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

func dialTCP(ctx context.Context, addr string, tlsCfg *tls.Config, timeout time.Duration) (*tcpTransport, error) {
	dialer := &net.Dialer{Timeout: timeout}

	var (
		conn net.Conn
		err  error
	)

	if tlsCfg != nil {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}

	if err != nil {
		return nil, fmt.Errorf("ircconn: connecting to %s: %w", addr, err)
	}

	return newTCPTransport(conn), nil
}

func newTCPTransport(conn net.Conn) *tcpTransport {
	return &tcpTransport{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, maxLineLength),
	}
}

func (t *tcpTransport) ReadLine(_ context.Context) (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func (t *tcpTransport) WriteLine(_ context.Context, line string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_, err := t.conn.Write([]byte(line + "\r\n"))

	return err
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

// wsTransport carries one IRC line per WebSocket text message. Gateways that
// batch several lines into one frame are tolerated by splitting on LF.
type wsTransport struct {
	conn    *websocket.Conn
	pending []string
}

func dialWebSocket(ctx context.Context, rawURL string, timeout time.Duration) (*wsTransport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, rawURL, &websocket.DialOptions{
		Subprotocols: []string{WebSocketSubprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("ircconn: websocket dial %s: %w", rawURL, err)
	}

	conn.SetReadLimit(maxLineLength)

	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadLine(ctx context.Context) (string, error) {
	for len(t.pending) == 0 {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			return "", err
		}

		if typ != websocket.MessageText {
			continue
		}

		for _, l := range strings.Split(string(data), "\n") {
			if l = strings.TrimRight(l, "\r"); l != "" {
				t.pending = append(t.pending, l)
			}
		}
	}

	line := t.pending[0]
	t.pending = t.pending[1:]

	return line, nil
}

func (t *wsTransport) WriteLine(ctx context.Context, line string) error {
	return t.conn.Write(ctx, websocket.MessageText, []byte(line))
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
