package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
)

// Transport is one established connection.
type Transport interface {
	// Read blocks until a frame arrives, ctx is cancelled or the connection fails.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	// Ping waits for the peer to answer a protocol-level ping. It needs a
	// concurrent Read to see the answer.
	Ping(ctx context.Context) error
	Close(reason string) error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, target string) (Transport, error)
}

// WebSocketDialer dials text-frame websocket connections.
type WebSocketDialer struct {
	// Token is sent as a bearer Authorization header.
	Token string
	// TokenParam, when set, also sends Token as this query parameter for
	// servers that authenticate the upgrade request by URL.
	TokenParam string
	HTTPClient *http.Client
	// ReadLimit caps inbound frame size. Zero keeps the library default.
	ReadLimit int64
}

func (d WebSocketDialer) Dial(ctx context.Context, target string) (Transport, error) {
	if d.TokenParam != "" && d.Token != "" {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", target, err)
		}
		q := u.Query()
		q.Set(d.TokenParam, d.Token)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	opts := &websocket.DialOptions{HTTPClient: d.HTTPClient}
	if d.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + d.Token}}
	}
	conn, _, err := websocket.Dial(ctx, target, opts)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, frame)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}
