package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 20 // calls carry their audio inline
	sendBuffer     = 256
)

var (
	ErrNotConnected   = errors.New("websocket not connected")
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

type MessageHandler func(m Message)

type Options struct {
	URL           string
	RetryInterval time.Duration
	Header        http.Header
	Log           zerolog.Logger
}

// Client keeps a websocket connection to the scanner server open,
// reconnecting after failures until its context ends.
type Client struct {
	url    string
	retry  time.Duration
	header http.Header
	dialer *websocket.Dialer
	log    zerolog.Logger

	onMessage    MessageHandler
	onConnect    func()
	onDisconnect func()

	mu   sync.Mutex
	send chan []byte

	connected  atomic.Bool
	reconnects atomic.Int64
}

// New creates a client. Handlers must be set before Run.
func New(opts Options) (*Client, error) {
	u, err := NormalizeURL(opts.URL)
	if err != nil {
		return nil, err
	}
	retry := opts.RetryInterval
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &Client{
		url:    u,
		retry:  retry,
		header: opts.Header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log: opts.Log,
	}, nil
}

// NormalizeURL maps http(s) server addresses onto ws(s).
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", raw)
	}
	return u.String(), nil
}

func (c *Client) SetMessageHandler(h MessageHandler) { c.onMessage = h }

func (c *Client) SetConnectHandler(f func()) { c.onConnect = f }

func (c *Client) SetDisconnectHandler(f func()) { c.onDisconnect = f }

func (c *Client) IsConnected() bool { return c.connected.Load() }

// Reconnects returns how many times the connection was re-established.
func (c *Client) Reconnects() int64 { return c.reconnects.Load() }

// Run dials and serves the connection until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	first := true
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn().Err(err).Str("url", c.url).Dur("retry", c.retry).Msg("websocket dial failed")
		} else {
			if !first {
				c.reconnects.Add(1)
			}
			first = false
			c.log.Info().Str("url", c.url).Msg("websocket connected")
			c.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn().Dur("retry", c.retry).Msg("websocket connection lost, will reconnect")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.retry):
		}
	}
}

// Send queues a frame for the current connection.
func (c *Client) Send(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	send := make(chan []byte, sendBuffer)
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
	c.connected.Store(true)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	writerDone := make(chan struct{})
	go c.writePump(conn, send, writerDone)

	if c.onConnect != nil {
		c.onConnect()
	}

	c.readPump(conn)

	c.mu.Lock()
	c.send = nil
	close(send)
	c.mu.Unlock()
	c.connected.Store(false)
	<-writerDone
	conn.Close()

	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			c.log.Warn().Err(err).Int("size", len(data)).Msg("dropping malformed frame")
			continue
		}
		if c.onMessage != nil {
			c.onMessage(m)
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case data, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn().Err(err).Msg("websocket write failed")
				conn.Close()
				// Drain until serve closes the channel.
				for range send {
				}
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				for range send {
				}
				return
			}
		}
	}
}
