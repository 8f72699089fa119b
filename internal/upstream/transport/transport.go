// Package transport implements the upstream's request/response API
// and persistent duplex event stream behind a narrow interface (spec
// §6's "external collaborator" transport, given a concrete
// implementation here). The HTTP client is built on the standard
// library (see DESIGN.md — no example repo carries a third-party HTTP
// client); the event stream reuses the teacher repo's own
// github.com/coder/websocket + wsjson pairing, just dialing out as a
// client instead of accepting connections as a server.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	logdump "github.com/vovakirdan/slackbridge/internal/logging"
	"github.com/vovakirdan/slackbridge/internal/upstream/events"
)

// Transport is the narrow interface the upstream session consumes.
// It carries the four operations spec §2 names for this component
// (send a frame, call a method, observe events, observe close) plus
// Dial, Close and Download.
type Transport interface {
	// Dial opens the persistent event stream at streamURL (the url the
	// bootstrap handshake's response carries). Must be called once,
	// before Events/SendFrame are used.
	Dial(ctx context.Context, streamURL string) error

	// CallMethod issues a request/response API call and returns the
	// decoded "ok"/"error" envelope's body, or an error if the HTTP
	// call failed or the envelope reported ok=false.
	CallMethod(ctx context.Context, method string, params url.Values) (json.RawMessage, error)

	// SendFrame writes a fire-and-forget JSON frame onto the event
	// stream (e.g. a ping), stamped with the next monotonically
	// increasing frame id per spec §6.
	SendFrame(ctx context.Context, frameType string) error

	// Events returns the channel of decoded inbound stream events.
	// Closed when the stream closes.
	Events() <-chan events.Event

	// Closed returns a channel that is closed when the stream closes,
	// for any reason (remote close, local Close, read error).
	Closed() <-chan struct{}

	// Close tears down the stream.
	Close() error

	// Download GETs an arbitrary authenticated URL the upstream API
	// handed back (e.g. a file's url_private) and returns its body.
	Download(ctx context.Context, url string) ([]byte, error)
}

// Config holds what the transport needs to reach the upstream
// service.
type Config struct {
	// BaseURL is the REST method endpoint root, e.g. "https://slack.com/api".
	BaseURL string
	Token   string

	// WireDump, if set, receives every inbound and outbound frame for
	// wire-level logging, gated by its own enabled flag (the gateway
	// "debug_dump" command and config.debug_dump). Nil disables
	// dumping entirely with no overhead beyond a nil check.
	WireDump *logdump.WireDumper
}

type client struct {
	cfg Config
	log *zerolog.Logger

	httpClient *http.Client

	conn *websocket.Conn

	nextFrameID atomic.Int64

	eventsCh chan events.Event
	closed   chan struct{}
	closeMu  sync.Mutex
}

// New constructs a Transport. Dial must be called before the event
// stream is usable; CallMethod works immediately since it only needs
// the HTTP client.
func New(cfg Config, log *zerolog.Logger) Transport {
	return &client{
		cfg:        cfg,
		log:        log,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		eventsCh:   make(chan events.Event, 64),
		closed:     make(chan struct{}),
	}
}

func (c *client) Dial(ctx context.Context, streamURL string) error {
	conn, _, err := websocket.Dial(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	c.conn = conn
	go c.readLoop()
	return nil
}

func (c *client) readLoop() {
	defer close(c.eventsCh)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(context.Background(), c.conn, &raw); err != nil {
			c.log.Warn().Err(err).Msg("upstream event stream read error")
			c.markClosed()
			return
		}

		if c.cfg.WireDump != nil {
			c.cfg.WireDump.Dump("recv", string(raw))
		}

		ev, err := events.Decode(raw)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed upstream frame")
			continue
		}
		c.eventsCh <- ev
	}
}

func (c *client) markClosed() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

func (c *client) Events() <-chan events.Event { return c.eventsCh }
func (c *client) Closed() <-chan struct{}     { return c.closed }

func (c *client) SendFrame(ctx context.Context, frameType string) error {
	if c.conn == nil {
		return fmt.Errorf("send frame: stream not dialed")
	}
	frame := struct {
		Type string `json:"type"`
		ID   int64  `json:"id"`
	}{Type: frameType, ID: c.nextFrameID.Add(1)}
	if c.cfg.WireDump != nil {
		if b, err := json.Marshal(frame); err == nil {
			c.cfg.WireDump.Dump("send", string(b))
		}
	}
	return wsjson.Write(ctx, c.conn, frame)
}

func (c *client) Close() error {
	if c.conn == nil {
		c.markClosed()
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	c.markClosed()
	return err
}

// CallMethod POSTs form-encoded params against BaseURL/method and
// decodes the {ok, error, ...} envelope. Per spec §7, an ok=false
// response is a per-call upstream error, not a fatal or transient
// one: it's returned to the caller with no data. Session.CallAsync
// broadcasts it as an "API error" NOTICE before invoking its
// completion.
func (c *client) CallMethod(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.cfg.Token)

	if c.cfg.WireDump != nil {
		c.cfg.WireDump.Dump("send", method+" "+params.Encode())
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("call %s: http status %d", method, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	if c.cfg.WireDump != nil {
		c.cfg.WireDump.Dump("recv", method+" "+string(body))
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("%s: api error: %s", method, envelope.Error)
	}
	return body, nil
}

// Download GETs url with the bearer token attached and returns the
// response body, for fetching file content referenced by files.info.
func (c *client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download: http status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
