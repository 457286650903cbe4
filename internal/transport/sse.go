package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/cotoami/cotoami-go/internal/peerproto"
)

// SSEConn is the HTTP+SSE fallback carrier: server→client events arrive as
// an SSE stream (one base64-encoded MessagePack frame per "data:" line,
// since SSE payloads are text), client→server Requests are posted as
// individual HTTP calls against requestURL. Used automatically when a
// WebSocket upgrade fails.
type SSEConn struct {
	client     *http.Client
	requestURL string
	header     http.Header

	body   *bufioReadCloser
	events chan eventOrErr

	mu     sync.Mutex
	closed bool
}

var _ Conn = (*SSEConn)(nil)

type eventOrErr struct {
	event peerproto.Event
	err   error
}

type bufioReadCloser struct {
	*bufio.Reader
	closer interface{ Close() error }
}

// DialSSE opens the SSE stream at streamURL and prepares to post outgoing
// Requests to requestURL.
func DialSSE(ctx context.Context, client *http.Client, streamURL, requestURL string, header http.Header) (*SSEConn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: sse request: %w", err)
	}
	req.Header = header.Clone()
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: sse dial: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("transport: sse dial: unexpected status %d", resp.StatusCode)
	}

	c := &SSEConn{
		client:     client,
		requestURL: requestURL,
		header:     header,
		body:       &bufioReadCloser{Reader: bufio.NewReader(resp.Body), closer: resp.Body},
		events:     make(chan eventOrErr, 64),
	}
	go c.readLoop()
	return c, nil
}

func (c *SSEConn) readLoop() {
	var data bytes.Buffer
	for {
		line, err := c.body.ReadString('\n')
		if err != nil {
			c.events <- eventOrErr{err: err}
			close(c.events)
			return
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if data.Len() > 0 {
				raw, decErr := base64.StdEncoding.DecodeString(data.String())
				data.Reset()
				if decErr != nil {
					c.events <- eventOrErr{err: fmt.Errorf("transport: sse base64: %w", decErr)}
					continue
				}
				event, decErr := peerproto.DecodeEvent(raw)
				if decErr != nil {
					c.events <- eventOrErr{err: decErr}
					continue
				}
				c.events <- eventOrErr{event: event}
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(line, "data:"))
		default:
			// ignore event:/id:/comment lines — only "data:" carries payload
		}
	}
}

// Send posts a Request-carrying Event as an individual HTTP call; any
// other Event kind is rejected since SSE only fans out server→client.
func (c *SSEConn) Send(ctx context.Context, e peerproto.Event) error {
	if e.Kind != peerproto.EventRequest {
		return fmt.Errorf("transport: sse client can only send Request events, got %s", e.Kind)
	}
	body, err := peerproto.EncodeEvent(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = c.header.Clone()
	req.Header.Set("Content-Type", "application/msgpack")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: sse post request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: sse post request: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Receive returns the next event parsed off the SSE stream.
func (c *SSEConn) Receive(ctx context.Context) (peerproto.Event, error) {
	select {
	case <-ctx.Done():
		return peerproto.Event{}, ctx.Err()
	case item, ok := <-c.events:
		if !ok {
			return peerproto.Event{}, fmt.Errorf("transport: sse stream closed")
		}
		return item.event, item.err
	}
}

func (c *SSEConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.body.closer.Close()
}
