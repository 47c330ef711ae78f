package grpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/logger"
)

// ErrRemote wraps errors returned by the remote handler.
var ErrRemote = errors.New("rpc error")

const dialTimeout = 5 * time.Second

// Client calls one server over a single connection, one call at a time.
// A transport failure drops the connection; the next call dials again.
type Client struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	dec    *json.Decoder
	nextID uint64
}

// Dial connects to addr.
func Dial(addr string) (*Client, error) {
	c := &Client{addr: addr}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.addr, err)
	}
	c.conn = conn
	c.dec = json.NewDecoder(bufio.NewReader(conn))
	return nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn, c.dec = nil, nil
	}
}

// Call invokes method with params and decodes the answer into result,
// which may be nil. The ctx deadline bounds the round trip and is sent
// along as the handler's timeout; ctx's request id, if any, tags the
// server's logs. Errors from the handler wrap ErrRemote and leave the
// connection open.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}
	c.nextID++
	req := Request{
		Method:    method,
		ID:        strconv.FormatUint(c.nextID, 10),
		RequestID: logger.RequestID(ctx),
		Params:    raw,
	}
	if hasDeadline {
		req.TimeoutMs = max(time.Until(deadline).Milliseconds(), 1)
	}

	resp, err := c.roundTrip(deadline, req)
	if err != nil {
		c.drop()
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	if result == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

func (c *Client) roundTrip(deadline time.Time, req Request) (Response, error) {
	var resp Response
	if err := c.conn.SetDeadline(deadline); err != nil {
		return resp, err
	}
	line, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return resp, fmt.Errorf("sending request: %w", err)
	}
	if err := c.dec.Decode(&resp); err != nil {
		return resp, fmt.Errorf("reading response: %w", err)
	}
	if resp.ID != req.ID {
		return resp, fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	return resp, nil
}

// Close closes the connection. A later Call dials again.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
	return nil
}
