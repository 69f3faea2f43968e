// Package client talks to a pipekv server over one long-lived connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/ASHISH26940/pipekv/internal/protocol"
)

var (
	// ErrNotFound matches responses with StatusNotFound.
	ErrNotFound = errors.New("client: not found")
	// ErrInvalid matches responses with StatusInvalid.
	ErrInvalid = errors.New("client: invalid request")
	// ErrServer matches responses with StatusError.
	ErrServer = errors.New("client: server error")
	// ErrBroken is returned once a transport failure has left the stream
	// unusable. Dial a new Client to continue.
	ErrBroken = errors.New("client: connection broken")
)

// ResponseError carries a non-OK response back to the caller.
type ResponseError struct {
	Status  protocol.Status
	Reason  protocol.Reason
	Message string
}

func (e *ResponseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Is lets errors.Is match the status sentinels.
func (e *ResponseError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == protocol.StatusNotFound
	case ErrInvalid:
		return e.Status == protocol.StatusInvalid
	case ErrServer:
		return e.Status == protocol.StatusError
	}
	return false
}

// Client issues one request at a time; concurrent callers queue on a mutex.
type Client struct {
	// Strategy is sent with every record request. Empty selects the
	// server default.
	Strategy string

	mu       sync.Mutex
	conn     net.Conn
	maxFrame uint32
	err      error // first transport failure; set once
}

// Dial connects to the server endpoint.
func Dial(ctx context.Context, network, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, maxFrame: protocol.DefaultMaxFrame}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends req and waits for its response. Transport failures are returned
// as errors; a non-OK response is not. A transport failure closes the
// connection and every later call fails with ErrBroken.
func (c *Client) Do(req *protocol.Request) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroken, c.err)
	}
	if err := protocol.WriteRequest(c.conn, req); err != nil {
		return nil, c.fail(fmt.Errorf("send request: %w", err))
	}
	resp, err := protocol.ReadResponse(c.conn, c.maxFrame)
	if err != nil {
		return nil, c.fail(fmt.Errorf("read response: %w", err))
	}
	return resp, nil
}

func (c *Client) fail(err error) error {
	c.err = err
	c.conn.Close()
	return err
}

// Insert adds a new record.
func (c *Client) Insert(tag int64, value string) error {
	_, err := c.call(protocol.NewInsert(tag, value, c.Strategy))
	return err
}

// Remove deletes a record and returns its last value.
func (c *Client) Remove(tag int64) (string, error) {
	return c.call(protocol.NewRemove(tag, c.Strategy))
}

// Update replaces a record's value.
func (c *Client) Update(tag int64, value string) (string, error) {
	return c.call(protocol.NewUpdate(tag, value, c.Strategy))
}

// Search returns a record's value.
func (c *Client) Search(tag int64) (string, error) {
	return c.call(protocol.NewSearch(tag, c.Strategy))
}

// Save asks the server to write a snapshot to fileName.
func (c *Client) Save(fileName string) (string, error) {
	return c.call(protocol.NewSave(fileName))
}

// Load asks the server to replace its store with the snapshot in fileName.
func (c *Client) Load(fileName string) (string, error) {
	return c.call(protocol.NewLoad(fileName))
}

func (c *Client) call(req *protocol.Request) (string, error) {
	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	if resp.Status != protocol.StatusOK {
		return "", &ResponseError{Status: resp.Status, Reason: resp.Reason, Message: resp.Payload}
	}
	return resp.Payload, nil
}
