// Package peer implements the peer side of the control protocol: the
// connection to the tracker, the heartbeat emitter and the interactive
// console that ties the tracker to the transfer workers.
package peer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

// Errors returned by Client.
var (
	ErrAuthRejected       = sharing.ClientError("authentication rejected")
	ErrPortRejected       = sharing.ClientError("upload port rejected")
	ErrUnexpectedResponse = sharing.ClientError("unexpected response from tracker")
)

// Client is a control connection to the tracker. Requests are answered in
// order, one at a time; heartbeats may be sent concurrently.
type Client struct {
	conn net.Conn
	r    *sharing.FrameReader
	w    *sharing.FrameWriter

	reqMu sync.Mutex

	closing  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Dial connects to the tracker at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to tracker")
	}
	return NewClient(conn), nil
}

// NewClient wraps an established control connection.
func NewClient(conn net.Conn) *Client {
	w := sharing.NewFrameWriter(conn)
	w.Delimit = true
	return &Client{
		conn:    conn,
		r:       sharing.NewFrameReader(conn),
		w:       w,
		closing: make(chan struct{}),
	}
}

// Send writes a frame that gets no response.
func (c *Client) Send(frame string) error {
	return c.w.WriteFrame(frame)
}

// Request writes a frame and returns the tracker's response.
func (c *Client) Request(frame string) (string, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.w.WriteFrame(frame); err != nil {
		return "", errors.Wrap(err, "failed to send request")
	}
	resp, err := c.r.ReadFrame()
	if err != nil {
		return "", errors.Wrap(err, "failed to read response")
	}
	return resp, nil
}

// Authenticate logs in as username.
func (c *Client) Authenticate(username, password string) error {
	resp, err := c.Request(sharing.AuthCommand(username, password))
	if err != nil {
		return err
	}

	switch resp {
	case sharing.AuthOK:
		return nil
	case sharing.AuthErr:
		return ErrAuthRejected
	default:
		return errors.Wrap(ErrUnexpectedResponse, resp)
	}
}

// RegisterPort tells the tracker where this peer accepts transfers.
func (c *Client) RegisterPort(port uint16) error {
	resp, err := c.Request(sharing.PortCommand(port))
	if err != nil {
		return err
	}

	switch resp {
	case sharing.PortOK:
		return nil
	case sharing.PortErr:
		return ErrPortRejected
	default:
		return errors.Wrap(ErrUnexpectedResponse, resp)
	}
}

// StartHeartbeat sends `hbt` every interval until the Client is stopped.
func (c *Client) StartHeartbeat(interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-c.closing:
				return
			case <-t.C:
				if err := c.Send(sharing.Heartbeat.String()); err != nil {
					log.Info("failed to send heartbeat", log.Err(err))
					return
				}
				log.Debug("sent heartbeat")
			}
		}
	}()
}

// Stop closes the connection and the heartbeat emitter.
func (c *Client) Stop() stop.Result {
	ch := make(stop.Channel)
	go func() {
		var err error
		c.stopOnce.Do(func() {
			close(c.closing)
			err = c.conn.Close()
		})
		c.wg.Wait()
		ch.Done(err)
	}()
	return ch.Result()
}
