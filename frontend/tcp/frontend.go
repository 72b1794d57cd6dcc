// Package tcp implements the tracker's control protocol over persistent TCP
// connections, one worker per connection.
package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/FishyDanny/simple-file-sharing-server/frontend"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

// Default config constants.
const (
	DefaultAddr = "0.0.0.0:12000"
)

// Config represents all of the configurable options for the control
// protocol listener.
type Config struct {
	Addr string `yaml:"addr"`

	// MaxConnections caps the number of connections served at once. Zero
	// means no limit. At the cap, the listener stops accepting until a
	// connection ends.
	MaxConnections int `yaml:"max_connections"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"addr":           cfg.Addr,
		"maxConnections": cfg.MaxConnections,
	}
}

// Validate sanity checks values set in a config and returns a new config with
// default values replacing anything that is invalid.
//
// This function warns to the logger when a value is changed.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.Addr == "" {
		validcfg.Addr = DefaultAddr
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "tcp.Addr",
			"provided": cfg.Addr,
			"default":  validcfg.Addr,
		})
	}

	if cfg.MaxConnections < 0 {
		validcfg.MaxConnections = 0
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "tcp.MaxConnections",
			"provided": cfg.MaxConnections,
			"default":  validcfg.MaxConnections,
		})
	}

	return validcfg
}

// Frontend holds the state of the control protocol listener.
type Frontend struct {
	listener net.Listener
	closing  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	slots    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	logic frontend.TrackerLogic
	Config
}

// NewFrontend binds the configured address and asynchronously serves
// control connections.
func NewFrontend(logic frontend.TrackerLogic, provided Config) (*Frontend, error) {
	cfg := provided.Validate()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	f := &Frontend{
		listener: ln,
		closing:  make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
		logic:    logic,
		Config:   cfg,
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())
	if cfg.MaxConnections > 0 {
		f.slots = make(chan struct{}, cfg.MaxConnections)
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.serve(); err != nil {
			log.Error("failed while serving tcp", log.Err(err))
		}
	}()

	return f, nil
}

// Addr returns the address the Frontend listens on.
func (f *Frontend) Addr() net.Addr {
	return f.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for all
// workers to finish their cleanup.
func (f *Frontend) Stop() stop.Result {
	select {
	case <-f.closing:
		return stop.AlreadyStopped
	default:
	}

	c := make(stop.Channel)
	go func() {
		var err error
		f.stopOnce.Do(func() {
			close(f.closing)
			f.cancel()
			err = f.listener.Close()

			f.mu.Lock()
			for conn := range f.conns {
				conn.Close()
			}
			f.mu.Unlock()
		})
		f.wg.Wait()
		c.Done(err)
	}()

	return c.Result()
}

func (f *Frontend) acquire() bool {
	if f.slots == nil {
		return true
	}
	select {
	case f.slots <- struct{}{}:
		return true
	case <-f.closing:
		return false
	}
}

func (f *Frontend) release() {
	if f.slots != nil {
		<-f.slots
	}
}

// serve blocks while accepting connections until Stop is called or an error
// is returned.
func (f *Frontend) serve() error {
	for {
		if !f.acquire() {
			return nil
		}

		conn, err := f.listener.Accept()
		if err != nil {
			f.release()
			select {
			case <-f.closing:
				return nil
			default:
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}

		if !f.track(conn) {
			conn.Close()
			f.release()
			return nil
		}

		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			defer f.release()
			defer f.untrack(conn)
			f.handleConn(conn)
		}()
	}
}

// track registers conn unless the Frontend is shutting down.
func (f *Frontend) track(conn net.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.closing:
		return false
	default:
	}

	f.conns[conn] = struct{}{}
	promConnectionsCount.Inc()
	return true
}

func (f *Frontend) untrack(conn net.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.conns, conn)
	promConnectionsCount.Dec()
}

// handleConn runs the command loop of one connection. Every way out of the
// loop ends in the same cleanup.
func (f *Frontend) handleConn(conn net.Conn) {
	host, port, err := sharing.SplitHostPort(conn.RemoteAddr())
	if err != nil {
		log.Error("tcp: unreadable remote address", log.Err(err))
		conn.Close()
		return
	}

	c := &frontend.Conn{Host: host, Port: port}
	defer func() {
		f.logic.Disconnect(f.ctx, c)
		conn.Close()
		log.Debug("connection closed", c)
	}()
	log.Debug("connection opened", c)

	r := sharing.NewFrameReader(conn)
	w := sharing.NewFrameWriter(conn)
	for {
		frame, err := r.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !f.stopping() {
				log.Info("tcp: read failed", c, log.Err(err))
			}
			return
		}

		cmd := sharing.ParseCommand(frame)
		start := time.Now()
		out := f.logic.HandleCommand(f.ctx, c, cmd)
		recordCommandDuration(cmd.Kind, out.Err, time.Since(start))

		if out.Err != nil {
			log.Debug("command failed", c, log.Fields{"command": cmd.Kind.String()}, log.Err(out.Err))
		}

		if out.Response != "" {
			if err := w.WriteFrame(out.Response); err != nil {
				log.Info("tcp: write failed", c, log.Err(err))
				return
			}
		}

		if out.Close {
			return
		}
	}
}

func (f *Frontend) stopping() bool {
	select {
	case <-f.closing:
		return true
	default:
		return false
	}
}
