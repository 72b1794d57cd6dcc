package transfer

import (
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

// Listener accepts transfer connections and serves the sending half of the
// handshake for files in its directory, one worker per connection.
type Listener struct {
	ln      net.Listener
	dir     string
	closing chan struct{}
	wg      sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Listen binds addr and serves files from dir. Use port 0 for an ephemeral
// port.
func Listen(addr, dir string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		ln:      ln,
		dir:     dir,
		closing: make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.serve(); err != nil {
			log.Error("failed while serving uploads", log.Err(err))
		}
	}()

	log.Debug("upload listener started", log.Fields{"addr": ln.Addr().String(), "dir": dir})
	return l, nil
}

// Addr returns the address the Listener is bound to.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Port returns the port the Listener is bound to.
func (l *Listener) Port() uint16 {
	_, port, err := sharing.SplitHostPort(l.ln.Addr())
	if err != nil {
		return 0
	}
	return port
}

// Stop closes the listener and any transfer in progress.
func (l *Listener) Stop() stop.Result {
	l.mu.Lock()
	select {
	case <-l.closing:
		l.mu.Unlock()
		return stop.AlreadyStopped
	default:
	}
	close(l.closing)
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()

	c := make(stop.Channel)
	go func() {
		err := l.ln.Close()
		l.wg.Wait()
		c.Done(err)
	}()
	return c.Result()
}

func (l *Listener) serve() error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closing:
				return nil
			default:
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}

		l.mu.Lock()
		select {
		case <-l.closing:
			l.mu.Unlock()
			conn.Close()
			return nil
		default:
		}
		l.conns[conn] = struct{}{}
		l.wg.Add(1)
		l.mu.Unlock()

		go func() {
			defer l.wg.Done()
			l.handle(conn)

			l.mu.Lock()
			delete(l.conns, conn)
			l.mu.Unlock()
		}()
	}
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	fields := log.Fields{"transfer": uuid.NewString(), "remote": conn.RemoteAddr().String()}
	name, n, err := Send(conn, l.dir)
	fields["filename"] = name
	fields["bytes"] = n
	recordTransfer(Upload, n, err)

	if err != nil {
		log.Info("upload failed", fields, log.Err(err))
		return
	}
	log.Info("upload finished", fields)
}
