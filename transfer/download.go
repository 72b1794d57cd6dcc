package transfer

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
)

// Request identifies a file offered by a publisher, as returned by `get`.
type Request struct {
	Host     string
	Port     uint16
	Filename string
}

// Addr returns the publisher's upload address.
func (r Request) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

// Result is the outcome of one download.
type Result struct {
	ID string
	Request

	// Path is the destination file, empty if none was created.
	Path     string
	Received int64
	Err      error
}

// LogFields renders the result as a set of log fields.
func (r Result) LogFields() log.Fields {
	fields := log.Fields{
		"transfer": r.ID,
		"addr":     r.Addr(),
		"filename": r.Filename,
		"path":     r.Path,
		"bytes":    r.Received,
	}
	if r.Err != nil {
		fields["error"] = r.Err.Error()
	}
	return fields
}

// Downloader runs download workers writing into a single directory.
type Downloader struct {
	dir    string
	dialer net.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDownloader creates a Downloader that stores files in dir.
func NewDownloader(dir string) *Downloader {
	d := &Downloader{dir: dir}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Go starts a worker downloading req and calls done with its result.
func (d *Downloader) Go(req Request, done func(Result)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		res := d.Fetch(d.ctx, req)
		if done != nil {
			done(res)
		}
	}()
}

// Fetch downloads req and blocks until the transfer ended. Cancelling ctx
// aborts the transfer.
func (d *Downloader) Fetch(ctx context.Context, req Request) (res Result) {
	res = Result{ID: uuid.NewString(), Request: req}
	defer func() {
		recordTransfer(Download, res.Received, res.Err)
		if res.Err != nil {
			log.Info("download failed", res)
		} else {
			log.Info("download finished", res)
		}
	}()

	conn, err := d.dialer.DialContext(ctx, "tcp", req.Addr())
	if err != nil {
		res.Err = errors.Wrap(err, "failed to connect to publisher")
		return
	}
	defer conn.Close()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-finished:
		}
	}()

	res.Path, res.Received, res.Err = Receive(conn, req.Filename, d.dir)
	return
}

// Stop aborts running downloads and waits for their workers.
func (d *Downloader) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		d.cancel()
		d.wg.Wait()
		c.Done()
	}()
	return c.Result()
}
