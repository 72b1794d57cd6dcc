// Package middleware implements the tracker's command protocol on top of a
// storage.Store.
package middleware

import (
	"context"

	"github.com/FishyDanny/simple-file-sharing-server/frontend"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
	"github.com/FishyDanny/simple-file-sharing-server/storage"
)

var _ frontend.TrackerLogic = &Logic{}

type handlerFunc func(l *Logic, c *frontend.Conn, cmd sharing.Command) frontend.Outcome

// unauthenticated lists the commands accepted before `auth` succeeded.
var unauthenticated = map[sharing.CommandKind]handlerFunc{
	sharing.Auth:      (*Logic).handleAuth,
	sharing.Port:      (*Logic).rejectPort,
	sharing.Heartbeat: (*Logic).ignore,
	sharing.Exit:      (*Logic).handleExit,
}

// authenticated lists the commands accepted after `auth` succeeded.
var authenticated = map[sharing.CommandKind]handlerFunc{
	sharing.Auth:      (*Logic).rejectAuth,
	sharing.Port:      (*Logic).handlePort,
	sharing.Heartbeat: (*Logic).handleHeartbeat,
	sharing.Get:       (*Logic).handleGet,
	sharing.ListPeers: (*Logic).handleListPeers,
	sharing.ListFiles: (*Logic).handleListFiles,
	sharing.Publish:   (*Logic).handlePublish,
	sharing.Search:    (*Logic).handleSearch,
	sharing.Unpublish: (*Logic).handleUnpublish,
	sharing.Exit:      (*Logic).handleExit,
}

// NewLogic creates a new instance of a TrackerLogic answering commands from
// the provided store.
func NewLogic(store storage.Store) *Logic {
	return &Logic{store: store}
}

// Logic is an implementation of the TrackerLogic that dispatches each
// command to a handler through a table keyed by CommandKind.
type Logic struct {
	store storage.Store
}

// HandleCommand executes cmd on behalf of c.
func (l *Logic) HandleCommand(_ context.Context, c *frontend.Conn, cmd sharing.Command) frontend.Outcome {
	table := unauthenticated
	if c.Authenticated() {
		// The session may have been evicted, or replaced by a newer login,
		// while this connection stayed open.
		current, ok := l.store.Lookup(c.Username())
		if !ok || current.ID != c.Session.ID {
			return frontend.Outcome{Close: true, Err: sharing.ErrNotAuthenticated}
		}
		table = authenticated
	}

	h, ok := table[cmd.Kind]
	if !ok {
		return frontend.Outcome{Response: sharing.InputErr, Err: sharing.ErrInvalidRequest}
	}
	return h(l, c, cmd)
}

// Disconnect removes the session held by c, if any.
func (l *Logic) Disconnect(_ context.Context, c *frontend.Conn) {
	if !c.Authenticated() {
		return
	}
	if l.store.Release(*c.Session) {
		log.Info("session closed", c)
	}
	c.Session = nil
}

// Stop stops the underlying store.
func (l *Logic) Stop() stop.Result {
	return l.store.Stop()
}

func failed(resp string, err error) frontend.Outcome {
	return frontend.Outcome{Response: resp, Err: err}
}

func succeeded(resp string) frontend.Outcome {
	return frontend.Outcome{Response: resp}
}

func (l *Logic) handleAuth(c *frontend.Conn, cmd sharing.Command) frontend.Outcome {
	if !cmd.WellFormed() {
		return failed(sharing.AuthErr, sharing.ErrInvalidRequest)
	}

	session, err := l.store.Authenticate(cmd.Arg(0), cmd.Arg(1), c.Host, c.Port)
	if err != nil {
		return failed(sharing.AuthErr, err)
	}

	c.Session = &session
	log.Info("session opened", session)
	return succeeded(sharing.AuthOK)
}

func (l *Logic) rejectAuth(_ *frontend.Conn, _ sharing.Command) frontend.Outcome {
	return failed(sharing.AuthErr, sharing.ErrAlreadyActive)
}

func (l *Logic) rejectPort(_ *frontend.Conn, _ sharing.Command) frontend.Outcome {
	return failed(sharing.PortErr, sharing.ErrNotAuthenticated)
}

func (l *Logic) ignore(_ *frontend.Conn, _ sharing.Command) frontend.Outcome {
	return frontend.Outcome{}
}

func (l *Logic) handlePort(c *frontend.Conn, cmd sharing.Command) frontend.Outcome {
	if !cmd.WellFormed() {
		return failed(sharing.PortErr, sharing.ErrInvalidRequest)
	}
	port, err := sharing.ParsePort(cmd.Arg(0))
	if err != nil {
		return failed(sharing.PortErr, sharing.ErrInvalidRequest)
	}
	if err := l.store.SetUploadPort(c.Username(), port); err != nil {
		return failed(sharing.PortErr, err)
	}

	c.Session.UploadPort = port
	return succeeded(sharing.PortOK)
}

func (l *Logic) handleHeartbeat(c *frontend.Conn, _ sharing.Command) frontend.Outcome {
	// The session was evicted; close the connection instead of ignoring it.
	if !l.store.RecordHeartbeat(c.Username()) {
		return frontend.Outcome{Close: true, Err: sharing.ErrNotAuthenticated}
	}
	log.Debug("received heartbeat", c)
	return frontend.Outcome{}
}

func (l *Logic) handleGet(c *frontend.Conn, cmd sharing.Command) frontend.Outcome {
	if !cmd.WellFormed() {
		return failed(sharing.GetErr, sharing.ErrInvalidRequest)
	}

	filename := cmd.Arg(0)
	publisher, err := l.store.ResolvePublisher(filename, c.Username())
	if err != nil {
		return failed(sharing.GetErr, err)
	}
	return succeeded(sharing.GetResponse(publisher.Host, publisher.UploadPort, filename))
}

func (l *Logic) handleListPeers(c *frontend.Conn, _ sharing.Command) frontend.Outcome {
	return succeeded(sharing.ListResponse(sharing.ListPeers, l.store.ListPeers(c.Username())))
}

func (l *Logic) handleListFiles(c *frontend.Conn, _ sharing.Command) frontend.Outcome {
	return succeeded(sharing.ListResponse(sharing.ListFiles, l.store.ListPublished(c.Username())))
}

func (l *Logic) handlePublish(c *frontend.Conn, cmd sharing.Command) frontend.Outcome {
	if !cmd.WellFormed() {
		return failed(sharing.PubErr, sharing.ErrInvalidRequest)
	}
	if err := l.store.Publish(c.Username(), cmd.Arg(0)); err != nil {
		return failed(sharing.PubErr, err)
	}
	return succeeded(sharing.PubOK)
}

func (l *Logic) handleSearch(c *frontend.Conn, cmd sharing.Command) frontend.Outcome {
	if !cmd.WellFormed() {
		return failed(sharing.NoFilesFound, sharing.ErrInvalidRequest)
	}
	found, err := l.store.Search(cmd.Arg(0), c.Username())
	if err != nil {
		return failed(sharing.NoFilesFound, err)
	}
	return succeeded(sharing.ListResponse(sharing.Search, found))
}

func (l *Logic) handleUnpublish(c *frontend.Conn, cmd sharing.Command) frontend.Outcome {
	if !cmd.WellFormed() {
		return failed(sharing.UnpErr, sharing.ErrInvalidRequest)
	}
	if err := l.store.Unpublish(c.Username(), cmd.Arg(0)); err != nil {
		return failed(sharing.UnpErr, err)
	}
	return succeeded(sharing.UnpOK)
}

func (l *Logic) handleExit(_ *frontend.Conn, _ sharing.Command) frontend.Outcome {
	return frontend.Outcome{Response: sharing.XitResp, Close: true}
}
