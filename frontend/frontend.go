// Package frontend defines the contract between a transport that accepts
// control connections and the logic that answers their commands.
package frontend

import (
	"context"
	"net"
	"strconv"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

// Conn is the per-connection state of the command protocol.
type Conn struct {
	Host string
	Port uint16

	// Session is set once the connection authenticated.
	Session *sharing.Session
}

// Authenticated reports whether the connection completed `auth`.
func (c *Conn) Authenticated() bool { return c.Session != nil }

// Username returns the authenticated username or the empty string.
func (c *Conn) Username() string {
	if c.Session == nil {
		return ""
	}
	return c.Session.Username
}

// LogFields renders the connection as a set of log fields.
func (c *Conn) LogFields() log.Fields {
	return log.Fields{
		"addr":     net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port))),
		"username": c.Username(),
	}
}

// Outcome is the result of handling one command.
type Outcome struct {
	// Response is written back to the peer unless empty.
	Response string

	// Close ends the connection after Response was written.
	Close bool

	// Err records why the command failed, for logging and metrics only.
	Err error
}

// TrackerLogic is the interface used by a frontend to answer commands and to
// clean up after a connection ends.
type TrackerLogic interface {
	// HandleCommand executes cmd on behalf of c.
	HandleCommand(ctx context.Context, c *Conn, cmd sharing.Command) Outcome

	// Disconnect releases everything c holds. Every connection calls it
	// exactly once, however it ended.
	Disconnect(ctx context.Context, c *Conn)
}
