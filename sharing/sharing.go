// Package sharing implements the types shared by the tracker and its peers:
// sessions, the control-channel commands and their literal responses, and
// the framing used on control and transfer connections.
package sharing

import (
	"net"
	"strconv"
	"time"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
)

// HeartbeatInterval is the cadence at which peers send `hbt` to the tracker.
// Any session timeout configured on the tracker must be strictly larger.
const HeartbeatInterval = 2 * time.Second

// ClientError represents an error whose meaning is exposed to the peer on the
// other end of a control or transfer connection.
type ClientError string

// Error implements the error interface for ClientError.
func (c ClientError) Error() string { return string(c) }

// Errors returned by the Session Registry and File Index.
var (
	ErrInvalidCredentials = ClientError("invalid credentials")
	ErrAlreadyActive      = ClientError("user already has an active session")
	ErrNotAuthenticated   = ClientError("no active session")
	ErrInvalidRequest     = ClientError("invalid request")
	ErrNotPublished       = ClientError("file not published by user")
	ErrNoPublisher        = ClientError("no other peer publishes the file")
)

// Session is the tracker-side record of one authenticated peer.
type Session struct {
	// ID distinguishes successive logins of the same user.
	ID       string
	Username string

	// Host and Port identify the control connection.
	Host string
	Port uint16

	// UploadPort is zero until the peer registered it with `port`.
	UploadPort uint16

	LastHeartbeat time.Time
}

// HasUploadPort reports whether the peer registered its upload port.
func (s Session) HasUploadPort() bool { return s.UploadPort != 0 }

// UploadAddr returns the host:port peers dial to download from s.
func (s Session) UploadAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.UploadPort)))
}

// LogFields renders the session as a set of log fields.
func (s Session) LogFields() log.Fields {
	return log.Fields{
		"session":       s.ID,
		"username":      s.Username,
		"addr":          net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port))),
		"uploadPort":    s.UploadPort,
		"lastHeartbeat": s.LastHeartbeat,
	}
}

// PublishedFile is one entry of the File Index.
type PublishedFile struct {
	Name       string
	Publishers []string
}

// LogFields renders the file as a set of log fields.
func (f PublishedFile) LogFields() log.Fields {
	return log.Fields{
		"filename":   f.Name,
		"publishers": f.Publishers,
	}
}

// ValidFilename reports whether name can be published: a single non-empty
// token without whitespace.
func ValidFilename(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			return false
		}
	}
	return true
}

// SplitHostPort splits a network address into a host and a numeric port.
func SplitHostPort(addr net.Addr) (string, uint16, error) {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(p), nil
}
