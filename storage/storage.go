// Package storage defines the shared tracker state: the Session Registry and
// the File Index, together with a registry of drivers implementing them.
package storage

import (
	"errors"
	"sync"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/credential"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

var (
	driversM sync.RWMutex
	drivers  = make(map[string]Driver)
)

// Driver is the interface used to initialize a new type of Store.
type Driver interface {
	NewStore(cfg interface{}, creds credential.Verifier) (Store, error)
}

// ErrDriverDoesNotExist is the error returned by NewStore when a store
// driver with that name does not exist.
var ErrDriverDoesNotExist = errors.New("store driver with that name does not exist")

// Store is the single synchronization boundary around the Session Registry
// and the File Index. Every method runs atomically with respect to every
// other method.
type Store interface {
	// Authenticate creates a Session for username after checking its
	// password.
	//
	// Returns sharing.ErrInvalidCredentials for an unknown user or a wrong
	// password and sharing.ErrAlreadyActive if the user already has a live
	// Session.
	Authenticate(username, password, host string, port uint16) (sharing.Session, error)

	// RecordHeartbeat refreshes the heartbeat of username's Session.
	// It reports false, and does nothing else, if there is no live Session.
	RecordHeartbeat(username string) bool

	// SetUploadPort stores the port peers dial to download from username.
	//
	// Returns sharing.ErrNotAuthenticated if there is no live Session.
	SetUploadPort(username string, port uint16) error

	// Remove deletes username's Session and withdraws every file it
	// published. It reports whether a Session existed.
	Remove(username string) bool

	// Release removes session only if it is still the live Session of its
	// user, so a stale connection never tears down a newer login.
	// It reports whether session was removed.
	Release(session sharing.Session) bool

	// Active reports whether username has a live Session.
	Active(username string) bool

	// Lookup returns the live Session of username.
	Lookup(username string) (sharing.Session, bool)

	// ListPeers returns every live username except excluding, in
	// authentication order.
	ListPeers(excluding string) []string

	// Sessions returns a snapshot of all live Sessions in authentication
	// order.
	Sessions() []sharing.Session

	// Publish adds username to the publishers of filename.
	// Publishing the same pair twice has no further effect.
	//
	// Returns sharing.ErrInvalidRequest for an empty or malformed filename
	// and sharing.ErrNotAuthenticated if username has no live Session.
	Publish(username, filename string) error

	// Unpublish removes username from the publishers of filename, deleting
	// the entry once nobody publishes it.
	//
	// Returns sharing.ErrNotPublished if username does not publish filename.
	Unpublish(username, filename string) error

	// FindPublishers returns the publishers of filename other than
	// excluding, in publish order.
	FindPublishers(filename, excluding string) []string

	// ResolvePublisher returns the Session of the first publisher of
	// filename, other than requester, that is live and registered an
	// upload port.
	//
	// Returns sharing.ErrInvalidRequest for a malformed filename and
	// sharing.ErrNoPublisher if no such publisher exists.
	ResolvePublisher(filename, requester string) (sharing.Session, error)

	// Search returns every filename containing substring that requester
	// does not publish itself, in first-publish order.
	//
	// Returns sharing.ErrInvalidRequest for an empty substring.
	Search(substring, requester string) ([]string, error)

	// ListPublished returns the filenames username publishes, in
	// first-publish order.
	ListPublished(username string) []string

	// Files returns a snapshot of the File Index in first-publish order.
	Files() []sharing.PublishedFile

	stop.Stopper
}

// RegisterDriver makes a Driver available by the provided name.
//
// If called twice with the same name, the name is blank, or if the provided
// Driver is nil, this function panics.
func RegisterDriver(name string, d Driver) {
	if name == "" {
		panic("storage: could not register a Driver with an empty name")
	}
	if d == nil {
		panic("storage: could not register a nil Driver")
	}

	driversM.Lock()
	defer driversM.Unlock()

	if _, dup := drivers[name]; dup {
		panic("storage: RegisterDriver called twice for " + name)
	}

	drivers[name] = d
}

// NewStore attempts to initialize a new Store given a name from the list of
// registered Drivers.
//
// If a driver does not exist, returns ErrDriverDoesNotExist.
func NewStore(name string, cfg interface{}, creds credential.Verifier) (Store, error) {
	driversM.RLock()
	defer driversM.RUnlock()

	d, ok := drivers[name]
	if !ok {
		return nil, ErrDriverDoesNotExist
	}

	return d.NewStore(cfg, creds)
}
