// Package memory implements the storage interface for a tracker keeping all
// sessions and published files in process memory.
package memory

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/credential"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
	"github.com/FishyDanny/simple-file-sharing-server/storage"
)

// Name is the name by which this store is registered.
const Name = "memory"

// Default config constants.
const (
	defaultMonitorInterval = 3 * time.Second
	defaultSessionTimeout  = 2 * sharing.HeartbeatInterval
)

// ErrTimeoutTooShort is returned for a SessionTimeout that does not exceed
// the heartbeat cadence of peers.
var ErrTimeoutTooShort = errors.New("session timeout must exceed the heartbeat interval")

// ErrInvalidMonitorInterval is returned for a negative MonitorInterval.
var ErrInvalidMonitorInterval = errors.New("invalid heartbeat monitor interval")

func init() {
	storage.RegisterDriver(Name, driver{})
}

type driver struct{}

func (d driver) NewStore(icfg interface{}, creds credential.Verifier) (storage.Store, error) {
	// Marshal the config back into bytes.
	bytes, err := yaml.Marshal(icfg)
	if err != nil {
		return nil, err
	}

	// Unmarshal the bytes into the proper config type.
	var cfg Config
	err = yaml.Unmarshal(bytes, &cfg)
	if err != nil {
		return nil, err
	}

	return New(cfg, creds)
}

// Config holds the configuration of a memory Store.
type Config struct {
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	SessionTimeout  time.Duration `yaml:"session_timeout"`
}

// LogFields renders the current config as a set of log fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"name":            Name,
		"monitorInterval": cfg.MonitorInterval,
		"sessionTimeout":  cfg.SessionTimeout,
	}
}

// Validate sanity checks values set in a config and returns a new config with
// default values replacing anything that is unset.
func (cfg Config) Validate() (Config, error) {
	validcfg := cfg

	switch {
	case cfg.MonitorInterval < 0:
		return cfg, ErrInvalidMonitorInterval
	case cfg.MonitorInterval == 0:
		validcfg.MonitorInterval = defaultMonitorInterval
		log.Warn("falling back to default configuration", log.Fields{
			"name":     Name + ".MonitorInterval",
			"provided": cfg.MonitorInterval,
			"default":  validcfg.MonitorInterval,
		})
	}

	switch {
	case cfg.SessionTimeout == 0:
		validcfg.SessionTimeout = defaultSessionTimeout
		log.Warn("falling back to default configuration", log.Fields{
			"name":     Name + ".SessionTimeout",
			"provided": cfg.SessionTimeout,
			"default":  validcfg.SessionTimeout,
		})
	case cfg.SessionTimeout <= sharing.HeartbeatInterval:
		return cfg, ErrTimeoutTooShort
	}

	return validcfg, nil
}

// New creates a new Store backed by memory and starts its heartbeat monitor.
func New(provided Config, creds credential.Verifier) (storage.Store, error) {
	cfg, err := provided.Validate()
	if err != nil {
		return nil, err
	}

	s := newStore(cfg, creds, time.Now)
	s.startMonitor()

	return s, nil
}

// startMonitor runs the heartbeat monitor until Stop is called.
func (s *store) startMonitor() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.cfg.MonitorInterval)
		defer t.Stop()
		for {
			select {
			case <-s.closed:
				return
			case <-t.C:
				cutoff := s.now().Add(-s.cfg.SessionTimeout)
				log.Debug("memory: evicting sessions with no heartbeat since", log.Fields{"cutoff": cutoff})
				s.collectGarbage(cutoff)
			}
		}
	}()
}

func newStore(cfg Config, creds credential.Verifier, now func() time.Time) *store {
	return &store{
		cfg:      cfg,
		creds:    creds,
		now:      now,
		sessions: make(map[string]*sessionEntry),
		files:    make(map[string]*fileEntry),
		closed:   make(chan struct{}),
	}
}

type sessionEntry struct {
	sharing.Session
	seq uint64
}

type fileEntry struct {
	seq uint64
	// publishers maps a username to the sequence number it published at.
	publishers map[string]uint64
}

type store struct {
	cfg   Config
	creds credential.Verifier
	now   func() time.Time

	// mu guards every field below. It is the only lock of the store.
	mu       sync.Mutex
	seq      uint64
	sessions map[string]*sessionEntry
	files    map[string]*fileEntry

	closed   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ storage.Store = &store{}

func (s *store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *store) reportCounts() {
	storage.PromSessionsCount.Set(float64(len(s.sessions)))
	storage.PromFilesCount.Set(float64(len(s.files)))
}

func (s *store) Authenticate(username, password, host string, port uint16) (sharing.Session, error) {
	if !s.creds.Verify(username, password) {
		return sharing.Session{}, sharing.ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[username]; ok {
		return sharing.Session{}, sharing.ErrAlreadyActive
	}

	e := &sessionEntry{
		Session: sharing.Session{
			ID:            uuid.NewString(),
			Username:      username,
			Host:          host,
			Port:          port,
			LastHeartbeat: s.now(),
		},
		seq: s.nextSeq(),
	}
	s.sessions[username] = e
	s.reportCounts()

	return e.Session, nil
}

func (s *store) RecordHeartbeat(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[username]
	if !ok {
		return false
	}
	e.LastHeartbeat = s.now()
	return true
}

func (s *store) SetUploadPort(username string, port uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[username]
	if !ok {
		return sharing.ErrNotAuthenticated
	}
	e.UploadPort = port
	return nil
}

func (s *store) Remove(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(username)
}

// removeLocked deletes the session and purges username from every publisher
// set. s.mu must be held.
func (s *store) removeLocked(username string) bool {
	if _, ok := s.sessions[username]; !ok {
		return false
	}
	delete(s.sessions, username)

	for name, f := range s.files {
		if _, ok := f.publishers[username]; !ok {
			continue
		}
		delete(f.publishers, username)
		if len(f.publishers) == 0 {
			delete(s.files, name)
		}
	}

	s.reportCounts()
	return true
}

func (s *store) Release(session sharing.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[session.Username]
	if !ok || e.ID != session.ID {
		return false
	}
	return s.removeLocked(session.Username)
}

func (s *store) Lookup(username string) (sharing.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[username]
	if !ok {
		return sharing.Session{}, false
	}
	return e.Session, true
}

func (s *store) Active(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[username]
	return ok
}

func (s *store) sortedSessions() []*sessionEntry {
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

func (s *store) ListPeers(excluding string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var peers []string
	for _, e := range s.sortedSessions() {
		if e.Username != excluding {
			peers = append(peers, e.Username)
		}
	}
	return peers
}

func (s *store) Sessions() []sharing.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]sharing.Session, 0, len(s.sessions))
	for _, e := range s.sortedSessions() {
		sessions = append(sessions, e.Session)
	}
	return sessions
}

func (s *store) Publish(username, filename string) error {
	if !sharing.ValidFilename(filename) {
		return sharing.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[username]; !ok {
		return sharing.ErrNotAuthenticated
	}

	f, ok := s.files[filename]
	if !ok {
		f = &fileEntry{seq: s.nextSeq(), publishers: make(map[string]uint64)}
		s.files[filename] = f
	}
	if _, ok := f.publishers[username]; !ok {
		f.publishers[username] = s.nextSeq()
	}

	s.reportCounts()
	return nil
}

func (s *store) Unpublish(username, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[filename]
	if !ok {
		return sharing.ErrNotPublished
	}
	if _, ok := f.publishers[username]; !ok {
		return sharing.ErrNotPublished
	}

	delete(f.publishers, username)
	if len(f.publishers) == 0 {
		delete(s.files, filename)
	}

	s.reportCounts()
	return nil
}

// publishersOf returns the publishers of f in publish order. s.mu must be
// held.
func publishersOf(f *fileEntry) []string {
	names := make([]string, 0, len(f.publishers))
	for name := range f.publishers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return f.publishers[names[i]] < f.publishers[names[j]] })
	return names
}

func (s *store) FindPublishers(filename, excluding string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[filename]
	if !ok {
		return nil
	}

	var publishers []string
	for _, name := range publishersOf(f) {
		if name != excluding {
			publishers = append(publishers, name)
		}
	}
	return publishers
}

func (s *store) ResolvePublisher(filename, requester string) (sharing.Session, error) {
	if !sharing.ValidFilename(filename) {
		return sharing.Session{}, sharing.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[filename]
	if !ok {
		return sharing.Session{}, sharing.ErrNoPublisher
	}

	for _, name := range publishersOf(f) {
		if name == requester {
			continue
		}
		e, ok := s.sessions[name]
		if !ok || !e.HasUploadPort() {
			continue
		}
		return e.Session, nil
	}

	return sharing.Session{}, sharing.ErrNoPublisher
}

type namedFile struct {
	name string
	*fileEntry
}

// sortedFiles returns the index in first-publish order. s.mu must be held.
func (s *store) sortedFiles() []namedFile {
	files := make([]namedFile, 0, len(s.files))
	for name, f := range s.files {
		files = append(files, namedFile{name, f})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq < files[j].seq })
	return files
}

func (s *store) Search(substring, requester string) ([]string, error) {
	if substring == "" {
		return nil, sharing.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var found []string
	for _, f := range s.sortedFiles() {
		if _, own := f.publishers[requester]; own {
			continue
		}
		if strings.Contains(f.name, substring) {
			found = append(found, f.name)
		}
	}
	return found, nil
}

func (s *store) ListPublished(username string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var published []string
	for _, f := range s.sortedFiles() {
		if _, ok := f.publishers[username]; ok {
			published = append(published, f.name)
		}
	}
	return published
}

func (s *store) Files() []sharing.PublishedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]sharing.PublishedFile, 0, len(s.files))
	for _, f := range s.sortedFiles() {
		files = append(files, sharing.PublishedFile{Name: f.name, Publishers: publishersOf(f.fileEntry)})
	}
	return files
}

// collectGarbage evicts every session whose last heartbeat is older than
// cutoff and returns the evicted usernames.
func (s *store) collectGarbage(cutoff time.Time) []string {
	start := time.Now()

	s.mu.Lock()
	var evicted []string
	for _, e := range s.sortedSessions() {
		if !e.LastHeartbeat.Before(cutoff) {
			continue
		}
		log.Info("memory: session timed out", e.Session)
		s.removeLocked(e.Username)
		evicted = append(evicted, e.Username)
	}
	s.mu.Unlock()

	storage.PromEvictionsTotal.Add(float64(len(evicted)))
	storage.PromMonitorDurationMilliseconds.Observe(float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond))
	return evicted
}

// Stop stops the heartbeat monitor. The store stays usable afterwards.
func (s *store) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		s.stopOnce.Do(func() { close(s.closed) })
		s.wg.Wait()
		c.Done()
	}()
	return c.Result()
}
