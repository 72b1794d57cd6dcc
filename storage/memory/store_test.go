package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FishyDanny/simple-file-sharing-server/sharing"
	s "github.com/FishyDanny/simple-file-sharing-server/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func createNew() s.Store {
	ps, err := New(Config{MonitorInterval: time.Minute, SessionTimeout: 4 * time.Second}, s.TestCredentials)
	if err != nil {
		panic(err)
	}
	return ps
}

func TestStore(t *testing.T) {
	ps := createNew()
	defer func() { ps.Stop().Wait() }()
	s.TestStore(t, ps)
}

func TestDriverRegistered(t *testing.T) {
	ps, err := s.NewStore(Name, map[interface{}]interface{}{
		"monitor_interval": "1s",
		"session_timeout":  "5s",
	}, s.TestCredentials)
	require.Nil(t, err)
	require.Empty(t, ps.Stop().Wait())

	_, err = s.NewStore("nope", nil, s.TestCredentials)
	require.Equal(t, s.ErrDriverDoesNotExist, err)
}

var validateTests = []struct {
	cfg      Config
	expected Config
	err      error
}{
	{Config{}, Config{defaultMonitorInterval, defaultSessionTimeout}, nil},
	{Config{time.Second, 5 * time.Second}, Config{time.Second, 5 * time.Second}, nil},
	{Config{-time.Second, 5 * time.Second}, Config{}, ErrInvalidMonitorInterval},
	{Config{time.Second, sharing.HeartbeatInterval}, Config{}, ErrTimeoutTooShort},
	{Config{time.Second, time.Second}, Config{}, ErrTimeoutTooShort},
}

func TestValidate(t *testing.T) {
	for _, tt := range validateTests {
		got, err := tt.cfg.Validate()
		require.Equal(t, tt.err, err)
		if err == nil {
			require.Equal(t, tt.expected, got)
		}
	}
	require.True(t, defaultSessionTimeout > sharing.HeartbeatInterval)
}

func TestCollectGarbage(t *testing.T) {
	clock := newFakeClock()
	ps := newStore(Config{time.Minute, 4 * time.Second}, s.TestCredentials, clock.Now)

	_, err := ps.Authenticate("alice", "alice-pw", "10.0.0.1", 1)
	require.Nil(t, err)
	require.Nil(t, ps.Publish("alice", "report.pdf"))
	_, err = ps.Authenticate("bob", "bob-pw", "10.0.0.2", 2)
	require.Nil(t, err)

	clock.Advance(3 * time.Second)
	require.True(t, ps.RecordHeartbeat("bob"))
	clock.Advance(2 * time.Second)

	// alice is 5s old, bob 2s old.
	evicted := ps.collectGarbage(clock.Now().Add(-4 * time.Second))
	require.Equal(t, []string{"alice"}, evicted)
	require.Empty(t, ps.ListPeers("bob"))
	require.Empty(t, ps.Files())

	// A heartbeat exactly at the cutoff is kept.
	evicted = ps.collectGarbage(clock.Now().Add(-2 * time.Second))
	require.Empty(t, evicted)
	require.True(t, ps.Active("bob"))
}

func TestMonitorEvicts(t *testing.T) {
	clock := newFakeClock()
	ps := newStore(Config{10 * time.Millisecond, 4 * time.Second}, s.TestCredentials, clock.Now)
	ps.startMonitor()
	defer func() { ps.Stop().Wait() }()

	_, err := ps.Authenticate("alice", "alice-pw", "10.0.0.1", 1)
	require.Nil(t, err)
	_, err = ps.Authenticate("bob", "bob-pw", "10.0.0.2", 2)
	require.Nil(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{"alice"}, ps.ListPeers("bob"))

	clock.Advance(3 * time.Second)
	ps.RecordHeartbeat("bob")
	clock.Advance(3 * time.Second)

	require.Eventually(t, func() bool {
		return !ps.Active("alice")
	}, time.Second, 10*time.Millisecond)
	require.Empty(t, ps.ListPeers("bob"))
	require.True(t, ps.Active("bob"))
}

func TestConcurrentAuthenticate(t *testing.T) {
	ps := newStore(Config{time.Minute, 4 * time.Second}, s.TestCredentials, time.Now)

	var wg sync.WaitGroup
	results := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			_, err := ps.Authenticate("alice", "alice-pw", "10.0.0.1", port)
			results <- err
		}(uint16(1000 + i))
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch err {
		case nil:
			ok++
		case sharing.ErrAlreadyActive:
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 15, dup)
}

func TestPublishIdempotent(t *testing.T) {
	ps := newStore(Config{time.Minute, 4 * time.Second}, s.TestCredentials, time.Now)
	_, err := ps.Authenticate("alice", "alice-pw", "10.0.0.1", 1)
	require.Nil(t, err)

	require.Nil(t, ps.Publish("alice", "report.pdf"))
	require.Nil(t, ps.Publish("alice", "report.pdf"))

	files := ps.Files()
	require.Len(t, files, 1)
	require.Equal(t, []string{"alice"}, files[0].Publishers)
}
