package tcp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FishyDanny/simple-file-sharing-server/middleware"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
	"github.com/FishyDanny/simple-file-sharing-server/storage"
	"github.com/FishyDanny/simple-file-sharing-server/storage/memory"
)

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *sharing.FrameReader
	w    *sharing.FrameWriter
}

func dial(t *testing.T, f *Frontend) *testClient {
	conn, err := net.Dial("tcp", f.Addr().String())
	require.Nil(t, err)
	t.Cleanup(func() { conn.Close() })

	w := sharing.NewFrameWriter(conn)
	w.Delimit = true
	return &testClient{t: t, conn: conn, r: sharing.NewFrameReader(conn), w: w}
}

func (c *testClient) send(frame string) {
	require.Nil(c.t, c.w.WriteFrame(frame))
}

func (c *testClient) expect(frame, response string) {
	c.send(frame)
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := c.r.ReadFrame()
	require.Nil(c.t, err)
	require.Equal(c.t, response, got)
}

func newTestFrontend(t *testing.T, maxConns int) (*Frontend, storage.Store) {
	store, err := memory.New(memory.Config{
		MonitorInterval: time.Minute,
		SessionTimeout:  time.Minute,
	}, storage.TestCredentials)
	require.Nil(t, err)

	f, err := NewFrontend(middleware.NewLogic(store), Config{
		Addr:           "127.0.0.1:0",
		MaxConnections: maxConns,
	})
	require.Nil(t, err)

	t.Cleanup(func() {
		require.Empty(t, f.Stop().Wait())
		require.Empty(t, store.Stop().Wait())
	})
	return f, store
}

func TestValidate(t *testing.T) {
	cfg := Config{MaxConnections: -1}.Validate()
	require.Equal(t, DefaultAddr, cfg.Addr)
	require.Equal(t, 0, cfg.MaxConnections)

	cfg = Config{Addr: "127.0.0.1:1", MaxConnections: 3}.Validate()
	require.Equal(t, Config{Addr: "127.0.0.1:1", MaxConnections: 3}, cfg)
}

func TestPublishAndGet(t *testing.T) {
	f, _ := newTestFrontend(t, 0)

	alice := dial(t, f)
	alice.expect("auth alice alice-pw", sharing.AuthOK)
	alice.expect("port 9000", sharing.PortOK)
	alice.send("hbt")
	alice.expect("pub report.pdf", sharing.PubOK)

	bob := dial(t, f)
	bob.expect("lap", sharing.InputErr)
	bob.expect("auth bob bob-pw", sharing.AuthOK)
	bob.expect("port 9001", sharing.PortOK)
	bob.expect("sch report", "sch report.pdf")
	bob.expect("get report.pdf", "get 127.0.0.1 9000 report.pdf")
	bob.expect("lap", "lap alice")
	bob.expect("lpf", sharing.NoFilesPublished)
	bob.expect("dance", sharing.InputErr)
	bob.expect("xit", sharing.XitResp)

	bob.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := bob.r.ReadFrame()
	require.NotNil(t, err)

	alice.expect("lap", sharing.NoActivePeers)
}

func TestDuplicateLogin(t *testing.T) {
	f, store := newTestFrontend(t, 0)

	first := dial(t, f)
	first.expect("auth alice alice-pw", sharing.AuthOK)

	second := dial(t, f)
	second.expect("auth alice alice-pw", sharing.AuthErr)
	second.expect("port 9000", sharing.PortErr)

	first.expect("port 9000", sharing.PortOK)
	require.True(t, store.Active("alice"))

	// The rejected connection ending must not affect the first login.
	second.conn.Close()
	first.expect("lpf", sharing.NoFilesPublished)
	require.True(t, store.Active("alice"))
}

func TestUnpublish(t *testing.T) {
	f, store := newTestFrontend(t, 0)

	alice := dial(t, f)
	alice.expect("auth alice alice-pw", sharing.AuthOK)
	alice.expect("unp report.pdf", sharing.UnpErr)
	alice.expect("pub report.pdf", sharing.PubOK)
	alice.expect("unp report.pdf", sharing.UnpOK)
	require.Empty(t, store.Files())
}

func TestAbruptDisconnectCleansUp(t *testing.T) {
	f, store := newTestFrontend(t, 0)

	alice := dial(t, f)
	alice.expect("auth alice alice-pw", sharing.AuthOK)
	alice.expect("pub report.pdf", sharing.PubOK)
	alice.conn.Close()

	require.Eventually(t, func() bool {
		return !store.Active("alice") && len(store.Files()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRemovedSessionIsDisconnected(t *testing.T) {
	f, store := newTestFrontend(t, 0)

	alice := dial(t, f)
	alice.expect("auth alice alice-pw", sharing.AuthOK)
	require.True(t, store.Remove("alice"))

	alice.send("lap")
	alice.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := alice.r.ReadFrame()
	require.NotNil(t, err)
}

func TestMaxConnections(t *testing.T) {
	f, _ := newTestFrontend(t, 1)

	alice := dial(t, f)
	alice.expect("auth alice alice-pw", sharing.AuthOK)

	bob := dial(t, f)
	bob.send("auth bob bob-pw")
	bob.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err := bob.r.ReadFrame()
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())

	alice.expect("xit", sharing.XitResp)

	bob.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	bob.r = sharing.NewFrameReader(bob.conn)
	got, err := bob.r.ReadFrame()
	require.Nil(t, err)
	require.Equal(t, sharing.AuthOK, got)
}

func TestStopClosesConnections(t *testing.T) {
	store, err := memory.New(memory.Config{}, storage.TestCredentials)
	require.Nil(t, err)
	defer func() { store.Stop().Wait() }()

	f, err := NewFrontend(middleware.NewLogic(store), Config{Addr: "127.0.0.1:0"})
	require.Nil(t, err)

	alice := dial(t, f)
	alice.expect("auth alice alice-pw", sharing.AuthOK)

	require.Empty(t, f.Stop().Wait())
	require.False(t, store.Active("alice"))
	require.Equal(t, 0, len(f.Stop().Wait()))
}
