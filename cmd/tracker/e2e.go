package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/peer"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
	"github.com/FishyDanny/simple-file-sharing-server/transfer"
)

// EndToEndRunCmdFunc implements a Cobra command that runs the end-to-end test
// suite against a running tracker.
func EndToEndRunCmdFunc(cmd *cobra.Command, args []string) error {
	delay, err := cmd.Flags().GetDuration("delay")
	if err != nil {
		return err
	}

	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}

	users, err := cmd.Flags().GetStringSlice("user")
	if err != nil {
		return err
	}
	if len(users) != 2 {
		return errors.New("exactly two users are required")
	}

	log.Info("testing " + addr + "...")
	if err := test(addr, users[0], users[1], delay); err != nil {
		return err
	}
	log.Info("success")

	return nil
}

type e2ePeer struct {
	name   string
	dir    string
	client *peer.Client
}

func login(addr, user string) (*e2ePeer, error) {
	parts := strings.SplitN(user, ":", 2)
	if len(parts) != 2 {
		return nil, errors.Errorf("malformed user %q", user)
	}

	dir, err := os.MkdirTemp("", "fileshare-e2e-")
	if err != nil {
		return nil, err
	}

	client, err := peer.Dial(context.Background(), addr)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	p := &e2ePeer{name: parts[0], dir: dir, client: client}
	if err := client.Authenticate(parts[0], parts[1]); err != nil {
		p.close()
		return nil, errors.Wrap(err, "failed to authenticate "+parts[0])
	}
	client.StartHeartbeat(sharing.HeartbeatInterval)
	return p, nil
}

func (p *e2ePeer) close() {
	p.client.Request(sharing.Exit.String())
	p.client.Stop().Wait()
	os.RemoveAll(p.dir)
}

func expect(c *peer.Client, frame, want string) error {
	got, err := c.Request(frame)
	if err != nil {
		return err
	}
	if got != want {
		return errors.Errorf("%s: expected %q, got %q", frame, want, got)
	}
	return nil
}

func test(addr, userA, userB string, delay time.Duration) error {
	a, err := login(addr, userA)
	if err != nil {
		return err
	}
	defer a.close()

	uploads, err := transfer.Listen(":0", a.dir)
	if err != nil {
		return err
	}
	defer func() { uploads.Stop().Wait() }()
	if err := a.client.RegisterPort(uploads.Port()); err != nil {
		return err
	}

	data := make([]byte, 3*transfer.ChunkSize+17)
	if _, err := rand.Read(data); err != nil {
		return err
	}
	filename := "e2e-" + uuid.NewString() + ".bin"
	if err := os.WriteFile(filepath.Join(a.dir, filename), data, 0o644); err != nil {
		return err
	}

	if err := expect(a.client, "pub "+filename, sharing.PubOK); err != nil {
		return err
	}

	b, err := login(addr, userB)
	if err != nil {
		return err
	}
	defer b.close()

	time.Sleep(delay)

	if err := expect(b.client, "sch "+filename, "sch "+filename); err != nil {
		return err
	}

	resp, err := b.client.Request("get " + filename)
	if err != nil {
		return err
	}
	host, port, got, err := sharing.ParseGetResponse(resp)
	if err != nil {
		return errors.Errorf("get: unexpected response %q", resp)
	}
	if got != filename || port != uploads.Port() {
		return errors.Errorf("get: expected port %d for %s, got %q", uploads.Port(), filename, resp)
	}

	downloads := transfer.NewDownloader(b.dir)
	defer func() { downloads.Stop().Wait() }()
	res := downloads.Fetch(context.Background(), transfer.Request{
		Host:     host,
		Port:     port,
		Filename: filename,
	})
	if res.Err != nil {
		return errors.Wrap(res.Err, "download failed")
	}

	downloaded, err := os.ReadFile(res.Path)
	if err != nil {
		return err
	}
	if !bytes.Equal(data, downloaded) {
		return errors.New("downloaded file differs from the published one")
	}

	if err := expect(a.client, "unp "+filename, sharing.UnpOK); err != nil {
		return err
	}
	return expect(b.client, "get "+filename, sharing.GetErr)
}
