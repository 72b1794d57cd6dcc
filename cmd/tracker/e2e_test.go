package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FishyDanny/simple-file-sharing-server/frontend/tcp"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/credential"
)

func startRun(t *testing.T) *Run {
	creds := filepath.Join(t.TempDir(), "credentials.txt")
	require.Nil(t, os.WriteFile(creds, []byte("alice alice-pw\nbob bob-pw\n"), 0o644))

	r, err := NewRun(Config{
		Config:      tcp.Config{Addr: "127.0.0.1:0"},
		Credentials: credential.Config{Path: creds},
	})
	require.Nil(t, err)
	t.Cleanup(func() { require.Nil(t, r.Stop()) })
	return r
}

func TestEndToEnd(t *testing.T) {
	r := startRun(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"e2e", "--addr", r.Addr().String()})
	require.Nil(t, cmd.Execute())
}

func TestEndToEndBadUsers(t *testing.T) {
	r := startRun(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"e2e", "--addr", r.Addr().String(), "--user", "alice:alice-pw"})
	require.NotNil(t, cmd.Execute())

	cmd = newRootCmd()
	cmd.SetArgs([]string{"e2e", "--addr", r.Addr().String(), "--user", "alice:wrong,bob:bob-pw"})
	require.NotNil(t, cmd.Execute())
}
