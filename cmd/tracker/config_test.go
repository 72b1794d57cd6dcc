package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FishyDanny/simple-file-sharing-server/frontend/tcp"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/credential"
	"github.com/FishyDanny/simple-file-sharing-server/storage/memory"
)

const exampleConfig = `
tracker:
  addr: "127.0.0.1:12000"
  max_connections: 8
  metrics_addr: ""
  credentials:
    path: "$FILESHARE_TEST_DIR/credentials.txt"
  storage:
    name: memory
    config:
      monitor_interval: 3s
      session_timeout: 4s
  mdns:
    enabled: true
`

func TestParseConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.yaml")
	require.Nil(t, os.WriteFile(path, []byte(exampleConfig), 0o644))
	t.Setenv("FILESHARE_TEST_DIR", dir)

	_, err := ParseConfigFile("")
	require.NotNil(t, err)

	cfgFile, err := ParseConfigFile("$FILESHARE_TEST_DIR/tracker.yaml")
	require.Nil(t, err)

	cfg := cfgFile.Tracker
	require.Equal(t, tcp.Config{Addr: "127.0.0.1:12000", MaxConnections: 8}, cfg.Config)
	require.Equal(t, "$FILESHARE_TEST_DIR/credentials.txt", cfg.Credentials.Path)
	require.Equal(t, memory.Name, cfg.Storage.Name)
	require.True(t, cfg.MDNS.Enabled)
	require.Empty(t, cfg.MDNS.Instance)
}

func TestValidate(t *testing.T) {
	cfg := Config{}.Validate()
	require.Equal(t, DefaultCredentialsPath, cfg.Credentials.Path)
	require.Equal(t, memory.Name, cfg.Storage.Name)

	cfg = Config{Credentials: credential.Config{RedisAddr: "127.0.0.1:6379"}}.Validate()
	require.Empty(t, cfg.Credentials.Path)
}

func TestWithPort(t *testing.T) {
	cfg, err := Config{}.WithPort("12000")
	require.Nil(t, err)
	require.Equal(t, ":12000", cfg.Addr)

	cfg, err = Config{Config: tcp.Config{Addr: "127.0.0.1:5000"}}.WithPort("12000")
	require.Nil(t, err)
	require.Equal(t, "127.0.0.1:12000", cfg.Addr)

	_, err = Config{}.WithPort("twelve")
	require.NotNil(t, err)
	_, err = Config{}.WithPort("70000")
	require.NotNil(t, err)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.txt")
	require.Nil(t, os.WriteFile(creds, []byte("alice alice-pw\nbob bob-pw\n"), 0o644))

	r, err := NewRun(Config{
		Config:      tcp.Config{Addr: "127.0.0.1:0"},
		Credentials: credential.Config{Path: creds},
		Storage: storageConfig{
			Name:   memory.Name,
			Config: map[interface{}]interface{}{"session_timeout": "5s"},
		},
	})
	require.Nil(t, err)
	require.Nil(t, r.Stop())

	_, err = NewRun(Config{
		Config:      tcp.Config{Addr: "127.0.0.1:0"},
		Credentials: credential.Config{Path: filepath.Join(dir, "missing.txt")},
	})
	require.NotNil(t, err)

	_, err = NewRun(Config{
		Config:      tcp.Config{Addr: "127.0.0.1:0"},
		Credentials: credential.Config{Path: creds},
		Storage:     storageConfig{Name: "nope"},
	})
	require.NotNil(t, err)
}
