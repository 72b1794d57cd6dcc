package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestMergeFielders(t *testing.T) {
	merged := mergeFielders(Fields{"username": "alice"}, nil, Err(errors.New("boom")))
	require.Equal(t, "alice", merged["username"])
	require.Equal(t, "boom", merged["error"])
	require.Equal(t, "*errors.errorString", merged["type"])
}

func TestDebugGate(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormatter(&logrus.JSONFormatter{})
	defer SetDebug(false)

	SetDebug(false)
	Debug("hidden")
	require.Zero(t, buf.Len())

	SetDebug(true)
	Debug("shown", Fields{"addr": "127.0.0.1:1"})
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"addr":"127.0.0.1:1"`)
}
