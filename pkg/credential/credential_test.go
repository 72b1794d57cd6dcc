package credential

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestParse(t *testing.T) {
	table, err := Parse(strings.NewReader("alice alice-pw\n\nbob bob-pw\n"))
	require.Nil(t, err)
	require.Equal(t, Table{"alice": "alice-pw", "bob": "bob-pw"}, table)

	_, err = Parse(strings.NewReader("alice\n"))
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "line 1")

	_, err = Parse(strings.NewReader("alice pw\nbob pw extra\n"))
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "line 2")
}

func TestVerify(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("carol-pw"), bcrypt.MinCost)
	require.Nil(t, err)

	table := Table{"alice": "alice-pw", "carol": string(hash)}
	require.True(t, table.Verify("alice", "alice-pw"))
	require.False(t, table.Verify("alice", "wrong"))
	require.False(t, table.Verify("mallory", "alice-pw"))
	require.True(t, table.Verify("carol", "carol-pw"))
	require.False(t, table.Verify("carol", string(hash)))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.txt")
	require.Nil(t, os.WriteFile(path, []byte("alice alice-pw\n"), 0o600))

	table, err := Load(Config{Path: path})
	require.Nil(t, err)
	require.True(t, table.Verify("alice", "alice-pw"))

	_, err = Load(Config{Path: filepath.Join(t.TempDir(), "missing.txt")})
	require.NotNil(t, err)

	_, err = Load(Config{})
	require.Equal(t, ErrNoSource, err)
}

func TestLoadRedis(t *testing.T) {
	rs, err := miniredis.Run()
	require.Nil(t, err)
	defer rs.Close()

	rs.HSet("peers", "alice", "alice-pw")
	rs.HSet("peers", "bob", "bob-pw")

	table, err := Load(Config{RedisAddr: rs.Addr(), RedisKey: "peers", Path: "ignored.txt"})
	require.Nil(t, err)
	require.Len(t, table, 2)
	require.True(t, table.Verify("bob", "bob-pw"))

	table, err = LoadRedis(rs.Addr(), "empty")
	require.Nil(t, err)
	require.Empty(t, table)
}
