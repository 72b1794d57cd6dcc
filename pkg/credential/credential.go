// Package credential implements the static username/password table the
// tracker authenticates peers against.
//
// Entries are either plain passwords or bcrypt hashes; the table is read once
// at startup from a file or a redis hash.
package credential

import (
	"bufio"
	"crypto/subtle"
	"io"
	"os"
	"strings"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
)

// ErrNoSource is returned by Load when neither a path nor a redis address is
// configured.
var ErrNoSource = errors.New("no credential source configured")

// Verifier checks a username/password pair.
type Verifier interface {
	Verify(username, password string) bool
}

// Table maps usernames to passwords or bcrypt hashes.
type Table map[string]string

var _ Verifier = Table(nil)

// Verify reports whether username is known and password matches its entry.
func (t Table) Verify(username, password string) bool {
	stored, ok := t[username]
	if !ok {
		return false
	}
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Config describes where the credential table is read from.
type Config struct {
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

// LogFields renders the current config as a set of log fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"path":      cfg.Path,
		"redisAddr": cfg.RedisAddr,
		"redisKey":  cfg.RedisKey,
	}
}

// Load reads the table from redis when RedisAddr is set and from Path
// otherwise.
func Load(cfg Config) (Table, error) {
	switch {
	case cfg.RedisAddr != "":
		key := cfg.RedisKey
		if key == "" {
			key = "credentials"
		}
		return LoadRedis(cfg.RedisAddr, key)
	case cfg.Path != "":
		return LoadFile(cfg.Path)
	default:
		return nil, ErrNoSource
	}
}

// LoadFile reads a credential file: one `username password` pair per line.
func LoadFile(path string) (Table, error) {
	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open credential file")
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads `username password` lines from r. Blank lines are skipped;
// any other line that is not exactly two space-separated tokens is an error.
func Parse(r io.Reader) (Table, error) {
	t := make(Table)
	scanner := bufio.NewScanner(r)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tokens := strings.Fields(line)
		if len(tokens) != 2 {
			return nil, errors.Errorf("malformed credential on line %d", lineno)
		}
		t[tokens[0]] = tokens[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read credentials")
	}

	return t, nil
}

// LoadRedis reads the table from the redis hash key at addr, one field per
// username.
func LoadRedis(addr, key string) (Table, error) {
	conn, err := redis.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	defer conn.Close()

	entries, err := redis.StringMap(conn.Do("HGETALL", key))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read credential hash %q", key)
	}

	return Table(entries), nil
}
