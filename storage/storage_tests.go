package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/credential"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

// TestCredentials is the credential table a Store passed to TestStore must
// have been created with.
var TestCredentials = credential.Table{
	"alice": "alice-pw",
	"bob":   "bob-pw",
	"carol": "carol-pw",
}

// TestStore tests a Store implementation against the interface.
// s must be empty and use TestCredentials.
func TestStore(t *testing.T, s Store) {
	// Authentication.
	_, err := s.Authenticate("mallory", "x", "10.0.0.9", 1000)
	require.Equal(t, sharing.ErrInvalidCredentials, err)

	_, err = s.Authenticate("alice", "bob-pw", "10.0.0.1", 1001)
	require.Equal(t, sharing.ErrInvalidCredentials, err)
	require.False(t, s.Active("alice"))

	alice, err := s.Authenticate("alice", "alice-pw", "10.0.0.1", 1001)
	require.Nil(t, err)
	require.Equal(t, "alice", alice.Username)
	require.Equal(t, "10.0.0.1", alice.Host)
	require.False(t, alice.HasUploadPort())
	require.False(t, alice.LastHeartbeat.IsZero())

	_, err = s.Authenticate("alice", "alice-pw", "10.0.0.2", 1002)
	require.Equal(t, sharing.ErrAlreadyActive, err)
	require.Equal(t, "10.0.0.1", s.Sessions()[0].Host)

	_, err = s.Authenticate("bob", "bob-pw", "10.0.0.2", 1002)
	require.Nil(t, err)

	require.Equal(t, []string{"bob"}, s.ListPeers("alice"))
	require.Equal(t, []string{"alice"}, s.ListPeers("bob"))
	require.Equal(t, []string{"alice", "bob"}, s.ListPeers(""))

	// Upload ports and heartbeats.
	require.Equal(t, sharing.ErrNotAuthenticated, s.SetUploadPort("carol", 5000))
	require.Nil(t, s.SetUploadPort("alice", 5001))
	require.True(t, s.RecordHeartbeat("alice"))
	require.False(t, s.RecordHeartbeat("carol"))

	// Publishing.
	require.Equal(t, sharing.ErrInvalidRequest, s.Publish("alice", ""))
	require.Equal(t, sharing.ErrInvalidRequest, s.Publish("alice", "two words"))
	require.Equal(t, sharing.ErrNotAuthenticated, s.Publish("carol", "report.pdf"))

	require.Nil(t, s.Publish("alice", "report.pdf"))
	require.Nil(t, s.Publish("alice", "report.pdf"))
	require.Nil(t, s.Publish("alice", "notes.txt"))
	require.Equal(t, []string{"alice"}, s.FindPublishers("report.pdf", ""))
	require.Empty(t, s.FindPublishers("report.pdf", "alice"))
	require.Equal(t, []string{"report.pdf", "notes.txt"}, s.ListPublished("alice"))
	require.Empty(t, s.ListPublished("bob"))

	// Search excludes files the requester publishes.
	_, err = s.Search("", "bob")
	require.Equal(t, sharing.ErrInvalidRequest, err)

	found, err := s.Search("report", "bob")
	require.Nil(t, err)
	require.Equal(t, []string{"report.pdf"}, found)

	found, err = s.Search("report", "alice")
	require.Nil(t, err)
	require.Empty(t, found)

	found, err = s.Search("t", "bob")
	require.Nil(t, err)
	require.Equal(t, []string{"report.pdf", "notes.txt"}, found)

	found, err = s.Search("missing", "bob")
	require.Nil(t, err)
	require.Empty(t, found)

	// Resolving publishers.
	publisher, err := s.ResolvePublisher("report.pdf", "bob")
	require.Nil(t, err)
	require.Equal(t, "alice", publisher.Username)
	require.Equal(t, uint16(5001), publisher.UploadPort)

	_, err = s.ResolvePublisher("report.pdf", "alice")
	require.Equal(t, sharing.ErrNoPublisher, err)
	_, err = s.ResolvePublisher("missing.pdf", "bob")
	require.Equal(t, sharing.ErrNoPublisher, err)
	_, err = s.ResolvePublisher("", "bob")
	require.Equal(t, sharing.ErrInvalidRequest, err)

	// A publisher without an upload port is skipped.
	require.Nil(t, s.Publish("bob", "notes.txt"))
	_, err = s.ResolvePublisher("notes.txt", "alice")
	require.Equal(t, sharing.ErrNoPublisher, err)
	require.Equal(t, []string{"alice", "bob"}, s.FindPublishers("notes.txt", ""))

	// Unpublishing.
	require.Equal(t, sharing.ErrNotPublished, s.Unpublish("bob", "report.pdf"))
	require.Equal(t, sharing.ErrNotPublished, s.Unpublish("bob", "never.txt"))

	require.Nil(t, s.Unpublish("alice", "notes.txt"))
	require.Equal(t, []string{"bob"}, s.FindPublishers("notes.txt", ""))
	require.Equal(t, sharing.ErrNotPublished, s.Unpublish("alice", "notes.txt"))

	require.Nil(t, s.Unpublish("bob", "notes.txt"))
	for _, f := range s.Files() {
		require.NotEqual(t, "notes.txt", f.Name)
		require.NotEmpty(t, f.Publishers)
	}

	// Removal withdraws the user's files.
	require.Nil(t, s.Publish("bob", "report.pdf"))
	require.True(t, s.Remove("alice"))
	require.False(t, s.Remove("alice"))
	require.False(t, s.Active("alice"))
	require.Empty(t, s.ListPeers("bob"))
	require.Equal(t, []string{"bob"}, s.FindPublishers("report.pdf", ""))

	require.True(t, s.Remove("bob"))
	require.Empty(t, s.Files())
	require.Empty(t, s.Sessions())

	// A removed user may authenticate again, and releasing the old login
	// leaves the new one alone.
	second, err := s.Authenticate("alice", "alice-pw", "10.0.0.3", 1003)
	require.Nil(t, err)
	require.NotEqual(t, alice.ID, second.ID)
	require.False(t, s.Release(alice))

	current, ok := s.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, second.ID, current.ID)

	require.True(t, s.Release(second))
	_, ok = s.Lookup("alice")
	require.False(t, ok)
}
