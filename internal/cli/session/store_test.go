package session_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fzdarsky/quietplanet/internal/cli/session"
)

func setupTestStore(t *testing.T) (*session.Store, string) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", tmpDir)
	t.Setenv("HOME", tmpDir)

	store, err := session.NewStore()
	require.NoError(t, err)
	return store, filepath.Join(tmpDir, "quietplanet")
}

func TestNewStore(t *testing.T) {
	_, dir := setupTestStore(t)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, _ := setupTestStore(t)

	expires := time.Date(2026, 10, 14, 13, 0, 0, 0, time.UTC)
	saved := &session.Session{
		Username:  "alice",
		Token:     "eyJhbGciOiJIUzI1NiJ9.eyJuYW1lIjoiYWxpY2UifQ.sig",
		ExpiresAt: expires,
	}
	require.NoError(t, store.Save("login.test:8443", saved))

	loaded, err := store.Load("login.test:8443")
	require.NoError(t, err)
	assert.Equal(t, saved.Username, loaded.Username)
	assert.Equal(t, saved.Token, loaded.Token)
	assert.True(t, expires.Equal(loaded.ExpiresAt))
}

func TestStore_Load_NotExists(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Load("nowhere.test:8443")
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestStore_Load_Corrupt(t *testing.T) {
	store, dir := setupTestStore(t)
	require.NoError(t, store.Save("login.test:8443", &session.Session{Token: "t"}))

	files, err := filepath.Glob(filepath.Join(dir, "session-*.yaml"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.NoError(t, os.WriteFile(files[0], []byte("token: [oops"), 0o600))

	_, err = store.Load("login.test:8443")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrNoSession)
}

func TestStore_SavePermissions(t *testing.T) {
	store, dir := setupTestStore(t)
	require.NoError(t, store.Save("login.test:8443", &session.Session{Token: "t"}))

	files, err := filepath.Glob(filepath.Join(dir, "session-*.yaml"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	info, err := os.Stat(files[0])
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "session file should be owner-only")
}

func TestStore_Delete(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.Save("login.test:8443", &session.Session{Token: "t"}))
	require.NoError(t, store.Delete("login.test:8443"))

	_, err := store.Load("login.test:8443")
	assert.ErrorIs(t, err, session.ErrNoSession)

	assert.NoError(t, store.Delete("login.test:8443"), "deleting twice is not an error")
}

func TestStore_MultipleServers(t *testing.T) {
	store, _ := setupTestStore(t)

	servers := map[string]string{
		"host1.test:8443": "token-1",
		"host2.test:8443": "token-2",
		"host1.test:9443": "token-3",
	}
	for addr, token := range servers {
		require.NoError(t, store.Save(addr, &session.Session{Token: token}))
	}

	require.NoError(t, store.Delete("host1.test:8443"))

	_, err := store.Load("host1.test:8443")
	assert.ErrorIs(t, err, session.ErrNoSession)

	for _, addr := range []string{"host2.test:8443", "host1.test:9443"} {
		loaded, err := store.Load(addr)
		require.NoError(t, err)
		assert.Equal(t, servers[addr], loaded.Token)
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"no expiry", time.Time{}, false},
		{"future", now.Add(time.Minute), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &session.Session{Token: "t", ExpiresAt: tt.expires}
			assert.Equal(t, tt.want, s.Expired(now))
		})
	}
}
