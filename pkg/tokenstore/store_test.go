package tokenstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_MissingKeysAreEmpty(t *testing.T) {
	s := NewMemory()
	require.Equal(t, "", s.AccessToken())
	require.Equal(t, "", s.RefreshToken())
	require.Equal(t, "", s.Get(KeyUsername))
}

func TestStore_ClearRemovesEverySessionKey(t *testing.T) {
	kv := NewMemoryKV()
	s := New(kv)
	s.SetAccessToken("a")
	s.SetRefreshToken("r")
	s.Set(KeyUsername, "ana")
	s.Set(KeyRole, "ADMIN")
	s.Set(KeyNombre, "Ana")
	s.Set("unrelated", "x")
	require.Equal(t, 6, kv.Len())

	s.Clear()
	require.Equal(t, 1, kv.Len())
	for _, k := range SessionKeys {
		require.Equal(t, "", s.Get(k), k)
	}
}

func TestSQLiteKV_SurvivesReopen(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)

	kv, err := NewSQLiteKV(dsn)
	require.NoError(t, err)
	s := New(kv)
	s.SetAccessToken("a1")
	s.SetAccessToken("a2")
	s.SetRefreshToken("r1")
	require.NoError(t, kv.Close())

	kv2, err := NewSQLiteKV(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv2.Close() })
	s2 := New(kv2)
	require.Equal(t, "a2", s2.AccessToken())
	require.Equal(t, "r1", s2.RefreshToken())

	s2.Clear()
	require.Equal(t, "", s2.AccessToken())
	_, ok, err := kv2.Get(KeyRefreshToken)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteDSNForFile_RejectsEmpty(t *testing.T) {
	_, err := SQLiteDSNForFile("")
	require.Error(t, err)
}
