package tokenstore

import (
	"github.com/rs/zerolog/log"
)

// Keys used by the session layer. All of them are cleared together on sign-out.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUsername     = "username"
	KeyRole         = "role"
	KeyNombre       = "nombre"
)

// SessionKeys lists every key owned by a session.
var SessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUsername, KeyRole, KeyNombre}

// KV is the raw storage behind a Store.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// Store holds the credentials and derived identity of the current session.
//
// Reads never fail: a missing key, or a backend error, yields "". Backend errors are
// logged. No validation happens here; decoding and expiry checks belong to the session
// manager.
type Store struct {
	kv KV
}

func New(kv KV) *Store {
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &Store{kv: kv}
}

// NewMemory returns a process-scoped store.
func NewMemory() *Store {
	return New(NewMemoryKV())
}

func (s *Store) Get(key string) string {
	v, ok, err := s.kv.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("component", "tokenstore").Str("key", key).Msg("read failed, treating as absent")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (s *Store) Set(key, value string) {
	if err := s.kv.Set(key, value); err != nil {
		log.Error().Err(err).Str("component", "tokenstore").Str("key", key).Msg("write failed")
	}
}

func (s *Store) Remove(keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.kv.Delete(keys...); err != nil {
		log.Error().Err(err).Str("component", "tokenstore").Strs("keys", keys).Msg("delete failed")
	}
}

func (s *Store) AccessToken() string     { return s.Get(KeyAccessToken) }
func (s *Store) SetAccessToken(t string) { s.Set(KeyAccessToken, t) }

func (s *Store) RefreshToken() string     { return s.Get(KeyRefreshToken) }
func (s *Store) SetRefreshToken(t string) { s.Set(KeyRefreshToken, t) }

// Clear erases every session key.
func (s *Store) Clear() {
	s.Remove(SessionKeys...)
}
