package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, r chi.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/", WithTokenSource(func() string { return "tok-1" }))
	require.NoError(t, err)
	return c
}

func TestClient_LoginDecodesRolesArrayOrString(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/public/api/auth/login", func(w http.ResponseWriter, req *http.Request) {
		require.Empty(t, req.Header.Get("Authorization"))
		var body LoginRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		if body.Username == "ana" {
			_, _ = io.WriteString(w, `{"accessToken":"a","refreshToken":"r","username":"ana","nombre":"Ana","roles":["ADMIN","USER"]}`)
			return
		}
		_, _ = io.WriteString(w, `{"accessToken":"a","refreshToken":"r","roles":"PROFESOR"}`)
	})
	c := newTestServer(t, r)

	resp, err := c.Login(context.Background(), LoginRequest{Username: "ana", Password: "x"})
	require.NoError(t, err)
	require.Equal(t, "ADMIN", resp.Roles.First())
	require.Equal(t, "Ana", resp.Nombre)

	resp, err = c.Login(context.Background(), LoginRequest{Username: "luis", Password: "x"})
	require.NoError(t, err)
	require.Equal(t, Roles{"PROFESOR"}, resp.Roles)
	require.Equal(t, "", resp.Username)
}

func TestClient_RejectedErrorIsVerbatim(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/public/api/auth/register", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"message":"username taken"}`)
	})
	c := newTestServer(t, r)

	_, err := c.Register(context.Background(), map[string]string{"username": "ana"})
	require.Error(t, err)
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, http.StatusConflict, rejected.StatusCode)
	require.JSONEq(t, `{"message":"username taken"}`, string(rejected.Body))
}

func TestClient_ListUsersSendsPaging(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/public/api/auth", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "2", req.URL.Query().Get("page"))
		require.Equal(t, "10", req.URL.Query().Get("size"))
		_, _ = io.WriteString(w, `{"content":[{"id":7,"username":"luis","nombre":"Luis","apellido":"Paz"}],"last":true}`)
	})
	c := newTestServer(t, r)

	page, err := c.ListUsers(context.Background(), 2, 10)
	require.NoError(t, err)
	require.True(t, page.Last)
	require.Len(t, page.Content, 1)
	require.Equal(t, "Luis Paz", page.Content[0].FullName())
}

func TestClient_ChatSendsRawTextWithBearer(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/chat", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
		require.Equal(t, "conv-9", req.URL.Query().Get("conversationId"))
		b, _ := io.ReadAll(req.Body)
		require.Equal(t, "hola", string(b))
		_, _ = io.WriteString(w, "1. uno 2. dos.")
	})
	c := newTestServer(t, r)

	reply, err := c.Chat(context.Background(), "conv-9", "hola")
	require.NoError(t, err)
	require.Equal(t, "1. uno 2. dos.", reply)
}

func TestNewClient_RejectsEmptyBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
}
