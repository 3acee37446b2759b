package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-concierge-bot/internal/config"
)

func newTestClient(url string) *EmbyClient {
	return NewEmbyClient(&config.MediaConfig{
		URL:    url,
		APIKey: "test-key",
	})
}

func TestEmbyClient_BanOrUnban(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Emby-Token")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.BanOrUnban(context.Background(), "user-123", true)
	require.NoError(t, err)

	assert.Equal(t, "/Users/user-123/Policy", gotPath)
	assert.Equal(t, "test-key", gotToken)
	assert.Equal(t, true, gotBody["IsDisabled"])
}

func TestEmbyClient_RetriesOnceOn401(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.BanOrUnban(context.Background(), "user-123", false)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEmbyClient_PersistentUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.BanOrUnban(context.Background(), "user-123", true)
	assert.Error(t, err)
}

func TestEmbyClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.BanOrUnban(context.Background(), "user-123", true)
	assert.ErrorContains(t, err, "500")
}

func TestNoopClient(t *testing.T) {
	assert.NoError(t, NoopClient{}.BanOrUnban(context.Background(), "user-123", true))
}
