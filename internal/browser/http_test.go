package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func setupAdapter(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPClient(server.URL+"/", time.Second, rate.Inf, 1)
}

func TestHTTPClientTab(t *testing.T) {
	client := setupAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tabs/7":
			w.Write([]byte(`{"id":7,"windowId":2,"url":"https://a.com/","title":"A"}`))
		default:
			http.NotFound(w, r)
		}
	})

	tab, err := client.Tab(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, tab.ID)
	require.NotNil(t, tab.WindowID)
	assert.Equal(t, 2, *tab.WindowID)
	assert.Equal(t, "https://a.com/", tab.URL)
	assert.Equal(t, "A", tab.Title)

	_, err = client.Tab(context.Background(), 8)
	assert.ErrorIs(t, err, ErrTabNotFound)
}

func TestHTTPClientTabServerError(t *testing.T) {
	client := setupAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Tab(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTabNotFound)
}

func TestHTTPClientPageContent(t *testing.T) {
	client := setupAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)

		var request contentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "request-page-content", request.Type)

		if request.TabID == 1 {
			w.Write([]byte(`{"success":true,"content":"# Title"}`))
			return
		}
		w.Write([]byte(`{"success":false}`))
	})

	content, err := client.PageContent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "# Title", content)

	_, err = client.PageContent(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestHTTPClientHonoursContext(t *testing.T) {
	client := setupAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.PageContent(ctx, 1)
	assert.Error(t, err)
}

func TestOffline(t *testing.T) {
	_, err := Offline{}.Tab(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = Offline{}.PageContent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}
