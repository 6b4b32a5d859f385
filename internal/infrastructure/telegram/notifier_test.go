package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TubeArticles/internal/domain"
)

func TestNotifySendsForm(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		path   string
		chatID string
		text   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		mu.Lock()
		path, chatID, text = r.URL.Path, r.PostForm.Get("chat_id"), r.PostForm.Get("text")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, "token", "42", server.Client())
	require.NoError(t, n.Notify(context.Background(), "hello"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/bottoken/sendMessage", path)
	assert.Equal(t, "42", chatID)
	assert.Equal(t, "hello", text)
}

func TestNotifyReportsStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewNotifier(server.URL, "token", "42", server.Client()).Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNotifyMisconfigured(t *testing.T) {
	t.Parallel()

	err := NewNotifier("", "", "42", nil).Notify(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
