package transcript

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TubeArticles/internal/domain"
)

func captionsJSON(t *testing.T, words int) []byte {
	t.Helper()
	type seg struct {
		UTF8 string `json:"utf8"`
	}
	type event struct {
		Segs []seg `json:"segs"`
	}
	var events []event
	for i := 0; i < words; i += 5 {
		events = append(events, event{Segs: []seg{{UTF8: "word  word\nword"}, {UTF8: " word word"}}})
	}
	raw, err := json.Marshal(map[string]any{"events": events})
	require.NoError(t, err)
	return raw
}

func TestFetchFallsBackToSecondLanguage(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		langs []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := r.URL.Query().Get("lang")
		mu.Lock()
		langs = append(langs, lang)
		mu.Unlock()
		assert.Equal(t, "vid1", r.URL.Query().Get("v"))
		if lang == "en" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(captionsJSON(t, 60))
	}))
	defer server.Close()

	f := NewTimedtextFetcher(server.Client(), server.URL, []string{"en", "fr"}, 50, nil)
	text, err := f.Fetch(context.Background(), "vid1")
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{"en", "fr"}, langs)
	mu.Unlock()
	assert.NotContains(t, text, "\n")
	assert.NotContains(t, text, "  ")
	assert.GreaterOrEqual(t, len(strings.Fields(text)), 50)
}

func TestFetchStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"no captions anywhere", http.StatusNotFound, "", domain.ErrNoTranscript},
		{"empty body", http.StatusOK, "", domain.ErrNoTranscript},
		{"disabled", http.StatusForbidden, "", domain.ErrTranscriptsDisabled},
		{"gone", http.StatusGone, "", domain.ErrVideoUnavailable},
		{"rate limited", http.StatusTooManyRequests, "", domain.ErrRateLimited},
		{"server error", http.StatusInternalServerError, "", domain.ErrFetch},
		{"garbage", http.StatusOK, "<html>", domain.ErrFetch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			f := NewTimedtextFetcher(server.Client(), server.URL, nil, 0, nil)
			_, err := f.Fetch(context.Background(), "vid")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFetchTooShort(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(captionsJSON(t, 10))
	}))
	defer server.Close()

	f := NewTimedtextFetcher(server.Client(), server.URL, []string{"en"}, 50, nil)
	_, err := f.Fetch(context.Background(), "vid")
	require.ErrorIs(t, err, domain.ErrTranscriptTooShort)
	assert.True(t, domain.IsPermanentVideo(err))
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a b c", Normalize("  a\n\tb   c "))
}
