package search

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/config"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(config.SearchConfig{
		APIKey:  "tvly-test",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		_, err := NewClient(config.SearchConfig{BaseURL: "http://example.com"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})

	t.Run("requires base url", func(t *testing.T) {
		_, err := NewClient(config.SearchConfig{APIKey: "k"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base URL")
	})
}

func TestClientSearch(t *testing.T) {
	t.Run("maps results to evidence", func(t *testing.T) {
		var captured searchRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/search", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

			_, _ = w.Write([]byte(`{"results": [
				{"title": "Port strike", "url": "https://a.example", "content": "dock workers walked out"},
				{"title": "No body", "url": "https://b.example", "content": ""},
				{"title": "Chip shortage", "url": "https://c.example", "content": "fab capacity constrained"}
			]}`))
		}))
		defer srv.Close()

		client := testClient(t, srv.URL)
		evidence, err := client.Search(context.Background(), "semiconductor risks", 5)
		require.NoError(t, err)

		assert.Equal(t, "tvly-test", captured.APIKey)
		assert.Equal(t, "semiconductor risks", captured.Query)
		assert.Equal(t, 5, captured.MaxResults)
		assert.Equal(t, "advanced", captured.SearchDepth)

		// The empty-content hit is dropped.
		require.Len(t, evidence, 2)
		assert.Equal(t, "Port strike", evidence[0].Title)
		assert.Equal(t, "https://a.example", evidence[0].URL)
		assert.Equal(t, "fab capacity constrained", evidence[1].Content)
	})

	t.Run("clamps max results to one", func(t *testing.T) {
		var captured searchRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			_, _ = w.Write([]byte(`{"results": []}`))
		}))
		defer srv.Close()

		client := testClient(t, srv.URL)
		evidence, err := client.Search(context.Background(), "q", 0)
		require.NoError(t, err)
		assert.Empty(t, evidence)
		assert.Equal(t, 1, captured.MaxResults)
	})

	t.Run("non-200 surfaces body snippet", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": "rate limited"}`))
		}))
		defer srv.Close()

		client := testClient(t, srv.URL)
		_, err := client.Search(context.Background(), "q", 3)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 429")
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("malformed response body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results": `))
		}))
		defer srv.Close()

		client := testClient(t, srv.URL)
		_, err := client.Search(context.Background(), "q", 3)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode search response")
	})

	t.Run("context cancellation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The server only notices a client disconnect (and cancels the
			// request context) after the request body has been consumed.
			_, _ = io.Copy(io.Discard, r.Body)
			<-r.Context().Done()
		}))
		defer srv.Close()

		client := testClient(t, srv.URL)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := client.Search(ctx, "q", 3)
		require.Error(t, err)
	})
}
