package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"receiptflow/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGigaChat(t *testing.T, handler http.Handler) *GigaChat {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &GigaChat{
		cfg:        &config.GigaChatConfig{APIKey: "key", Scope: "GIGACHAT_API_PERS", Model: "GigaChat"},
		httpClient: srv.Client(),
		oauthURL:   srv.URL + "/oauth",
		baseURL:    srv.URL + "/api/v1",
		logger:     zap.NewNop(),
	}
}

func TestGigaChatVisionExtract(t *testing.T) {
	var tokens atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("RqUID"))
		tokens.Add(1)
		fmt.Fprintf(w, `{"access_token":"tok","expires_at":%d}`, time.Now().Add(30*time.Minute).UnixMilli())
	})
	mux.HandleFunc("/api/v1/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "general", r.FormValue("purpose"))
		fmt.Fprint(w, `{"id":"file-1"}`)
	})
	mux.HandleFunc("/api/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Attachments []string `json:"attachments"`
			} `json:"messages"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) && assert.Len(t, body.Messages, 2) {
			assert.Equal(t, []string{"file-1"}, body.Messages[1].Attachments)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"vendorName\":\"Officeworks\",\"totalAmount\":55.00,\"taxAmount\":5.00}"}}]}`)
	})

	g := newTestGigaChat(t, mux)
	res, err := g.Extract(context.Background(), []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Officeworks", res.VendorName)
	assert.Equal(t, "55", res.TotalAmount.Decimal.String())

	_, err = g.Extract(context.Background(), []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.EqualValues(t, 1, tokens.Load())
}

func TestGigaChatOverloadIsRetryable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"access_token":"tok","expires_at":%d}`, time.Now().Add(30*time.Minute).UnixMilli())
	})
	mux.HandleFunc("/api/v1/files", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	g := newTestGigaChat(t, mux)
	_, err := g.Extract(context.Background(), []byte("png"), "image/png")
	assert.True(t, IsRetryable(err))
}

func TestGigaChatCloseWithoutTextClient(t *testing.T) {
	g := newTestGigaChat(t, http.NotFoundHandler())
	assert.NoError(t, g.Close())
}
