package httpclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/pwa-update-manager/internal/httpclient"
)

// newTestServer disables keep-alives so parallel tests do not share idle connections
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestDefaultClient_Get(t *testing.T) {
	t.Parallel()

	var gotAccept, gotUA string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"snapshot":{}}`))
	}))
	defer server.Close()

	body, err := httpclient.NewDefaultClient(5*time.Second).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"snapshot":{}}`, string(body))
	assert.Equal(t, "application/json", gotAccept)
	assert.True(t, strings.HasPrefix(gotUA, "pwa-updater/"))
}

func TestDefaultClient_Get_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		wantTransient bool
		wantNotFound  bool
	}{
		{name: "not found", statusCode: http.StatusNotFound, wantNotFound: true},
		{name: "no content", statusCode: http.StatusNoContent, wantNotFound: true},
		{name: "bad request", statusCode: http.StatusBadRequest},
		{name: "too many requests", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad gateway", statusCode: http.StatusBadGateway, wantTransient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			_, err := httpclient.NewDefaultClient(0).Get(context.Background(), server.URL)
			require.Error(t, err)

			var httpErr *httpclient.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
			assert.Equal(t, tt.wantTransient, httpclient.IsTransient(err))
			assert.Equal(t, tt.wantNotFound, httpclient.IsNotFound(err))
		})
	}
}

func TestDefaultClient_Get_TooLarge(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "999999999")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := httpclient.NewDefaultClient(0).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
}

func TestIsTransient_TransportError(t *testing.T) {
	t.Parallel()

	_, err := httpclient.NewDefaultClient(time.Second).Get(context.Background(), "http://127.0.0.1:1/unreachable")
	require.Error(t, err)
	assert.True(t, httpclient.IsTransient(err))
	assert.False(t, httpclient.IsTransient(nil))
}

func TestDefaultClient_Get_RetryAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{name: "seconds", header: "7", want: 7 * time.Second},
		{name: "absent", header: "", want: 0},
		{name: "negative", header: "-3", want: 0},
		{name: "date in the past", header: "Mon, 02 Jan 2006 15:04:05 GMT", want: 0},
		{name: "garbage", header: "soon", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer server.Close()

			_, err := httpclient.NewDefaultClient(0).Get(context.Background(), server.URL)
			require.Error(t, err)
			assert.Equal(t, tt.want, httpclient.RetryAfter(err))
		})
	}

	assert.Zero(t, httpclient.RetryAfter(errors.New("plain")))
}
