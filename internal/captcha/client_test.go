package captcha_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shpitdev/listing-enricher/internal/captcha"
)

func newClient(t *testing.T, srv *httptest.Server, timeout time.Duration) *captcha.Client {
	t.Helper()
	c, err := captcha.NewClient(captcha.ClientConfig{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		PollInterval: time.Millisecond,
		Timeout:      timeout,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return c
}

func TestClient_SolveTurnstile(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "test-key", r.PostForm.Get("key"))
			assert.Equal(t, "turnstile", r.PostForm.Get("method"))
			assert.Equal(t, "0x4AAAA", r.PostForm.Get("sitekey"))
			assert.Equal(t, "https://site.test/p", r.PostForm.Get("pageurl"))
			assert.Equal(t, "1", r.PostForm.Get("json"))
			_, _ = w.Write([]byte(`{"status":1,"request":"42"}`))
		case "/res.php":
			assert.Equal(t, "get", r.URL.Query().Get("action"))
			assert.Equal(t, "42", r.URL.Query().Get("id"))
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"status":0,"request":"CAPCHA_NOT_READY"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":1,"request":"TOKEN-XYZ"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	token, err := newClient(t, srv, time.Second).Solve(context.Background(), captcha.Challenge{
		Kind:    captcha.KindTurnstile,
		SiteKey: "0x4AAAA",
		PageURL: "https://site.test/p",
	})
	require.NoError(t, err)
	assert.Equal(t, "TOKEN-XYZ", token)
	assert.Equal(t, int32(3), polls.Load())
}

func TestClient_SolveRecaptchaUsesGooglekey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in.php" {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "userrecaptcha", r.PostForm.Get("method"))
			assert.Equal(t, "6LcKEY", r.PostForm.Get("googlekey"))
			_, _ = w.Write([]byte(`{"status":1,"request":"7"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":1,"request":"RC-TOKEN"}`))
	}))
	defer srv.Close()

	token, err := newClient(t, srv, time.Second).Solve(context.Background(), captcha.Challenge{
		Kind: captcha.KindRecaptchaV2, SiteKey: "6LcKEY", PageURL: "https://site.test/p",
	})
	require.NoError(t, err)
	assert.Equal(t, "RC-TOKEN", token)
}

func TestClient_SolveErrors(t *testing.T) {
	t.Run("submit_rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":0,"request":"ERROR_WRONG_USER_KEY"}`))
		}))
		defer srv.Close()

		_, err := newClient(t, srv, time.Second).Solve(context.Background(), captcha.Challenge{
			Kind: captcha.KindTurnstile, SiteKey: "k", PageURL: "https://site.test",
		})
		var apiErr *captcha.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "submit", apiErr.Op)
		assert.Equal(t, "ERROR_WRONG_USER_KEY", apiErr.Code)
	})

	t.Run("unsolvable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/in.php" {
				_, _ = w.Write([]byte(`{"status":1,"request":"9"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":0,"request":"ERROR_CAPTCHA_UNSOLVABLE"}`))
		}))
		defer srv.Close()

		_, err := newClient(t, srv, time.Second).Solve(context.Background(), captcha.Challenge{
			Kind: captcha.KindHCaptcha, SiteKey: "k", PageURL: "https://site.test",
		})
		var apiErr *captcha.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "poll", apiErr.Op)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/in.php" {
				_, _ = w.Write([]byte(`{"status":1,"request":"9"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":0,"request":"CAPCHA_NOT_READY"}`))
		}))
		defer srv.Close()

		_, err := newClient(t, srv, 20*time.Millisecond).Solve(context.Background(), captcha.Challenge{
			Kind: captcha.KindTurnstile, SiteKey: "k", PageURL: "https://site.test",
		})
		require.True(t, errors.Is(err, captcha.ErrSolveTimeout), "got %v", err)
	})

	t.Run("missing_site_key", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, err := newClient(t, srv, time.Second).Solve(context.Background(), captcha.Challenge{Kind: captcha.KindUnknown})
		require.Error(t, err)
	})
}

func TestClient_Balance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getbalance", r.URL.Query().Get("action"))
		_, _ = w.Write([]byte(`{"status":1,"request":"3.7215"}`))
	}))
	defer srv.Close()

	bal, err := newClient(t, srv, time.Second).Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 3.7215, bal, 1e-9)
}

func TestClient_TransportErrorIsRedacted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := captcha.NewClient(captcha.ClientConfig{APIKey: "secret-key-123", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Balance(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-key-123")
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := captcha.NewClient(captcha.ClientConfig{})
	require.Error(t, err)
}
