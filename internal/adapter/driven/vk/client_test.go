package vk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		BaseURL:         srv.URL,
		OAuthURL:        srv.URL,
		ClientID:        "12345",
		RequestInterval: time.Millisecond,
		HTTPClient:      srv.Client(),
	})
}

func TestCall_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/method/users.get", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok", r.Form.Get("access_token"))
		assert.Equal(t, DefaultVersion, r.Form.Get("v"))
		assert.Equal(t, "photo_50", r.Form.Get("fields"))
		_, _ = io.WriteString(w, `{"response":[{"id":1,"first_name":"Pavel"}]}`)
	})

	raw, err := client.Call(context.Background(), "tok", "users.get", url.Values{"fields": {"photo_50"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"first_name":"Pavel"}]`, string(raw))
}

func TestCall_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":{"error_code":5,"error_msg":"User authorization failed"}}`)
	})

	_, err := client.Call(context.Background(), "tok", "users.get", nil)
	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, model.CodeAuthFailed, apiErr.Code)
	assert.Equal(t, "users.get", apiErr.Method)
	assert.Equal(t, model.KindAuthInvalid, model.Classify(err))
}

func TestCall_HTTPStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Call(context.Background(), "tok", "video.save", nil)
	var tErr *model.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, http.StatusBadGateway, tErr.StatusCode)
	assert.Equal(t, model.KindTransient, model.Classify(err))
}

func TestCall_SpacesRequests(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		_, _ = io.WriteString(w, `{"response":1}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Options{BaseURL: srv.URL, RequestInterval: 50 * time.Millisecond, HTTPClient: srv.Client()})

	for range 3 {
		_, err := client.Call(context.Background(), "tok", "users.get", nil)
		require.NoError(t, err)
	}

	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 40*time.Millisecond)
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"response":1}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Call(ctx, "tok", "users.get", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAuthorizeURL(t *testing.T) {
	client := NewClient(Options{ClientID: "777"})

	u, err := url.Parse(client.AuthorizeURL())
	require.NoError(t, err)
	assert.Equal(t, "oauth.vk.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "777", q.Get("client_id"))
	assert.Equal(t, "token", q.Get("response_type"))
	assert.Equal(t, "video,offline,groups", q.Get("scope"))
	assert.Equal(t, "https://oauth.vk.com/blank.html", q.Get("redirect_uri"))
}

func TestUpload_StreamsFileWithProgress(t *testing.T) {
	content := strings.Repeat("x", 256*1024)
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("video_file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "clip.mp4", header.Filename)

		got, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, len(content), len(got))
		_, _ = io.WriteString(w, `{"size":262144,"owner_id":1,"video_id":2}`)
	})

	var sent []int64
	var totals []int64
	err := client.Upload(context.Background(), client.baseURL+"/upload", path, func(s, total int64) {
		sent = append(sent, s)
		totals = append(totals, total)
	})
	require.NoError(t, err)
	require.NotEmpty(t, sent)
	assert.Equal(t, int64(len(content)), sent[len(sent)-1])
	assert.IsNonDecreasing(t, sent)
	assert.Equal(t, int64(len(content)), totals[0])
}

func TestUpload_MissingFile(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})

	err := client.Upload(context.Background(), client.baseURL+"/upload", filepath.Join(t.TempDir(), "missing.mp4"), nil)
	require.Error(t, err)
	assert.Equal(t, model.KindLocalIO, model.Classify(err))
}

func TestUpload_ServerError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Upload(context.Background(), client.baseURL+"/upload", path, nil)
	var tErr *model.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, http.StatusServiceUnavailable, tErr.StatusCode)
}
