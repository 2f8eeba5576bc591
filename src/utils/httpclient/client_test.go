//go:build unit

/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package httpclient

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
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		BaseURL:      url,
		Timeout:      2 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Headers:      map[string]string{"Authorization": "Bearer secret"},
	})
}

func TestPostDecodesResponseAndSetsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "/v1/things", r.URL.Path)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	var resp struct {
		OK bool `json:"ok"`
	}
	status, err := newTestClient(server.URL+"/").Post(context.Background(), "/v1/things", map[string]int{"a": 1}, &resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.OK)
}

func TestRetriesServerErrorsThenGivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("busy"))
	}))
	defer server.Close()

	status, err := newTestClient(server.URL).Post(context.Background(), "x", nil, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 3, statusErr.Attempts)
	assert.Equal(t, "busy", statusErr.Body)
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var raw []byte
	status, err := newTestClient(server.URL).Post(context.Background(), "x", nil, &raw)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "{}", string(raw))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	status, err := newTestClient(server.URL).Get(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConnectionErrorIsReported(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	status, err := newTestClient(url).Get(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Equal(t, 0, status)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}
