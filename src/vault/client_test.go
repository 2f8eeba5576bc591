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
package vault

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultswap/vaultswap/src/config"
	"github.com/vaultswap/vaultswap/src/errs"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(config.VaultConfig{
		URL:          url,
		VaultID:      "vid",
		Table:        "persons",
		PATToken:     "secret-pat",
		BatchSize:    3,
		Timeout:      2 * time.Second,
		RetryWaitMin: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func values(plaintexts ...string) []Value {
	vs := make([]Value, len(plaintexts))
	for i, p := range plaintexts {
		vs[i] = Value{RowID: int64(i + 10), Plaintext: p}
	}
	return vs
}

func TestTokenizeRequestContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/vaults/vid/persons", r.URL.Path)
		assert.Equal(t, "Bearer secret-pat", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var req struct {
			Records []struct {
				Fields map[string]string `json:"fields"`
			} `json:"records"`
			Tokenization bool `json:"tokenization"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.True(t, req.Tokenization)
		require.Len(t, req.Records, 2)
		assert.Equal(t, "a@x.com", req.Records[0].Fields["pii_values"])
		assert.Equal(t, "b@x.com", req.Records[1].Fields["pii_values"])

		w.Write([]byte(`{"records":[{"tokens":{"pii_values":"t-a"}},{"tokens":{"pii_values":"t-b"}}]}`))
	}))
	defer server.Close()

	tokens, err := newTestClient(t, server.URL).Tokenize(context.Background(), "email", values("a@x.com", "b@x.com"))
	require.NoError(t, err)
	assert.Equal(t, []Token{{RowID: 10, Value: "t-a"}, {RowID: 11, Value: "t-b"}}, tokens)
}

func TestTokenizeBindsByPosition(t *testing.T) {
	// Identical plaintexts get different tokens; binding must follow order.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[{"token":"first"},{"fields":{"pii_values":"second"}},{"pii_values":"third"}]}`))
	}))
	defer server.Close()

	tokens, err := newTestClient(t, server.URL).Tokenize(context.Background(), "email", values("same", "same", "same"))
	require.NoError(t, err)
	assert.Equal(t, []Token{{10, "first"}, {11, "second"}, {12, "third"}}, tokens)
}

func TestTokenizeRejectsRecordCountMismatch(t *testing.T) {
	var body atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body.Load().(string)))
	}))
	defer server.Close()
	c := newTestClient(t, server.URL)

	tests := []struct {
		name  string
		reply string
		msg   string
	}{
		{"short", `{"records":[{"token":"only"}]}`, "vault returned 1 records for 2 values"},
		{"long", `{"records":[{"token":"a"},{"token":null},{"token":"extra"}]}`, "vault returned 3 records for 2 values"},
		{"empty", `{"records":[]}`, "vault returned 0 records for 2 values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body.Store(tt.reply)
			tokens, err := c.Tokenize(context.Background(), "email", values("a", "b"))
			require.Error(t, err)
			assert.Nil(t, tokens)
			assert.True(t, errs.IsKind(err, errs.KindSchema))
			assert.Contains(t, err.Error(), tt.msg)
			assert.Contains(t, err.Error(), `column "email"`)
		})
	}
}

func TestTokenizeSchemaErrors(t *testing.T) {
	var body atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body.Load().(string)))
	}))
	defer server.Close()
	c := newTestClient(t, server.URL)

	body.Store(`{"error":"nope"}`)
	_, err := c.Tokenize(context.Background(), "email", values("a"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindSchema))
	assert.Contains(t, err.Error(), "no records")
	assert.Contains(t, err.Error(), `column "email"`)

	body.Store(`<html>` + strings.Repeat("x", 1000))
	_, err = c.Tokenize(context.Background(), "email", values("a"))
	assert.True(t, errs.IsKind(err, errs.KindSchema))
	assert.Less(t, len(err.Error()), 400)

	body.Store(`{"records":[{"skyflow_id":"abc"}]}`)
	_, err = c.Tokenize(context.Background(), "email", values("a"))
	assert.True(t, errs.IsKind(err, errs.KindSchema))
	var shapeErr *errs.UnrecognizedShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, `{"skyflow_id":"abc"}`, shapeErr.Payload)
}

func TestTokenizeErrorClassification(t *testing.T) {
	tests := []struct {
		status   int
		kind     errs.Kind
		attempts int32
	}{
		{http.StatusUnauthorized, errs.KindAuth, 1},
		{http.StatusForbidden, errs.KindAuth, 1},
		{http.StatusBadRequest, errs.KindRequest, 1},
		{http.StatusTooManyRequests, errs.KindConnectivity, 3},
		{http.StatusServiceUnavailable, errs.KindConnectivity, 3},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"denied"}}`))
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).Tokenize(context.Background(), "email", values("a"))
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Equal(t, tt.attempts, atomic.LoadInt32(&calls))
		})
	}
}

func TestTokenizeRecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"records":[{"token":"ok"}]}`))
	}))
	defer server.Close()

	tokens, err := newTestClient(t, server.URL).Tokenize(context.Background(), "email", values("a"))
	require.NoError(t, err)
	assert.Equal(t, []Token{{10, "ok"}}, tokens)
	assert.Equal(t, int32(3), calls)
}

func TestTokenizeUnreachableVault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).Tokenize(context.Background(), "email", values("a"))
	require.Error(t, err)
	assert.Equal(t, errs.KindConnectivity, errs.KindOf(err))
}

func TestTokenizeBatchLimits(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	tokens, err := c.Tokenize(context.Background(), "email", nil)
	assert.NoError(t, err)
	assert.Empty(t, tokens)

	_, err = c.Tokenize(context.Background(), "email", values("a", "b", "c", "d"))
	assert.Equal(t, errs.KindRequest, errs.KindOf(err))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(config.VaultConfig{URL: "vault.example.com"})
	assert.Error(t, err)
}
