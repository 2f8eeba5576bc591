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
package tokenize

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/vaultswap/vaultswap/src/config"
	"github.com/vaultswap/vaultswap/src/vault"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

func openTestDB(t *testing.T) (*sql.DB, warehouse.Dialect) {
	t.Helper()
	db, dialect, err := warehouse.Open(context.Background(), config.WarehouseConfig{Type: config.SQLITE, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, dialect
}

func execAll(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

// seedCustomers creates a three row table, two rows with an email.
func seedCustomers(t *testing.T, db *sql.DB) {
	execAll(t, db,
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT, email TEXT, phone TEXT, score INTEGER)`,
		`INSERT INTO customers VALUES (1, 'Ann', 'ann@example.com', NULL, 10)`,
		`INSERT INTO customers VALUES (2, 'Bob', NULL, NULL, 20)`,
		`INSERT INTO customers VALUES (3, 'Cid', 'cid@example.com', '555-0100', 30)`,
	)
}

type customer struct {
	ID    int64
	Name  string
	Email sql.NullString
	Phone sql.NullString
	Score int64
}

func readCustomers(t *testing.T, db *sql.DB, table string) []customer {
	t.Helper()
	rows, err := db.Query(fmt.Sprintf(`SELECT id, name, email, phone, score FROM %s ORDER BY id`, table))
	require.NoError(t, err)
	defer rows.Close()
	var result []customer
	for rows.Next() {
		var c customer
		require.NoError(t, rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Score))
		result = append(result, c)
	}
	require.NoError(t, rows.Err())
	return result
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n))
	return n > 0
}

// fakeTokenizer derives tokens from the plaintext so repeated runs agree.
type fakeTokenizer struct {
	batchSize int
	mu        sync.Mutex
	calls     int
	seen      []vault.Value
	onCall    func(call int, values []vault.Value) error
}

func (f *fakeTokenizer) BatchSize() int { return f.batchSize }

func (f *fakeTokenizer) Tokenize(ctx context.Context, column string, values []vault.Value) ([]vault.Token, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.seen = append(f.seen, values...)
	f.mu.Unlock()
	if f.onCall != nil {
		if err := f.onCall(call, values); err != nil {
			return nil, err
		}
	}
	tokens := make([]vault.Token, len(values))
	for i, v := range values {
		tokens[i] = vault.Token{RowID: v.RowID, Value: fakeToken(column, v.Plaintext)}
	}
	return tokens, nil
}

func fakeToken(column, plaintext string) string {
	return "tok:" + column + ":" + strings.ToUpper(plaintext)
}

// vaultServer answers like the tokenization vault, with a token per record
// under "tokens". reply overrides the body when set.
type vaultServer struct {
	*httptest.Server
	calls atomic.Int32
	reply atomic.Value
}

func newVaultServer(t *testing.T) *vaultServer {
	vs := &vaultServer{}
	vs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vs.calls.Add(1)
		if body, ok := vs.reply.Load().(string); ok {
			w.Write([]byte(body))
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var req struct {
			Records []struct {
				Fields map[string]string `json:"fields"`
			} `json:"records"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		type record struct {
			Tokens map[string]string `json:"tokens"`
		}
		resp := struct {
			Records []record `json:"records"`
		}{}
		for _, rec := range req.Records {
			resp.Records = append(resp.Records, record{Tokens: map[string]string{
				"pii_values": "vt_" + strings.ReplaceAll(rec.Fields["pii_values"], "@", "_at_"),
			}})
		}
		out, _ := json.Marshal(resp)
		w.Write(out)
	}))
	t.Cleanup(vs.Close)
	return vs
}

func (vs *vaultServer) client(t *testing.T, batchSize int) *vault.Client {
	c, err := vault.NewClient(config.VaultConfig{
		URL:          vs.URL,
		VaultID:      "vault1",
		Table:        "persons",
		PATToken:     "pat",
		BatchSize:    batchSize,
		Timeout:      2 * time.Second,
		RetryWaitMin: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}
