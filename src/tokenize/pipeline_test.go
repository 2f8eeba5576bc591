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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultswap/vaultswap/src/config"
	"github.com/vaultswap/vaultswap/src/errs"
	"github.com/vaultswap/vaultswap/src/vault"
)

func emailConfig() config.TokenizeConfig {
	return config.TokenizeConfig{SourceTable: "customers", KeyColumn: "id", SensitiveColumns: []string{"email"}}
}

func TestScenarioA_TokenizesAndSwaps(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	vs := newVaultServer(t)

	p, err := NewPipeline(db, dialect, vs.client(t, 25), emailConfig())
	require.NoError(t, err)
	res := p.Run(context.Background())

	require.True(t, res.Success, res.Message)
	assert.Equal(t, STAGE_DONE, res.Stage)
	assert.Equal(t, int64(2), res.SnapshotRows)
	assert.Equal(t, int32(1), vs.calls.Load())
	assert.Equal(t, 1, res.APICalls)
	assert.Equal(t, int64(2), res.TokensWritten)
	assert.Equal(t, int64(3), res.TotalRows)
	assert.Equal(t, "CTAS+SWAP tokenization complete: 2 tokens via 1 API calls (3 total rows)", res.Message)
	require.NotNil(t, res.Validation)
	assert.Equal(t, int64(3), res.Validation.ReplacementRows)

	rows := readCustomers(t, db, "customers")
	require.Len(t, rows, 3)
	assert.Equal(t, "vt_ann_at_example.com", rows[0].Email.String)
	assert.False(t, rows[1].Email.Valid, "null email must stay null")
	assert.Equal(t, "vt_cid_at_example.com", rows[2].Email.String)

	// non-sensitive columns are copied unchanged
	assert.Equal(t, []string{"Ann", "Bob", "Cid"}, []string{rows[0].Name, rows[1].Name, rows[2].Name})
	assert.Equal(t, "555-0100", rows[2].Phone.String)
	assert.False(t, rows[0].Phone.Valid)
	assert.Equal(t, int64(30), rows[2].Score)

	for _, scratch := range []string{"customers__vs_snap", "customers__vs_stage", "customers__vs_new", "customers__vs_swap"} {
		assert.False(t, tableExists(t, db, scratch), scratch)
	}
	require.NotNil(t, res.Swap)
	assert.Empty(t, res.Swap.OrphanedTable)
}

func TestScenarioB_MissingRecordsAbortsBeforeSwap(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	vs := newVaultServer(t)
	vs.reply.Store(`{"error":"unexpected"}`)
	before := readCustomers(t, db, "customers")

	p, err := NewPipeline(db, dialect, vs.client(t, 25), emailConfig())
	require.NoError(t, err)
	res := p.Run(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, STAGE_ABORTED, res.Stage)
	assert.Equal(t, STAGE_TOKENIZING, res.FailedStage)
	assert.Equal(t, "SchemaError", res.ErrorKind)
	assert.True(t, errs.IsKind(res.Err, errs.KindSchema))
	assert.Contains(t, res.Message, "CTAS+SWAP tokenization failed: SchemaError in TOKENIZING")
	assert.Contains(t, res.Message, "after stages - (SNAPSHOTTING)")
	assert.Nil(t, res.Swap)

	assert.Equal(t, before, readCustomers(t, db, "customers"))
	assert.ElementsMatch(t, []string{"customers__vs_snap", "customers__vs_stage"}, res.LeftBehind)
}

func TestScenarioC_ConcurrentInsertFailsValidation(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	before := readCustomers(t, db, "customers")

	tokenizer := &fakeTokenizer{batchSize: 25, onCall: func(call int, _ []vault.Value) error {
		_, err := db.Exec(`INSERT INTO customers VALUES (4, 'Dee', 'dee@example.com', NULL, 40)`)
		return err
	}}
	p, err := NewPipeline(db, dialect, tokenizer, emailConfig())
	require.NoError(t, err)
	res := p.Run(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, STAGE_VALIDATING, res.FailedStage)
	assert.True(t, errs.IsKind(res.Err, errs.KindConsistency))
	var mismatch *errs.MismatchError
	require.True(t, errors.As(res.Err, &mismatch))
	assert.Equal(t, int64(3), mismatch.OldRows)
	assert.Equal(t, int64(4), mismatch.NewRows)

	after := readCustomers(t, db, "customers")
	assert.Equal(t, before, after[:3], "source table must not be swapped")
	assert.Contains(t, res.LeftBehind, "customers__vs_new")
}

func TestCleanupOnFailureDropsScratchTables(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	tokenizer := &fakeTokenizer{batchSize: 25, onCall: func(int, []vault.Value) error {
		return errs.Newf(errs.KindAuth, "401 Unauthorized")
	}}
	cfg := emailConfig()
	cfg.CleanupOnFailure = true

	p, err := NewPipeline(db, dialect, tokenizer, cfg)
	require.NoError(t, err)
	res := p.Run(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, "AuthError", res.ErrorKind)
	assert.Contains(t, res.Message, `(column "email")`)
	assert.Empty(t, res.LeftBehind)
	assert.False(t, tableExists(t, db, "customers__vs_snap"))
	assert.False(t, tableExists(t, db, "customers__vs_stage"))
}

func TestNoRowsToTokenize(t *testing.T) {
	db, dialect := openTestDB(t)
	execAll(t, db,
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT, email TEXT, phone TEXT, score INTEGER)`,
		`INSERT INTO customers VALUES (1, 'Ann', NULL, NULL, 1)`,
	)
	tokenizer := &fakeTokenizer{batchSize: 25}

	p, err := NewPipeline(db, dialect, tokenizer, emailConfig())
	require.NoError(t, err)
	res := p.Run(context.Background())

	assert.True(t, res.Success)
	assert.Equal(t, STAGE_DONE, res.Stage)
	assert.Equal(t, NO_ROWS_MESSAGE, res.Message)
	assert.Zero(t, tokenizer.calls)
	assert.Nil(t, res.Swap)
	assert.False(t, tableExists(t, db, "customers__vs_snap"))
}

func TestMultipleColumnsAndBlankValues(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	execAll(t, db, `INSERT INTO customers VALUES (4, 'Dee', '   ', '555-0199', 40)`)
	tokenizer := &fakeTokenizer{batchSize: 2}
	cfg := emailConfig()
	cfg.SensitiveColumns = []string{"email", "PHONE"}

	p, err := NewPipeline(db, dialect, tokenizer, cfg)
	require.NoError(t, err)
	res := p.Run(context.Background())
	require.True(t, res.Success, res.Message)

	rows := readCustomers(t, db, "customers")
	assert.Equal(t, fakeToken("email", "ann@example.com"), rows[0].Email.String)
	assert.False(t, rows[0].Phone.Valid)
	assert.False(t, rows[1].Email.Valid)
	assert.Equal(t, fakeToken("phone", "555-0100"), rows[2].Phone.String)
	// blank values are never sent to the vault and stay as they were
	assert.Equal(t, "   ", rows[3].Email.String)
	assert.Equal(t, fakeToken("phone", "555-0199"), rows[3].Phone.String)

	require.Len(t, res.Columns, 2)
	assert.Equal(t, "email", res.Columns[0].Column)
	assert.Equal(t, int64(2), res.Columns[0].TokensWritten)
	assert.Equal(t, "phone", res.Columns[1].Column)
	assert.Equal(t, int64(2), res.Columns[1].TokensWritten)
	assert.Equal(t, 2, res.APICalls)
}

func TestSnapshotDataErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup []string
		cfg   config.TokenizeConfig
		msg   string
	}{
		{
			name: "missing table",
			cfg:  emailConfig(),
			msg:  "source table customers does not exist",
		},
		{
			name:  "missing sensitive column",
			setup: []string{`CREATE TABLE customers (id INTEGER, name TEXT)`},
			cfg:   emailConfig(),
			msg:   `sensitive column "email" not found`,
		},
		{
			name: "duplicate keys",
			setup: []string{
				`CREATE TABLE customers (id INTEGER, email TEXT)`,
				`INSERT INTO customers VALUES (1, 'a@x'), (1, NULL)`,
			},
			cfg: emailConfig(),
			msg: "key column id is not unique",
		},
		{
			name: "null key",
			setup: []string{
				`CREATE TABLE customers (id INTEGER, email TEXT)`,
				`INSERT INTO customers VALUES (NULL, 'a@x')`,
			},
			cfg: emailConfig(),
			msg: "key column id is null",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, dialect := openTestDB(t)
			execAll(t, db, tt.setup...)
			p, err := NewPipeline(db, dialect, &fakeTokenizer{batchSize: 25}, tt.cfg)
			require.NoError(t, err)
			res := p.Run(context.Background())

			assert.False(t, res.Success)
			assert.Equal(t, STAGE_SNAPSHOTTING, res.FailedStage)
			assert.Equal(t, "DataError", res.ErrorKind)
			assert.Contains(t, res.Message, tt.msg)
		})
	}
}

func TestResumeContinuesAfterStagedBatches(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	execAll(t, db, `INSERT INTO customers VALUES (4, 'Dee', 'dee@example.com', NULL, 40)`)

	failing := &fakeTokenizer{batchSize: 1, onCall: func(call int, _ []vault.Value) error {
		if call == 2 {
			return errs.Newf(errs.KindConnectivity, "vault unreachable")
		}
		return nil
	}}
	p, err := NewPipeline(db, dialect, failing, emailConfig())
	require.NoError(t, err)
	res := p.Run(context.Background())
	require.False(t, res.Success)
	assert.Equal(t, int64(1), res.TokensWritten)
	assert.True(t, tableExists(t, db, "customers__vs_stage"))

	cfg := emailConfig()
	cfg.Resume = true
	resumed := &fakeTokenizer{batchSize: 1}
	p, err = NewPipeline(db, dialect, resumed, cfg)
	require.NoError(t, err)
	res = p.Run(context.Background())
	require.True(t, res.Success, res.Message)

	// only the rows without a staged token are sent again
	assert.Equal(t, []string{"cid@example.com", "dee@example.com"}, plaintexts(resumed.seen))
	assert.Equal(t, int64(1), res.Columns[0].ReusedTokens)
	assert.Zero(t, res.DiscardedTokens)

	rows := readCustomers(t, db, "customers")
	assert.Equal(t, fakeToken("email", "ann@example.com"), rows[0].Email.String)
	assert.Equal(t, fakeToken("email", "cid@example.com"), rows[2].Email.String)
	assert.Equal(t, fakeToken("email", "dee@example.com"), rows[3].Email.String)
}

func TestResumeAfterSourceChangeRequestsChangedRowsAgain(t *testing.T) {
	tests := []struct {
		name      string
		change    string
		sent      []string
		discarded int64
	}{
		{
			name:      "row inserted before staged row",
			change:    `INSERT INTO customers VALUES (0, 'Zed', 'zed@example.com', NULL, 0)`,
			sent:      []string{"zed@example.com", "ann@example.com", "cid@example.com", "dee@example.com"},
			discarded: 1,
		},
		{
			name:      "staged row deleted",
			change:    `DELETE FROM customers WHERE id = 1`,
			sent:      []string{"cid@example.com", "dee@example.com"},
			discarded: 1,
		},
		{
			name:      "staged value edited",
			change:    `UPDATE customers SET email = 'ann.new@example.com' WHERE id = 1`,
			sent:      []string{"ann.new@example.com", "cid@example.com", "dee@example.com"},
			discarded: 1,
		},
		{
			name:      "row appended after staged rows",
			change:    `INSERT INTO customers VALUES (9, 'Eve', 'eve@example.com', NULL, 90)`,
			sent:      []string{"cid@example.com", "dee@example.com", "eve@example.com"},
			discarded: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, dialect := openTestDB(t)
			seedCustomers(t, db)
			execAll(t, db, `INSERT INTO customers VALUES (4, 'Dee', 'dee@example.com', NULL, 40)`)

			failing := &fakeTokenizer{batchSize: 1, onCall: func(call int, _ []vault.Value) error {
				if call == 2 {
					return errs.Newf(errs.KindConnectivity, "vault unreachable")
				}
				return nil
			}}
			p, err := NewPipeline(db, dialect, failing, emailConfig())
			require.NoError(t, err)
			res := p.Run(context.Background())
			require.False(t, res.Success)
			require.Equal(t, int64(1), res.TokensWritten)

			execAll(t, db, tt.change)
			expected := map[int64]string{}
			for _, c := range readCustomers(t, db, "customers") {
				if c.Email.Valid {
					expected[c.ID] = fakeToken("email", c.Email.String)
				}
			}

			cfg := emailConfig()
			cfg.Resume = true
			resumed := &fakeTokenizer{batchSize: 1}
			p, err = NewPipeline(db, dialect, resumed, cfg)
			require.NoError(t, err)
			res = p.Run(context.Background())
			require.True(t, res.Success, res.Message)

			assert.Equal(t, tt.sent, plaintexts(resumed.seen))
			assert.Equal(t, tt.discarded, res.DiscardedTokens)
			for _, c := range readCustomers(t, db, "customers") {
				if want, ok := expected[c.ID]; ok {
					assert.Equal(t, want, c.Email.String, "row %d must carry the token of its own value", c.ID)
				} else {
					assert.False(t, c.Email.Valid)
				}
			}
		})
	}
}

func TestSwapKeepsSourceDefinition(t *testing.T) {
	db, dialect := openTestDB(t)
	execAll(t, db,
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT, phone TEXT, score INTEGER DEFAULT 7, UNIQUE (email))`,
		`INSERT INTO customers VALUES (1, 'Ann', 'ann@example.com', NULL, 10)`,
		`INSERT INTO customers VALUES (2, 'Bob', NULL, NULL, 20)`,
	)
	var before string
	require.NoError(t, db.QueryRow(`SELECT sql FROM sqlite_master WHERE name = 'customers'`).Scan(&before))

	p, err := NewPipeline(db, dialect, newVaultServer(t).client(t, 25), emailConfig())
	require.NoError(t, err)
	res := p.Run(context.Background())
	require.True(t, res.Success, res.Message)

	var after string
	require.NoError(t, db.QueryRow(`SELECT sql FROM sqlite_master WHERE name = 'customers'`).Scan(&after))
	assert.Contains(t, after, before[strings.Index(before, "("):], "column definitions must survive the swap")

	_, err = db.Exec(`INSERT INTO customers VALUES (1, 'Dup', 'dup@example.com', NULL, 0)`)
	assert.Error(t, err, "primary key must survive the swap")
	_, err = db.Exec(`INSERT INTO customers (id, name) VALUES (3, NULL)`)
	assert.Error(t, err, "NOT NULL must survive the swap")
	_, err = db.Exec(`INSERT INTO customers (id, name, email) VALUES (3, 'Cid', 'vt_ann_at_example.com')`)
	assert.Error(t, err, "unique constraint must survive the swap")
	execAll(t, db, `INSERT INTO customers (id, name) VALUES (4, 'Dee')`)
	rows := readCustomers(t, db, "customers")
	assert.Equal(t, int64(7), rows[2].Score)
	assert.Equal(t, "vt_ann_at_example.com", rows[0].Email.String)
}

func TestShortVaultReplyAbortsBeforeSwap(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	before := readCustomers(t, db, "customers")
	vs := newVaultServer(t)
	vs.reply.Store(`{"records":[{"token":"only-one"}]}`)

	p, err := NewPipeline(db, dialect, vs.client(t, 25), emailConfig())
	require.NoError(t, err)
	res := p.Run(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, STAGE_TOKENIZING, res.FailedStage)
	assert.True(t, errs.IsKind(res.Err, errs.KindSchema))
	assert.Contains(t, res.Message, "vault returned 1 records for 2 values")
	assert.Nil(t, res.Swap)
	assert.Equal(t, before, readCustomers(t, db, "customers"))
}

func TestColumnDurationReachesResult(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	slow := &fakeTokenizer{batchSize: 1, onCall: func(int, []vault.Value) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}}
	p, err := NewPipeline(db, dialect, slow, emailConfig())
	require.NoError(t, err)
	res := p.Run(context.Background())
	require.True(t, res.Success, res.Message)
	require.Len(t, res.Columns, 1)
	assert.GreaterOrEqual(t, res.Columns[0].Duration, 100*time.Millisecond)
}

func TestRunWithoutResumeStartsFresh(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	execAll(t, db,
		`CREATE TABLE customers__vs_stage (vs_row_id BIGINT PRIMARY KEY, email_token TEXT)`,
		`INSERT INTO customers__vs_stage VALUES (1, 'stale-token')`,
	)
	tokenizer := &fakeTokenizer{batchSize: 25}
	p, err := NewPipeline(db, dialect, tokenizer, emailConfig())
	require.NoError(t, err)
	res := p.Run(context.Background())
	require.True(t, res.Success, res.Message)

	rows := readCustomers(t, db, "customers")
	assert.Equal(t, fakeToken("email", "ann@example.com"), rows[0].Email.String)
	assert.Len(t, tokenizer.seen, 2)
}

func TestResumeRecreatesStagingWithoutFingerprints(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	execAll(t, db,
		`CREATE TABLE customers__vs_stage (vs_row_id BIGINT PRIMARY KEY, email_token TEXT)`,
		`INSERT INTO customers__vs_stage VALUES (1, 'unverifiable-token')`,
	)
	cfg := emailConfig()
	cfg.Resume = true
	tokenizer := &fakeTokenizer{batchSize: 25}
	p, err := NewPipeline(db, dialect, tokenizer, cfg)
	require.NoError(t, err)
	res := p.Run(context.Background())
	require.True(t, res.Success, res.Message)

	assert.Equal(t, []string{"ann@example.com", "cid@example.com"}, plaintexts(tokenizer.seen))
	assert.Equal(t, fakeToken("email", "ann@example.com"), readCustomers(t, db, "customers")[0].Email.String)
}

func TestCancelledRunKeepsSource(t *testing.T) {
	db, dialect := openTestDB(t)
	seedCustomers(t, db)
	before := readCustomers(t, db, "customers")

	ctx, cancel := context.WithCancel(context.Background())
	tokenizer := &fakeTokenizer{batchSize: 1, onCall: func(int, []vault.Value) error {
		cancel()
		return ctx.Err()
	}}
	p, err := NewPipeline(db, dialect, tokenizer, emailConfig())
	require.NoError(t, err)
	res := p.Run(ctx)

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Equal(t, before, readCustomers(t, db, "customers"))
}

func plaintexts(values []vault.Value) []string {
	result := make([]string, len(values))
	for i, v := range values {
		result[i] = v.Plaintext
	}
	return result
}
