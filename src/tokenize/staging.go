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
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/vaultswap/vaultswap/src/utils/sqlname"
	"github.com/vaultswap/vaultswap/src/vault"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

const RECONCILE_CHUNK_SIZE = 500

// Staging accumulates tokens keyed by snapshot row id. Every sensitive column
// has a nullable token column and a fingerprint column holding the hash of
// the plaintext the token was issued for.
type Staging struct {
	ex      warehouse.Executor
	dialect warehouse.Dialect
	table   *sqlname.TableName
	columns []string
}

func NewStaging(ex warehouse.Executor, dialect warehouse.Dialect, table *sqlname.TableName, sensitive []string) *Staging {
	return &Staging{ex: ex, dialect: dialect, table: table, columns: sensitive}
}

// Create makes the staging table. Unless fresh is set, a staging table left by
// an earlier run is kept when it has the token and fingerprint columns of
// every sensitive column. Reports whether an existing table was reused.
func (s *Staging) Create(ctx context.Context, fresh bool) (bool, error) {
	if !fresh {
		reusable, err := s.reusable(ctx)
		if err != nil {
			return false, warehouseErr(err)
		}
		if reusable {
			log.Infof("resuming with existing staging table %s", s.table)
			return true, nil
		}
	}
	if err := warehouse.DropTableIfExists(ctx, s.ex, s.table); err != nil {
		return false, warehouseErr(err)
	}
	dbType := s.dialect.Type()
	defs := []string{fmt.Sprintf("%s BIGINT PRIMARY KEY", rowIDColumn(dbType))}
	for _, c := range s.columns {
		defs = append(defs,
			fmt.Sprintf("%s %s", tokenColumn(dbType, c), s.dialect.TextType()),
			fmt.Sprintf("%s %s", fingerprintColumn(dbType, c), s.dialect.TextType()))
	}
	query := fmt.Sprintf("CREATE TABLE %s (%s)", s.table.Quoted(), strings.Join(defs, ", "))
	if _, err := s.ex.ExecContext(ctx, query); err != nil {
		return false, warehouseErr(fmt.Errorf("create staging table %s: %w", s.table, err))
	}
	return false, nil
}

func (s *Staging) reusable(ctx context.Context) (bool, error) {
	exists, err := s.dialect.TableExists(ctx, s.ex, s.table)
	if err != nil || exists == warehouse.Absent {
		return false, err
	}
	existing, err := s.dialect.ListColumns(ctx, s.ex, s.table)
	if err != nil {
		return false, err
	}
	for _, c := range s.columns {
		for _, suffix := range []string{TOKEN_COLUMN_SUFFIX, FINGERPRINT_COLUMN_SUFFIX} {
			want := sqlname.NewIdentifier(s.dialect.Type(), c+suffix).Unquoted
			if !lo.Contains(existing, want) {
				log.Warnf("staging table %s has no column %s, recreating it", s.table, want)
				return false, nil
			}
		}
	}
	return true, nil
}

// Merge upserts tokens into the token column of column, together with the
// fingerprint of the value each token was issued for. Replaying the same
// tokens leaves the table unchanged.
func (s *Staging) Merge(ctx context.Context, column string, values []vault.Value, tokens []vault.Token) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	plaintext := lo.SliceToMap(values, func(v vault.Value) (int64, string) { return v.RowID, v.Plaintext })
	dbType := s.dialect.Type()
	query := s.dialect.UpsertSQL(s.table, rowIDColumn(dbType),
		[]string{tokenColumn(dbType, column), fingerprintColumn(dbType, column)}, len(tokens))
	args := make([]any, 0, 3*len(tokens))
	for _, t := range tokens {
		args = append(args, t.RowID, t.Value, fingerprint(plaintext[t.RowID]))
	}
	if _, err := s.ex.ExecContext(ctx, query, args...); err != nil {
		return 0, warehouseErr(fmt.Errorf("merge %d tokens of column %s into %s: %w", len(tokens), column, s.table, err))
	}
	return int64(len(tokens)), nil
}

// Reconcile checks the tokens of a reused staging table against the current
// snapshot. A token stays only while its row id still carries the plaintext
// it was issued for; every other token is cleared so the column pass asks
// the vault again. Returns the number of tokens cleared.
func (s *Staging) Reconcile(ctx context.Context, snap *Snapshot) (int64, error) {
	var cleared int64
	for _, column := range s.columns {
		stale, err := s.staleRowIDs(ctx, snap, column)
		if err != nil {
			return cleared, withColumn(err, column)
		}
		if err := s.clear(ctx, column, stale); err != nil {
			return cleared, withColumn(err, column)
		}
		if len(stale) > 0 {
			log.Warnf("column %s: %d staged token(s) no longer match the source and will be requested again", column, len(stale))
		}
		cleared += int64(len(stale))
	}
	return cleared, nil
}

func (s *Staging) staleRowIDs(ctx context.Context, snap *Snapshot, column string) ([]int64, error) {
	dbType := s.dialect.Type()
	rowID := rowIDColumn(dbType)
	query := fmt.Sprintf("SELECT stg.%s, stg.%s, %s FROM %s stg LEFT JOIN %s sn ON sn.%s = stg.%s WHERE stg.%s IS NOT NULL",
		rowID, fingerprintColumn(dbType, column), s.dialect.CastToText("sn."+warehouse.Quote(s.dialect, column)),
		s.table.Quoted(), snap.Tables.Snapshot.Quoted(), rowID, rowID, tokenColumn(dbType, column))
	rows, err := s.ex.QueryContext(ctx, query)
	if err != nil {
		return nil, warehouseErr(fmt.Errorf("read staged tokens of column %s: %w", column, err))
	}
	defer rows.Close()
	var stale []int64
	for rows.Next() {
		var id int64
		var fp, plaintext sql.NullString
		if err := rows.Scan(&id, &fp, &plaintext); err != nil {
			return nil, warehouseErr(fmt.Errorf("scan staged token: %w", err))
		}
		if !plaintext.Valid || strings.Trim(plaintext.String, " ") == "" || fp.String != fingerprint(plaintext.String) {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, warehouseErr(fmt.Errorf("read staged tokens of column %s: %w", column, err))
	}
	return stale, nil
}

func (s *Staging) clear(ctx context.Context, column string, rowIDs []int64) error {
	dbType := s.dialect.Type()
	for _, chunk := range lo.Chunk(rowIDs, RECONCILE_CHUNK_SIZE) {
		marks := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, id := range chunk {
			marks[i] = s.dialect.Placeholder(i + 1)
			args[i] = id
		}
		query := fmt.Sprintf("UPDATE %s SET %s = NULL, %s = NULL WHERE %s IN (%s)",
			s.table.Quoted(), tokenColumn(dbType, column), fingerprintColumn(dbType, column),
			rowIDColumn(dbType), strings.Join(marks, ", "))
		if _, err := s.ex.ExecContext(ctx, query, args...); err != nil {
			return warehouseErr(fmt.Errorf("clear stale tokens of column %s: %w", column, err))
		}
	}
	return nil
}

// TokenCount is the number of rows holding a token for column.
func (s *Staging) TokenCount(ctx context.Context, column string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(%s) FROM %s", tokenColumn(s.dialect.Type(), column), s.table.Quoted())
	if err := s.ex.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, warehouseErr(fmt.Errorf("count staged tokens of column %s: %w", column, err))
	}
	return n, nil
}

func fingerprint(plaintext string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(plaintext))
}
