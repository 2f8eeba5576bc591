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
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/vbauerster/mpb/v8"

	"github.com/vaultswap/vaultswap/src/errs"
	"github.com/vaultswap/vaultswap/src/prometheus"
	pbreporter "github.com/vaultswap/vaultswap/src/reporter/pb"
	"github.com/vaultswap/vaultswap/src/vault"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

// Tokenizer exchanges one batch of plaintext values for tokens.
type Tokenizer interface {
	Tokenize(ctx context.Context, column string, values []vault.Value) ([]vault.Token, error)
	BatchSize() int
}

type ColumnStats struct {
	Column        string        `json:"column"`
	APICalls      int           `json:"api_calls"`
	ValuesRead    int64         `json:"values_read"`
	TokensWritten int64         `json:"tokens_written"`
	ReusedTokens  int64         `json:"reused_tokens,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

func (cs ColumnStats) String() string {
	return fmt.Sprintf("column %s: %s values read, %s tokens written via %d API calls in %s",
		cs.Column, humanize.Comma(cs.ValuesRead), humanize.Comma(cs.TokensWritten), cs.APICalls, cs.Duration.Round(time.Millisecond))
}

type ColumnTokenizer struct {
	ex       warehouse.Executor
	dialect  warehouse.Dialect
	vault    Tokenizer
	staging  *Staging
	parallel int

	progressContainer *mpb.Progress
	disablePb         bool
}

func NewColumnTokenizer(ex warehouse.Executor, dialect warehouse.Dialect, tokenizer Tokenizer, staging *Staging, parallel int) *ColumnTokenizer {
	if parallel < 1 {
		parallel = 1
	}
	return &ColumnTokenizer{ex: ex, dialect: dialect, vault: tokenizer, staging: staging, parallel: parallel, disablePb: true}
}

// WithProgress draws one bar per column in progressContainer.
func (ct *ColumnTokenizer) WithProgress(progressContainer *mpb.Progress) *ColumnTokenizer {
	ct.progressContainer = progressContainer
	ct.disablePb = progressContainer == nil
	return ct
}

type batch struct {
	values []vault.Value
	tokens []vault.Token
}

// TokenizeColumn streams the non-blank values of column that have no staged
// token yet from the snapshot in row id order, and merges each batch of
// tokens into staging before moving on. On failure the batches merged so far
// stay staged.
func (ct *ColumnTokenizer) TokenizeColumn(ctx context.Context, snap *Snapshot, column string) (stats ColumnStats, err error) {
	stats = ColumnStats{Column: column}
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	total, staged, err := ct.countValues(ctx, snap, column)
	if err != nil {
		return stats, withColumn(err, column)
	}
	stats.ReusedTokens = staged
	if staged > 0 {
		log.Infof("column %s: %d of %d values already staged", column, staged, total)
	}
	progress := pbreporter.NewColumnPB(ct.progressContainer, column, ct.disablePb)
	progress.SetTotalValueCount(total, false)
	progress.SetTokenizedValueCount(staged)
	defer func() {
		if !progress.IsComplete() {
			progress.Abort()
		}
	}()

	done := staged
	var cursor int64
	for {
		batches, err := ct.fetchBatches(ctx, snap, column, &cursor)
		if err != nil {
			return stats, withColumn(err, column)
		}
		if len(batches) == 0 {
			break
		}
		tokenizeErr := ct.tokenizeBatches(ctx, snap, column, batches)
		for _, b := range batches {
			if b.tokens == nil && tokenizeErr != nil {
				// later batches are not merged so that staging stays a prefix
				break
			}
			stats.APICalls++
			stats.ValuesRead += int64(len(b.values))
			n, err := ct.staging.Merge(ctx, column, b.values, b.tokens)
			if err != nil {
				return stats, withColumn(err, column)
			}
			stats.TokensWritten += n
			prometheus.RecordTokensWritten(snap.Tables.Source.Key(), column, n)
			done += int64(len(b.values))
			progress.SetTokenizedValueCount(done)
		}
		if tokenizeErr != nil {
			return stats, withColumn(tokenizeErr, column)
		}
	}
	progress.SetTotalValueCount(-1, true)
	stats.Duration = time.Since(start)
	log.Infof("%s", stats)
	return stats, nil
}

// fetchBatches reads up to parallel pages of unstaged values after *cursor
// and advances it past the last one.
func (ct *ColumnTokenizer) fetchBatches(ctx context.Context, snap *Snapshot, column string, cursor *int64) ([]*batch, error) {
	batchSize := ct.vault.BatchSize()
	rowID := rowIDColumn(ct.dialect.Type())
	value := "sn." + warehouse.Quote(ct.dialect, column)
	query := fmt.Sprintf("SELECT sn.%s, %s %s AND stg.%s IS NULL AND sn.%s > %s ORDER BY sn.%s LIMIT %d",
		rowID, ct.dialect.CastToText(value), ct.fromSnapshot(snap, column),
		tokenColumn(ct.dialect.Type(), column), rowID, ct.dialect.Placeholder(1), rowID, batchSize)

	var batches []*batch
	for len(batches) < ct.parallel {
		values, err := ct.fetchPage(ctx, query, *cursor)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			break
		}
		*cursor = values[len(values)-1].RowID
		batches = append(batches, &batch{values: values})
		if len(values) < batchSize {
			break
		}
	}
	return batches, nil
}

func (ct *ColumnTokenizer) fetchPage(ctx context.Context, query string, after int64) ([]vault.Value, error) {
	rows, err := ct.ex.QueryContext(ctx, query, after)
	if err != nil {
		return nil, warehouseErr(fmt.Errorf("read values from snapshot: %w", err))
	}
	defer rows.Close()
	var values []vault.Value
	for rows.Next() {
		var v vault.Value
		if err := rows.Scan(&v.RowID, &v.Plaintext); err != nil {
			return nil, warehouseErr(fmt.Errorf("scan snapshot row: %w", err))
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, warehouseErr(fmt.Errorf("read values from snapshot: %w", err))
	}
	return values, nil
}

// tokenizeBatches fills in the tokens of each batch. With more than one batch
// the vault calls run concurrently and the first failure cancels the rest.
func (ct *ColumnTokenizer) tokenizeBatches(ctx context.Context, snap *Snapshot, column string, batches []*batch) error {
	call := func(ctx context.Context, b *batch) error {
		start := time.Now()
		tokens, err := ct.vault.Tokenize(ctx, column, b.values)
		outcome := "ok"
		if err != nil {
			outcome = errs.KindOf(err).String()
		}
		prometheus.RecordVaultRequest(snap.Tables.Source.Key(), column, outcome, time.Since(start))
		if err != nil {
			return err
		}
		if tokens == nil {
			tokens = []vault.Token{}
		}
		b.tokens = tokens
		return nil
	}

	if len(batches) == 1 {
		return call(ctx, batches[0])
	}
	p := pool.New().WithContext(ctx).WithFirstError().WithCancelOnError().WithMaxGoroutines(ct.parallel)
	for _, b := range batches {
		b := b
		p.Go(func(ctx context.Context) error {
			return call(ctx, b)
		})
	}
	return p.Wait()
}

// fromSnapshot joins the snapshot rows carrying a tokenizable value of
// column to their staged tokens.
func (ct *ColumnTokenizer) fromSnapshot(snap *Snapshot, column string) string {
	rowID := rowIDColumn(ct.dialect.Type())
	value := "sn." + warehouse.Quote(ct.dialect, column)
	return fmt.Sprintf("FROM %s sn LEFT JOIN %s stg ON stg.%s = sn.%s WHERE %s IS NOT NULL AND TRIM(%s) <> ''",
		snap.Tables.Snapshot.Quoted(), ct.staging.table.Quoted(), rowID, rowID, value, ct.dialect.CastToText(value))
}

// countValues counts the tokenizable values of column and how many of them
// already hold a staged token.
func (ct *ColumnTokenizer) countValues(ctx context.Context, snap *Snapshot, column string) (total, staged int64, err error) {
	query := fmt.Sprintf("SELECT COUNT(*), COUNT(stg.%s) %s", tokenColumn(ct.dialect.Type(), column), ct.fromSnapshot(snap, column))
	if err := ct.ex.QueryRowContext(ctx, query).Scan(&total, &staged); err != nil {
		return 0, 0, warehouseErr(fmt.Errorf("count values of column %s: %w", column, err))
	}
	return total, staged, nil
}

func withColumn(err error, column string) error {
	var te *errs.TokenizeError
	if errors.As(err, &te) && te.Column() == "" {
		return te.WithColumn(column)
	}
	return err
}
