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
	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v8"

	"github.com/vaultswap/vaultswap/src/config"
	"github.com/vaultswap/vaultswap/src/errs"
	"github.com/vaultswap/vaultswap/src/prometheus"
	"github.com/vaultswap/vaultswap/src/utils/sqlname"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

type Stage string

const (
	STAGE_SNAPSHOTTING Stage = "SNAPSHOTTING"
	STAGE_TOKENIZING   Stage = "TOKENIZING"
	STAGE_REBUILDING   Stage = "REBUILDING"
	STAGE_VALIDATING   Stage = "VALIDATING"
	STAGE_SWAPPING     Stage = "SWAPPING"
	STAGE_DONE         Stage = "DONE"
	STAGE_ABORTED      Stage = "ABORTED"
)

const NO_ROWS_MESSAGE = "No rows to tokenize"

// Result is the outcome of one run.
type Result struct {
	RunID      string    `json:"run_id"`
	Success    bool      `json:"success"`
	Stage      Stage     `json:"stage"`
	Message    string    `json:"message"`
	Table      string    `json:"table"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// stage that failed, when Stage is ABORTED
	FailedStage Stage  `json:"failed_stage,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`

	SnapshotRows  int64 `json:"snapshot_rows"`
	TotalRows     int64 `json:"total_rows"`
	APICalls      int   `json:"api_calls"`
	TokensWritten int64 `json:"tokens_written"`
	// staged tokens of an earlier run dropped because their row changed
	DiscardedTokens int64         `json:"discarded_tokens,omitempty"`
	Columns         []ColumnStats `json:"columns"`
	Validation      *Validation   `json:"validation,omitempty"`
	Swap            *SwapResult   `json:"swap,omitempty"`
	// scratch tables left in place after a failure
	LeftBehind []string `json:"left_behind,omitempty"`

	Err error `json:"-"`
}

// Pipeline runs SNAPSHOTTING -> TOKENIZING -> REBUILDING -> VALIDATING ->
// SWAPPING -> DONE against one source table. Any stage may end the run in
// ABORTED; the source table is only touched by SWAPPING.
type Pipeline struct {
	ex      warehouse.Executor
	dialect warehouse.Dialect
	vault   Tokenizer
	cfg     config.TokenizeConfig
	tables  *Tables

	progressContainer *mpb.Progress

	stage     Stage
	completed []string
}

func NewPipeline(ex warehouse.Executor, dialect warehouse.Dialect, tokenizer Tokenizer, cfg config.TokenizeConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tables, err := NewTables(dialect.Type(), cfg.SourceTable)
	if err != nil {
		return nil, err
	}
	return &Pipeline{ex: ex, dialect: dialect, vault: tokenizer, cfg: cfg, tables: tables}, nil
}

func (p *Pipeline) WithProgress(progressContainer *mpb.Progress) *Pipeline {
	p.progressContainer = progressContainer
	return p
}

func (p *Pipeline) Tables() *Tables {
	return p.tables
}

func (p *Pipeline) Stage() Stage {
	return p.stage
}

func (p *Pipeline) enter(stage Stage) {
	if p.stage != "" && p.stage != STAGE_ABORTED {
		p.completed = append(p.completed, string(p.stage))
	}
	prometheus.SetStage(p.tables.Source.Key(), string(p.stage), string(stage))
	log.Infof("tokenization of %s: entering stage %s", p.tables.Source, stage)
	p.stage = stage
}

// Run executes the whole pipeline once. It never panics on a stage failure;
// the failure is reported through Result.
func (p *Pipeline) Run(ctx context.Context) *Result {
	res := &Result{
		RunID:     uuid.New().String(),
		Table:     p.tables.Source.String(),
		StartedAt: time.Now(),
	}
	defer func() { res.FinishedAt = time.Now() }()

	err := p.run(ctx, res)
	if err != nil {
		p.fail(ctx, res, err)
		return res
	}
	res.Success = true
	res.Stage = p.stage
	if res.Message == "" {
		res.Message = fmt.Sprintf("CTAS+SWAP tokenization complete: %d tokens via %d API calls (%d total rows)",
			res.TokensWritten, res.APICalls, res.TotalRows)
	}
	log.Info(res.Message)
	return res
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	p.enter(STAGE_SNAPSHOTTING)
	snap, err := NewSnapshotter(p.ex, p.dialect, p.tables).Snapshot(ctx, p.cfg.KeyColumn, p.cfg.OrderBy, p.cfg.SensitiveColumns)
	if err != nil {
		return err
	}
	res.SnapshotRows = snap.Rows
	res.TotalRows = snap.SourceRows
	if snap.Rows == 0 {
		log.Infof("no row of %s carries a sensitive value", p.tables.Source)
		NewSwapController(p.ex, p.dialect, p.tables).DropScratch(ctx, p.tables.Snapshot)
		p.enter(STAGE_DONE)
		res.Message = NO_ROWS_MESSAGE
		return nil
	}

	p.enter(STAGE_TOKENIZING)
	staging := NewStaging(p.ex, p.dialect, p.tables.Staging, snap.Sensitive)
	reused, err := staging.Create(ctx, !p.cfg.Resume)
	if err != nil {
		return err
	}
	if reused {
		// the snapshot was taken again, so row ids may now name other rows
		if res.DiscardedTokens, err = staging.Reconcile(ctx, snap); err != nil {
			return err
		}
	}
	columnTokenizer := NewColumnTokenizer(p.ex, p.dialect, p.vault, staging, p.cfg.ParallelBatches).WithProgress(p.progressContainer)
	for _, column := range snap.Sensitive {
		stats, err := columnTokenizer.TokenizeColumn(ctx, snap, column)
		res.Columns = append(res.Columns, stats)
		res.APICalls += stats.APICalls
		res.TokensWritten += stats.TokensWritten
		if err != nil {
			return err
		}
	}
	log.Infof("tokenized %d column(s) of %s: %s tokens via %d API calls",
		len(snap.Sensitive), p.tables.Source, humanize.Comma(res.TokensWritten), res.APICalls)

	p.enter(STAGE_REBUILDING)
	if err := NewRebuilder(p.ex, p.dialect).Rebuild(ctx, snap); err != nil {
		return err
	}

	p.enter(STAGE_VALIDATING)
	validation, err := NewValidator(p.ex).Validate(ctx, snap)
	res.Validation = &validation
	if err != nil {
		return err
	}
	res.TotalRows = validation.SourceRows

	p.enter(STAGE_SWAPPING)
	swap, err := NewSwapController(p.ex, p.dialect, p.tables).Publish(ctx)
	if err != nil {
		return err
	}
	res.Swap = &swap
	p.enter(STAGE_DONE)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, res *Result, err error) {
	failed := p.stage
	var te *errs.TokenizeError
	if !errors.As(err, &te) {
		te = errs.New(errs.KindUnknown, err)
	}
	te = te.WithStage(string(failed), p.completed)
	p.enter(STAGE_ABORTED)

	res.Err = te
	res.Stage = STAGE_ABORTED
	res.FailedStage = failed
	res.ErrorKind = te.Kind().String()
	res.Message = fmt.Sprintf("CTAS+SWAP tokenization failed: %s", te.Error())
	log.Error(res.Message)

	// a failed exchange leaves storage in a state that needs inspection first
	if te.Kind() == errs.KindSwap || !p.cfg.CleanupOnFailure || ctx.Err() != nil {
		res.LeftBehind = p.existingScratch(context.WithoutCancel(ctx))
		if len(res.LeftBehind) > 0 {
			log.Warnf("scratch tables left for inspection: %v", res.LeftBehind)
		}
		return
	}
	NewSwapController(p.ex, p.dialect, p.tables).DropScratch(ctx, p.tables.Snapshot, p.tables.Staging, p.tables.Replacement)
}

func (p *Pipeline) existingScratch(ctx context.Context) []string {
	return lo.FilterMap(p.tables.Scratch(), func(t *sqlname.TableName, _ int) (string, bool) {
		exists, err := p.dialect.TableExists(ctx, p.ex, t)
		return t.String(), err == nil && exists == warehouse.Present
	})
}
