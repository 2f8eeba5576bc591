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

	log "github.com/sirupsen/logrus"

	"github.com/vaultswap/vaultswap/src/errs"
	"github.com/vaultswap/vaultswap/src/utils/sqlname"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

type SwapResult struct {
	// OrphanedTable holds the displaced plain-text table when it could not
	// be dropped after the exchange.
	OrphanedTable string   `json:"orphaned_table,omitempty"`
	Dropped       []string `json:"dropped"`
}

type SwapController struct {
	ex      warehouse.Executor
	dialect warehouse.Dialect
	tables  *Tables
}

func NewSwapController(ex warehouse.Executor, dialect warehouse.Dialect, tables *Tables) *SwapController {
	return &SwapController{ex: ex, dialect: dialect, tables: tables}
}

// Publish exchanges the replacement with the source table, then drops the
// displaced copy and the scratch tables. Only the exchange itself can fail.
func (sc *SwapController) Publish(ctx context.Context) (SwapResult, error) {
	var result SwapResult
	if err := sc.dialect.Swap(ctx, sc.ex, sc.tables.Source, sc.tables.Replacement); err != nil {
		return result, errs.New(errs.KindSwap, err)
	}
	log.Infof("swapped %s with %s", sc.tables.Source, sc.tables.Replacement)

	// the replacement name now holds the plain-text data
	if err := warehouse.DropTableIfExists(ctx, sc.ex, sc.tables.Replacement); err != nil {
		log.Errorf("could not drop displaced plain-text table %s, drop it manually: %v", sc.tables.Replacement, err)
		result.OrphanedTable = sc.tables.Replacement.String()
	} else {
		result.Dropped = append(result.Dropped, sc.tables.Replacement.String())
	}
	result.Dropped = append(result.Dropped, sc.DropScratch(ctx, sc.tables.Snapshot, sc.tables.Staging)...)
	return result, nil
}

// DropScratch drops the given tables best-effort and returns the names that
// were dropped. Failures are only logged.
func (sc *SwapController) DropScratch(ctx context.Context, tables ...*sqlname.TableName) []string {
	var dropped []string
	for _, t := range tables {
		if err := warehouse.DropTableIfExists(ctx, sc.ex, t); err != nil {
			log.Warnf("cleanup of %s failed: %v", t, err)
			continue
		}
		dropped = append(dropped, t.String())
	}
	return dropped
}
