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
	"fmt"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/vaultswap/vaultswap/src/warehouse"
)

type Rebuilder struct {
	ex      warehouse.Executor
	dialect warehouse.Dialect
}

func NewRebuilder(ex warehouse.Executor, dialect warehouse.Dialect) *Rebuilder {
	return &Rebuilder{ex: ex, dialect: dialect}
}

// Rebuild creates the replacement table with the definition of the source,
// so keys, constraints and defaults survive the swap, and fills it from
// every source row. Sensitive columns take the staged token when one exists
// and the original value otherwise; all other columns are copied as they are.
func (r *Rebuilder) Rebuild(ctx context.Context, snap *Snapshot) error {
	tables := snap.Tables
	if err := warehouse.DropTableIfExists(ctx, r.ex, tables.Replacement); err != nil {
		return warehouseErr(err)
	}
	if err := r.dialect.CreateLike(ctx, r.ex, tables.Source, tables.Replacement); err != nil {
		return warehouseErr(err)
	}
	columns := lo.Map(snap.Columns, func(c string, _ int) string { return warehouse.Quote(r.dialect, c) })
	if err := warehouse.InsertSelect(ctx, r.ex, r.dialect, tables.Replacement, columns, r.selectSQL(snap)); err != nil {
		return warehouseErr(err)
	}
	log.Infof("rebuilt %s from %s with %d tokenized column(s)", tables.Replacement, tables.Source, len(snap.Sensitive))
	return nil
}

func (r *Rebuilder) selectSQL(snap *Snapshot) string {
	dbType := r.dialect.Type()
	projection := make([]string, len(snap.Columns))
	for i, c := range snap.Columns {
		quoted := warehouse.Quote(r.dialect, c)
		if snap.IsSensitive(c) {
			projection[i] = fmt.Sprintf("%s AS %s", r.dialect.TokenOrOriginal("stg."+tokenColumn(dbType, c), "s."+quoted), quoted)
		} else {
			projection[i] = "s." + quoted
		}
	}
	key := warehouse.Quote(r.dialect, snap.KeyColumn)
	rowID := rowIDColumn(dbType)
	return fmt.Sprintf("SELECT %s FROM %s s LEFT JOIN %s sn ON sn.%s = s.%s LEFT JOIN %s stg ON stg.%s = sn.%s",
		strings.Join(projection, ", "),
		snap.Tables.Source.Quoted(),
		snap.Tables.Snapshot.Quoted(), key, key,
		snap.Tables.Staging.Quoted(), rowID, rowID)
}
