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

	"github.com/vaultswap/vaultswap/src/errs"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

// Snapshot describes the materialised snapshot table of one run. Column
// names are as stored in the catalog.
type Snapshot struct {
	Tables    *Tables
	Columns   []string // every source column, in ordinal order
	KeyColumn string
	OrderBy   []string
	Sensitive []string

	Rows       int64 // rows in the snapshot
	SourceRows int64 // source rows when the snapshot was taken
}

func (s *Snapshot) IsSensitive(column string) bool {
	return lo.Contains(s.Sensitive, column)
}

type Snapshotter struct {
	ex      warehouse.Executor
	dialect warehouse.Dialect
	tables  *Tables
}

func NewSnapshotter(ex warehouse.Executor, dialect warehouse.Dialect, tables *Tables) *Snapshotter {
	return &Snapshotter{ex: ex, dialect: dialect, tables: tables}
}

// Snapshot copies the key, tiebreak and sensitive columns of every source row
// with at least one non-null sensitive value into the snapshot table, numbered
// by ROW_NUMBER over the key and tiebreak columns.
func (s *Snapshotter) Snapshot(ctx context.Context, keyColumn string, orderBy, sensitive []string) (*Snapshot, error) {
	source := s.tables.Source
	exists, err := s.dialect.TableExists(ctx, s.ex, source)
	if err != nil {
		return nil, warehouseErr(err)
	}
	if exists == warehouse.Absent {
		return nil, errs.Newf(errs.KindData, "source table %s does not exist", source)
	}

	columns, err := s.dialect.ListColumns(ctx, s.ex, source)
	if err != nil {
		return nil, warehouseErr(err)
	}
	snap := &Snapshot{Tables: s.tables, Columns: columns}
	if snap.KeyColumn, err = resolveColumn(columns, keyColumn, "key"); err != nil {
		return nil, err
	}
	for _, c := range orderBy {
		resolved, err := resolveColumn(columns, c, "order-by")
		if err != nil {
			return nil, err
		}
		snap.OrderBy = append(snap.OrderBy, resolved)
	}
	for _, c := range sensitive {
		resolved, err := resolveColumn(columns, c, "sensitive")
		if err != nil {
			return nil, err
		}
		snap.Sensitive = append(snap.Sensitive, resolved)
	}

	if snap.SourceRows, err = warehouse.CountRows(ctx, s.ex, source); err != nil {
		return nil, warehouseErr(err)
	}
	if err := warehouse.DropTableIfExists(ctx, s.ex, s.tables.Snapshot); err != nil {
		return nil, warehouseErr(err)
	}
	if err := warehouse.CreateTableAs(ctx, s.ex, s.tables.Snapshot, s.selectSQL(snap)); err != nil {
		return nil, warehouseErr(err)
	}
	if err := s.checkKey(ctx, snap); err != nil {
		return nil, err
	}
	if snap.Rows, err = warehouse.CountRows(ctx, s.ex, s.tables.Snapshot); err != nil {
		return nil, warehouseErr(err)
	}
	log.Infof("snapshot %s: %d of %d source rows carry sensitive values", s.tables.Snapshot, snap.Rows, snap.SourceRows)
	return snap, nil
}

func (s *Snapshotter) selectSQL(snap *Snapshot) string {
	q := func(c string) string { return warehouse.Quote(s.dialect, c) }

	ordering := lo.Map(append([]string{snap.KeyColumn}, snap.OrderBy...), func(c string, _ int) string { return q(c) })
	projected := lo.Uniq(append(append([]string{snap.KeyColumn}, snap.OrderBy...), snap.Sensitive...))
	filter := lo.Map(snap.Sensitive, func(c string, _ int) string { return q(c) + " IS NOT NULL" })

	return fmt.Sprintf("SELECT ROW_NUMBER() OVER (ORDER BY %s) AS %s, %s FROM %s WHERE %s",
		strings.Join(ordering, ", "),
		rowIDColumn(s.dialect.Type()),
		strings.Join(lo.Map(projected, func(c string, _ int) string { return q(c) }), ", "),
		s.tables.Source.Quoted(),
		strings.Join(filter, " OR "))
}

// checkKey makes sure the rebuild join on the key column maps every source
// row to at most one snapshot row.
func (s *Snapshotter) checkKey(ctx context.Context, snap *Snapshot) error {
	key := warehouse.Quote(s.dialect, snap.KeyColumn)

	var nullKeys int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", s.tables.Snapshot.Quoted(), key)
	if err := s.ex.QueryRowContext(ctx, query).Scan(&nullKeys); err != nil {
		return warehouseErr(fmt.Errorf("check key column %s: %w", snap.KeyColumn, err))
	}
	if nullKeys > 0 {
		return errs.Newf(errs.KindData, "key column %s is null in %d rows carrying sensitive values", snap.KeyColumn, nullKeys)
	}

	var duplicates int64
	query = fmt.Sprintf("SELECT COUNT(%s) - COUNT(DISTINCT %s) FROM %s", key, key, s.tables.Source.Quoted())
	if err := s.ex.QueryRowContext(ctx, query).Scan(&duplicates); err != nil {
		return warehouseErr(fmt.Errorf("check key column %s: %w", snap.KeyColumn, err))
	}
	if duplicates > 0 {
		return errs.Newf(errs.KindData, "key column %s is not unique in %s: %d duplicate values", snap.KeyColumn, s.tables.Source, duplicates)
	}
	return nil
}

func resolveColumn(columns []string, name, role string) (string, error) {
	resolved, ok := lo.Find(columns, func(c string) bool { return strings.EqualFold(c, name) })
	if !ok {
		return "", errs.Newf(errs.KindData, "%s column %q not found in source table", role, name)
	}
	return resolved, nil
}
