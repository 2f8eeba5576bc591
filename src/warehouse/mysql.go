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
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/vaultswap/vaultswap/src/utils/sqlname"
)

type MySQL struct{}

func (m *MySQL) Type() string { return sqlname.MYSQL }

func (m *MySQL) Placeholder(int) string { return "?" }

func (m *MySQL) TableExists(ctx context.Context, ex Executor, t *sqlname.TableName) (Existence, error) {
	query := "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?"
	n, err := queryCount(ctx, ex, query, t.Schema(), t.Table.Unquoted)
	if err != nil {
		return Absent, fmt.Errorf("check existence of %s: %w", t, err)
	}
	return existence(n), nil
}

func (m *MySQL) ListColumns(ctx context.Context, ex Executor, t *sqlname.TableName) ([]string, error) {
	query := "SELECT column_name FROM information_schema.columns WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ? ORDER BY ordinal_position"
	cols, err := queryStrings(ctx, ex, query, t.Schema(), t.Table.Unquoted)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", t, err)
	}
	return cols, nil
}

func (m *MySQL) TextType() string { return "TEXT" }

func (m *MySQL) CastToText(expr string) string {
	return fmt.Sprintf("CAST(%s AS CHAR)", expr)
}

// MySQL coerces COALESCE arguments itself, so the original keeps its type
// when no token applies.
func (m *MySQL) TokenOrOriginal(token, original string) string {
	return fmt.Sprintf("COALESCE(%s, %s)", token, original)
}

func (m *MySQL) UpsertSQL(stage *sqlname.TableName, rowIDCol string, valueCols []string, rows int) string {
	updates := lo.Map(valueCols, func(c string, _ int) string {
		return fmt.Sprintf("%s = VALUES(%s)", c, c)
	})
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON DUPLICATE KEY UPDATE %s",
		stage.Quoted(), strings.Join(append([]string{rowIDCol}, valueCols...), ", "),
		valueTuples(m, rows, len(valueCols)+1), strings.Join(updates, ", "))
}

func (m *MySQL) CreateLike(ctx context.Context, ex Executor, source, target *sqlname.TableName) error {
	return createLike(ctx, ex, fmt.Sprintf("CREATE TABLE %s LIKE %s", target.Quoted(), source.Quoted()), target)
}

// Swap uses a single multi-table RENAME, which MySQL applies atomically.
func (m *MySQL) Swap(ctx context.Context, ex Executor, source, replacement *sqlname.TableName) error {
	parking := source.WithSuffix("__vs_swap")
	stmt := fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s, %s TO %s",
		source.Quoted(), parking.Quoted(),
		replacement.Quoted(), source.Quoted(),
		parking.Quoted(), replacement.Quoted())
	log.Infof("swap: %s", stmt)
	_, err := ex.ExecContext(ctx, stmt)
	return err
}
